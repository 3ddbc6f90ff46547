// internal/domain/models/activity.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Activity type values. Like, follow, follow-request, and task events
// deduplicate on (recipient, actor, type, subject); comments do not.
const (
	ActivityLike          = "like"
	ActivityComment       = "comment"
	ActivityFollow        = "follow"
	ActivityFollowRequest = "follow_request"
	ActivityFollowAccept  = "follow_accept"
	ActivityTaskApply     = "task_apply"
	ActivityTaskAssign    = "task_assign"
	ActivityTaskComplete  = "task_complete"
)

// Activity is one notification record: a durable event describing one
// actor's action toward one recipient, rendered as the recipient's feed.
//
// Actor is a pointer because the acting account may be deleted later;
// the record survives with a nil actor.
type Activity struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Recipient primitive.ObjectID  `bson:"recipient_id" json:"recipient"`
	Actor     *primitive.ObjectID `bson:"actor_id,omitempty" json:"actor,omitempty"`
	Type      string              `bson:"type" json:"type"`

	PostID *primitive.ObjectID `bson:"post_id,omitempty" json:"post_id,omitempty"`
	TaskID *primitive.ObjectID `bson:"task_id,omitempty" json:"task_id,omitempty"`

	// Comment is a sanitized text snapshot so the activity survives
	// comment edits and deletes.
	Comment string `bson:"comment,omitempty" json:"comment,omitempty"`

	Read      bool      `bson:"read" json:"read"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
