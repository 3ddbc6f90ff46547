// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents an account in the marketplace.
//
// Relationship state lives on the user document itself:
//   - Followers: ids of users whose follow has been accepted
//   - Following: ids of users this user follows
//   - FollowRequests: ids with a pending inbound request (private accounts)
//
// A given id is never in both Followers and FollowRequests, and a user
// never appears in any of its own three sets.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Handle     string             `bson:"handle" json:"handle"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"-"` // lowercase, diacritics-stripped
	Email      string             `bson:"email" json:"email"`
	PassHash   string             `bson:"pass_hash,omitempty" json:"-"`
	Status     string             `bson:"status,omitempty" json:"status,omitempty"`

	IsPrivate      bool                 `bson:"is_private" json:"is_private"`
	Followers      []primitive.ObjectID `bson:"followers,omitempty" json:"-"`
	Following      []primitive.ObjectID `bson:"following,omitempty" json:"-"`
	FollowRequests []primitive.ObjectID `bson:"follow_requests,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
