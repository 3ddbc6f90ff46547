// internal/domain/models/task.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task statuses.
const (
	TaskOpen      = "open"
	TaskAssigned  = "assigned"
	TaskCompleted = "completed"
)

// Task is a marketplace task posted by an owner. Applicants apply, the
// owner assigns one of them, the assignee completes.
type Task struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	OwnerID    primitive.ObjectID   `bson:"owner_id" json:"owner_id"`
	Title      string               `bson:"title" json:"title"`
	Details    string               `bson:"details,omitempty" json:"details,omitempty"`
	Status     string               `bson:"status" json:"status"` // open | assigned | completed
	Applicants []primitive.ObjectID `bson:"applicants,omitempty" json:"applicants,omitempty"`
	AssigneeID *primitive.ObjectID  `bson:"assignee_id,omitempty" json:"assignee_id,omitempty"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}
