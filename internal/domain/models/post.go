// internal/domain/models/post.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is a feed post. Likes is a set (enforced with $addToSet), so
// liking twice without an intervening unlike is a no-op at the storage
// layer and never produces a second activity.
type Post struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	AuthorID  primitive.ObjectID   `bson:"author_id" json:"author_id"`
	Body      string               `bson:"body" json:"body"`
	Likes     []primitive.ObjectID `bson:"likes,omitempty" json:"likes,omitempty"`
	Comments  []Comment            `bson:"comments,omitempty" json:"comments,omitempty"`
	CreatedAt time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at" json:"updated_at"`
}

// Comment is embedded on its post. Text is sanitized before insert.
type Comment struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	AuthorID  primitive.ObjectID `bson:"author_id" json:"author_id"`
	Text      string             `bson:"text" json:"text"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
