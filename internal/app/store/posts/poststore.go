// internal/app/store/posts/poststore.go

// Package poststore persists feed posts with embedded likes and
// comments. Likes are a set kept with $addToSet/$pull; ModifiedCount on
// those writes tells the caller whether the like state actually
// transitioned, so duplicate likes never fan out duplicate activities.
package poststore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/taskvine/taskvine/internal/app/system/htmlsanitize"
	"github.com/taskvine/taskvine/internal/domain/models"
)

var (
	ErrNotFound        = errors.New("post not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrEmptyBody       = errors.New("post body is required")
	ErrEmptyComment    = errors.New("comment text is required")
	ErrNotAuthor       = errors.New("not the post author")
)

// Store provides CRUD plus like/comment mutations on the posts
// collection.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("posts")}
}

// Create inserts a post. The body passes through the UGC sanitizer.
func (s *Store) Create(ctx context.Context, authorID primitive.ObjectID, body string) (*models.Post, error) {
	body = strings.TrimSpace(htmlsanitize.Sanitize(body))
	if body == "" {
		return nil, ErrEmptyBody
	}

	now := time.Now().UTC()
	post := &models.Post{
		ID:        primitive.NewObjectID(),
		AuthorID:  authorID,
		Body:      body,
		Likes:     []primitive.ObjectID{},
		Comments:  []models.Comment{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.c.InsertOne(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	var post models.Post
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListByAuthor returns an author's posts newest-first.
func (s *Store) ListByAuthor(ctx context.Context, authorID primitive.ObjectID, limit int64) ([]models.Post, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)
	cur, err := s.c.Find(ctx, bson.M{"author_id": authorID}, opts)
	if err != nil {
		return nil, err
	}
	var posts []models.Post
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Like adds userID to the post's like set. The returned bool is true
// only when the like actually transitioned from absent to present;
// repeat likes return false with no error. The like-set state check
// lives in the update filter, so a match is the transition and the
// updated_at touch cannot fake one.
func (s *Store) Like(ctx context.Context, postID, userID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": postID, "likes": bson.M{"$ne": userID}},
		bson.M{
			"$addToSet": bson.M{"likes": userID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	return false, s.classifyLikeMiss(ctx, postID)
}

// Unlike removes userID from the like set. True only when a like was
// actually removed.
func (s *Store) Unlike(ctx context.Context, postID, userID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": postID, "likes": userID},
		bson.M{
			"$pull": bson.M{"likes": userID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	return false, s.classifyLikeMiss(ctx, postID)
}

// classifyLikeMiss distinguishes "post gone" from "like already in the
// desired state" after a guarded like update matched nothing.
func (s *Store) classifyLikeMiss(ctx context.Context, postID primitive.ObjectID) error {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": postID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddComment appends a sanitized comment and returns it. Markup is
// stripped to plain text; comments are not rich content.
func (s *Store) AddComment(ctx context.Context, postID, authorID primitive.ObjectID, text string) (*models.Comment, error) {
	text = htmlsanitize.StripTags(text)
	if text == "" {
		return nil, ErrEmptyComment
	}

	comment := models.Comment{
		ID:        primitive.NewObjectID(),
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{
			"$push": bson.M{"comments": comment},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return &comment, nil
}

// RemoveComment pulls a comment by id, but only when authorID wrote it.
// The removed comment is returned so the caller can retract its
// activity by text snapshot.
func (s *Store) RemoveComment(ctx context.Context, postID, commentID, authorID primitive.ObjectID) (*models.Comment, error) {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	var removed *models.Comment
	for i := range post.Comments {
		if post.Comments[i].ID == commentID {
			removed = &post.Comments[i]
			break
		}
	}
	if removed == nil {
		return nil, ErrCommentNotFound
	}
	if removed.AuthorID != authorID {
		return nil, ErrNotAuthor
	}

	// Guarded pull: the comment may have been removed since the read.
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": postID, "comments._id": commentID},
		bson.M{
			"$pull": bson.M{"comments": bson.M{"_id": commentID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrCommentNotFound
	}
	return removed, nil
}

// Delete removes a post when authorID owns it. The caller is
// responsible for purging the post's activities.
func (s *Store) Delete(ctx context.Context, postID, authorID primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": postID, "author_id": authorID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		// Distinguish missing post from wrong author.
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": postID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrNotAuthor
	}
	return nil
}
