// Package activitystore records and serves the activity feed.
//
// Recording enforces two rules from the notification model: acting on
// your own content never produces an activity, and repeatable actions
// (likes, follows, task events) deduplicate on (recipient, actor, type,
// subject) so flapping produces at most one record. Comments are the
// exception: each comment is its own activity.
package activitystore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/taskvine/taskvine/internal/app/system/htmlsanitize"
	"github.com/taskvine/taskvine/internal/app/system/paging"
	"github.com/taskvine/taskvine/internal/domain/models"
)

// ErrNotFound is returned when an activity does not exist for the
// recipient.
var ErrNotFound = errors.New("activity not found")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("activities")}
}

// RecordInput describes one action to record.
type RecordInput struct {
	Recipient primitive.ObjectID
	Actor     primitive.ObjectID
	Type      string

	PostID  *primitive.ObjectID
	TaskID  *primitive.ObjectID
	Comment string
}

// subjectFilter pins the dedup key to the acted-on object. Absent
// subjects are matched as absent so a post like and a profile follow
// never collide.
func subjectFilter(in RecordInput) bson.M {
	f := bson.M{
		"recipient_id": in.Recipient,
		"actor_id":     in.Actor,
		"type":         in.Type,
	}
	if in.PostID != nil {
		f["post_id"] = *in.PostID
	} else {
		f["post_id"] = bson.M{"$exists": false}
	}
	if in.TaskID != nil {
		f["task_id"] = *in.TaskID
	} else {
		f["task_id"] = bson.M{"$exists": false}
	}
	return f
}

// Record writes one activity. Returns nil (and no error) when the
// action is a self-action or a dedup hit: both are deliberate no-ops.
func (s *Store) Record(ctx context.Context, in RecordInput) (*models.Activity, error) {
	if in.Actor == in.Recipient {
		return nil, nil
	}

	actor := in.Actor
	act := models.Activity{
		Recipient: in.Recipient,
		Actor:     &actor,
		Type:      in.Type,
		PostID:    in.PostID,
		TaskID:    in.TaskID,
		Comment:   htmlsanitize.StripTags(in.Comment),
		CreatedAt: time.Now().UTC(),
	}

	if in.Type == models.ActivityComment {
		act.ID = primitive.NewObjectID()
		if _, err := s.c.InsertOne(ctx, act); err != nil {
			return nil, err
		}
		return &act, nil
	}

	// Upsert with $setOnInsert makes the dedup check and the insert a
	// single atomic step, so concurrent duplicates produce one record.
	// The dedup-key fields come from the filter's equality matches;
	// $setOnInsert carries only the rest.
	res, err := s.c.UpdateOne(ctx,
		subjectFilter(in),
		bson.M{"$setOnInsert": bson.M{
			"comment":    act.Comment,
			"read":       false,
			"created_at": act.CreatedAt,
		}},
		options.Update().SetUpsert(true))
	if err != nil {
		return nil, err
	}
	if res.UpsertedID == nil {
		// Dedup hit.
		return nil, nil
	}
	act.ID = res.UpsertedID.(primitive.ObjectID)
	return &act, nil
}

// Retract removes the activity a prior action produced, if any. Used
// when a like is removed, a follow request withdrawn, or an application
// cancelled. Self-actions retract nothing because they recorded
// nothing. Returns the number of records removed.
func (s *Store) Retract(ctx context.Context, in RecordInput) (int64, error) {
	if in.Actor == in.Recipient {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, subjectFilter(in))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// RetractComment removes one comment activity matching the snapshot
// text. Comments are not deduplicated, so the match is narrowed to the
// exact text and only one record goes.
func (s *Store) RetractComment(ctx context.Context, recipient, actor, postID primitive.ObjectID, comment string) (int64, error) {
	if actor == recipient {
		return 0, nil
	}
	res, err := s.c.DeleteOne(ctx, bson.M{
		"recipient_id": recipient,
		"actor_id":     actor,
		"type":         models.ActivityComment,
		"post_id":      postID,
		"comment":      htmlsanitize.StripTags(comment),
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteForPost removes every activity referencing the post.
func (s *Store) DeleteForPost(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"post_id": postID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteForTask removes every activity referencing the task.
func (s *Store) DeleteForTask(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"task_id": taskID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// OrphanActor clears the actor reference on every activity the user
// acted in. The records survive account deletion with a nil actor.
func (s *Store) OrphanActor(ctx context.Context, actorID primitive.ObjectID) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"actor_id": actorID},
		bson.M{"$unset": bson.M{"actor_id": ""}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Feed filters.
const (
	FilterAll    = "all"
	FilterUnread = "unread"
	FilterRead   = "read"
)

// ListOptions filters and pages a recipient's feed.
type ListOptions struct {
	Types  []string // empty means all types
	Filter string   // FilterAll (default), FilterUnread, or FilterRead
	Before string   // cursor toward newer entries
	After  string   // cursor toward older entries
	Limit  int      // defaults to paging.PageSize when <= 0
}

// Page is one window of a recipient's feed, newest first.
type Page struct {
	Activities []models.Activity
	HasPrev    bool
	HasNext    bool
	PrevCursor string
	NextCursor string
}

// List returns the recipient's feed window. ObjectIDs are insertion
// ordered, so the keyset walks _id rather than a timestamp field.
func (s *Store) List(ctx context.Context, recipient primitive.ObjectID, opts ListOptions) (Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = paging.PageSize
	}

	filter := bson.M{"recipient_id": recipient}
	if len(opts.Types) > 0 {
		filter["type"] = bson.M{"$in": opts.Types}
	}
	switch opts.Filter {
	case FilterUnread:
		filter["read"] = false
	case FilterRead:
		filter["read"] = true
	}

	cfg := paging.ConfigureKeyset(opts.Before, opts.After)
	if cfg.Cursor != nil {
		op := "$lt"
		if cfg.Direction == paging.Newer {
			op = "$gt"
		}
		filter["_id"] = bson.M{op: cfg.Cursor.ID}
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: cfg.SortOrder}}).
		SetLimit(int64(limit + 1))

	cur, err := s.c.Find(ctx, filter, findOpts)
	if err != nil {
		return Page{}, err
	}
	defer cur.Close(ctx)

	rows := []models.Activity{}
	if err := cur.All(ctx, &rows); err != nil {
		return Page{}, err
	}

	result := paging.TrimPage(&rows, opts.Before, opts.After, limit)
	if cfg.Direction == paging.Newer {
		paging.Reverse(rows)
	}

	prev, next := paging.BuildCursors(rows,
		func(models.Activity) string { return "" },
		func(a models.Activity) primitive.ObjectID { return a.ID })

	return Page{
		Activities: rows,
		HasPrev:    result.HasPrev,
		HasNext:    result.HasNext,
		PrevCursor: prev,
		NextCursor: next,
	}, nil
}

// MarkRead marks one activity read. Marking an already-read activity is
// a no-op, not an error; a missing activity is ErrNotFound.
func (s *Store) MarkRead(ctx context.Context, recipient, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipient},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread activity read and returns how many
// transitioned.
func (s *Store) MarkAllRead(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"recipient_id": recipient, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ClearAll deletes the recipient's entire feed and returns how many
// records were removed.
func (s *Store) ClearAll(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"recipient_id": recipient})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountUnread returns the recipient's unread badge count.
func (s *Store) CountUnread(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"recipient_id": recipient, "read": false})
}

// DeleteReadOlderThan removes read activities created before the cutoff.
// Unread activities are kept regardless of age so nothing disappears
// before the recipient has seen it.
func (s *Store) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{
		"read":       true,
		"created_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
