// internal/app/store/tasks/taskstore.go

// Package taskstore persists marketplace tasks through the
// open -> assigned -> completed lifecycle. Every transition is a
// guarded write that carries the expected status in its filter, so two
// racing owners assigning at once resolve to one winner.
package taskstore

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
	ErrNotFound       = errors.New("task not found")
	ErrEmptyTitle     = errors.New("task title is required")
	ErrNotOpen        = errors.New("task is not open")
	ErrNotAssigned    = errors.New("task is not assigned")
	ErrNotOwner       = errors.New("not the task owner")
	ErrNotAssignee    = errors.New("not the task assignee")
	ErrOwnTask        = errors.New("cannot apply to your own task")
	ErrAlreadyApplied = errors.New("already applied")
	ErrNotApplicant   = errors.New("user has not applied")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("tasks")}
}

func (s *Store) Create(ctx context.Context, ownerID primitive.ObjectID, title, details string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:         primitive.NewObjectID(),
		OwnerID:    ownerID,
		Title:      title,
		Details:    strings.TrimSpace(htmlsanitize.Sanitize(details)),
		Status:     models.TaskOpen,
		Applicants: []primitive.ObjectID{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.c.InsertOne(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ListOpen returns open tasks newest-first for the marketplace view.
func (s *Store) ListOpen(ctx context.Context, limit int64) ([]models.Task, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)
	cur, err := s.c.Find(ctx, bson.M{"status": models.TaskOpen}, opts)
	if err != nil {
		return nil, err
	}
	var tasks []models.Task
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Apply adds applicantID to an open task's applicant set. The guarded
// filter rejects duplicate applications and a closed task in the same
// write; on a miss the task is re-read to name the reason.
func (s *Store) Apply(ctx context.Context, taskID, applicantID primitive.ObjectID) (*models.Task, error) {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID == applicantID {
		return nil, ErrOwnTask
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id":        taskID,
			"status":     models.TaskOpen,
			"applicants": bson.M{"$ne": applicantID},
		},
		bson.M{
			"$addToSet": bson.M{"applicants": applicantID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, s.classifyApplyMiss(ctx, taskID, applicantID)
	}
	return s.Get(ctx, taskID)
}

func (s *Store) classifyApplyMiss(ctx context.Context, taskID, applicantID primitive.ObjectID) error {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if containsID(task.Applicants, applicantID) {
		return ErrAlreadyApplied
	}
	return ErrNotOpen
}

// Withdraw removes a pending application from an open task.
func (s *Store) Withdraw(ctx context.Context, taskID, applicantID primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id":        taskID,
			"status":     models.TaskOpen,
			"applicants": applicantID,
		},
		bson.M{
			"$pull": bson.M{"applicants": applicantID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		task, err := s.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status != models.TaskOpen {
			return ErrNotOpen
		}
		return ErrNotApplicant
	}
	return nil
}

// Assign moves an open task to assigned, picking one applicant. Only
// the owner may assign, and the assignee must have applied.
func (s *Store) Assign(ctx context.Context, taskID, ownerID, assigneeID primitive.ObjectID) (*models.Task, error) {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != ownerID {
		return nil, ErrNotOwner
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id":        taskID,
			"status":     models.TaskOpen,
			"applicants": assigneeID,
		},
		bson.M{"$set": bson.M{
			"status":      models.TaskAssigned,
			"assignee_id": assigneeID,
			"updated_at":  time.Now().UTC(),
		}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		task, err := s.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status != models.TaskOpen {
			return nil, ErrNotOpen
		}
		return nil, ErrNotApplicant
	}
	return s.Get(ctx, taskID)
}

// Complete moves an assigned task to completed. Only the assignee may
// complete.
func (s *Store) Complete(ctx context.Context, taskID, assigneeID primitive.ObjectID) (*models.Task, error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id":         taskID,
			"status":      models.TaskAssigned,
			"assignee_id": assigneeID,
		},
		bson.M{"$set": bson.M{
			"status":       models.TaskCompleted,
			"completed_at": now,
			"updated_at":   now,
		}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		task, err := s.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status != models.TaskAssigned {
			return nil, ErrNotAssigned
		}
		return nil, ErrNotAssignee
	}
	return s.Get(ctx, taskID)
}

// Delete removes an owner's task. Activities referencing it are the
// caller's to purge.
func (s *Store) Delete(ctx context.Context, taskID, ownerID primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": taskID, "owner_id": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": taskID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrNotOwner
	}
	return nil
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
