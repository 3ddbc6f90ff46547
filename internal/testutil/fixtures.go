package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/taskvine/taskvine/internal/domain/models"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a test user with a public profile.
func (f *Fixtures) CreateUser(ctx context.Context, handle, fullName string) models.User {
	f.t.Helper()
	return f.createUser(ctx, handle, fullName, false)
}

// CreatePrivateUser creates a test user with a private profile.
func (f *Fixtures) CreatePrivateUser(ctx context.Context, handle, fullName string) models.User {
	f.t.Helper()
	return f.createUser(ctx, handle, fullName, true)
}

func (f *Fixtures) createUser(ctx context.Context, handle, fullName string, private bool) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:             primitive.NewObjectID(),
		Handle:         handle,
		FullName:       fullName,
		FullNameCI:     text.Fold(fullName),
		Email:          handle + "@test.com",
		Status:         "active",
		IsPrivate:      private,
		Followers:      []primitive.ObjectID{},
		Following:      []primitive.ObjectID{},
		FollowRequests: []primitive.ObjectID{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := f.db.Collection("users").InsertOne(ctx, user)
	if err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreatePost creates a test post authored by the given user.
func (f *Fixtures) CreatePost(ctx context.Context, authorID primitive.ObjectID, body string) models.Post {
	f.t.Helper()

	now := time.Now().UTC()
	post := models.Post{
		ID:        primitive.NewObjectID(),
		AuthorID:  authorID,
		Body:      body,
		Likes:     []primitive.ObjectID{},
		Comments:  []models.Comment{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := f.db.Collection("posts").InsertOne(ctx, post)
	if err != nil {
		f.t.Fatalf("failed to create test post: %v", err)
	}

	return post
}

// CreateTask creates an open test task owned by the given user.
func (f *Fixtures) CreateTask(ctx context.Context, ownerID primitive.ObjectID, title string) models.Task {
	f.t.Helper()

	now := time.Now().UTC()
	task := models.Task{
		ID:         primitive.NewObjectID(),
		OwnerID:    ownerID,
		Title:      title,
		Details:    "Test task details",
		Status:     models.TaskOpen,
		Applicants: []primitive.ObjectID{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := f.db.Collection("tasks").InsertOne(ctx, task)
	if err != nil {
		f.t.Fatalf("failed to create test task: %v", err)
	}

	return task
}

// CreateActivity inserts an activity for the recipient directly,
// bypassing the recorder's self-action and dedup rules.
func (f *Fixtures) CreateActivity(ctx context.Context, recipient, actor primitive.ObjectID, actType string) models.Activity {
	f.t.Helper()

	act := models.Activity{
		ID:        primitive.NewObjectID(),
		Recipient: recipient,
		Actor:     &actor,
		Type:      actType,
		CreatedAt: time.Now().UTC(),
	}

	_, err := f.db.Collection("activities").InsertOne(ctx, act)
	if err != nil {
		f.t.Fatalf("failed to create test activity: %v", err)
	}

	return act
}

// MakeFollower links follower -> followee directly in both user docs,
// bypassing the follow engine. Use to establish preconditions.
func (f *Fixtures) MakeFollower(ctx context.Context, followerID, followeeID primitive.ObjectID) {
	f.t.Helper()

	users := f.db.Collection("users")
	if _, err := users.UpdateByID(ctx, followerID,
		map[string]any{"$addToSet": map[string]any{"following": followeeID}}); err != nil {
		f.t.Fatalf("failed to set following: %v", err)
	}
	if _, err := users.UpdateByID(ctx, followeeID,
		map[string]any{"$addToSet": map[string]any{"followers": followerID}}); err != nil {
		f.t.Fatalf("failed to set followers: %v", err)
	}
}

// MakePendingRequest places requester in target's follow_requests
// directly, bypassing the follow engine.
func (f *Fixtures) MakePendingRequest(ctx context.Context, requesterID, targetID primitive.ObjectID) {
	f.t.Helper()

	if _, err := f.db.Collection("users").UpdateByID(ctx, targetID,
		map[string]any{"$addToSet": map[string]any{"follow_requests": requesterID}}); err != nil {
		f.t.Fatalf("failed to set follow request: %v", err)
	}
}
