package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/taskvine/taskvine/internal/app/system/normalize"
	"github.com/taskvine/taskvine/internal/app/system/txn"
	"github.com/taskvine/taskvine/internal/domain/models"
)

type Store struct {
	c   *mongo.Collection
	log *zap.Logger
}

func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{c: db.Collection("users"), log: logger}
}

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrDuplicateHandle is returned when attempting to create a user with a handle that already exists.
	ErrDuplicateHandle = errors.New("a user with this handle already exists")

	errHandleNeeded = errors.New("handle is required")
	errEmailNeeded  = errors.New("email is required")
	errBadStatus    = errors.New(`status must be "active"|"disabled"`)
)

// Create inserts a new user after normalizing & validating fields.
// Relationship arrays start empty; the follow engine owns them after that.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Handle = normalize.Handle(u.Handle)
	u.FullName = normalize.Name(u.FullName)
	u.FullNameCI = text.Fold(u.FullName)
	u.Email = normalize.Email(u.Email)
	if u.Status == "" {
		u.Status = "active"
	}

	if u.Handle == "" {
		return models.User{}, errHandleNeeded
	}
	if u.Email == "" {
		return models.User{}, errEmailNeeded
	}
	switch u.Status {
	case "active", "disabled":
	default:
		return models.User{}, errBadStatus
	}

	u.Followers = []primitive.ObjectID{}
	u.Following = []primitive.ObjectID{}
	u.FollowRequests = []primitive.ObjectID{}

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			if strings.Contains(err.Error(), "handle") {
				return models.User{}, ErrDuplicateHandle
			}
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByHandle looks up a user by normalized handle.
func (s *Store) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"handle": normalize.Handle(handle)}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByEmail looks up a user by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// SetPrivacy changes a user's profile visibility.
//
// Flipping a private profile public promotes every pending follow request
// to an accepted follow: the requesters land in followers, the subject
// lands in each requester's following, and follow_requests drains. The
// promoted requester IDs are returned so the caller can retract their
// pending-request activities. Setting a profile private leaves existing
// followers in place.
func (s *Store) SetPrivacy(ctx context.Context, id primitive.ObjectID, private bool) ([]primitive.ObjectID, error) {
	if private {
		res, err := s.c.UpdateOne(ctx,
			bson.M{"_id": id, "is_private": false},
			bson.M{"$set": bson.M{"is_private": true, "updated_at": time.Now()}})
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, s.classifyPrivacyMiss(ctx, id)
		}
		return nil, nil
	}

	var promoted []primitive.ObjectID
	err := txn.WithTransaction(ctx, s.c.Database().Client(), s.log, func(ctx context.Context) error {
		promoted = nil
		now := time.Now()

		// Flip, promote and drain in one document write. The pipeline
		// reads follow_requests at write time, so a request filed after
		// any earlier read still gets promoted, and the returned
		// pre-image pins exactly which requests were drained.
		update := bson.A{bson.M{"$set": bson.M{
			"is_private":      false,
			"updated_at":      now,
			"followers":       bson.M{"$setUnion": bson.A{"$followers", "$follow_requests"}},
			"follow_requests": bson.A{},
		}}}
		var before models.User
		err := s.c.FindOneAndUpdate(ctx,
			bson.M{"_id": id, "is_private": true},
			update,
			options.FindOneAndUpdate().SetReturnDocument(options.Before),
		).Decode(&before)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return s.classifyPrivacyMiss(ctx, id)
		}
		if err != nil {
			return err
		}

		promoted = before.FollowRequests
		if len(promoted) > 0 {
			_, err := s.c.UpdateMany(ctx,
				bson.M{"_id": bson.M{"$in": promoted}},
				bson.M{
					"$addToSet": bson.M{"following": id},
					"$set":      bson.M{"updated_at": now},
				})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// classifyPrivacyMiss distinguishes "user gone" from "already in the
// requested state" after a guarded privacy update matched nothing.
func (s *Store) classifyPrivacyMiss(ctx context.Context, id primitive.ObjectID) error {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts returns the follower and following counts for a user.
func (s *Store) Counts(ctx context.Context, id primitive.ObjectID) (followers, following int, err error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	return len(u.Followers), len(u.Following), nil
}

// SearchByName returns up to limit active users whose folded full name
// starts with the query, ordered by name.
func (s *Store) SearchByName(ctx context.Context, q string, limit int64) ([]models.User, error) {
	folded := text.Fold(strings.TrimSpace(q))
	if folded == "" {
		return []models.User{}, nil
	}

	filter := bson.M{
		"status":       "active",
		"full_name_ci": bson.M{"$gte": folded, "$lt": folded + "￿"},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "full_name_ci", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Delete removes a user and unlinks them from every other user's
// followers and following arrays. Pending requests they filed stay on
// the target documents: accepting one later finds no requester and
// fails with the follow store's actor-not-found error, which is how a
// stale request from a deleted account gets cleaned up. Activities
// they acted in are left for the activity store to orphan.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	return txn.WithTransaction(ctx, s.c.Database().Client(), s.log, func(ctx context.Context) error {
		res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		_, err = s.c.UpdateMany(ctx,
			bson.M{"$or": bson.A{
				bson.M{"followers": id},
				bson.M{"following": id},
			}},
			bson.M{"$pull": bson.M{
				"followers": id,
				"following": id,
			}})
		return err
	})
}
