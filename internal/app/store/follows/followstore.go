// Package followstore implements the follow relationship engine.
//
// Relationships live denormalized on the user documents themselves:
// followers, following, and follow_requests are arrays of user IDs.
// Every mutation uses a guarded update — the required current state is
// part of the update filter — so concurrent duplicate requests resolve
// to exactly one winner. The paired activity record/retraction runs in
// the same transaction as the user-document writes, so a follow request
// and its notification appear and disappear together.
package followstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	activitystore "github.com/taskvine/taskvine/internal/app/store/activities"
	"github.com/taskvine/taskvine/internal/app/system/txn"
	"github.com/taskvine/taskvine/internal/domain/models"
)

var (
	// ErrSelfFollow is returned when a user targets themselves.
	ErrSelfFollow = errors.New("cannot follow yourself")
	// ErrAlreadyFollowing is returned when the relationship already exists.
	ErrAlreadyFollowing = errors.New("already following this user")
	// ErrRequestAlreadyPending is returned when a follow request is already waiting.
	ErrRequestAlreadyPending = errors.New("follow request already pending")
	// ErrNotFollowing is returned by Unfollow when there is neither a
	// follow nor a pending request to remove.
	ErrNotFollowing = errors.New("not following this user")
	// ErrRequestNotFound is returned when accepting or rejecting a
	// request that does not exist.
	ErrRequestNotFound = errors.New("follow request not found")
	// ErrActorNotFound is returned when the acting user's account no
	// longer exists.
	ErrActorNotFound = errors.New("acting user not found")
	// ErrRecipientNotFound is returned when the target user does not exist.
	ErrRecipientNotFound = errors.New("target user not found")
)

// FollowOutcome discriminates what Follow actually did.
type FollowOutcome int

const (
	// Followed means the relationship is now active.
	Followed FollowOutcome = iota
	// Requested means a request is now pending the target's approval.
	Requested
)

// UnfollowOutcome discriminates what Unfollow actually removed.
type UnfollowOutcome int

const (
	// Unfollowed means an active follow was removed.
	Unfollowed UnfollowOutcome = iota
	// RequestWithdrawn means a pending request was withdrawn.
	RequestWithdrawn
)

// Relationship describes how actor stands relative to target.
type Relationship struct {
	Following  bool // actor follows target
	Requested  bool // actor has a pending request to target
	FollowedBy bool // target follows actor
}

type Store struct {
	c          *mongo.Collection
	activities *activitystore.Store
	log        *zap.Logger
}

func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{
		c:          db.Collection("users"),
		activities: activitystore.New(db),
		log:        logger,
	}
}

func (s *Store) client() *mongo.Client { return s.c.Database().Client() }

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Follow makes actor follow target, or files a follow request when the
// target profile is private. The outcome reports which happened.
func (s *Store) Follow(ctx context.Context, actorID, targetID primitive.ObjectID) (FollowOutcome, error) {
	if actorID == targetID {
		return 0, ErrSelfFollow
	}

	// Privacy can flip between the read and the write, so retry once
	// when the guarded update misses for that reason.
	for attempt := 0; attempt < 2; attempt++ {
		var target models.User
		if err := s.c.FindOne(ctx, bson.M{"_id": targetID}).Decode(&target); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return 0, ErrRecipientNotFound
			}
			return 0, err
		}
		if containsID(target.Followers, actorID) {
			return 0, ErrAlreadyFollowing
		}
		if containsID(target.FollowRequests, actorID) {
			return 0, ErrRequestAlreadyPending
		}

		if err := s.c.FindOne(ctx, bson.M{"_id": actorID}).Err(); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return 0, ErrActorNotFound
			}
			return 0, err
		}

		if target.IsPrivate {
			outcome, retry, err := s.requestFollow(ctx, actorID, targetID)
			if retry {
				continue
			}
			return outcome, err
		}

		outcome, retry, err := s.directFollow(ctx, actorID, targetID)
		if retry {
			continue
		}
		return outcome, err
	}
	return 0, ErrRequestAlreadyPending
}

// requestFollow files a pending request against a private profile,
// recording the follow_request activity in the same transaction.
// retry is true when the profile went public under us.
func (s *Store) requestFollow(ctx context.Context, actorID, targetID primitive.ObjectID) (FollowOutcome, bool, error) {
	err := txn.WithTransaction(ctx, s.client(), s.log, func(ctx context.Context) error {
		res, err := s.c.UpdateOne(ctx,
			bson.M{
				"_id":             targetID,
				"is_private":      true,
				"followers":       bson.M{"$ne": actorID},
				"follow_requests": bson.M{"$ne": actorID},
			},
			bson.M{"$addToSet": bson.M{"follow_requests": actorID}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			if _, _, cerr := s.classifyFollowMiss(ctx, actorID, targetID); cerr != nil {
				return cerr
			}
			// Privacy flipped: abort the transaction and retry.
			return errRetry
		}
		_, err = s.activities.Record(ctx, activitystore.RecordInput{
			Recipient: targetID,
			Actor:     actorID,
			Type:      models.ActivityFollowRequest,
		})
		return err
	})
	switch {
	case errors.Is(err, errRetry):
		return 0, true, nil
	case err != nil:
		return 0, false, err
	}
	return Requested, false, nil
}

// directFollow establishes the relationship against a public profile.
// retry is true when the profile went private under us.
func (s *Store) directFollow(ctx context.Context, actorID, targetID primitive.ObjectID) (outcome FollowOutcome, retry bool, err error) {
	err = txn.WithTransaction(ctx, s.client(), s.log, func(ctx context.Context) error {
		res, err := s.c.UpdateOne(ctx,
			bson.M{
				"_id":        targetID,
				"is_private": false,
				"followers":  bson.M{"$ne": actorID},
			},
			bson.M{"$addToSet": bson.M{"followers": actorID}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			_, retry, err = s.classifyFollowMiss(ctx, actorID, targetID)
			if err != nil {
				return err
			}
			// Privacy flipped: abort the transaction and retry.
			return errRetry
		}

		ares, err := s.c.UpdateOne(ctx,
			bson.M{"_id": actorID},
			bson.M{"$addToSet": bson.M{"following": targetID}})
		if err != nil {
			return err
		}
		if ares.MatchedCount == 0 {
			return ErrActorNotFound
		}
		if _, err := s.activities.Record(ctx, activitystore.RecordInput{
			Recipient: targetID,
			Actor:     actorID,
			Type:      models.ActivityFollow,
		}); err != nil {
			return err
		}
		outcome = Followed
		return nil
	})
	switch {
	case errors.Is(err, errRetry):
		return 0, true, nil
	case err != nil:
		return 0, false, err
	}
	return outcome, false, nil
}

// errRetry aborts a follow transaction when the target's privacy
// flipped between the read and the guarded write.
var errRetry = errors.New("follow: privacy changed, retry")

// classifyFollowMiss figures out why a guarded follow update matched
// nothing. It either returns a definitive sentinel or asks for a retry
// when the target's privacy flipped.
func (s *Store) classifyFollowMiss(ctx context.Context, actorID, targetID primitive.ObjectID) (FollowOutcome, bool, error) {
	var target models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": targetID}).Decode(&target); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, ErrRecipientNotFound
		}
		return 0, false, err
	}
	if containsID(target.Followers, actorID) {
		return 0, false, ErrAlreadyFollowing
	}
	if containsID(target.FollowRequests, actorID) {
		return 0, false, ErrRequestAlreadyPending
	}
	// Privacy flipped between read and write.
	return 0, true, nil
}

// Unfollow removes an active follow, or withdraws a pending request
// when no follow exists. The outcome reports which happened.
func (s *Store) Unfollow(ctx context.Context, actorID, targetID primitive.ObjectID) (UnfollowOutcome, error) {
	if actorID == targetID {
		return 0, ErrSelfFollow
	}

	var outcome UnfollowOutcome
	err := txn.WithTransaction(ctx, s.client(), s.log, func(ctx context.Context) error {
		res, err := s.c.UpdateOne(ctx,
			bson.M{"_id": targetID, "followers": actorID},
			bson.M{"$pull": bson.M{"followers": actorID}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 1 {
			_, err := s.c.UpdateOne(ctx,
				bson.M{"_id": actorID},
				bson.M{"$pull": bson.M{"following": targetID}})
			if err != nil {
				return err
			}
			outcome = Unfollowed
			return nil
		}

		rres, err := s.c.UpdateOne(ctx,
			bson.M{"_id": targetID, "follow_requests": actorID},
			bson.M{"$pull": bson.M{"follow_requests": actorID}})
		if err != nil {
			return err
		}
		if rres.MatchedCount == 1 {
			// The pending-request notification dies with the request.
			if _, err := s.activities.Retract(ctx, activitystore.RecordInput{
				Recipient: targetID,
				Actor:     actorID,
				Type:      models.ActivityFollowRequest,
			}); err != nil {
				return err
			}
			outcome = RequestWithdrawn
			return nil
		}

		if err := s.c.FindOne(ctx, bson.M{"_id": targetID}).Err(); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return ErrRecipientNotFound
			}
			return err
		}
		return ErrNotFollowing
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// AcceptRequest approves requester's pending follow request to target.
// The requester becomes a follower in the same write that consumes the
// request, so a concurrent reject cannot also succeed.
func (s *Store) AcceptRequest(ctx context.Context, targetID, requesterID primitive.ObjectID) error {
	return txn.WithTransaction(ctx, s.client(), s.log, func(ctx context.Context) error {
		res, err := s.c.UpdateOne(ctx,
			bson.M{"_id": targetID, "follow_requests": requesterID},
			bson.M{
				"$pull":     bson.M{"follow_requests": requesterID},
				"$addToSet": bson.M{"followers": requesterID},
			})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			if err := s.c.FindOne(ctx, bson.M{"_id": targetID}).Err(); err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return ErrRecipientNotFound
				}
				return err
			}
			return ErrRequestNotFound
		}

		rres, err := s.c.UpdateOne(ctx,
			bson.M{"_id": requesterID},
			bson.M{"$addToSet": bson.M{"following": targetID}})
		if err != nil {
			return err
		}
		if rres.MatchedCount == 0 {
			return ErrActorNotFound
		}

		// Accept must remove the pending-request notification, not
		// merely mark it read, and the requester learns they were
		// let in. Both ride the same transaction as the edge writes.
		if _, err := s.activities.Retract(ctx, activitystore.RecordInput{
			Recipient: targetID,
			Actor:     requesterID,
			Type:      models.ActivityFollowRequest,
		}); err != nil {
			return err
		}
		_, err = s.activities.Record(ctx, activitystore.RecordInput{
			Recipient: requesterID,
			Actor:     targetID,
			Type:      models.ActivityFollowAccept,
		})
		return err
	})
}

// RejectRequest declines requester's pending follow request to target.
// Silent for the requester; the target's pending notification goes away
// with the request.
func (s *Store) RejectRequest(ctx context.Context, targetID, requesterID primitive.ObjectID) error {
	return txn.WithTransaction(ctx, s.client(), s.log, func(ctx context.Context) error {
		res, err := s.c.UpdateOne(ctx,
			bson.M{"_id": targetID, "follow_requests": requesterID},
			bson.M{"$pull": bson.M{"follow_requests": requesterID}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			if err := s.c.FindOne(ctx, bson.M{"_id": targetID}).Err(); err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return ErrRecipientNotFound
				}
				return err
			}
			return ErrRequestNotFound
		}
		_, err = s.activities.Retract(ctx, activitystore.RecordInput{
			Recipient: targetID,
			Actor:     requesterID,
			Type:      models.ActivityFollowRequest,
		})
		return err
	})
}

// Relationship reports how actor stands relative to target.
func (s *Store) Relationship(ctx context.Context, actorID, targetID primitive.ObjectID) (Relationship, error) {
	var target models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": targetID}).Decode(&target); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Relationship{}, ErrRecipientNotFound
		}
		return Relationship{}, err
	}
	return Relationship{
		Following:  containsID(target.Followers, actorID),
		Requested:  containsID(target.FollowRequests, actorID),
		FollowedBy: containsID(target.Following, actorID),
	}, nil
}

// Followers lists the users following userID, ordered by name.
func (s *Store) Followers(ctx context.Context, userID primitive.ObjectID) ([]models.User, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.loadMany(ctx, u.Followers)
}

// Following lists the users userID follows, ordered by name.
func (s *Store) Following(ctx context.Context, userID primitive.ObjectID) ([]models.User, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.loadMany(ctx, u.Following)
}

// PendingRequests lists the users waiting on userID's approval.
func (s *Store) PendingRequests(ctx context.Context, userID primitive.ObjectID) ([]models.User, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.loadMany(ctx, u.FollowRequests)
}

func (s *Store) loadUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) loadMany(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
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
