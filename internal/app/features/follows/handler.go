// internal/app/features/follows/handler.go

// Package follows exposes the relationship engine over HTTP: follow,
// unfollow/withdraw, accept/reject, and the follower listings. The
// store writes the paired activity inside its own transaction; the
// handler's job after a successful mutation is pinging the event bus
// so open notification streams refresh.
package follows

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	followstore "github.com/taskvine/taskvine/internal/app/store/follows"
	userstore "github.com/taskvine/taskvine/internal/app/store/users"
	"github.com/taskvine/taskvine/internal/app/system/auth"
	"github.com/taskvine/taskvine/internal/app/system/events"
	"github.com/taskvine/taskvine/internal/app/system/ratelimit"
	"github.com/taskvine/taskvine/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// Handler holds the stores and collaborators for the follows routes.
type Handler struct {
	users   *userstore.Store
	follows *followstore.Store
	bus     *events.Bus
	limiter *ratelimit.FollowLimiter
	errLog  *apierrors.Logger
	log     *zap.Logger
}

func NewHandler(db *mongo.Database, bus *events.Bus, limiter *ratelimit.FollowLimiter, errLog *apierrors.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		users:   userstore.New(db, logger),
		follows: followstore.New(db, logger),
		bus:     bus,
		limiter: limiter,
		errLog:  errLog,
		log:     logger,
	}
}

// countsPair carries both parties' updated counts so the client can
// refresh optimistically without a second round trip.
type countsPair struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

type followResponse struct {
	Status string     `json:"status"`
	Actor  countsPair `json:"actor"`
	Target countsPair `json:"target"`
}

type userSummary struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

// Follow handles POST /follows/{userID}.
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}

	outcome, err := h.follows.Follow(r.Context(), actor, targetID)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	status := "following"
	if outcome == followstore.Requested {
		status = "requested"
	}
	h.notify(events.KindActivity, targetID)

	h.respondCounts(w, r, status, actor, targetID)
}

// Unfollow handles DELETE /follows/{userID}. It withdraws a pending
// request or removes an established follow, whichever holds.
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	actor, targetID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}

	outcome, err := h.follows.Unfollow(r.Context(), actor, targetID)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	status := "unfollowed"
	if outcome == followstore.RequestWithdrawn {
		status = "withdrawn"
		h.notify(events.KindRetraction, targetID)
	}

	h.respondCounts(w, r, status, actor, targetID)
}

// Accept handles POST /follows/requests/{userID}/accept. The signed-in
// user is the account whose request queue is being acted on.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	target, requesterID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}

	err := h.follows.AcceptRequest(r.Context(), target, requesterID)
	if err == followstore.ErrActorNotFound {
		// The requester deleted their account; drop the dangling
		// request (and its notification) so it doesn't linger.
		if rejErr := h.follows.RejectRequest(r.Context(), target, requesterID); rejErr != nil && rejErr != followstore.ErrRequestNotFound {
			h.log.Warn("cleanup of vanished requester failed", zap.Error(rejErr))
		}
		h.notify(events.KindRetraction, target)
		h.errLog.Handle(w, r, err)
		return
	}
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	// The pending-request notification is resolved; the requester
	// learns they were let in.
	h.notify(events.KindRetraction, target)
	h.notify(events.KindActivity, requesterID)

	h.respondCounts(w, r, "accepted", requesterID, target)
}

// Reject handles POST /follows/requests/{userID}/reject. Silent: the
// requester gets no notification, and their pending one is removed.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	target, requesterID, ok := h.actorAndTarget(w, r)
	if !ok {
		return
	}

	if err := h.follows.RejectRequest(r.Context(), target, requesterID); err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	h.notify(events.KindRetraction, target)

	h.respondCounts(w, r, "rejected", requesterID, target)
}

// Followers handles GET /follows/{userID}/followers.
func (h *Handler) Followers(w http.ResponseWriter, r *http.Request) {
	h.listRelated(w, r, h.follows.Followers)
}

// Following handles GET /follows/{userID}/following.
func (h *Handler) Following(w http.ResponseWriter, r *http.Request) {
	h.listRelated(w, r, h.follows.Following)
}

func (h *Handler) listRelated(w http.ResponseWriter, r *http.Request, load func(ctx context.Context, id primitive.ObjectID) ([]models.User, error)) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_id", "user id is not valid")
		return
	}

	users, err := load(r.Context(), id)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary{ID: u.ID.Hex(), Handle: u.Handle, Name: u.FullName})
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

// actorAndTarget resolves the signed-in user and the {userID} route
// param, enforcing the per-actor mutation limit on the way.
func (h *Handler) actorAndTarget(w http.ResponseWriter, r *http.Request) (actor, target primitive.ObjectID, ok bool) {
	u, signedIn := auth.CurrentUser(r)
	if !signedIn {
		apierrors.Write(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return
	}
	actor, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		apierrors.Write(w, http.StatusUnauthorized, "unauthorized", "session user id is not valid")
		return
	}
	if r.Method != http.MethodGet && h.limiter != nil && !h.limiter.Allow(u.ID) {
		apierrors.Write(w, http.StatusTooManyRequests, "rate_limited", "too many relationship changes; slow down")
		return
	}
	target, err = primitive.ObjectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_id", "user id is not valid")
		return
	}
	return actor, target, true
}

// notify pings the recipient's open notification streams.
func (h *Handler) notify(kind events.Kind, recipient primitive.ObjectID) {
	h.bus.Publish(events.Event{Kind: kind, Recipient: recipient})
}

func (h *Handler) respondCounts(w http.ResponseWriter, r *http.Request, status string, actor, target primitive.ObjectID) {
	resp := followResponse{Status: status}
	if followers, following, err := h.users.Counts(r.Context(), actor); err == nil {
		resp.Actor = countsPair{Followers: followers, Following: following}
	}
	if followers, following, err := h.users.Counts(r.Context(), target); err == nil {
		resp.Target = countsPair{Followers: followers, Following: following}
	}
	apierrors.WriteJSON(w, http.StatusOK, resp)
}
