// internal/app/features/profile/handler.go

// Package profile serves the signed-in user's own account view and the
// privacy toggle. Flipping a private account public silently promotes
// every pending request into a follower and withdraws the matching
// follow_request notifications.
package profile

import (
	"encoding/json"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	activitystore "github.com/taskvine/taskvine/internal/app/store/activities"
	followstore "github.com/taskvine/taskvine/internal/app/store/follows"
	userstore "github.com/taskvine/taskvine/internal/app/store/users"
	"github.com/taskvine/taskvine/internal/app/system/auth"
	"github.com/taskvine/taskvine/internal/app/system/events"
	"github.com/taskvine/taskvine/internal/domain/models"
)

type Handler struct {
	users      *userstore.Store
	follows    *followstore.Store
	activities *activitystore.Store
	bus        *events.Bus
	sessionMgr *auth.SessionManager
	errLog     *apierrors.Logger
	log        *zap.Logger
}

func NewHandler(db *mongo.Database, bus *events.Bus, sessionMgr *auth.SessionManager, errLog *apierrors.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		users:      userstore.New(db, logger),
		follows:    followstore.New(db, logger),
		activities: activitystore.New(db),
		bus:        bus,
		sessionMgr: sessionMgr,
		errLog:     errLog,
		log:        logger,
	}
}

type profileView struct {
	ID        string        `json:"id"`
	Handle    string        `json:"handle"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	IsPrivate bool          `json:"is_private"`
	Followers int           `json:"followers"`
	Following int           `json:"following"`
	Pending   []userSummary `json:"pending_requests"`
}

type userSummary struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

// Show handles GET /profile.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.self(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	pending, err := h.follows.PendingRequests(r.Context(), id)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	view := profileView{
		ID:        user.ID.Hex(),
		Handle:    user.Handle,
		Name:      user.FullName,
		Email:     user.Email,
		IsPrivate: user.IsPrivate,
		Followers: len(user.Followers),
		Following: len(user.Following),
		Pending:   make([]userSummary, 0, len(pending)),
	}
	for _, p := range pending {
		view.Pending = append(view.Pending, userSummary{ID: p.ID.Hex(), Handle: p.Handle, Name: p.FullName})
	}
	apierrors.WriteJSON(w, http.StatusOK, view)
}

// SetPrivacy handles POST /profile/privacy with {"private": bool}.
func (h *Handler) SetPrivacy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.self(w, r)
	if !ok {
		return
	}
	var in struct {
		Private bool `json:"private"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	promoted, err := h.users.SetPrivacy(r.Context(), id, in.Private)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	// Pending requests that just became follows no longer need a
	// follow_request notification sitting in this user's feed.
	for _, requester := range promoted {
		n, err := h.activities.Retract(r.Context(), activitystore.RecordInput{
			Recipient: id,
			Actor:     requester,
			Type:      models.ActivityFollowRequest,
		})
		if err != nil {
			h.log.Error("promotion retract failed", zap.Error(err))
			continue
		}
		if n > 0 {
			h.bus.Publish(events.Event{Kind: events.KindRetraction, Recipient: id})
		}
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"is_private": in.Private,
		"promoted":   len(promoted),
	})
}

// Delete handles DELETE /profile: the signed-in user removes their own
// account. Follower and following edges are unlinked everywhere;
// requests the user filed on private accounts are left in place and
// surface as actor-not-found when the target tries to accept them.
// Activities the user triggered lose their actor reference instead of
// disappearing from other people's feeds.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.self(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	if _, err := h.activities.OrphanActor(r.Context(), id); err != nil {
		h.log.Error("orphan actor failed", zap.String("user_id", id.Hex()), zap.Error(err))
	}
	if err := h.sessionMgr.SignOut(w, r); err != nil {
		h.log.Warn("sign out failed", zap.Error(err))
	}

	h.log.Info("account deleted", zap.String("user_id", id.Hex()))
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) self(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	u, signedIn := auth.CurrentUser(r)
	if !signedIn {
		apierrors.Write(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		apierrors.Write(w, http.StatusUnauthorized, "unauthorized", "session user id is not valid")
		return primitive.NilObjectID, false
	}
	return id, true
}
