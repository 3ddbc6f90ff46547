// internal/app/features/users/handler.go

// Package users serves other-user lookups: name search and the public
// profile view with the viewer's relationship to the account.
package users

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	followstore "github.com/taskvine/taskvine/internal/app/store/follows"
	userstore "github.com/taskvine/taskvine/internal/app/store/users"
	"github.com/taskvine/taskvine/internal/app/system/auth"
)

const searchLimit = 25

type Handler struct {
	users   *userstore.Store
	follows *followstore.Store
	errLog  *apierrors.Logger
	log     *zap.Logger
}

func NewHandler(db *mongo.Database, errLog *apierrors.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		users:   userstore.New(db, logger),
		follows: followstore.New(db, logger),
		errLog:  errLog,
		log:     logger,
	}
}

type userSummary struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

type profileView struct {
	userSummary
	IsPrivate bool `json:"is_private"`
	Followers int  `json:"followers"`
	Following int  `json:"following"`

	// Viewer's relationship to this account.
	ViewerFollowing  bool `json:"viewer_following"`
	ViewerRequested  bool `json:"viewer_requested"`
	ViewerFollowedBy bool `json:"viewer_followed_by"`
}

// Search handles GET /users/search?q=. Matching is a case- and
// diacritic-insensitive prefix on the full name.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	found, err := h.users.SearchByName(r.Context(), q, searchLimit)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	out := make([]userSummary, 0, len(found))
	for _, u := range found {
		out = append(out, userSummary{ID: u.ID.Hex(), Handle: u.Handle, Name: u.FullName})
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

// Show handles GET /users/{handle}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	viewer, signedIn := auth.CurrentUser(r)
	if !signedIn {
		apierrors.Write(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return
	}

	user, err := h.users.GetByHandle(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	view := profileView{
		userSummary: userSummary{ID: user.ID.Hex(), Handle: user.Handle, Name: user.FullName},
		IsPrivate:   user.IsPrivate,
		Followers:   len(user.Followers),
		Following:   len(user.Following),
	}

	if viewerID, err := primitive.ObjectIDFromHex(viewer.ID); err == nil && viewerID != user.ID {
		rel, err := h.follows.Relationship(r.Context(), viewerID, user.ID)
		if err != nil {
			h.errLog.Handle(w, r, err)
			return
		}
		view.ViewerFollowing = rel.Following
		view.ViewerRequested = rel.Requested
		view.ViewerFollowedBy = rel.FollowedBy
	}

	apierrors.WriteJSON(w, http.StatusOK, view)
}
