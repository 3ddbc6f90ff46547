// internal/app/features/posts/handler.go

// Package posts exposes the post surface that feeds the activity
// recorder: likes and comments notify the post's author, and reversals
// retract symmetrically.
package posts

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	activitystore "github.com/taskvine/taskvine/internal/app/store/activities"
	poststore "github.com/taskvine/taskvine/internal/app/store/posts"
	"github.com/taskvine/taskvine/internal/app/system/auth"
	"github.com/taskvine/taskvine/internal/app/system/events"
	"github.com/taskvine/taskvine/internal/domain/models"
)

type Handler struct {
	posts      *poststore.Store
	activities *activitystore.Store
	bus        *events.Bus
	errLog     *apierrors.Logger
	log        *zap.Logger
}

func NewHandler(db *mongo.Database, bus *events.Bus, errLog *apierrors.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		posts:      poststore.New(db),
		activities: activitystore.New(db),
		bus:        bus,
		errLog:     errLog,
		log:        logger,
	}
}

// Create handles POST /posts with body {"body": "..."}.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	post, err := h.posts.Create(r.Context(), actor, in.Body)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusCreated, post)
}

// Get handles GET /posts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, post)
}

// Like handles POST /posts/{id}/like. Only an actual state transition
// records an activity, so double-likes never duplicate notifications.
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	changed, err := h.posts.Like(r.Context(), id, actor)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	if changed {
		if post, err := h.posts.Get(r.Context(), id); err == nil {
			h.record(r, activitystore.RecordInput{
				Recipient: post.AuthorID,
				Actor:     actor,
				Type:      models.ActivityLike,
				PostID:    &id,
			})
		}
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]bool{"liked": true, "changed": changed})
}

// Unlike handles DELETE /posts/{id}/like and retracts the prior like
// activity when the unlike actually transitioned.
func (h *Handler) Unlike(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	changed, err := h.posts.Unlike(r.Context(), id, actor)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	if changed {
		if post, err := h.posts.Get(r.Context(), id); err == nil {
			h.retract(r, activitystore.RecordInput{
				Recipient: post.AuthorID,
				Actor:     actor,
				Type:      models.ActivityLike,
				PostID:    &id,
			})
		}
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]bool{"liked": false, "changed": changed})
}

// AddComment handles POST /posts/{id}/comments with {"text": "..."}.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	comment, err := h.posts.AddComment(r.Context(), id, actor, in.Text)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	if post, err := h.posts.Get(r.Context(), id); err == nil {
		h.record(r, activitystore.RecordInput{
			Recipient: post.AuthorID,
			Actor:     actor,
			Type:      models.ActivityComment,
			PostID:    &id,
			Comment:   comment.Text,
		})
	}
	apierrors.WriteJSON(w, http.StatusCreated, comment)
}

// RemoveComment handles DELETE /posts/{id}/comments/{commentID}. The
// matching comment activity is retracted by its text snapshot.
func (h *Handler) RemoveComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	commentID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "commentID"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_id", "comment id is not valid")
		return
	}

	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	removed, err := h.posts.RemoveComment(r.Context(), id, commentID, actor)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	n, err := h.activities.RetractComment(r.Context(), post.AuthorID, actor, id, removed.Text)
	if err != nil {
		h.log.Error("comment activity retract failed", zap.Error(err))
	} else if n > 0 {
		h.bus.Publish(events.Event{Kind: events.KindRetraction, Recipient: post.AuthorID})
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// Delete handles DELETE /posts/{id} and purges the post's activities.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	if err := h.posts.Delete(r.Context(), id, actor); err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	if n, err := h.activities.DeleteForPost(r.Context(), id); err != nil {
		h.log.Error("post activity purge failed", zap.Error(err))
	} else if n > 0 {
		h.bus.Publish(events.Event{Kind: events.KindRetraction, Recipient: post.AuthorID})
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
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

func (h *Handler) postID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_id", "post id is not valid")
		return primitive.NilObjectID, false
	}
	return id, true
}

func (h *Handler) record(r *http.Request, in activitystore.RecordInput) {
	act, err := h.activities.Record(r.Context(), in)
	if err != nil {
		h.log.Error("activity record failed", zap.String("type", in.Type), zap.Error(err))
		return
	}
	if act != nil {
		h.bus.Publish(events.Event{Kind: events.KindActivity, Recipient: in.Recipient})
	}
}

func (h *Handler) retract(r *http.Request, in activitystore.RecordInput) {
	n, err := h.activities.Retract(r.Context(), in)
	if err != nil {
		h.log.Error("activity retract failed", zap.String("type", in.Type), zap.Error(err))
		return
	}
	if n > 0 {
		h.bus.Publish(events.Event{Kind: events.KindRetraction, Recipient: in.Recipient})
	}
}
