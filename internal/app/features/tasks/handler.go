// internal/app/features/tasks/handler.go

// Package tasks exposes the marketplace task lifecycle. Each transition
// notifies its counterparty: applying notifies the owner, assigning
// notifies the chosen applicant, completing notifies the owner.
package tasks

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	activitystore "github.com/taskvine/taskvine/internal/app/store/activities"
	taskstore "github.com/taskvine/taskvine/internal/app/store/tasks"
	"github.com/taskvine/taskvine/internal/app/system/auth"
	"github.com/taskvine/taskvine/internal/app/system/events"
	"github.com/taskvine/taskvine/internal/domain/models"
)

type Handler struct {
	tasks      *taskstore.Store
	activities *activitystore.Store
	bus        *events.Bus
	errLog     *apierrors.Logger
	log        *zap.Logger
}

func NewHandler(db *mongo.Database, bus *events.Bus, errLog *apierrors.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		tasks:      taskstore.New(db),
		activities: activitystore.New(db),
		bus:        bus,
		errLog:     errLog,
		log:        logger,
	}
}

// Create handles POST /tasks with {"title": "...", "details": "..."}.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in struct {
		Title   string `json:"title"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	task, err := h.tasks.Create(r.Context(), actor, in.Title, in.Details)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusCreated, task)
}

// Get handles GET /tasks/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, task)
}

// ListOpen handles GET /tasks.
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListOpen(r.Context(), 100)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// Apply handles POST /tasks/{id}/apply. The owner is notified.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Apply(r.Context(), id, actor)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	h.record(r, activitystore.RecordInput{
		Recipient: task.OwnerID,
		Actor:     actor,
		Type:      models.ActivityTaskApply,
		TaskID:    &id,
	})
	apierrors.WriteJSON(w, http.StatusOK, task)
}

// Withdraw handles DELETE /tasks/{id}/apply and retracts the owner's
// application notification.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	if err := h.tasks.Withdraw(r.Context(), id, actor); err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	h.retract(r, activitystore.RecordInput{
		Recipient: task.OwnerID,
		Actor:     actor,
		Type:      models.ActivityTaskApply,
		TaskID:    &id,
	})
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

// Assign handles POST /tasks/{id}/assign with {"assignee": "<id>"}.
// The assignee is notified.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var in struct {
		Assignee string `json:"assignee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	assignee, err := primitive.ObjectIDFromHex(in.Assignee)
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_id", "assignee id is not valid")
		return
	}

	task, err := h.tasks.Assign(r.Context(), id, actor, assignee)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	h.record(r, activitystore.RecordInput{
		Recipient: assignee,
		Actor:     actor,
		Type:      models.ActivityTaskAssign,
		TaskID:    &id,
	})
	apierrors.WriteJSON(w, http.StatusOK, task)
}

// Complete handles POST /tasks/{id}/complete. The owner is notified.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Complete(r.Context(), id, actor)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	h.record(r, activitystore.RecordInput{
		Recipient: task.OwnerID,
		Actor:     actor,
		Type:      models.ActivityTaskComplete,
		TaskID:    &id,
	})
	apierrors.WriteJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /tasks/{id} and purges the task's activities.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), id, actor); err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	if _, err := h.activities.DeleteForTask(r.Context(), id); err != nil {
		h.log.Error("task activity purge failed", zap.Error(err))
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

func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_id", "task id is not valid")
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
