// internal/app/features/notifications/handler.go

// Package notifications is the read side of the activity feed: listing
// with filters and cursors, the unread badge count, the read lifecycle,
// clear-all, and a server-sent-events stream that pings clients when
// their feed changes.
package notifications

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	activitystore "github.com/taskvine/taskvine/internal/app/store/activities"
	"github.com/taskvine/taskvine/internal/app/system/auth"
	"github.com/taskvine/taskvine/internal/app/system/events"
	"github.com/taskvine/taskvine/internal/app/system/paging"
	"github.com/taskvine/taskvine/internal/domain/models"
)

type Handler struct {
	activities *activitystore.Store
	bus        *events.Bus
	errLog     *apierrors.Logger
	log        *zap.Logger
}

func NewHandler(db *mongo.Database, bus *events.Bus, errLog *apierrors.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		activities: activitystore.New(db),
		bus:        bus,
		errLog:     errLog,
		log:        logger,
	}
}

// activityView is the wire shape of one feed entry.
type activityView struct {
	ID        string `json:"id"`
	Actor     string `json:"actor,omitempty"`
	Type      string `json:"type"`
	PostID    string `json:"post_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

type listResponse struct {
	Notifications []activityView `json:"notifications"`
	HasPrev       bool           `json:"has_prev"`
	HasNext       bool           `json:"has_next"`
	PrevCursor    string         `json:"prev_cursor,omitempty"`
	NextCursor    string         `json:"next_cursor,omitempty"`
}

// List handles GET /notifications?filter=all|unread|read&types=&after=&before=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	recipient, ok := h.recipient(w, r)
	if !ok {
		return
	}

	filter := r.URL.Query().Get("filter")
	switch filter {
	case "", activitystore.FilterAll, activitystore.FilterUnread, activitystore.FilterRead:
	default:
		apierrors.Write(w, http.StatusBadRequest, "invalid_filter", "filter must be all, unread, or read")
		return
	}

	opts := activitystore.ListOptions{
		Filter: filter,
		Before: r.URL.Query().Get("before"),
		After:  r.URL.Query().Get("after"),
		Limit:  paging.ParseLimit(r),
	}
	if types := r.URL.Query().Get("types"); types != "" {
		opts.Types = strings.Split(types, ",")
	}

	page, err := h.activities.List(r.Context(), recipient, opts)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	resp := listResponse{
		Notifications: make([]activityView, 0, len(page.Activities)),
		HasPrev:       page.HasPrev,
		HasNext:       page.HasNext,
		PrevCursor:    page.PrevCursor,
		NextCursor:    page.NextCursor,
	}
	for _, a := range page.Activities {
		resp.Notifications = append(resp.Notifications, toView(a))
	}
	apierrors.WriteJSON(w, http.StatusOK, resp)
}

// UnreadCount handles GET /notifications/unread-count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	recipient, ok := h.recipient(w, r)
	if !ok {
		return
	}
	n, err := h.activities.CountUnread(r.Context(), recipient)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]int64{"unread": n})
}

// MarkRead handles POST /notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	recipient, ok := h.recipient(w, r)
	if !ok {
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_id", "notification id is not valid")
		return
	}

	if err := h.activities.MarkRead(r.Context(), recipient, id); err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	h.bus.Publish(events.Event{Kind: events.KindRead, Recipient: recipient})
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	recipient, ok := h.recipient(w, r)
	if !ok {
		return
	}
	n, err := h.activities.MarkAllRead(r.Context(), recipient)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	if n > 0 {
		h.bus.Publish(events.Event{Kind: events.KindRead, Recipient: recipient})
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

// ClearAll handles DELETE /notifications. Hard delete, no undo.
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	recipient, ok := h.recipient(w, r)
	if !ok {
		return
	}
	n, err := h.activities.ClearAll(r.Context(), recipient)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	if n > 0 {
		h.bus.Publish(events.Event{Kind: events.KindRetraction, Recipient: recipient})
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}

// Stream handles GET /notifications/stream. It holds the connection
// open and sends a "changed" SSE event whenever the recipient's feed
// mutates, so the client refetches instead of polling.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	recipient, ok := h.recipient(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		apierrors.Write(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
		return
	}

	sub := h.bus.Subscribe(recipient)
	defer h.bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Initial comment so proxies commit the stream.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			if _, err := w.Write([]byte("event: changed\ndata: " + string(ev.Kind) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) recipient(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
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

func toView(a models.Activity) activityView {
	v := activityView{
		ID:        a.ID.Hex(),
		Type:      a.Type,
		Comment:   a.Comment,
		Read:      a.Read,
		CreatedAt: a.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	if a.Actor != nil {
		v.Actor = a.Actor.Hex()
	}
	if a.PostID != nil {
		v.PostID = a.PostID.Hex()
	}
	if a.TaskID != nil {
		v.TaskID = a.TaskID.Hex()
	}
	return v
}
