// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/go-chi/chi/v5"

	"github.com/taskvine/taskvine/internal/app/system/auth"
)

// Routes returns the subrouter mounted under /notifications.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.List)
	r.Get("/unread-count", h.UnreadCount)
	r.Get("/stream", h.Stream)
	r.Post("/{id}/read", h.MarkRead)
	r.Post("/read-all", h.MarkAllRead)
	r.Delete("/", h.ClearAll)

	return r
}
