// internal/app/features/posts/routes.go
package posts

import (
	"github.com/go-chi/chi/v5"

	"github.com/taskvine/taskvine/internal/app/system/auth"
)

// Routes returns the subrouter mounted under /posts.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/like", h.Like)
	r.Delete("/{id}/like", h.Unlike)
	r.Post("/{id}/comments", h.AddComment)
	r.Delete("/{id}/comments/{commentID}", h.RemoveComment)

	return r
}
