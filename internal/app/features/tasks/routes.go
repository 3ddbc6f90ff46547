// internal/app/features/tasks/routes.go
package tasks

import (
	"github.com/go-chi/chi/v5"

	"github.com/taskvine/taskvine/internal/app/system/auth"
)

// Routes returns the subrouter mounted under /tasks.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ListOpen)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/apply", h.Apply)
	r.Delete("/{id}/apply", h.Withdraw)
	r.Post("/{id}/assign", h.Assign)
	r.Post("/{id}/complete", h.Complete)

	return r
}
