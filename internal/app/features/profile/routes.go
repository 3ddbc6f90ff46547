// internal/app/features/profile/routes.go
package profile

import (
	"github.com/go-chi/chi/v5"

	"github.com/taskvine/taskvine/internal/app/system/auth"
)

// Routes returns the subrouter mounted under /profile.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.Show)
	r.Delete("/", h.Delete)
	r.Post("/privacy", h.SetPrivacy)

	return r
}
