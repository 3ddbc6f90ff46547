// internal/app/features/login/routes.go
package login

import "github.com/go-chi/chi/v5"

// MountRoutes registers the public auth endpoints on the root router.
func MountRoutes(r chi.Router, h *Handler) {
	r.Post("/login", h.Login)
	r.Post("/register", h.Register)
}
