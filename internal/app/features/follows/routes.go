// internal/app/features/follows/routes.go
package follows

import (
	"github.com/go-chi/chi/v5"

	"github.com/taskvine/taskvine/internal/app/system/auth"
)

// Routes returns the subrouter mounted under /follows. Every route
// requires a signed-in session.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Post("/{userID}", h.Follow)
	r.Delete("/{userID}", h.Unfollow)
	r.Post("/requests/{userID}/accept", h.Accept)
	r.Post("/requests/{userID}/reject", h.Reject)
	r.Get("/{userID}/followers", h.Followers)
	r.Get("/{userID}/following", h.Following)

	return r
}
