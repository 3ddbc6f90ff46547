// internal/app/features/userinfo/handler.go
package userinfo

import (
	"encoding/json"
	"net/http"

	"github.com/taskvine/taskvine/internal/app/system/auth"
)

// Handler serves the current session's identity.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// ServeUserInfo returns JSON with the current user's authentication
// status and identity. Anonymous sessions get a 200 with
// isAuthenticated=false rather than a 401, so clients can probe
// session state without error handling.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	user, ok := auth.CurrentUser(r)
	if !ok {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"isAuthenticated": false,
			"id":              "",
			"handle":          "",
			"name":            "",
			"is_private":      false,
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"isAuthenticated": true,
		"id":              user.ID,
		"handle":          user.Handle,
		"name":            user.Name,
		"is_private":      user.IsPrivate,
	})
}
