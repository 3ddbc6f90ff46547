// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	"github.com/taskvine/taskvine/internal/app/system/auth"
)

type Handler struct {
	sessionMgr *auth.SessionManager
	log        *zap.Logger
}

func NewHandler(sessionMgr *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{sessionMgr: sessionMgr, log: logger}
}

// Logout handles POST /logout. Clearing an already-clear session is
// fine; the endpoint is idempotent.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionMgr.SignOut(w, r); err != nil {
		h.log.Warn("sign out failed", zap.Error(err))
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}
