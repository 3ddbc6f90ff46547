package logout_test

import (
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/taskvine/taskvine/internal/app/features/logout"
	"github.com/taskvine/taskvine/internal/app/system/auth"
	"github.com/taskvine/taskvine/internal/testutil"
)

func TestLogout(t *testing.T) {
	sm, err := auth.NewSessionManager("0123456789abcdef0123456789abcdef", "test-session", "", 24*time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	h := logout.NewHandler(sm, zap.NewNop())

	rec := testutil.NewRecorder()
	h.Logout(rec, testutil.NewRequest(http.MethodPost, "/logout"))

	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "signed_out")

	for _, c := range rec.Result().Cookies() {
		if c.Name == "test-session" && c.MaxAge >= 0 {
			t.Error("expected the session cookie to be expired")
		}
	}
}
