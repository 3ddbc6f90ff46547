package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskvine/taskvine/internal/app/system/auth"
	"go.uber.org/zap"
)

func newTestSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	logger := zap.NewNop()
	sm, err := auth.NewSessionManager(
		"test-session-key-must-be-32-chars-long",
		"test-session",
		"",
		24*time.Hour,
		false,
		logger,
	)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return sm
}

func TestNewSessionManager_EmptyName(t *testing.T) {
	_, err := auth.NewSessionManager("key", "", "", time.Hour, false, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for empty session name")
	}
}

func TestNewSessionManager_EmptyKeySecure(t *testing.T) {
	_, err := auth.NewSessionManager("", "s", "", time.Hour, true, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for empty key in secure mode")
	}
}

func TestNewSessionManager_EmptyKeyDev_GeneratesKey(t *testing.T) {
	sm, err := auth.NewSessionManager("", "s", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("expected dev key generation, got error: %v", err)
	}
	if sm == nil {
		t.Fatal("expected session manager")
	}
}

func TestRequireSignedIn_NoUser_Returns401JSON(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("protected content"))
	}))

	req := httptest.NewRequest("GET", "/notifications", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "unauthorized") {
		t.Errorf("expected error body, got %q", rec.Body.String())
	}
}

func TestRequireSignedIn_WithUser_PassesThrough(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := auth.CurrentUser(r)
		if !ok {
			t.Error("expected user in context")
		} else if u.Handle != "alice" {
			t.Errorf("expected handle alice, got %q", u.Handle)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/notifications", nil)
	req = auth.WithTestUser(req, &auth.SessionUser{ID: "abc", Handle: "alice", Name: "Alice"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestSignIn_RoundTrip(t *testing.T) {
	sm := newTestSessionManager(t)

	// Sign in and capture the cookie.
	signInReq := httptest.NewRequest("POST", "/login", nil)
	signInRec := httptest.NewRecorder()
	err := sm.SignIn(signInRec, signInReq, auth.SessionUser{
		ID:        "user-1",
		Handle:    "bob",
		Name:      "Bob",
		IsPrivate: true,
	})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	cookies := signInRec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}

	// Replay the cookie through LoadSessionUser.
	var got *auth.SessionUser
	handler := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.CurrentUser(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/userinfo", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("expected user loaded from session")
	}
	if got.ID != "user-1" || got.Handle != "bob" || got.Name != "Bob" {
		t.Errorf("unexpected user: %+v", got)
	}
	if !got.IsPrivate {
		t.Error("expected IsPrivate to round-trip")
	}
}

func TestSignOut_ClearsSession(t *testing.T) {
	sm := newTestSessionManager(t)

	signInReq := httptest.NewRequest("POST", "/login", nil)
	signInRec := httptest.NewRecorder()
	if err := sm.SignIn(signInRec, signInReq, auth.SessionUser{ID: "user-1", Handle: "bob"}); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	outReq := httptest.NewRequest("POST", "/logout", nil)
	for _, c := range signInRec.Result().Cookies() {
		outReq.AddCookie(c)
	}
	outRec := httptest.NewRecorder()
	if err := sm.SignOut(outRec, outReq); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	// The replacement cookie must be expired.
	cookies := outRec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected an expired session cookie")
	}
	if cookies[0].MaxAge >= 0 {
		t.Errorf("expected negative MaxAge, got %d", cookies[0].MaxAge)
	}
}

func TestLoadSessionUser_NoCookie_NoUser(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.CurrentUser(r); ok {
			t.Error("expected no user in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}
