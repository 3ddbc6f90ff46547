package login_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	"github.com/taskvine/taskvine/internal/app/features/login"
	userstore "github.com/taskvine/taskvine/internal/app/store/users"
	"github.com/taskvine/taskvine/internal/app/system/auth"
	"github.com/taskvine/taskvine/internal/app/system/authutil"
	"github.com/taskvine/taskvine/internal/app/system/indexes"
	"github.com/taskvine/taskvine/internal/app/system/ratelimit"
	"github.com/taskvine/taskvine/internal/domain/models"
	"github.com/taskvine/taskvine/internal/testutil"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newHandler(t *testing.T) (*login.Handler, *userstore.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	sm, err := auth.NewSessionManager(testKey, "test-session", "", 24*time.Hour, false, logger)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	users := userstore.New(db, logger)
	h := login.NewHandler(db, sm, ratelimit.NewLoginLimiter(), apierrors.NewErrorLogger(logger), logger)
	return h, users
}

func jsonRequest(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func createAccount(t *testing.T, users *userstore.Store, email, password string) models.User {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	hash, err := authutil.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := users.Create(ctx, models.User{
		Handle:   strings.SplitN(email, "@", 2)[0],
		FullName: "Test User",
		Email:    email,
		PassHash: hash,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestLogin_Success(t *testing.T) {
	h, users := newHandler(t)
	createAccount(t, users, "alice@test.com", "sturdy-pass-1")

	rec := testutil.NewRecorder()
	h.Login(rec, jsonRequest("/login", `{"email":"alice@test.com","password":"sturdy-pass-1"}`))

	rec.AssertStatus(t, http.StatusOK)
	rec.AssertJSON(t)
	rec.AssertContains(t, `"handle":"alice"`)
	if len(rec.Result().Cookies()) == 0 {
		t.Error("expected a session cookie")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h, users := newHandler(t)
	createAccount(t, users, "alice@test.com", "sturdy-pass-1")

	rec := testutil.NewRecorder()
	h.Login(rec, jsonRequest("/login", `{"email":"alice@test.com","password":"wrong"}`))

	rec.AssertStatus(t, http.StatusUnauthorized)
	rec.AssertContains(t, "bad_credentials")
}

func TestLogin_UnknownEmail_SameAnswer(t *testing.T) {
	h, _ := newHandler(t)

	rec := testutil.NewRecorder()
	h.Login(rec, jsonRequest("/login", `{"email":"ghost@test.com","password":"whatever"}`))

	rec.AssertStatus(t, http.StatusUnauthorized)
	rec.AssertContains(t, "bad_credentials")
}

func TestLogin_RateLimited(t *testing.T) {
	h, users := newHandler(t)
	createAccount(t, users, "alice@test.com", "sturdy-pass-1")

	// The per-email limiter allows 5 attempts per window.
	for i := 0; i < 5; i++ {
		rec := testutil.NewRecorder()
		h.Login(rec, jsonRequest("/login", `{"email":"alice@test.com","password":"wrong"}`))
		rec.AssertStatus(t, http.StatusUnauthorized)
	}

	rec := testutil.NewRecorder()
	h.Login(rec, jsonRequest("/login", `{"email":"alice@test.com","password":"sturdy-pass-1"}`))
	rec.AssertStatus(t, http.StatusTooManyRequests)
	rec.AssertContains(t, "rate_limited")
}

func TestRegister(t *testing.T) {
	h, _ := newHandler(t)

	rec := testutil.NewRecorder()
	h.Register(rec, jsonRequest("/register", `{"handle":"@Bob","name":"Bob B","email":"bob@test.com","password":"sturdy-pass-1"}`))

	rec.AssertStatus(t, http.StatusCreated)
	rec.AssertContains(t, `"handle":"bob"`)
	if len(rec.Result().Cookies()) == 0 {
		t.Error("expected a session cookie after registration")
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	h, _ := newHandler(t)

	rec := testutil.NewRecorder()
	h.Register(rec, jsonRequest("/register", `{"handle":"bob","name":"Bob","email":"bob@test.com","password":"123456"}`))

	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "weak_password")
}

func TestRegister_BadEmail(t *testing.T) {
	h, _ := newHandler(t)

	rec := testutil.NewRecorder()
	h.Register(rec, jsonRequest("/register", `{"handle":"bob","name":"Bob","email":"not-an-email","password":"sturdy-pass-1"}`))

	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "invalid_email")
}

func TestRegister_DuplicateHandle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	sm, err := auth.NewSessionManager(testKey, "test-session", "", 24*time.Hour, false, logger)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	h := login.NewHandler(db, sm, ratelimit.NewLoginLimiter(), apierrors.NewErrorLogger(logger), logger)
	createAccount(t, userstore.New(db, logger), "bob@test.com", "sturdy-pass-1")

	rec := testutil.NewRecorder()
	h.Register(rec, jsonRequest("/register", `{"handle":"bob","name":"Bob Two","email":"bob2@test.com","password":"sturdy-pass-1"}`))

	rec.AssertStatus(t, http.StatusConflict)
	rec.AssertContains(t, "handle_taken")
}
