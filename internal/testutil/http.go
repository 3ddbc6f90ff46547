package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/taskvine/taskvine/internal/app/system/auth"
)

// TestUser represents user data for testing HTTP handlers.
type TestUser struct {
	ID        string
	Handle    string
	Name      string
	IsPrivate bool
}

// PublicUser returns a TestUser with a public profile.
func PublicUser() TestUser {
	return TestUser{
		ID:     primitive.NewObjectID().Hex(),
		Handle: "testuser",
		Name:   "Test User",
	}
}

// PrivateUser returns a TestUser with a private profile.
func PrivateUser() TestUser {
	return TestUser{
		ID:        primitive.NewObjectID().Hex(),
		Handle:    "privateuser",
		Name:      "Private User",
		IsPrivate: true,
	}
}

// UserFor returns a TestUser backed by an existing fixture user, so
// the session identity and the stored document agree on the ID.
func UserFor(id primitive.ObjectID, handle, name string, private bool) TestUser {
	return TestUser{
		ID:        id.Hex(),
		Handle:    handle,
		Name:      name,
		IsPrivate: private,
	}
}

// WithUser adds a user to the request context for testing authenticated handlers.
// This bypasses the session middleware and injects the user directly.
func WithUser(r *http.Request, user TestUser) *http.Request {
	sessionUser := &auth.SessionUser{
		ID:        user.ID,
		Handle:    user.Handle,
		Name:      user.Name,
		IsPrivate: user.IsPrivate,
	}
	return auth.WithTestUser(r, sessionUser)
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

// NewAuthenticatedRequest creates an HTTP request with a user in context.
func NewAuthenticatedRequest(method, target string, user TestUser) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return WithUser(req, user)
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d", r.Code, expected)
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}

// AssertJSON checks that the response declares a JSON content type.
func (r *ResponseRecorder) AssertJSON(t interface{ Errorf(string, ...any) }) {
	ct := r.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content type: got %q, want application/json", ct)
	}
}
