package userinfo_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/taskvine/taskvine/internal/app/features/userinfo"
	"github.com/taskvine/taskvine/internal/app/system/auth"
)

func TestServeUserInfo_Unauthenticated(t *testing.T) {
	handler := userinfo.NewHandler()

	req := httptest.NewRequest("GET", "/userinfo", nil)
	rec := httptest.NewRecorder()

	handler.ServeUserInfo(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}

	var response map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response JSON: %v", err)
	}
	if isAuth, ok := response["isAuthenticated"].(bool); !ok || isAuth {
		t.Errorf("isAuthenticated: got %v, want false", response["isAuthenticated"])
	}
	if handle, ok := response["handle"].(string); !ok || handle != "" {
		t.Errorf("handle: got %q, want empty string", response["handle"])
	}
}

func TestServeUserInfo_Authenticated(t *testing.T) {
	handler := userinfo.NewHandler()

	userID := primitive.NewObjectID()
	sessionUser := &auth.SessionUser{
		ID:        userID.Hex(),
		Handle:    "alice",
		Name:      "Alice A",
		IsPrivate: true,
	}

	req := httptest.NewRequest("GET", "/userinfo", nil)
	req = auth.WithTestUser(req, sessionUser)
	rec := httptest.NewRecorder()

	handler.ServeUserInfo(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response JSON: %v", err)
	}
	if isAuth, ok := response["isAuthenticated"].(bool); !ok || !isAuth {
		t.Errorf("isAuthenticated: got %v, want true", response["isAuthenticated"])
	}
	if response["id"] != userID.Hex() {
		t.Errorf("id: got %v, want %s", response["id"], userID.Hex())
	}
	if response["handle"] != "alice" {
		t.Errorf("handle: got %v, want alice", response["handle"])
	}
	if private, ok := response["is_private"].(bool); !ok || !private {
		t.Errorf("is_private: got %v, want true", response["is_private"])
	}
}
