// internal/app/system/auth/auth.go

// Package auth manages the session cookie that identifies the acting user.
// The engine trusts the id it finds here; it performs no authentication of
// its own beyond the login handler that sets the cookie.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	isAuthKey   = "is_authenticated"
	userIDKey   = "user_id"
	userHandle  = "user_handle"
	userName    = "user_name"
	userPrivate = "user_private"
)

// SessionUser is what we cache in the session & inject into r.Context().
type SessionUser struct {
	ID        string
	Handle    string
	Name      string
	IsPrivate bool
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// SessionManager owns the cookie store and the middleware around it.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager builds a cookie-backed session manager.
//
// An empty sessionKey is tolerated outside production: a random key is
// generated so local development works, at the cost of sessions not
// surviving a restart.
func NewSessionManager(sessionKey, sessionName, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionName == "" {
		return nil, fmt.Errorf("session name is empty")
	}
	key := []byte(sessionKey)
	if len(key) == 0 {
		if secure {
			return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
		}
		key = securecookie.GenerateRandomKey(32)
		logger.Warn("no session key configured; generated a transient dev key")
	} else if len(key) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(key)))
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		// The SPA and API share an origin, so Lax is enough even in prod.
		SameSite: http.SameSiteLaxMode,
	}

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: sessionName, log: logger}, nil
}

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// GetSession returns the request's session, creating one if absent.
func (sm *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return sm.store.Get(r, sm.name)
}

// SignIn stores the user in the session cookie.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, err := sm.GetSession(r)
	if err != nil {
		// A corrupt cookie decodes to an error plus a fresh session;
		// overwrite it rather than failing the login.
		sm.log.Debug("replacing undecodable session", zap.Error(err))
	}
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID
	sess.Values[userHandle] = u.Handle
	sess.Values[userName] = u.Name
	sess.Values[userPrivate] = u.IsPrivate
	return sess.Save(r, w)
}

// SignOut clears the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.GetSession(r)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// LoadSessionUser injects the user into context if they are logged in.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := sm.GetSession(r)

		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			u := &SessionUser{
				ID:     getString(sess, userIDKey),
				Handle: getString(sess, userHandle),
				Name:   getString(sess, userName),
			}
			if p, ok := sess.Values[userPrivate].(bool); ok {
				u.IsPrivate = p
			}
			r = withUser(r, u)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
// Every consumer is the JSON API, so a missing user is always a 401 body,
// never a redirect.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "unauthorized",
			"message": "Sign in to continue.",
		})
	})
}

// WithTestUser injects a user into the request context.
// Handler tests use this to bypass the session middleware.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
