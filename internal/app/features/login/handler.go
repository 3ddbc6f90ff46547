// internal/app/features/login/handler.go

// Package login handles account creation and session establishment.
// Both endpoints speak JSON and sit behind the login rate limiter.
package login

import (
	"encoding/json"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	userstore "github.com/taskvine/taskvine/internal/app/store/users"
	"github.com/taskvine/taskvine/internal/app/system/auth"
	"github.com/taskvine/taskvine/internal/app/system/authutil"
	"github.com/taskvine/taskvine/internal/app/system/ratelimit"
	"github.com/taskvine/taskvine/internal/domain/models"
)

type Handler struct {
	users      *userstore.Store
	sessionMgr *auth.SessionManager
	limiter    *ratelimit.LoginLimiter
	errLog     *apierrors.Logger
	log        *zap.Logger
}

func NewHandler(db *mongo.Database, sessionMgr *auth.SessionManager, limiter *ratelimit.LoginLimiter, errLog *apierrors.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		users:      userstore.New(db, logger),
		sessionMgr: sessionMgr,
		limiter:    limiter,
		errLog:     errLog,
		log:        logger,
	}
}

type sessionView struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

// Login handles POST /login with {"email": "...", "password": "..."}.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	if allowed, reason := h.limiter.Check(r, in.Email); !allowed {
		apierrors.Write(w, http.StatusTooManyRequests, "rate_limited", reason)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), in.Email)
	if err == userstore.ErrNotFound {
		// Same answer as a wrong password so accounts can't be probed.
		apierrors.Write(w, http.StatusUnauthorized, "bad_credentials", "email or password is incorrect")
		return
	}
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	if !authutil.CheckPassword(user.PassHash, in.Password) {
		apierrors.Write(w, http.StatusUnauthorized, "bad_credentials", "email or password is incorrect")
		return
	}

	if err := h.signIn(w, r, user); err != nil {
		h.errLog.Handle(w, r, err)
		return
	}
	h.limiter.ResetEmail(in.Email)

	apierrors.WriteJSON(w, http.StatusOK, sessionView{
		ID:        user.ID.Hex(),
		Handle:    user.Handle,
		Name:      user.FullName,
		IsPrivate: user.IsPrivate,
	})
}

// Register handles POST /register with handle, name, email, password.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Handle   string `json:"handle"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	if err := authutil.ValidateEmail(in.Email); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "invalid_email", err.Error())
		return
	}
	if err := authutil.ValidatePassword(in.Password); err != nil {
		apierrors.Write(w, http.StatusBadRequest, "weak_password", authutil.PasswordRules())
		return
	}
	hash, err := authutil.HashPassword(in.Password)
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	user, err := h.users.Create(r.Context(), models.User{
		Handle:   in.Handle,
		FullName: in.Name,
		Email:    in.Email,
		PassHash: hash,
	})
	if err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	if err := h.signIn(w, r, &user); err != nil {
		h.errLog.Handle(w, r, err)
		return
	}

	apierrors.WriteJSON(w, http.StatusCreated, sessionView{
		ID:        user.ID.Hex(),
		Handle:    user.Handle,
		Name:      user.FullName,
		IsPrivate: user.IsPrivate,
	})
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, user *models.User) error {
	return h.sessionMgr.SignIn(w, r, auth.SessionUser{
		ID:        user.ID.Hex(),
		Handle:    user.Handle,
		Name:      user.FullName,
		IsPrivate: user.IsPrivate,
	})
}
