// internal/app/features/errors/errors.go

// Package errors maps store sentinels onto the JSON error envelope the
// API speaks. Every non-2xx response is {"error": code, "message": text};
// unknown errors become an opaque 500 with the cause logged server-side.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	activitystore "github.com/taskvine/taskvine/internal/app/store/activities"
	followstore "github.com/taskvine/taskvine/internal/app/store/follows"
	poststore "github.com/taskvine/taskvine/internal/app/store/posts"
	taskstore "github.com/taskvine/taskvine/internal/app/store/tasks"
	userstore "github.com/taskvine/taskvine/internal/app/store/users"
)

// envelope is the wire shape of every error response.
type envelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Write sends one JSON error envelope.
func Write(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: code, Message: message})
}

// WriteJSON sends a success payload. Shared here so every feature
// serializes the same way.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mapping pairs a store sentinel with its HTTP rendering.
type mapping struct {
	err    error
	status int
	code   string
}

var mappings = []mapping{
	// follow engine
	{followstore.ErrSelfFollow, http.StatusBadRequest, "self_follow"},
	{followstore.ErrAlreadyFollowing, http.StatusConflict, "already_following"},
	{followstore.ErrRequestAlreadyPending, http.StatusConflict, "request_pending"},
	{followstore.ErrNotFollowing, http.StatusConflict, "not_following"},
	{followstore.ErrRequestNotFound, http.StatusNotFound, "request_not_found"},
	{followstore.ErrRecipientNotFound, http.StatusNotFound, "user_not_found"},
	{followstore.ErrActorNotFound, http.StatusGone, "actor_vanished"},

	// users
	{userstore.ErrNotFound, http.StatusNotFound, "user_not_found"},
	{userstore.ErrDuplicateEmail, http.StatusConflict, "email_taken"},
	{userstore.ErrDuplicateHandle, http.StatusConflict, "handle_taken"},

	// activities
	{activitystore.ErrNotFound, http.StatusNotFound, "notification_not_found"},

	// posts
	{poststore.ErrNotFound, http.StatusNotFound, "post_not_found"},
	{poststore.ErrCommentNotFound, http.StatusNotFound, "comment_not_found"},
	{poststore.ErrEmptyBody, http.StatusBadRequest, "empty_body"},
	{poststore.ErrEmptyComment, http.StatusBadRequest, "empty_comment"},
	{poststore.ErrNotAuthor, http.StatusForbidden, "not_author"},

	// tasks
	{taskstore.ErrNotFound, http.StatusNotFound, "task_not_found"},
	{taskstore.ErrEmptyTitle, http.StatusBadRequest, "empty_title"},
	{taskstore.ErrNotOpen, http.StatusConflict, "task_not_open"},
	{taskstore.ErrNotAssigned, http.StatusConflict, "task_not_assigned"},
	{taskstore.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{taskstore.ErrNotAssignee, http.StatusForbidden, "not_assignee"},
	{taskstore.ErrOwnTask, http.StatusBadRequest, "own_task"},
	{taskstore.ErrAlreadyApplied, http.StatusConflict, "already_applied"},
	{taskstore.ErrNotApplicant, http.StatusConflict, "not_applicant"},
}

// Logger renders errors for handlers. Known sentinels map to their
// status and code; everything else is logged with the request path and
// answered with an opaque 500.
type Logger struct {
	log *zap.Logger
}

func NewErrorLogger(logger *zap.Logger) *Logger {
	return &Logger{log: logger}
}

// Handle writes the response for err.
func (l *Logger) Handle(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			Write(w, m.status, m.code, m.err.Error())
			return
		}
	}
	l.log.Error("unhandled error",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	Write(w, http.StatusInternalServerError, "internal", "something went wrong")
}
