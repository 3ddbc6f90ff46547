// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	errorsfeature "github.com/taskvine/taskvine/internal/app/features/errors"
	followsfeature "github.com/taskvine/taskvine/internal/app/features/follows"
	healthfeature "github.com/taskvine/taskvine/internal/app/features/health"
	loginfeature "github.com/taskvine/taskvine/internal/app/features/login"
	logoutfeature "github.com/taskvine/taskvine/internal/app/features/logout"
	notificationsfeature "github.com/taskvine/taskvine/internal/app/features/notifications"
	postsfeature "github.com/taskvine/taskvine/internal/app/features/posts"
	profilefeature "github.com/taskvine/taskvine/internal/app/features/profile"
	tasksfeature "github.com/taskvine/taskvine/internal/app/features/tasks"
	userinfofeature "github.com/taskvine/taskvine/internal/app/features/userinfo"
	usersfeature "github.com/taskvine/taskvine/internal/app/features/users"
	"github.com/taskvine/taskvine/internal/app/system/auth"
	"github.com/taskvine/taskvine/internal/app/system/events"
	"github.com/taskvine/taskvine/internal/app/system/ratelimit"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. All features share one event bus (for
// notification stream pings) and one error logger, and every signed-in
// route sits behind the session middleware's RequireSignedIn gate inside
// its feature router.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionTTL, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	db := deps.TaskVineMongoDatabase

	// Shared infrastructure for the feature handlers.
	errLog := errorsfeature.NewErrorLogger(logger)
	bus := events.NewBus(logger)
	followLimiter := ratelimit.NewFollowLimiter(appCfg.FollowRateLimit, appCfg.FollowRateWindow)
	loginLimiter := ratelimit.NewLoginLimiter()

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if signed in.
	// This makes the current user available to all handlers via auth.CurrentUser(r).
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.TaskVineMongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Authentication and session info
	loginHandler := loginfeature.NewHandler(db, sessionMgr, loginLimiter, errLog, logger)
	loginfeature.MountRoutes(r, loginHandler)

	logoutHandler := logoutfeature.NewHandler(sessionMgr, logger)
	logoutfeature.MountRoutes(r, logoutHandler)

	userinfoHandler := userinfofeature.NewHandler()
	userinfofeature.MountRoutes(r, userinfoHandler)

	// Social graph
	followsHandler := followsfeature.NewHandler(db, bus, followLimiter, errLog, logger)
	r.Mount("/follows", followsfeature.Routes(followsHandler, sessionMgr))

	usersHandler := usersfeature.NewHandler(db, errLog, logger)
	r.Mount("/users", usersfeature.Routes(usersHandler, sessionMgr))

	profileHandler := profilefeature.NewHandler(db, bus, sessionMgr, errLog, logger)
	r.Mount("/profile", profilefeature.Routes(profileHandler, sessionMgr))

	// Notification feed
	notificationsHandler := notificationsfeature.NewHandler(db, bus, errLog, logger)
	r.Mount("/notifications", notificationsfeature.Routes(notificationsHandler, sessionMgr))

	// Content
	postsHandler := postsfeature.NewHandler(db, bus, errLog, logger)
	r.Mount("/posts", postsfeature.Routes(postsHandler, sessionMgr))

	tasksHandler := tasksfeature.NewHandler(db, bus, errLog, logger)
	r.Mount("/tasks", tasksfeature.Routes(tasksHandler, sessionMgr))

	return r, nil
}
