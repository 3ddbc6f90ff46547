// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	activitystore "github.com/taskvine/taskvine/internal/app/store/activities"
	"github.com/taskvine/taskvine/internal/app/system/workers"
)

// cleanupWorker prunes read notifications past the retention period.
// Started here, stopped in Shutdown.
var cleanupWorker *workers.NotificationCleanup

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	cleanupWorker = workers.NewNotificationCleanup(
		activitystore.New(deps.TaskVineMongoDatabase),
		logger,
		appCfg.NotificationCleanupInterval,
		appCfg.NotificationRetention,
	)
	cleanupWorker.Start()

	logger.Info("taskvine starting",
		zap.String("env", coreCfg.Env),
		zap.Int("follow_rate_limit", appCfg.FollowRateLimit),
		zap.Duration("follow_rate_window", appCfg.FollowRateWindow))
	return nil
}
