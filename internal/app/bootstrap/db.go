// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	"github.com/taskvine/taskvine/internal/app/system/indexes"
)

// EnsureSchema creates the indexes the stores rely on: unique email and
// handle on users, the activity dedup key, and the feed paging indexes.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := indexes.EnsureAll(ctx, deps.TaskVineMongoDatabase); err != nil {
		logger.Error("index creation failed", zap.Error(err))
		return err
	}
	logger.Info("database indexes ensured")
	return nil
}
