// internal/app/system/workers/notificationcleanup.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	activitystore "github.com/taskvine/taskvine/internal/app/store/activities"
)

// NotificationCleanup is a background worker that prunes read activities
// past the retention period. Unread activities are never touched.
type NotificationCleanup struct {
	activities *activitystore.Store
	log        *zap.Logger
	interval   time.Duration
	retention  time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewNotificationCleanup creates a new cleanup worker.
//
// Parameters:
//   - actStore: the activities store
//   - logger: zap logger for logging
//   - interval: how often to run cleanup (e.g., 1 hour)
//   - retention: how long read activities are kept (e.g., 720h)
func NewNotificationCleanup(actStore *activitystore.Store, logger *zap.Logger, interval, retention time.Duration) *NotificationCleanup {
	return &NotificationCleanup{
		activities: actStore,
		log:        logger,
		interval:   interval,
		retention:  retention,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the background cleanup loop.
func (w *NotificationCleanup) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("notification cleanup worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("retention", w.retention))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *NotificationCleanup) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("notification cleanup worker stopped")
}

func (w *NotificationCleanup) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cleanup()
		}
	}
}

func (w *NotificationCleanup) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := w.activities.DeleteReadOlderThan(ctx, time.Now().UTC().Add(-w.retention))
	if err != nil {
		w.log.Error("failed to prune read notifications", zap.Error(err))
		return
	}

	if count > 0 {
		w.log.Info("pruned read notifications", zap.Int64("count", count))
	}
}
