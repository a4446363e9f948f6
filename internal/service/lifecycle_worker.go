package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/youthhub-api/internal/models"
)

type lifecycleStore interface {
	DueForPublish(ctx context.Context, now time.Time, limit int) ([]int64, error)
	ArchiveExpired(ctx context.Context, now time.Time) (int64, error)
}

type transitioner interface {
	Transition(ctx context.Context, id int64, status models.ContentStatus) (*models.ContentItem, error)
}

// LifecycleWorker publishes due scheduled items and archives expired ones.
type LifecycleWorker struct {
	store    lifecycleStore
	content  transitioner
	clock    models.Clock
	logger   *zap.Logger
	interval time.Duration
}

// NewLifecycleWorker constructs the worker.
func NewLifecycleWorker(store lifecycleStore, content transitioner, clock models.Clock, logger *zap.Logger, interval time.Duration) *LifecycleWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = models.SystemClock{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &LifecycleWorker{store: store, content: content, clock: clock, logger: logger, interval: interval}
}

// Start runs Sweep every interval until ctx is cancelled.
func (w *LifecycleWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Sweep(ctx)
			}
		}
	}()
}

// Sweep archives items whose window has ended, then publishes due scheduled
// items. It returns how many items moved.
func (w *LifecycleWorker) Sweep(ctx context.Context) (published int, archived int64) {
	const batch = 100
	now := w.clock.Now()

	archived, err := w.store.ArchiveExpired(ctx, now)
	if err != nil {
		w.logger.Warn("archive expired items failed", zap.Error(err))
	}
	for {
		ids, err := w.store.DueForPublish(ctx, now, batch)
		if err != nil {
			w.logger.Warn("list due scheduled items failed", zap.Error(err))
			break
		}
		moved := 0
		for _, id := range ids {
			if _, err := w.content.Transition(ctx, id, models.StatusPublished); err != nil {
				w.logger.Warn("scheduled publish failed", zap.Int64("item_id", id), zap.Error(err))
				continue
			}
			moved++
		}
		published += moved
		if len(ids) < batch || moved == 0 {
			break
		}
	}

	if published > 0 || archived > 0 {
		w.logger.Info("lifecycle sweep", zap.Int("published", published), zap.Int64("archived", archived))
	}
	return published, archived
}
