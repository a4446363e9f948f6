package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/jobs"
)

// NotificationSink receives resolved recipient batches. Implementations must
// record ledger rows in the same transaction as whatever they create and
// return how many recipients were new.
type NotificationSink interface {
	Deliver(ctx context.Context, batch models.RecipientBatch) (int, error)
}

type recipientSource interface {
	Recipients(ctx context.Context, itemID int64) (*RecipientIterator, error)
}

type jobDispatcher interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// JobTypeFanout is the queue job type for on-publish fanout.
const JobTypeFanout = "fanout"

// FanoutJob is the payload of a fanout queue job.
type FanoutJob struct {
	ItemID  int64
	Version int
}

// PublishConfig tunes recipient dispatch.
type PublishConfig struct {
	BatchSize    int
	DispatchRate float64

	// EnqueueTimeout bounds how long OnPublish waits for queue space.
	EnqueueTimeout time.Duration
}

// PublishService is the single on-publish entrypoint. It resolves recipients
// and hands them to the notification sink in throttled batches.
type PublishService struct {
	content contentReader
	fanout  recipientSource
	sink    NotificationSink
	queue   jobDispatcher
	limiter *rate.Limiter
	metrics *MetricsService
	logger  *zap.Logger
	cfg     PublishConfig
}

// NewPublishService constructs the publisher. A zero DispatchRate disables
// throttling.
func NewPublishService(content contentReader, fanout recipientSource, sink NotificationSink, metrics *MetricsService, logger *zap.Logger, cfg PublishConfig) *PublishService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 2 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.DispatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRate), 1)
	}
	return &PublishService{content: content, fanout: fanout, sink: sink, limiter: limiter, metrics: metrics, logger: logger, cfg: cfg}
}

// AttachQueue makes OnPublish asynchronous through queue.
func (s *PublishService) AttachQueue(queue jobDispatcher) {
	s.queue = queue
}

// OnPublish is invoked when an item enters PUBLISHED or a published item is
// re-versioned. With a queue attached the fanout runs in the background and a
// fanout already in flight for the same version is not queued twice.
func (s *PublishService) OnPublish(ctx context.Context, itemID int64) error {
	item, err := s.content.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("content item %d not found", itemID))
		}
		return appErrors.Backend(ctx, err, "failed to load content item")
	}
	job := FanoutJob{ItemID: item.ID, Version: item.Version}
	if s.queue == nil {
		_, err := s.Run(ctx, job)
		return err
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, s.cfg.EnqueueTimeout)
	defer cancel()
	err = s.queue.Enqueue(enqueueCtx, jobs.Job{
		Key:     fmt.Sprintf("item:%d:v%d", item.ID, item.Version),
		Type:    JobTypeFanout,
		Payload: job,
	})
	if errors.Is(err, jobs.ErrDuplicate) {
		s.logger.Debug("fanout already in flight", zap.Int64("item_id", item.ID), zap.Int("version", item.Version))
		return nil
	}
	if errors.Is(err, jobs.ErrFull) {
		return appErrors.Backend(ctx, err, "fanout queue is full")
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue fanout")
	}
	return nil
}

// HandleJob adapts Run to the jobs queue.
func (s *PublishService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(FanoutJob)
	if !ok {
		return fmt.Errorf("unexpected fanout payload %T", job.Payload)
	}
	_, err := s.Run(ctx, payload)
	if errors.Is(err, appErrors.ErrLogic) {
		// retrying cannot fix an invariant violation
		return nil
	}
	return err
}

// Run resolves and dispatches recipients for one item version. A run for a
// version that is no longer current is skipped; the newer version's run
// covers it.
func (s *PublishService) Run(ctx context.Context, job FanoutJob) (models.FanoutSummary, error) {
	start := time.Now()
	summary := models.FanoutSummary{ItemID: job.ItemID, Version: job.Version}
	logger := s.logger.With(zap.Int64("item_id", job.ItemID), zap.Int("version", job.Version))

	it, err := s.fanout.Recipients(ctx, job.ItemID)
	if err != nil {
		logger.Warn("fanout not started", zap.Error(err))
		return summary, err
	}
	defer it.Close()

	item := it.Item()
	if job.Version != 0 && item.Version != job.Version {
		logger.Info("fanout skipped for superseded version", zap.Int("current_version", item.Version))
		return summary, nil
	}
	summary.Version = item.Version

	batch := make([]int64, 0, s.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return appErrors.Backend(ctx, err, "fanout dispatch interrupted")
		}
		recipients := append([]int64(nil), batch...)
		delivered, err := s.sink.Deliver(ctx, models.RecipientBatch{
			ItemID: item.ID, Version: item.Version, Kind: item.Kind, Recipients: recipients,
		})
		if err != nil {
			return appErrors.Backend(ctx, err, "failed to deliver notifications")
		}
		summary.Batches++
		summary.Recipients += delivered
		s.metrics.ObserveFanoutBatch(delivered)
		batch = batch[:0]
		return nil
	}

	for it.Next(ctx) {
		batch = append(batch, it.UserID())
		if len(batch) >= s.cfg.BatchSize {
			if err := flush(); err != nil {
				return s.finish(logger, summary, it, start, err)
			}
		}
	}
	if err := it.Err(); err != nil {
		return s.finish(logger, summary, it, start, err)
	}
	return s.finish(logger, summary, it, start, flush())
}

func (s *PublishService) finish(logger *zap.Logger, summary models.FanoutSummary, it *RecipientIterator, start time.Time, err error) (models.FanoutSummary, error) {
	summary.Considered = it.Considered()
	summary.Skipped = it.Skipped()
	s.metrics.ObserveFanout(time.Since(start))
	fields := []zap.Field{
		zap.Int("considered", summary.Considered),
		zap.Int("recipients", summary.Recipients),
		zap.Int("skipped", summary.Skipped),
		zap.Int("batches", summary.Batches),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		logger.Error("fanout failed", append(fields, zap.Error(err))...)
		return summary, err
	}
	logger.Info("fanout completed", fields...)
	return summary, nil
}
