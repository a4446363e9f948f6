package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/logger"
)

type attributeProvider interface {
	Load(ctx context.Context, userID int64, now time.Time) (models.UserAttributes, error)
}

type candidateStore interface {
	Candidates(ctx context.Context, n models.Narrowing, page models.CandidatePage) ([]models.ContentItem, error)
}

type engagementStore interface {
	Aggregates(ctx context.Context, viewerID int64, itemIDs []int64) (map[int64]models.Engagement, error)
}

// FeedConfig bounds page and candidate batch sizes.
type FeedConfig struct {
	DefaultLimit   int
	MaxLimit       int
	CandidateBatch int
}

// FeedService answers forward queries: which live items a user may see.
type FeedService struct {
	attrs      attributeProvider
	candidates candidateStore
	engagement engagementStore
	metrics    *MetricsService
	clock      models.Clock
	logger     *zap.Logger
	cfg        FeedConfig
}

// NewFeedService constructs the feed engine.
func NewFeedService(attrs attributeProvider, candidates candidateStore, engagement engagementStore, metrics *MetricsService, clock models.Clock, logger *zap.Logger, cfg FeedConfig) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = models.SystemClock{}
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.CandidateBatch <= 0 {
		cfg.CandidateBatch = 100
	}
	return &FeedService{attrs: attrs, candidates: candidates, engagement: engagement, metrics: metrics, clock: clock, logger: logger, cfg: cfg}
}

// Feed returns one page of items visible to q.UserID, pinned first then
// newest first. An empty kind spans every kind.
func (s *FeedService) Feed(ctx context.Context, q models.FeedQuery) (*models.FeedPage, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveFeed(time.Since(start)) }()

	if q.Kind != "" && !q.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown content kind %q", q.Kind))
	}
	limit := s.normalizeLimit(q.Limit)
	after, err := DecodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	attrs, err := s.attrs.Load(ctx, q.UserID, now)
	if err != nil {
		return nil, err
	}
	opts := models.EvaluateOptions{AdminPreview: q.AdminPreview}
	narrowing := BuildNarrowing(attrs, q.Kind, now, opts)

	visible := make([]models.FeedItem, 0, limit+1)
	for len(visible) <= limit {
		if err := appErrors.FromContext(ctx); err != nil {
			return nil, err
		}
		batch, err := s.loadCandidates(ctx, narrowing, models.CandidatePage{After: after, Limit: s.cfg.CandidateBatch})
		if err != nil {
			return nil, err
		}
		for _, item := range batch {
			decision := Evaluate(attrs, item.Predicate, now, opts)
			s.metrics.ObserveDecision(decision)
			if decision.Visible {
				visible = append(visible, models.FeedItem{ContentItem: item, Pinned: item.EffectivePinned(now)})
			}
		}
		if len(batch) < s.cfg.CandidateBatch {
			break
		}
		key := batch[len(batch)-1].RankKey(now)
		after = &key
	}

	page := &models.FeedPage{Items: visible, Limit: limit}
	if len(visible) > limit {
		page.Items = visible[:limit]
		page.NextCursor = EncodeCursor(page.Items[limit-1].RankKey(now))
	}
	if err := s.annotate(ctx, q.UserID, page.Items); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *FeedService) normalizeLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

// loadCandidates runs the narrowed query and, if a non-deadline failure
// occurs, retries once without the scope disjunction. The evaluator still
// decides visibility, so widening only costs throughput.
func (s *FeedService) loadCandidates(ctx context.Context, n models.Narrowing, page models.CandidatePage) ([]models.ContentItem, error) {
	items, err := s.candidates.Candidates(ctx, n, page)
	if err == nil {
		return items, nil
	}
	if n.Wide || ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, appErrors.Backend(ctx, err, "failed to load feed candidates")
	}
	logger.WithRequest(ctx, s.logger).Warn("candidate narrowing failed, retrying wide", zap.String("kind", string(n.Kind)), zap.Error(err))
	s.metrics.IncNarrowingFallback()
	wide := n
	wide.Wide = true
	items, err = s.candidates.Candidates(ctx, wide, page)
	if err != nil {
		return nil, appErrors.Backend(ctx, err, "failed to load feed candidates")
	}
	return items, nil
}

func (s *FeedService) annotate(ctx context.Context, viewerID int64, items []models.FeedItem) error {
	if len(items) == 0 || s.engagement == nil {
		return nil
	}
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	aggregates, err := s.engagement.Aggregates(ctx, viewerID, ids)
	if err != nil {
		return appErrors.Backend(ctx, err, "failed to load engagement")
	}
	for i := range items {
		if agg, ok := aggregates[items[i].ID]; ok {
			items[i].Engagement = agg
		}
		items[i].Engagement.ItemID = items[i].ID
	}
	return nil
}
