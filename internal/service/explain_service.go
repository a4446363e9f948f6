package service

import (
	"context"
	"time"

	"github.com/noah-isme/youthhub-api/internal/models"
)

type itemGetter interface {
	Get(ctx context.Context, id int64) (*models.ContentItem, error)
}

// ExplainService exposes evaluator decisions verbatim for debugging.
type ExplainService struct {
	attrs   attributeProvider
	content itemGetter
	clock   models.Clock
}

// NewExplainService constructs the service.
func NewExplainService(attrs attributeProvider, content itemGetter, clock models.Clock) *ExplainService {
	if clock == nil {
		clock = models.SystemClock{}
	}
	return &ExplainService{attrs: attrs, content: content, clock: clock}
}

// Explain evaluates itemID for userID exactly as the feed would. With preview
// set, admin subjects are evaluated in admin preview mode.
func (s *ExplainService) Explain(ctx context.Context, userID, itemID int64, preview bool) (*models.Explanation, error) {
	item, err := s.content.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	attrs, err := s.attrs.Load(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	decision := Evaluate(attrs, item.Predicate, now, models.EvaluateOptions{AdminPreview: preview})
	return &models.Explanation{
		UserID:      userID,
		ItemID:      item.ID,
		ItemVersion: item.Version,
		Kind:        item.Kind,
		EvaluatedAt: now.UTC().Format(time.RFC3339Nano),
		Decision:    decision,
	}, nil
}
