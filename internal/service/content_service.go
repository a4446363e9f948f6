package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/youthhub-api/internal/dto"
	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/logger"
)

type contentStore interface {
	GetByID(ctx context.Context, id int64) (*models.ContentItem, error)
	Create(ctx context.Context, item *models.ContentItem) error
	Update(ctx context.Context, item *models.ContentItem) error
	UpdateStatus(ctx context.Context, id int64, status models.ContentStatus, publishedAt *time.Time) error
}

type groupLookup interface {
	FindByIDs(ctx context.Context, ids []int64) ([]models.Group, error)
}

type publishHook interface {
	OnPublish(ctx context.Context, itemID int64) error
}

var allowedTransitions = map[models.ContentStatus][]models.ContentStatus{
	models.StatusDraft:     {models.StatusScheduled, models.StatusPublished},
	models.StatusScheduled: {models.StatusPublished, models.StatusDraft},
	models.StatusPublished: {models.StatusArchived},
}

// ContentService owns content item creation, edits and lifecycle transitions.
type ContentService struct {
	store     contentStore
	groups    groupLookup
	publisher publishHook
	validator *validator.Validate
	clock     models.Clock
	logger    *zap.Logger
}

// NewContentService constructs the service. publisher may be nil.
func NewContentService(store contentStore, groups groupLookup, publisher publishHook, validate *validator.Validate, clock models.Clock, logger *zap.Logger) *ContentService {
	if validate == nil {
		validate = validator.New()
	}
	if clock == nil {
		clock = models.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentService{store: store, groups: groups, publisher: publisher, validator: validate, clock: clock, logger: logger}
}

// Get returns one item.
func (s *ContentService) Get(ctx context.Context, id int64) (*models.ContentItem, error) {
	item, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content item not found")
		}
		return nil, appErrors.Backend(ctx, err, "failed to load content item")
	}
	return item, nil
}

// Create stores a new item in DRAFT, or SCHEDULED when a future publish time
// is given.
func (s *ContentService) Create(ctx context.Context, req dto.CreateContentRequest) (*models.ContentItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid content payload")
	}
	if err := s.validatePayload(req.Kind, req.Payload); err != nil {
		return nil, err
	}

	raw := req.Predicate
	if raw.Status == "" {
		raw.Status = models.StatusDraft
	}
	now := s.clock.Now()
	switch raw.Status {
	case models.StatusDraft:
	case models.StatusScheduled:
		if raw.PublishedAt == nil || !raw.PublishedAt.After(now) {
			return nil, appErrors.InvalidPredicate("published_at", "scheduled items need a future publish time")
		}
	default:
		return nil, appErrors.InvalidPredicate("status", "new items start as DRAFT or SCHEDULED")
	}
	pred, err := s.checkPredicate(ctx, req.Kind, raw)
	if err != nil {
		return nil, err
	}

	item := &models.ContentItem{
		Kind:      req.Kind,
		Version:   1,
		AuthorID:  req.AuthorID,
		Predicate: pred,
		Payload:   req.Payload,
	}
	if err := s.store.Create(ctx, item); err != nil {
		return nil, appErrors.Backend(ctx, err, "failed to create content item")
	}
	logger.WithRequest(ctx, s.logger).Info("content item created", zap.Int64("item_id", item.ID), zap.String("kind", string(item.Kind)), zap.String("status", string(pred.Status)))
	return item, nil
}

// Update edits payload and predicate. A published item whose audience or
// window changes gets a new version, which is fanned out afresh; payload and
// pin edits keep the version unless ForceVersionBump is set.
func (s *ContentService) Update(ctx context.Context, id int64, req dto.UpdateContentRequest) (*models.ContentItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Predicate.Status == models.StatusArchived {
		return nil, appErrors.Clone(appErrors.ErrConflict, "archived items cannot be edited")
	}

	updated := *item
	bump := req.ForceVersionBump
	if len(req.Payload) > 0 {
		if err := s.validatePayload(item.Kind, req.Payload); err != nil {
			return nil, err
		}
		updated.Payload = req.Payload
	}
	if req.Predicate != nil {
		raw := *req.Predicate
		raw.Status = item.Predicate.Status
		if raw.Status == models.StatusScheduled && (raw.PublishedAt == nil || !raw.PublishedAt.After(s.clock.Now())) {
			return nil, appErrors.InvalidPredicate("published_at", "scheduled items need a future publish time")
		}
		pred, err := s.checkPredicate(ctx, item.Kind, raw)
		if err != nil {
			return nil, err
		}
		if item.Predicate.Status == models.StatusPublished && !pred.SameTargeting(item.Predicate) {
			bump = true
		}
		updated.Predicate = pred
	}
	if bump {
		updated.Version = item.Version + 1
	}

	if err := s.store.Update(ctx, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content item not found")
		}
		return nil, appErrors.Backend(ctx, err, "failed to update content item")
	}
	if bump {
		logger.WithRequest(ctx, s.logger).Info("content item re-versioned", zap.Int64("item_id", id), zap.Int("version", updated.Version))
		if updated.Predicate.Status == models.StatusPublished {
			s.notifyPublished(ctx, id)
		}
	}
	return &updated, nil
}

// Transition moves an item to status. Entering PUBLISHED triggers fanout.
func (s *ContentService) Transition(ctx context.Context, id int64, status models.ContentStatus) (*models.ContentItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := item.Predicate.Status
	if !transitionAllowed(from, status) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot move item from %s to %s", from, status))
	}

	now := s.clock.Now()
	var publishedAt *time.Time
	switch status {
	case models.StatusScheduled:
		if item.Predicate.PublishedAt == nil || !item.Predicate.PublishedAt.After(now) {
			return nil, appErrors.InvalidPredicate("published_at", "scheduled items need a future publish time")
		}
	case models.StatusPublished:
		if item.Predicate.PublishedAt == nil || item.Predicate.PublishedAt.After(now) {
			publishedAt = &now
		}
		if item.Predicate.VisibilityEnd != nil && now.After(*item.Predicate.VisibilityEnd) {
			return nil, appErrors.InvalidPredicate("visibility_end", "visibility window already ended")
		}
	}

	if err := s.store.UpdateStatus(ctx, id, status, publishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content item not found")
		}
		return nil, appErrors.Backend(ctx, err, "failed to update content status")
	}
	item.Predicate.Status = status
	if publishedAt != nil {
		item.Predicate.PublishedAt = publishedAt
	}
	logger.WithRequest(ctx, s.logger).Info("content item transitioned", zap.Int64("item_id", id), zap.String("from", string(from)), zap.String("to", string(status)))

	if status == models.StatusPublished {
		s.notifyPublished(ctx, id)
	}
	return item, nil
}

func (s *ContentService) notifyPublished(ctx context.Context, id int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.OnPublish(ctx, id); err != nil {
		logger.WithRequest(ctx, s.logger).Error("on-publish hook failed", zap.Int64("item_id", id), zap.Error(err))
	}
}

func transitionAllowed(from, to models.ContentStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func (s *ContentService) validatePayload(kind models.ContentKind, raw []byte) error {
	if !kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown content kind %q", kind))
	}
	payload, err := models.DecodePayload(kind, raw)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := s.validator.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return nil
}

// checkPredicate validates pred for an item of kind, including the rules that
// need the group catalogue.
func (s *ContentService) checkPredicate(ctx context.Context, kind models.ContentKind, raw models.Predicate) (models.Predicate, error) {
	pred, err := models.NewPredicate(raw)
	if err != nil {
		return models.Predicate{}, err
	}
	if pred.IncludeAdmins && kind != models.KindSystemMessage {
		return models.Predicate{}, appErrors.InvalidPredicate("include_admins", "only system messages may target admins")
	}
	if len(pred.TargetGroups) == 0 || s.groups == nil {
		return pred, nil
	}
	groups, err := s.groups.FindByIDs(ctx, pred.TargetGroups)
	if err != nil {
		return models.Predicate{}, appErrors.Backend(ctx, err, "failed to load target groups")
	}
	known := make(map[int64]models.Group, len(groups))
	for _, g := range groups {
		known[g.ID] = g
	}
	for _, id := range pred.TargetGroups {
		g, ok := known[id]
		if !ok {
			return models.Predicate{}, appErrors.InvalidPredicate("target_groups", fmt.Sprintf("group %d does not exist", id))
		}
		if g.SystemType != nil && kind != models.KindSystemMessage {
			return models.Predicate{}, appErrors.InvalidPredicate("target_groups", fmt.Sprintf("system group %d is reserved for system messages", id))
		}
	}
	return pred, nil
}
