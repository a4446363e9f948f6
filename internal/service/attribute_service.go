package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
)

type attributeStore interface {
	Load(ctx context.Context, userID int64) (*models.AttributeRecord, error)
	LoadBatch(ctx context.Context, userIDs []int64) (map[int64]models.AttributeRecord, error)
	Version(ctx context.Context, userID int64) (int64, error)
}

// AttributeService resolves the attribute snapshots consumed by the evaluator.
type AttributeService struct {
	store    attributeStore
	cache    *CacheService
	cacheTTL time.Duration
	location *time.Location
	logger   *zap.Logger
}

// NewAttributeService constructs the provider. cache may be nil.
func NewAttributeService(store attributeStore, cache *CacheService, cacheTTL time.Duration, location *time.Location, logger *zap.Logger) *AttributeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &AttributeService{store: store, cache: cache, cacheTTL: cacheTTL, location: location, logger: logger}
}

// Load returns the snapshot of userID with age derived on the calendar date
// of now in the targeting timezone.
func (s *AttributeService) Load(ctx context.Context, userID int64, now time.Time) (models.UserAttributes, error) {
	record, err := s.LoadRecord(ctx, userID)
	if err != nil {
		return models.UserAttributes{}, err
	}
	return record.WithAge(now.In(s.location)), nil
}

// LoadRecord returns the raw, cacheable snapshot of userID.
func (s *AttributeService) LoadRecord(ctx context.Context, userID int64) (models.AttributeRecord, error) {
	if !s.cache.Enabled() {
		return s.loadFromStore(ctx, userID)
	}

	version, err := s.store.Version(ctx, userID)
	if err != nil {
		return models.AttributeRecord{}, translateUserErr(ctx, err, userID)
	}
	key := AttributeCacheKey(userID, version)

	var cached models.AttributeRecord
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	record, err := s.loadFromStore(ctx, userID)
	if err != nil {
		return models.AttributeRecord{}, err
	}
	if record.Version == version {
		_ = s.cache.Set(ctx, key, record, s.cacheTTL)
	}
	return record, nil
}

// LoadBatch returns snapshots for userIDs; unknown users are omitted.
func (s *AttributeService) LoadBatch(ctx context.Context, userIDs []int64, now time.Time) (map[int64]models.UserAttributes, error) {
	records, err := s.store.LoadBatch(ctx, userIDs)
	if err != nil {
		return nil, appErrors.Backend(ctx, err, "failed to load attribute batch")
	}
	today := now.In(s.location)
	out := make(map[int64]models.UserAttributes, len(records))
	for id, record := range records {
		out[id] = record.WithAge(today)
	}
	return out, nil
}

// Invalidate drops every cached snapshot of userID.
func (s *AttributeService) Invalidate(ctx context.Context, userID int64) error {
	return s.cache.Invalidate(ctx, AttributeCachePattern(userID))
}

func (s *AttributeService) loadFromStore(ctx context.Context, userID int64) (models.AttributeRecord, error) {
	record, err := s.store.Load(ctx, userID)
	if err != nil {
		return models.AttributeRecord{}, translateUserErr(ctx, err, userID)
	}
	return *record, nil
}

func translateUserErr(ctx context.Context, err error, userID int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrUnknownUser, fmt.Sprintf("user %d not found", userID))
	}
	return appErrors.Backend(ctx, err, "failed to load user attributes")
}
