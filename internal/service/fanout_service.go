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

type contentReader interface {
	GetByID(ctx context.Context, id int64) (*models.ContentItem, error)
}

type audienceStore interface {
	CandidateRecipients(ctx context.Context, pred models.Predicate, roles []models.UserRole, afterID int64, limit int) ([]int64, error)
}

type attributeBatchLoader interface {
	LoadBatch(ctx context.Context, userIDs []int64, now time.Time) (map[int64]models.UserAttributes, error)
}

type ledgerReader interface {
	Recorded(ctx context.Context, itemID int64, version int, recipientIDs []int64) (map[int64]struct{}, error)
}

// FanoutService answers reverse queries: who should hear about an item.
type FanoutService struct {
	content  contentReader
	audience audienceStore
	attrs    attributeBatchLoader
	ledger   ledgerReader
	metrics  *MetricsService
	clock    models.Clock
	logger   *zap.Logger
	pageSize int
}

// NewFanoutService constructs the reverse query engine.
func NewFanoutService(content contentReader, audience audienceStore, attrs attributeBatchLoader, ledger ledgerReader, metrics *MetricsService, clock models.Clock, logger *zap.Logger, pageSize int) *FanoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = models.SystemClock{}
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	return &FanoutService{content: content, audience: audience, attrs: attrs, ledger: ledger, metrics: metrics, clock: clock, logger: logger, pageSize: pageSize}
}

// Recipients opens a lazy, distinct, single-pass sequence of users who should
// be notified about the current version of itemID and are not yet in the
// ledger for it. The item must be PUBLISHED.
func (s *FanoutService) Recipients(ctx context.Context, itemID int64) (*RecipientIterator, error) {
	item, err := s.content.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("content item %d not found", itemID))
		}
		return nil, appErrors.Backend(ctx, err, "failed to load content item")
	}
	if item.Predicate.Status != models.StatusPublished {
		s.logger.Error("fanout requested for unpublished item",
			zap.Int64("item_id", itemID), zap.String("status", string(item.Predicate.Status)))
		return nil, appErrors.Clone(appErrors.ErrLogic, fmt.Sprintf("content item %d is %s, not PUBLISHED", itemID, item.Predicate.Status))
	}
	return &RecipientIterator{
		svc:   s,
		item:  *item,
		roles: RecipientRoles(item.Predicate),
		now:   s.clock.Now(),
	}, nil
}

// RecipientRoles returns the roles a predicate can reach.
func RecipientRoles(pred models.Predicate) []models.UserRole {
	var roles []models.UserRole
	switch pred.TargetMemberType {
	case models.MemberTypeYouth:
		roles = []models.UserRole{models.RoleYouthMember}
	case models.MemberTypeGuardian:
		roles = []models.UserRole{models.RoleGuardian}
	default:
		roles = []models.UserRole{models.RoleYouthMember, models.RoleGuardian}
	}
	if pred.IncludeAdmins {
		roles = append(roles, models.AdminRoles()...)
	}
	return roles
}

// RecipientIterator streams recipients page by page in ascending user id.
// It is not restartable; call Close when done.
type RecipientIterator struct {
	svc   *FanoutService
	item  models.ContentItem
	roles []models.UserRole
	now   time.Time

	afterID   int64
	buf       []int64
	pos       int
	current   int64
	exhausted bool
	closed    bool
	err       error

	considered int
	skipped    int
}

// Item returns the item snapshot the iterator resolves.
func (it *RecipientIterator) Item() models.ContentItem { return it.item }

// Next advances to the next recipient. It returns false when the sequence is
// exhausted, closed, or failed; check Err afterwards.
func (it *RecipientIterator) Next(ctx context.Context) bool {
	if it.closed || it.err != nil {
		return false
	}
	for it.pos >= len(it.buf) {
		if it.exhausted {
			return false
		}
		if err := it.fill(ctx); err != nil {
			it.err = err
			it.release()
			return false
		}
	}
	it.current = it.buf[it.pos]
	it.pos++
	return true
}

// UserID returns the current recipient.
func (it *RecipientIterator) UserID() int64 { return it.current }

// Err returns the failure that stopped iteration, if any.
func (it *RecipientIterator) Err() error { return it.err }

// Considered is the number of candidates evaluated so far.
func (it *RecipientIterator) Considered() int { return it.considered }

// Skipped is the number of visible candidates dropped because the ledger
// already recorded them.
func (it *RecipientIterator) Skipped() int { return it.skipped }

// Close releases buffered state. Further calls to Next return false.
func (it *RecipientIterator) Close() {
	it.closed = true
	it.release()
}

func (it *RecipientIterator) release() {
	it.buf = nil
	it.pos = 0
}

func (it *RecipientIterator) fill(ctx context.Context) error {
	if err := appErrors.FromContext(ctx); err != nil {
		return err
	}
	s := it.svc
	ids, err := s.audience.CandidateRecipients(ctx, it.item.Predicate, it.roles, it.afterID, s.pageSize)
	if err != nil {
		return appErrors.Backend(ctx, err, "failed to list candidate recipients")
	}
	if len(ids) < s.pageSize {
		it.exhausted = true
	}
	it.buf, it.pos = it.buf[:0], 0
	if len(ids) == 0 {
		return nil
	}
	it.afterID = ids[len(ids)-1]

	attrs, err := s.attrs.LoadBatch(ctx, ids, it.now)
	if err != nil {
		return err
	}
	visible := make([]int64, 0, len(ids))
	for _, id := range ids {
		a, ok := attrs[id]
		if !ok {
			continue
		}
		it.considered++
		decision := Evaluate(a, it.item.Predicate, it.now, models.EvaluateOptions{})
		s.metrics.ObserveDecision(decision)
		if decision.Visible {
			visible = append(visible, id)
		}
	}
	if len(visible) == 0 {
		return nil
	}
	recorded, err := s.ledger.Recorded(ctx, it.item.ID, it.item.Version, visible)
	if err != nil {
		return appErrors.Backend(ctx, err, "failed to read fanout ledger")
	}
	for _, id := range visible {
		if _, done := recorded[id]; done {
			it.skipped++
			continue
		}
		it.buf = append(it.buf, id)
	}
	s.metrics.ObserveFanoutSkipped(len(recorded))
	return nil
}
