package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// NotificationRepository writes notification rows together with their
// ledger marks.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Deliver records the batch in the ledger and inserts one notification per
// newly recorded recipient, all in one transaction. Recipients already in the
// ledger are skipped, so a retried batch never notifies twice.
func (r *NotificationRepository) Deliver(ctx context.Context, batch models.RecipientBatch) (int, error) {
	if len(batch.Recipients) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin notification batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	fresh, err := insertLedger(ctx, tx, batch.ItemID, batch.Version, batch.Recipients)
	if err != nil {
		return 0, err
	}
	if len(fresh) > 0 {
		ids := make([]string, len(fresh))
		for i := range fresh {
			ids[i] = uuid.NewString()
		}
		const query = `INSERT INTO notifications (id, user_id, item_id, item_version, kind, batch_id)
SELECT n.id, n.user_id, $3::bigint, $4::int, $5::text, $6::uuid
FROM unnest($1::uuid[], $2::bigint[]) AS n(id, user_id)`
		if _, err := tx.ExecContext(ctx, query, pq.Array(ids), pq.Array(fresh), batch.ItemID, batch.Version, string(batch.Kind), uuid.NewString()); err != nil {
			return 0, fmt.Errorf("insert notifications: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit notification batch: %w", err)
	}
	return len(fresh), nil
}

// LedgerSink records ledger rows only, for deployments where notifications
// are created by an external delivery service.
type LedgerSink struct {
	ledger *FanoutLedgerRepository
}

// NewLedgerSink wraps a ledger repository as a notification sink.
func NewLedgerSink(ledger *FanoutLedgerRepository) *LedgerSink {
	return &LedgerSink{ledger: ledger}
}

// Deliver implements the sink contract.
func (s *LedgerSink) Deliver(ctx context.Context, batch models.RecipientBatch) (int, error) {
	records := make([]models.FanoutRecord, len(batch.Recipients))
	for i, id := range batch.Recipients {
		records[i] = models.FanoutRecord{ItemID: batch.ItemID, RecipientID: id, Version: batch.Version}
	}
	return s.ledger.RecordBatch(ctx, records)
}
