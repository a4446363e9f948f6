package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// FanoutLedgerRepository stores (item, recipient, version) delivery marks.
// The unique constraint on the triple makes concurrent inserts idempotent.
type FanoutLedgerRepository struct {
	db *sqlx.DB
}

// NewFanoutLedgerRepository creates the repository.
func NewFanoutLedgerRepository(db *sqlx.DB) *FanoutLedgerRepository {
	return &FanoutLedgerRepository{db: db}
}

const ledgerInsertQuery = `INSERT INTO fanout_ledger (item_id, recipient_id, version)
SELECT $1::bigint, recipient_id, $2::int FROM unnest($3::bigint[]) AS recipient_id
ON CONFLICT ON CONSTRAINT uq_fanout_ledger DO NOTHING
RETURNING recipient_id`

// Has reports whether recipientID was already recorded for the item version.
func (r *FanoutLedgerRepository) Has(ctx context.Context, itemID, recipientID int64, version int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM fanout_ledger WHERE item_id = $1 AND recipient_id = $2 AND version = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, itemID, recipientID, version); err != nil {
		return false, fmt.Errorf("check fanout ledger: %w", err)
	}
	return exists, nil
}

// Recorded returns the subset of recipientIDs already recorded for the item version.
func (r *FanoutLedgerRepository) Recorded(ctx context.Context, itemID int64, version int, recipientIDs []int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{})
	if len(recipientIDs) == 0 {
		return out, nil
	}
	const query = `SELECT recipient_id FROM fanout_ledger WHERE item_id = $1 AND version = $2 AND recipient_id = ANY($3)`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, itemID, version, pq.Array(recipientIDs)); err != nil {
		return nil, fmt.Errorf("list recorded recipients: %w", err)
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// RecordBatch inserts ledger rows, swallowing duplicates. It returns the
// number of rows that were new.
func (r *FanoutLedgerRepository) RecordBatch(ctx context.Context, records []models.FanoutRecord) (int, error) {
	inserted := 0
	for key, ids := range groupRecords(records) {
		fresh, err := insertLedger(ctx, r.db, key.itemID, key.version, ids)
		if err != nil {
			return inserted, err
		}
		inserted += len(fresh)
	}
	return inserted, nil
}

// ListByItem returns ledger rows for an item, optionally limited to one version.
func (r *FanoutLedgerRepository) ListByItem(ctx context.Context, itemID int64, version *int) ([]models.FanoutRecord, error) {
	query := `SELECT item_id, recipient_id, version, created_at FROM fanout_ledger WHERE item_id = $1`
	args := []interface{}{itemID}
	if version != nil {
		query += ` AND version = $2`
		args = append(args, *version)
	}
	query += ` ORDER BY version, recipient_id`
	var rows []models.FanoutRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list fanout ledger: %w", err)
	}
	return rows, nil
}

type ledgerKey struct {
	itemID  int64
	version int
}

func groupRecords(records []models.FanoutRecord) map[ledgerKey][]int64 {
	grouped := make(map[ledgerKey][]int64)
	for _, rec := range records {
		key := ledgerKey{itemID: rec.ItemID, version: rec.Version}
		grouped[key] = append(grouped[key], rec.RecipientID)
	}
	return grouped
}

func insertLedger(ctx context.Context, q sqlx.QueryerContext, itemID int64, version int, recipientIDs []int64) ([]int64, error) {
	if len(recipientIDs) == 0 {
		return nil, nil
	}
	var fresh []int64
	if err := sqlx.SelectContext(ctx, q, &fresh, ledgerInsertQuery, itemID, version, pq.Array(recipientIDs)); err != nil {
		return nil, fmt.Errorf("insert fanout ledger: %w", err)
	}
	return fresh, nil
}
