package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// EngagementRepository aggregates reactions and comments for feed items.
type EngagementRepository struct {
	db *sqlx.DB
}

// NewEngagementRepository creates the repository.
func NewEngagementRepository(db *sqlx.DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// Aggregates returns counts for each item plus the viewer's own reaction.
func (r *EngagementRepository) Aggregates(ctx context.Context, viewerID int64, itemIDs []int64) (map[int64]models.Engagement, error) {
	out := make(map[int64]models.Engagement, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	const query = `SELECT i.id AS item_id,
	(SELECT COUNT(*) FROM reactions r WHERE r.item_id = i.id) AS reaction_count,
	(SELECT COUNT(*) FROM comments c WHERE c.item_id = i.id AND c.is_approved) AS comment_count,
	(SELECT r.reaction_type FROM reactions r WHERE r.item_id = i.id AND r.user_id = $1) AS my_reaction
FROM unnest($2::bigint[]) AS i(id)`
	var rows []models.Engagement
	if err := r.db.SelectContext(ctx, &rows, query, viewerID, pq.Array(itemIDs)); err != nil {
		return nil, fmt.Errorf("aggregate engagement: %w", err)
	}
	for _, row := range rows {
		out[row.ItemID] = row
	}
	return out, nil
}
