package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// GroupRepository reads group metadata relevant to targeting.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository creates the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindByIDs returns the groups that exist among ids.
func (r *GroupRepository) FindByIDs(ctx context.Context, ids []int64) ([]models.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, scope, municipality_id, club_id, system_type FROM groups WHERE id = ANY($1) ORDER BY id`
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find groups: %w", err)
	}
	return groups, nil
}
