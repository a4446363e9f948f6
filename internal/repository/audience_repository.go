package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// AudienceRepository inverts predicates into candidate recipient ids.
type AudienceRepository struct {
	db *sqlx.DB
}

// NewAudienceRepository creates the repository.
func NewAudienceRepository(db *sqlx.DB) *AudienceRepository {
	return &AudienceRepository{db: db}
}

// CandidateRecipients returns active users with one of roles that fall in
// any scope branch of pred, in ascending id order after afterID. The result
// over-approximates the audience; callers must still evaluate each user.
func (r *AudienceRepository) CandidateRecipients(ctx context.Context, pred models.Predicate, roles []models.UserRole, afterID int64, limit int) ([]int64, error) {
	query, args := buildAudienceQuery(pred, roles, afterID, limit)
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list candidate recipients: %w", err)
	}
	return ids, nil
}

func buildAudienceQuery(pred models.Predicate, roles []models.UserRole, afterID int64, limit int) (string, []interface{}) {
	roleNames := make([]string, len(roles))
	for i, role := range roles {
		roleNames[i] = string(role)
	}
	args := []interface{}{pq.Array(roleNames), afterID}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where := []string{"u.is_active", "u.role = ANY($1)", "u.id > $2"}
	if !pred.IsGlobal && pred.HasScope() {
		var branches []string
		if len(pred.TargetClubs) > 0 {
			branches = append(branches, "u.preferred_club_id = ANY("+next(pq.Array(pred.TargetClubs))+")")
		} else if len(pred.TargetMunicipalities) > 0 {
			branches = append(branches, "EXISTS (SELECT 1 FROM clubs c WHERE c.id = u.preferred_club_id AND c.municipality_id = ANY("+next(pq.Array(pred.TargetMunicipalities))+"))")
		}
		if len(pred.TargetGroups) > 0 {
			branches = append(branches, "EXISTS (SELECT 1 FROM group_memberships gm WHERE gm.user_id = u.id AND gm.status = 'APPROVED' AND gm.group_id = ANY("+next(pq.Array(pred.TargetGroups))+"))")
		}
		if len(pred.TargetInterests) > 0 {
			branches = append(branches, "EXISTS (SELECT 1 FROM user_interests ui WHERE ui.user_id = u.id AND ui.interest_id = ANY("+next(pq.Array(pred.TargetInterests))+"))")
		}
		where = append(where, "("+strings.Join(branches, "\n  OR ")+")")
	}

	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`SELECT u.id FROM users u
WHERE %s
ORDER BY u.id
LIMIT %d`, strings.Join(where, "\n  AND "), limit)
	return query, args
}
