package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// AttributeRepository assembles targeting attribute snapshots.
type AttributeRepository struct {
	db *sqlx.DB
}

// NewAttributeRepository creates the repository.
func NewAttributeRepository(db *sqlx.DB) *AttributeRepository {
	return &AttributeRepository{db: db}
}

type attributeUserRow struct {
	ID                int64      `db:"id"`
	Role              string     `db:"role"`
	IsActive          bool       `db:"is_active"`
	VerificationState string     `db:"verification_state"`
	BirthDate         *time.Time `db:"birth_date"`
	LegalGender       *string    `db:"legal_gender"`
	Grade             *int       `db:"grade"`
	PreferredClubID   *int64     `db:"preferred_club_id"`
	MunicipalityID    *int64     `db:"municipality_id"`
	AttributesVersion int64      `db:"attributes_version"`
}

type userRefRow struct {
	UserID int64 `db:"user_id"`
	RefID  int64 `db:"ref_id"`
}

type customFieldRow struct {
	UserID  int64  `db:"user_id"`
	FieldID string `db:"field_id"`
	Value   []byte `db:"value"`
}

const (
	attributeUsersQuery = `SELECT u.id, u.role, u.is_active, u.verification_state, u.birth_date, u.legal_gender, u.grade,
u.preferred_club_id, c.municipality_id, u.attributes_version
FROM users u
LEFT JOIN clubs c ON c.id = u.preferred_club_id
WHERE u.id = ANY($1)`
	followedClubsQuery = `SELECT user_id, club_id AS ref_id FROM club_followers WHERE user_id = ANY($1) ORDER BY user_id, club_id`
	approvedGroupsQuery = `SELECT user_id, group_id AS ref_id FROM group_memberships
WHERE status = 'APPROVED' AND user_id = ANY($1) ORDER BY user_id, group_id`
	interestsQuery    = `SELECT user_id, interest_id AS ref_id FROM user_interests WHERE user_id = ANY($1) ORDER BY user_id, interest_id`
	customFieldsQuery = `SELECT user_id, field_id, value FROM custom_field_values WHERE user_id = ANY($1)`
)

// Load returns the snapshot of one user or sql.ErrNoRows.
func (r *AttributeRepository) Load(ctx context.Context, userID int64) (*models.AttributeRecord, error) {
	records, err := r.LoadBatch(ctx, []int64{userID})
	if err != nil {
		return nil, err
	}
	record, ok := records[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &record, nil
}

// LoadBatch returns snapshots keyed by user id; unknown ids are absent. All
// reads run in one repeatable-read transaction so each snapshot is consistent.
func (r *AttributeRepository) LoadBatch(ctx context.Context, userIDs []int64) (map[int64]models.AttributeRecord, error) {
	out := make(map[int64]models.AttributeRecord, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin attribute snapshot: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids := pq.Array(userIDs)
	var users []attributeUserRow
	if err := tx.SelectContext(ctx, &users, attributeUsersQuery, ids); err != nil {
		return nil, fmt.Errorf("load user attributes: %w", err)
	}
	if len(users) == 0 {
		return out, tx.Commit()
	}
	for _, u := range users {
		rec := models.AttributeRecord{
			UserID:            u.ID,
			Role:              models.UserRole(u.Role),
			Active:            u.IsActive,
			VerificationState: u.VerificationState,
			BirthDate:         u.BirthDate,
			Grade:             u.Grade,
			PreferredClubID:   u.PreferredClubID,
			MunicipalityID:    u.MunicipalityID,
			FollowedClubs:     []int64{},
			Groups:            []int64{},
			Interests:         []int64{},
			CustomFields:      map[string]models.FieldValue{},
			Version:           u.AttributesVersion,
		}
		if u.LegalGender != nil {
			g := models.Gender(*u.LegalGender)
			rec.LegalGender = &g
		}
		out[u.ID] = rec
	}

	refs := []struct {
		query string
		label string
		apply func(*models.AttributeRecord, int64)
	}{
		{followedClubsQuery, "followed clubs", func(rec *models.AttributeRecord, id int64) { rec.FollowedClubs = append(rec.FollowedClubs, id) }},
		{approvedGroupsQuery, "group memberships", func(rec *models.AttributeRecord, id int64) { rec.Groups = append(rec.Groups, id) }},
		{interestsQuery, "interests", func(rec *models.AttributeRecord, id int64) { rec.Interests = append(rec.Interests, id) }},
	}
	for _, ref := range refs {
		var rows []userRefRow
		if err := tx.SelectContext(ctx, &rows, ref.query, ids); err != nil {
			return nil, fmt.Errorf("load %s: %w", ref.label, err)
		}
		for _, row := range rows {
			rec, ok := out[row.UserID]
			if !ok {
				continue
			}
			ref.apply(&rec, row.RefID)
			out[row.UserID] = rec
		}
	}

	var fields []customFieldRow
	if err := tx.SelectContext(ctx, &fields, customFieldsQuery, ids); err != nil {
		return nil, fmt.Errorf("load custom fields: %w", err)
	}
	for _, f := range fields {
		rec, ok := out[f.UserID]
		if !ok {
			continue
		}
		var value models.FieldValue
		if err := json.Unmarshal(f.Value, &value); err != nil {
			return nil, fmt.Errorf("decode custom field %s of user %d: %w", f.FieldID, f.UserID, err)
		}
		rec.CustomFields[f.FieldID] = value
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attribute snapshot: %w", err)
	}
	return out, nil
}

// Version returns the attribute version stamp of a user or sql.ErrNoRows.
func (r *AttributeRepository) Version(ctx context.Context, userID int64) (int64, error) {
	var version int64
	if err := r.db.GetContext(ctx, &version, `SELECT attributes_version FROM users WHERE id = $1`, userID); err != nil {
		return 0, err
	}
	return version, nil
}
