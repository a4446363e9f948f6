package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/youthhub-api/internal/models"
)

const contentColumns = `id, kind, version, author_id, is_global, include_admins, target_clubs, target_municipalities, target_groups,
target_interests, target_member_type, target_genders, target_grades, target_min_age, target_max_age, target_custom_fields,
status, published_at, visibility_start, visibility_end, is_pinned, pinned_until, payload, created_at, updated_at`

// Ranking expressions shared by ORDER BY and the keyset predicate. $1 is always "now".
const (
	rankPinnedExpr = `(is_pinned AND (pinned_until IS NULL OR pinned_until >= $1))`
	rankMsExpr     = `(EXTRACT(EPOCH FROM date_trunc('milliseconds', COALESCE(published_at, created_at))) * 1000)::bigint`
)

type contentRow struct {
	ID                   int64         `db:"id"`
	Kind                 string        `db:"kind"`
	Version              int           `db:"version"`
	AuthorID             *int64        `db:"author_id"`
	IsGlobal             bool          `db:"is_global"`
	IncludeAdmins        bool          `db:"include_admins"`
	TargetClubs          pq.Int64Array `db:"target_clubs"`
	TargetMunicipalities pq.Int64Array `db:"target_municipalities"`
	TargetGroups         pq.Int64Array `db:"target_groups"`
	TargetInterests      pq.Int64Array `db:"target_interests"`
	TargetMemberType     string        `db:"target_member_type"`
	TargetGenders        []byte        `db:"target_genders"`
	TargetGrades         []byte        `db:"target_grades"`
	TargetMinAge         *int          `db:"target_min_age"`
	TargetMaxAge         *int          `db:"target_max_age"`
	TargetCustomFields   []byte        `db:"target_custom_fields"`
	Status               string        `db:"status"`
	PublishedAt          *time.Time    `db:"published_at"`
	VisibilityStart      *time.Time    `db:"visibility_start"`
	VisibilityEnd        *time.Time    `db:"visibility_end"`
	IsPinned             bool          `db:"is_pinned"`
	PinnedUntil          *time.Time    `db:"pinned_until"`
	Payload              []byte        `db:"payload"`
	CreatedAt            time.Time     `db:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at"`
}

func (r contentRow) toModel() (models.ContentItem, error) {
	pred := models.Predicate{
		IsGlobal:             r.IsGlobal,
		IncludeAdmins:        r.IncludeAdmins,
		TargetClubs:          []int64(r.TargetClubs),
		TargetMunicipalities: []int64(r.TargetMunicipalities),
		TargetGroups:         []int64(r.TargetGroups),
		TargetInterests:      []int64(r.TargetInterests),
		TargetMemberType:     models.MemberType(r.TargetMemberType),
		TargetMinAge:         r.TargetMinAge,
		TargetMaxAge:         r.TargetMaxAge,
		Status:               models.ContentStatus(r.Status),
		PublishedAt:          r.PublishedAt,
		VisibilityStart:      r.VisibilityStart,
		VisibilityEnd:        r.VisibilityEnd,
		IsPinned:             r.IsPinned,
		PinnedUntil:          r.PinnedUntil,
	}
	if err := unmarshalJSONColumn(r.TargetGenders, &pred.TargetGenders); err != nil {
		return models.ContentItem{}, fmt.Errorf("decode target_genders of item %d: %w", r.ID, err)
	}
	if err := unmarshalJSONColumn(r.TargetGrades, &pred.TargetGrades); err != nil {
		return models.ContentItem{}, fmt.Errorf("decode target_grades of item %d: %w", r.ID, err)
	}
	if err := unmarshalJSONColumn(r.TargetCustomFields, &pred.TargetCustomFields); err != nil {
		return models.ContentItem{}, fmt.Errorf("decode target_custom_fields of item %d: %w", r.ID, err)
	}
	payload := json.RawMessage(`{}`)
	if len(r.Payload) > 0 {
		payload = append(json.RawMessage(nil), r.Payload...)
	}
	return models.ContentItem{
		ID:        r.ID,
		Kind:      models.ContentKind(r.Kind),
		Version:   r.Version,
		AuthorID:  r.AuthorID,
		Predicate: pred.Normalize(),
		Payload:   payload,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func unmarshalJSONColumn(raw []byte, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// contentArgs flattens the JSON encoded predicate columns.
type contentArgs struct {
	genders, grades, customFields []byte
}

func encodeContentArgs(p models.Predicate) (contentArgs, error) {
	n := p.Normalize()
	var (
		out contentArgs
		err error
	)
	if out.genders, err = json.Marshal(n.TargetGenders); err != nil {
		return out, fmt.Errorf("encode target_genders: %w", err)
	}
	if out.grades, err = json.Marshal(n.TargetGrades); err != nil {
		return out, fmt.Errorf("encode target_grades: %w", err)
	}
	if out.customFields, err = json.Marshal(n.TargetCustomFields); err != nil {
		return out, fmt.Errorf("encode target_custom_fields: %w", err)
	}
	return out, nil
}

// ContentRepository persists targetable content items.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates the repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Candidates runs the narrowing query and returns one keyset page of live
// items in feed order.
func (r *ContentRepository) Candidates(ctx context.Context, n models.Narrowing, page models.CandidatePage) ([]models.ContentItem, error) {
	query, args := buildCandidateQuery(n, page)
	var rows []contentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list content candidates: %w", err)
	}
	return rowsToItems(rows)
}

func buildCandidateQuery(n models.Narrowing, page models.CandidatePage) (string, []interface{}) {
	args := []interface{}{n.Now}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where := []string{
		"status = 'PUBLISHED'",
		"(published_at IS NULL OR published_at <= $1)",
		"(visibility_start IS NULL OR visibility_start <= $1)",
		"(visibility_end IS NULL OR visibility_end >= $1)",
	}
	if n.Kind != "" {
		where = append(where, "kind = "+next(string(n.Kind)))
	}
	switch n.MemberScope {
	case models.MemberScopeYouth:
		where = append(where, "target_member_type IN ('YOUTH', 'BOTH')")
	case models.MemberScopeGuardian:
		where = append(where, "target_member_type IN ('GUARDIAN', 'BOTH')")
	case models.MemberScopeAdmins:
		where = append(where, "include_admins")
	}

	if !n.Wide {
		scope := []string{"is_global"}
		if n.ClubID != nil {
			scope = append(scope, next(*n.ClubID)+" = ANY(target_clubs)")
		}
		if n.MunicipalityID != nil {
			scope = append(scope, "(cardinality(target_clubs) = 0 AND "+next(*n.MunicipalityID)+" = ANY(target_municipalities))")
		}
		if len(n.Groups) > 0 {
			scope = append(scope, "target_groups && "+next(pq.Array(n.Groups))+"::bigint[]")
		}
		if len(n.Interests) > 0 {
			scope = append(scope, "target_interests && "+next(pq.Array(n.Interests))+"::bigint[]")
		}
		scope = append(scope, "(cardinality(target_clubs) = 0 AND cardinality(target_municipalities) = 0 AND cardinality(target_groups) = 0 AND cardinality(target_interests) = 0)")
		where = append(where, "("+strings.Join(scope, "\n  OR ")+")")
	}

	if page.After != nil {
		where = append(where, fmt.Sprintf("(%s, %s, id) < (%s, %s, %s)",
			rankPinnedExpr, rankMsExpr, next(page.After.Pinned), next(page.After.PublishedMs), next(page.After.ID)))
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s
FROM content_items
WHERE %s
ORDER BY %s DESC, %s DESC, id DESC
LIMIT %d`, contentColumns, strings.Join(where, "\n  AND "), rankPinnedExpr, rankMsExpr, limit)
	return query, args
}

// GetByID fetches one item.
func (r *ContentRepository) GetByID(ctx context.Context, id int64) (*models.ContentItem, error) {
	query := fmt.Sprintf("SELECT %s FROM content_items WHERE id = $1", contentColumns)
	var row contentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	item, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts an item and fills its generated fields.
func (r *ContentRepository) Create(ctx context.Context, item *models.ContentItem) error {
	enc, err := encodeContentArgs(item.Predicate)
	if err != nil {
		return err
	}
	p := item.Predicate
	now := time.Now().UTC()
	const query = `INSERT INTO content_items (kind, version, author_id, is_global, include_admins, target_clubs, target_municipalities,
target_groups, target_interests, target_member_type, target_genders, target_grades, target_min_age, target_max_age, target_custom_fields,
status, published_at, visibility_start, visibility_end, is_pinned, pinned_until, payload, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $23)
RETURNING id`
	var id int64
	if err := r.db.QueryRowxContext(ctx, query,
		string(item.Kind), item.Version, item.AuthorID, p.IsGlobal, p.IncludeAdmins,
		pq.Array(p.TargetClubs), pq.Array(p.TargetMunicipalities), pq.Array(p.TargetGroups), pq.Array(p.TargetInterests),
		string(p.TargetMemberType), enc.genders, enc.grades, p.TargetMinAge, p.TargetMaxAge, enc.customFields,
		string(p.Status), p.PublishedAt, p.VisibilityStart, p.VisibilityEnd, p.IsPinned, p.PinnedUntil,
		[]byte(item.Payload), now,
	).Scan(&id); err != nil {
		return fmt.Errorf("create content item: %w", err)
	}
	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

// Update rewrites the predicate, payload and version of an item. Status is
// only changed through UpdateStatus.
func (r *ContentRepository) Update(ctx context.Context, item *models.ContentItem) error {
	enc, err := encodeContentArgs(item.Predicate)
	if err != nil {
		return err
	}
	p := item.Predicate
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE content_items SET version = $2, is_global = $3, include_admins = $4, target_clubs = $5,
target_municipalities = $6, target_groups = $7, target_interests = $8, target_member_type = $9, target_genders = $10,
target_grades = $11, target_min_age = $12, target_max_age = $13, target_custom_fields = $14, published_at = $15,
visibility_start = $16, visibility_end = $17, is_pinned = $18, pinned_until = $19, payload = $20, updated_at = $21
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		item.ID, item.Version, p.IsGlobal, p.IncludeAdmins,
		pq.Array(p.TargetClubs), pq.Array(p.TargetMunicipalities), pq.Array(p.TargetGroups), pq.Array(p.TargetInterests),
		string(p.TargetMemberType), enc.genders, enc.grades, p.TargetMinAge, p.TargetMaxAge, enc.customFields,
		p.PublishedAt, p.VisibilityStart, p.VisibilityEnd, p.IsPinned, p.PinnedUntil, []byte(item.Payload), item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update content item: %w", err)
	}
	return expectAffected(res, "update content item")
}

// UpdateStatus moves an item to status, optionally setting published_at.
func (r *ContentRepository) UpdateStatus(ctx context.Context, id int64, status models.ContentStatus, publishedAt *time.Time) error {
	const query = `UPDATE content_items SET status = $2, published_at = COALESCE($3, published_at), updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(status), publishedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	return expectAffected(res, "update content status")
}

// DueForPublish lists scheduled items whose publish time has passed and whose
// visibility window is still open.
func (r *ContentRepository) DueForPublish(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id FROM content_items
WHERE status = 'SCHEDULED' AND published_at <= $1 AND (visibility_end IS NULL OR visibility_end >= $1)
ORDER BY published_at, id LIMIT $2`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, fmt.Errorf("list due scheduled items: %w", err)
	}
	return ids, nil
}

// ArchiveExpired archives published and scheduled items whose visibility
// window has closed.
func (r *ContentRepository) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE content_items SET status = 'ARCHIVED', updated_at = $1 WHERE status IN ('PUBLISHED', 'SCHEDULED') AND visibility_end < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("archive expired items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive expired items: %w", err)
	}
	return n, nil
}

func rowsToItems(rows []contentRow) ([]models.ContentItem, error) {
	items := make([]models.ContentItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.toModel()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
