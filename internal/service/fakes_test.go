package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/youthhub-api/internal/models"
	"github.com/noah-isme/youthhub-api/pkg/jobs"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// memoryContent is an in-memory content store whose candidate query mirrors
// the SQL filter and ordering.
type memoryContent struct {
	mu        sync.Mutex
	items     map[int64]*models.ContentItem
	nextID    int64
	narrowErr error
	calls     []models.Narrowing
}

func newMemoryContent(items ...models.ContentItem) *memoryContent {
	m := &memoryContent{items: make(map[int64]*models.ContentItem)}
	for i := range items {
		item := items[i]
		m.items[item.ID] = &item
		if item.ID > m.nextID {
			m.nextID = item.ID
		}
	}
	return m
}

func (m *memoryContent) GetByID(_ context.Context, id int64) (*models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *item
	return &cp, nil
}

func (m *memoryContent) Create(_ context.Context, item *models.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memoryContent) Update(_ context.Context, item *models.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memoryContent) UpdateStatus(_ context.Context, id int64, status models.ContentStatus, publishedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Predicate.Status = status
	if publishedAt != nil {
		t := *publishedAt
		item.Predicate.PublishedAt = &t
	}
	return nil
}

func (m *memoryContent) Candidates(_ context.Context, n models.Narrowing, page models.CandidatePage) ([]models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, n)
	if m.narrowErr != nil && !n.Wide {
		return nil, m.narrowErr
	}
	var out []models.ContentItem
	for _, item := range m.items {
		if !PassesNarrowing(n, *item) {
			continue
		}
		if page.After != nil && !item.RankKey(n.Now).Less(*page.After) {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].RankKey(n.Now).Less(out[i].RankKey(n.Now)) })
	if len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (m *memoryContent) DueForPublish(_ context.Context, now time.Time, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, item := range m.items {
		p := item.Predicate
		if p.Status == models.StatusScheduled && p.PublishedAt != nil && !p.PublishedAt.After(now) &&
			(p.VisibilityEnd == nil || !p.VisibilityEnd.Before(now)) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memoryContent) ArchiveExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, item := range m.items {
		p := &item.Predicate
		live := p.Status == models.StatusPublished || p.Status == models.StatusScheduled
		if live && p.VisibilityEnd != nil && p.VisibilityEnd.Before(now) {
			p.Status = models.StatusArchived
			n++
		}
	}
	return n, nil
}

type memoryAttributes struct {
	users map[int64]models.UserAttributes
	err   error
}

func newMemoryAttributes(users ...models.UserAttributes) *memoryAttributes {
	m := &memoryAttributes{users: make(map[int64]models.UserAttributes)}
	for _, u := range users {
		m.users[u.UserID] = u
	}
	return m
}

func (m *memoryAttributes) Load(ctx context.Context, userID int64, _ time.Time) (models.UserAttributes, error) {
	if m.err != nil {
		return models.UserAttributes{}, m.err
	}
	u, ok := m.users[userID]
	if !ok {
		return models.UserAttributes{}, translateUserErr(ctx, sql.ErrNoRows, userID)
	}
	return u, nil
}

func (m *memoryAttributes) LoadBatch(_ context.Context, userIDs []int64, _ time.Time) (map[int64]models.UserAttributes, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[int64]models.UserAttributes, len(userIDs))
	for _, id := range userIDs {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// memoryAudience pages users through the same filter the audience SQL
// applies: active, role in roles, and inside some scope branch.
type memoryAudience struct {
	users []models.UserAttributes
	calls int
}

func (m *memoryAudience) CandidateRecipients(_ context.Context, pred models.Predicate, roles []models.UserRole, afterID int64, limit int) ([]int64, error) {
	m.calls++
	users := append([]models.UserAttributes(nil), m.users...)
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	var out []int64
	for _, u := range users {
		if u.UserID <= afterID || !audienceCandidate(pred, roles, u) {
			continue
		}
		out = append(out, u.UserID)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// audienceCandidate is the in-memory rendition of buildAudienceQuery.
func audienceCandidate(pred models.Predicate, roles []models.UserRole, u models.UserAttributes) bool {
	if !u.Active {
		return false
	}
	roleOK := false
	for _, role := range roles {
		if role == u.Role {
			roleOK = true
			break
		}
	}
	if !roleOK {
		return false
	}
	if pred.IsGlobal || !pred.HasScope() {
		return true
	}
	if len(pred.TargetClubs) > 0 {
		if u.PreferredClubID != nil && containsInt64(pred.TargetClubs, *u.PreferredClubID) {
			return true
		}
	} else if u.MunicipalityID != nil && containsInt64(pred.TargetMunicipalities, *u.MunicipalityID) {
		return true
	}
	return intersectsInt64(pred.TargetGroups, u.Groups) || intersectsInt64(pred.TargetInterests, u.Interests)
}

// memoryLedger doubles as the ledger reader and the notification sink.
type memoryLedger struct {
	mu         sync.Mutex
	rows       map[string]map[int64]time.Time
	deliveries []models.RecipientBatch
	failAfter  int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{rows: make(map[string]map[int64]time.Time)}
}

func ledgerKeyOf(itemID int64, version int) string {
	return fmt.Sprintf("%d:%d", itemID, version)
}

func (m *memoryLedger) Recorded(_ context.Context, itemID int64, version int, ids []int64) (map[int64]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]struct{})
	for _, id := range ids {
		if _, ok := m.rows[ledgerKeyOf(itemID, version)][id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (m *memoryLedger) Deliver(_ context.Context, batch models.RecipientBatch) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && len(m.deliveries) >= m.failAfter {
		return 0, fmt.Errorf("sink unavailable")
	}
	m.deliveries = append(m.deliveries, batch)
	key := ledgerKeyOf(batch.ItemID, batch.Version)
	if m.rows[key] == nil {
		m.rows[key] = make(map[int64]time.Time)
	}
	added := 0
	for _, id := range batch.Recipients {
		if _, ok := m.rows[key][id]; ok {
			continue
		}
		m.rows[key][id] = time.Now()
		added++
	}
	return added, nil
}

func (m *memoryLedger) ListByItem(_ context.Context, itemID int64, version *int) ([]models.FanoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FanoutRecord
	for key, rows := range m.rows {
		var id int64
		var v int
		if _, err := fmt.Sscanf(key, "%d:%d", &id, &v); err != nil || id != itemID {
			continue
		}
		if version != nil && *version != v {
			continue
		}
		for recipient, at := range rows {
			out = append(out, models.FanoutRecord{ItemID: id, Version: v, RecipientID: recipient, CreatedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].RecipientID < out[j].RecipientID
	})
	return out, nil
}

func (m *memoryLedger) recipients(itemID int64, version int) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for id := range m.rows[ledgerKeyOf(itemID, version)] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type recordingQueue struct {
	jobs []jobs.Job
	keys map[string]struct{}
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	if q.keys == nil {
		q.keys = make(map[string]struct{})
	}
	if _, dup := q.keys[job.Key]; dup {
		return jobs.ErrDuplicate
	}
	q.keys[job.Key] = struct{}{}
	q.jobs = append(q.jobs, job)
	return nil
}

type recordingPublisher struct {
	ids []int64
	err error
}

func (p *recordingPublisher) OnPublish(_ context.Context, itemID int64) error {
	p.ids = append(p.ids, itemID)
	return p.err
}

type memoryGroups struct {
	groups map[int64]models.Group
}

func (m *memoryGroups) FindByIDs(_ context.Context, ids []int64) ([]models.Group, error) {
	var out []models.Group
	for _, id := range ids {
		if g, ok := m.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}
