package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/youthhub-api/internal/dto"
	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
	"github.com/noah-isme/youthhub-api/pkg/jobs"
)

type fanoutFixture struct {
	content  *memoryContent
	attrs    *memoryAttributes
	audience *memoryAudience
	ledger   *memoryLedger
	fanout   *FanoutService
	publish  *PublishService
}

func newFanoutFixture(t *testing.T, pageSize, batchSize int, items ...models.ContentItem) *fanoutFixture {
	t.Helper()
	f := &fanoutFixture{
		content:  newMemoryContent(items...),
		audience: &memoryAudience{},
		ledger:   newMemoryLedger(),
	}
	var users []models.UserAttributes
	for id := int64(1); id <= 12; id++ {
		u := youth(id)
		if id%2 == 0 {
			u.PreferredClubID = int64Ptr(7)
		}
		if id == 12 {
			u.Role = models.RoleClubAdmin
		}
		users = append(users, u)
	}
	f.audience.users = users
	f.attrs = newMemoryAttributes(users...)
	clock := &fakeClock{now: evalNow}
	f.fanout = NewFanoutService(f.content, f.audience, f.attrs, f.ledger, nil, clock, zap.NewNop(), pageSize)
	f.publish = NewPublishService(f.content, f.fanout, f.ledger, nil, zap.NewNop(), PublishConfig{BatchSize: batchSize})
	return f
}

func clubItem(id int64) models.ContentItem {
	return models.ContentItem{ID: id, Kind: models.KindNews, Version: 1, Predicate: published(models.Predicate{TargetClubs: []int64{7}})}
}

func drain(t *testing.T, it *RecipientIterator) []int64 {
	t.Helper()
	defer it.Close()
	var ids []int64
	for it.Next(context.Background()) {
		ids = append(ids, it.UserID())
	}
	require.NoError(t, it.Err())
	return ids
}

func TestRecipientsStreamsVisibleUsersAcrossPages(t *testing.T) {
	f := newFanoutFixture(t, 5, 100, clubItem(1))

	it, err := f.fanout.Recipients(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 6, 8, 10}, drain(t, it))
	assert.Equal(t, 5, it.Considered())
	assert.Equal(t, 2, f.audience.calls)
}

func TestRecipientsAgreeWithEvaluator(t *testing.T) {
	f := newFanoutFixture(t, 4, 100, clubItem(1))
	item, _ := f.content.GetByID(context.Background(), 1)

	it, err := f.fanout.Recipients(context.Background(), 1)
	require.NoError(t, err)
	got := make(map[int64]bool)
	for _, id := range drain(t, it) {
		got[id] = true
	}
	for id, u := range f.attrs.users {
		assert.Equal(t, Evaluate(u, item.Predicate, evalNow, models.EvaluateOptions{}).Visible, got[id], "user %d", id)
	}
}

func TestRecipientsRequiresPublishedItem(t *testing.T) {
	draft := clubItem(1)
	draft.Predicate.Status = models.StatusDraft
	f := newFanoutFixture(t, 5, 100, draft)

	_, err := f.fanout.Recipients(context.Background(), 1)
	assert.True(t, errors.Is(err, appErrors.ErrLogic))

	_, err = f.fanout.Recipients(context.Background(), 99)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestRecipientRoles(t *testing.T) {
	assert.Equal(t, []models.UserRole{models.RoleYouthMember}, RecipientRoles(models.Predicate{TargetMemberType: models.MemberTypeYouth}))
	assert.Equal(t, []models.UserRole{models.RoleYouthMember, models.RoleGuardian}, RecipientRoles(models.Predicate{}))
	roles := RecipientRoles(models.Predicate{TargetMemberType: models.MemberTypeGuardian, IncludeAdmins: true})
	assert.Equal(t, models.RoleGuardian, roles[0])
	assert.Len(t, roles, 4)
}

func TestFanoutIdempotenceAndVersionBump(t *testing.T) {
	f := newFanoutFixture(t, 5, 2, clubItem(1))
	ctx := context.Background()

	summary, err := f.publish.Run(ctx, FanoutJob{ItemID: 1, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Recipients)
	assert.Equal(t, 3, summary.Batches)
	first := f.ledger.recipients(1, 1)
	assert.Equal(t, []int64{2, 4, 6, 8, 10}, first)

	it, err := f.fanout.Recipients(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, drain(t, it))
	assert.Equal(t, 5, it.Skipped())

	content := NewContentService(f.content, nil, f.publish, nil, &fakeClock{now: evalNow}, zap.NewNop())
	_, err = content.Update(ctx, 1, dto.UpdateContentRequest{Payload: []byte(`{"title":"t","body":"edited"}`)})
	require.NoError(t, err)
	it, err = f.fanout.Recipients(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, drain(t, it))

	updated, err := content.Update(ctx, 1, dto.UpdateContentRequest{ForceVersionBump: true})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, first, f.ledger.recipients(1, 2))
	assert.Equal(t, first, f.ledger.recipients(1, 1))
}

func TestPublishRunSkipsSupersededVersion(t *testing.T) {
	item := clubItem(1)
	item.Version = 3
	f := newFanoutFixture(t, 5, 10, item)

	summary, err := f.publish.Run(context.Background(), FanoutJob{ItemID: 1, Version: 2})
	require.NoError(t, err)
	assert.Zero(t, summary.Recipients)
	assert.Empty(t, f.ledger.deliveries)
}

func TestPublishRunResumesAfterSinkFailure(t *testing.T) {
	f := newFanoutFixture(t, 5, 2, clubItem(1))
	f.ledger.failAfter = 1

	_, err := f.publish.Run(context.Background(), FanoutJob{ItemID: 1, Version: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrBackendUnavailable))
	assert.Equal(t, []int64{2, 4}, f.ledger.recipients(1, 1))

	f.ledger.failAfter = 0
	summary, err := f.publish.Run(context.Background(), FanoutJob{ItemID: 1, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Recipients)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, []int64{2, 4, 6, 8, 10}, f.ledger.recipients(1, 1))
}

func TestOnPublishEnqueuesOncePerVersion(t *testing.T) {
	f := newFanoutFixture(t, 5, 10, clubItem(1))
	queue := &recordingQueue{}
	f.publish.AttachQueue(queue)

	require.NoError(t, f.publish.OnPublish(context.Background(), 1))
	require.NoError(t, f.publish.OnPublish(context.Background(), 1))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "item:1:v1", queue.jobs[0].Key)
	assert.Equal(t, JobTypeFanout, queue.jobs[0].Type)
	assert.Equal(t, FanoutJob{ItemID: 1, Version: 1}, queue.jobs[0].Payload)
	assert.Empty(t, f.ledger.deliveries)

	require.NoError(t, f.publish.HandleJob(context.Background(), queue.jobs[0]))
	assert.Len(t, f.ledger.recipients(1, 1), 5)

	err := f.publish.OnPublish(context.Background(), 42)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestOnPublishReportsFullQueue(t *testing.T) {
	f := newFanoutFixture(t, 5, 10, clubItem(1))
	f.publish.AttachQueue(&recordingQueue{err: fmt.Errorf("queue fanout: %w", jobs.ErrFull)})

	err := f.publish.OnPublish(context.Background(), 1)
	assert.True(t, errors.Is(err, appErrors.ErrBackendUnavailable))
	assert.Empty(t, f.ledger.deliveries)
}

func TestOnPublishDoesNotBlockOnFullQueue(t *testing.T) {
	f := newFanoutFixture(t, 5, 10, clubItem(1))
	f.publish = NewPublishService(f.content, f.fanout, f.ledger, nil, zap.NewNop(), PublishConfig{EnqueueTimeout: 20 * time.Millisecond})
	started := make(chan struct{}, 1)
	queue := jobs.NewQueue("fanout", func(ctx context.Context, _ jobs.Job) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}, jobs.QueueConfig{Workers: 1, BufferSize: 1})
	queue.Start(context.Background())
	defer queue.Stop()
	require.NoError(t, queue.Enqueue(context.Background(), jobs.Job{Key: "busy"}))
	<-started
	require.NoError(t, queue.Enqueue(context.Background(), jobs.Job{Key: "waiting"}))
	f.publish.AttachQueue(queue)

	start := time.Now()
	err := f.publish.OnPublish(context.Background(), 1)
	assert.True(t, errors.Is(err, appErrors.ErrBackendUnavailable))
	assert.Less(t, time.Since(start), time.Second)
}

func fanoutJob(itemID int64, version int) jobs.Job {
	return jobs.Job{Type: JobTypeFanout, Payload: FanoutJob{ItemID: itemID, Version: version}}
}

func TestHandleJobSwallowsLogicErrors(t *testing.T) {
	draft := clubItem(1)
	draft.Predicate.Status = models.StatusDraft
	f := newFanoutFixture(t, 5, 10, draft)

	assert.NoError(t, f.publish.HandleJob(context.Background(), fanoutJob(1, 1)))
	assert.Error(t, f.publish.HandleJob(context.Background(), fanoutJob(2, 1)))
}

func TestPublishRunHonoursCancellation(t *testing.T) {
	f := newFanoutFixture(t, 5, 10, clubItem(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.publish.Run(ctx, FanoutJob{ItemID: 1, Version: 1})
	assert.True(t, errors.Is(err, appErrors.ErrDeadlineExceeded))
	assert.Empty(t, f.ledger.deliveries)
}

func TestPublishRunThrottles(t *testing.T) {
	f := newFanoutFixture(t, 5, 1, clubItem(1))
	f.publish = NewPublishService(f.content, f.fanout, f.ledger, nil, zap.NewNop(), PublishConfig{BatchSize: 1, DispatchRate: 100})

	start := time.Now()
	summary, err := f.publish.Run(context.Background(), FanoutJob{ItemID: 1, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Batches)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestAudienceFilterCoversEvaluator(t *testing.T) {
	r := rand.New(rand.NewSource(424242))
	for i := 0; i < 5000; i++ {
		u, p := randomCase(r)
		u.Active = true
		if r.Intn(6) == 0 {
			u.Role = models.AdminRoles()[r.Intn(len(models.AdminRoles()))]
		}
		if Evaluate(u, p, evalNow, models.EvaluateOptions{}).Visible {
			require.Truef(t, audienceCandidate(p, RecipientRoles(p), u), "case %d: visible user dropped by audience filter: %+v / %+v", i, u, p)
		}
	}
}

func TestAudienceFilterBranches(t *testing.T) {
	member := youth(1)
	member.PreferredClubID = int64Ptr(7)
	member.MunicipalityID = int64Ptr(3)
	youthOnly := []models.UserRole{models.RoleYouthMember}

	assert.True(t, audienceCandidate(models.Predicate{IsGlobal: true, TargetClubs: []int64{9}}, youthOnly, member))
	assert.True(t, audienceCandidate(models.Predicate{}, youthOnly, member))
	assert.True(t, audienceCandidate(models.Predicate{TargetClubs: []int64{7}}, youthOnly, member))
	assert.False(t, audienceCandidate(models.Predicate{TargetClubs: []int64{9}, TargetMunicipalities: []int64{3}}, youthOnly, member),
		"club targets take precedence over municipalities")
	assert.True(t, audienceCandidate(models.Predicate{TargetMunicipalities: []int64{3}}, youthOnly, member))
	assert.False(t, audienceCandidate(models.Predicate{}, []models.UserRole{models.RoleGuardian}, member))

	member.Active = false
	assert.False(t, audienceCandidate(models.Predicate{IsGlobal: true}, youthOnly, member))
}

func TestFeedAndFanoutAgree(t *testing.T) {
	r := rand.New(rand.NewSource(8080))
	var users []models.UserAttributes
	for id := int64(1); id <= 40; id++ {
		u, _ := randomCase(r)
		u.UserID = id
		u.Active = true
		if r.Intn(8) == 0 {
			u.Role = models.RoleSuperAdmin
		}
		users = append(users, u)
	}
	var items []models.ContentItem
	for id := int64(1); id <= 60; id++ {
		_, p := randomCase(r)
		p.PublishedAt = timePtr(evalNow.Add(-time.Duration(id) * time.Minute))
		items = append(items, models.ContentItem{ID: id, Kind: models.KindPost, Version: 1, Predicate: p})
	}

	content := newMemoryContent(items...)
	attrs := newMemoryAttributes(users...)
	clock := &fakeClock{now: evalNow}
	feed := NewFeedService(attrs, content, nil, nil, clock, zap.NewNop(), FeedConfig{CandidateBatch: 7})
	fanout := NewFanoutService(content, &memoryAudience{users: users}, attrs, newMemoryLedger(), nil, clock, zap.NewNop(), 6)

	inFeed := make(map[[2]int64]bool)
	for _, u := range users {
		page, err := feed.Feed(context.Background(), models.FeedQuery{UserID: u.UserID, Limit: 100})
		require.NoError(t, err)
		require.Empty(t, page.NextCursor)
		for _, item := range page.Items {
			inFeed[[2]int64{u.UserID, item.ID}] = true
		}
	}

	for _, item := range items {
		it, err := fanout.Recipients(context.Background(), item.ID)
		require.NoError(t, err)
		recipients := make(map[int64]bool)
		for _, id := range drain(t, it) {
			recipients[id] = true
		}
		for _, u := range users {
			assert.Equalf(t, inFeed[[2]int64{u.UserID, item.ID}], recipients[u.UserID], "user %d item %d", u.UserID, item.ID)
		}
	}
}

type cancellingAudience struct {
	cancel context.CancelFunc
}

func (c *cancellingAudience) CandidateRecipients(context.Context, models.Predicate, []models.UserRole, int64, int) ([]int64, error) {
	c.cancel()
	return nil, errors.New("pq: canceling statement due to user request")
}

func TestRecipientsReportDeadlineWhenStoreIsCancelled(t *testing.T) {
	content := newMemoryContent(clubItem(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewFanoutService(content, &cancellingAudience{cancel: cancel}, newMemoryAttributes(), newMemoryLedger(), nil, &fakeClock{now: evalNow}, zap.NewNop(), 5)

	it, err := svc.Recipients(ctx, 1)
	require.NoError(t, err)
	assert.False(t, it.Next(ctx))
	assert.True(t, errors.Is(it.Err(), appErrors.ErrDeadlineExceeded))
	assert.Equal(t, appErrors.ClassTransient, appErrors.Classify(it.Err()))
}
