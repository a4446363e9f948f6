package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/youthhub-api/internal/models"
)

func TestBuildNarrowingMemberScope(t *testing.T) {
	guardian := models.UserAttributes{AttributeRecord: models.AttributeRecord{Role: models.RoleGuardian}}
	admin := models.UserAttributes{AttributeRecord: models.AttributeRecord{Role: models.RoleMunicipalityAdmin}}

	assert.Equal(t, models.MemberScopeYouth, BuildNarrowing(youth(1), "", evalNow, models.EvaluateOptions{}).MemberScope)
	assert.Equal(t, models.MemberScopeGuardian, BuildNarrowing(guardian, "", evalNow, models.EvaluateOptions{}).MemberScope)
	assert.Equal(t, models.MemberScopeAdmins, BuildNarrowing(admin, "", evalNow, models.EvaluateOptions{}).MemberScope)
	assert.Equal(t, models.MemberScopeAny, BuildNarrowing(admin, "", evalNow, models.EvaluateOptions{AdminPreview: true}).MemberScope)
}

func TestPassesNarrowing(t *testing.T) {
	u := youth(1)
	u.PreferredClubID = int64Ptr(7)
	u.MunicipalityID = int64Ptr(3)
	u.Interests = []int64{11}
	n := BuildNarrowing(u, models.KindNews, evalNow, models.EvaluateOptions{})

	item := func(kind models.ContentKind, p models.Predicate) models.ContentItem {
		return models.ContentItem{ID: 1, Kind: kind, Predicate: published(p)}
	}

	assert.True(t, PassesNarrowing(n, item(models.KindNews, models.Predicate{})))
	assert.False(t, PassesNarrowing(n, item(models.KindPost, models.Predicate{})))
	assert.True(t, PassesNarrowing(n, item(models.KindNews, models.Predicate{TargetClubs: []int64{7}})))
	assert.False(t, PassesNarrowing(n, item(models.KindNews, models.Predicate{TargetClubs: []int64{8}})))
	assert.True(t, PassesNarrowing(n, item(models.KindNews, models.Predicate{TargetMunicipalities: []int64{3}})))
	assert.False(t, PassesNarrowing(n, item(models.KindNews, models.Predicate{TargetClubs: []int64{8}, TargetMunicipalities: []int64{3}})))
	assert.True(t, PassesNarrowing(n, item(models.KindNews, models.Predicate{TargetInterests: []int64{11}})))
	assert.True(t, PassesNarrowing(n, item(models.KindNews, models.Predicate{IsGlobal: true, TargetClubs: []int64{8}})))
	assert.False(t, PassesNarrowing(n, item(models.KindNews, models.Predicate{TargetMemberType: models.MemberTypeGuardian})))

	draft := models.ContentItem{ID: 2, Kind: models.KindNews, Predicate: models.Predicate{Status: models.StatusDraft}}
	assert.False(t, PassesNarrowing(n, draft))

	wide := n
	wide.Wide = true
	assert.True(t, PassesNarrowing(wide, item(models.KindNews, models.Predicate{TargetClubs: []int64{8}})))

	expired := item(models.KindNews, models.Predicate{})
	expired.Predicate.VisibilityEnd = timePtr(evalNow.Add(-time.Second))
	assert.False(t, PassesNarrowing(n, expired))
}
