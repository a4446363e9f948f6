package service

import (
	"time"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// BuildNarrowing derives the candidate filter for a user. Every branch
// mirrors a path through Evaluate, so narrowing never drops an item the
// evaluator would show.
func BuildNarrowing(attrs models.UserAttributes, kind models.ContentKind, now time.Time, opts models.EvaluateOptions) models.Narrowing {
	return models.Narrowing{
		Kind:           kind,
		Now:            now,
		MemberScope:    memberScopeFor(attrs.Role, opts),
		ClubID:         attrs.PreferredClubID,
		MunicipalityID: attrs.MunicipalityID,
		Groups:         append([]int64(nil), attrs.Groups...),
		Interests:      append([]int64(nil), attrs.Interests...),
	}
}

func memberScopeFor(role models.UserRole, opts models.EvaluateOptions) models.MemberScope {
	switch {
	case role == models.RoleYouthMember:
		return models.MemberScopeYouth
	case role == models.RoleGuardian:
		return models.MemberScopeGuardian
	case role.IsAdmin() && opts.AdminPreview:
		return models.MemberScopeAny
	default:
		return models.MemberScopeAdmins
	}
}

// PassesNarrowing is the in-memory rendition of the candidate SQL filter.
func PassesNarrowing(n models.Narrowing, item models.ContentItem) bool {
	if n.Kind != "" && item.Kind != n.Kind {
		return false
	}
	if !isLive(item.Predicate, n.Now) {
		return false
	}
	pred := item.Predicate
	memberType := pred.TargetMemberType
	if memberType == "" {
		memberType = models.MemberTypeBoth
	}
	switch n.MemberScope {
	case models.MemberScopeYouth:
		if memberType != models.MemberTypeYouth && memberType != models.MemberTypeBoth {
			return false
		}
	case models.MemberScopeGuardian:
		if memberType != models.MemberTypeGuardian && memberType != models.MemberTypeBoth {
			return false
		}
	case models.MemberScopeAdmins:
		if !pred.IncludeAdmins {
			return false
		}
	}
	if n.Wide || pred.IsGlobal {
		return true
	}
	if n.ClubID != nil && containsInt64(pred.TargetClubs, *n.ClubID) {
		return true
	}
	if len(pred.TargetClubs) == 0 && n.MunicipalityID != nil && containsInt64(pred.TargetMunicipalities, *n.MunicipalityID) {
		return true
	}
	if intersectsInt64(pred.TargetGroups, n.Groups) || intersectsInt64(pred.TargetInterests, n.Interests) {
		return true
	}
	return !pred.HasScope()
}
