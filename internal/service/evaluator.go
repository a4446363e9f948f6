package service

import (
	"sort"
	"time"

	"github.com/noah-isme/youthhub-api/internal/models"
)

// Evaluate decides whether a user may see content carrying pred at now.
//
// Clauses run in a fixed order and the first failing clause ends evaluation
// with a single rejection reason. A visible decision lists one pass reason
// per clause that was considered. A null user attribute never satisfies a
// non-empty constraint. Evaluate is pure: it reads nothing but its arguments.
func Evaluate(attrs models.UserAttributes, pred models.Predicate, now time.Time, opts models.EvaluateOptions) models.Decision {
	reasons := make([]models.Reason, 0, 8)
	pass := func(code models.ReasonCode) {
		reasons = append(reasons, models.Reason{Code: code})
	}
	reject := func(code models.ReasonCode, fieldID string) models.Decision {
		return models.Decision{Visible: false, Reasons: []models.Reason{{Code: code, FieldID: fieldID}}}
	}

	if !isLive(pred, now) {
		return reject(models.ReasonNotLive, "")
	}
	pass(models.ReasonLive)

	if pred.IsGlobal {
		pass(models.ReasonGlobalBypass)
	} else {
		if len(pred.TargetClubs) > 0 {
			if attrs.PreferredClubID == nil || !containsInt64(pred.TargetClubs, *attrs.PreferredClubID) {
				return reject(models.ReasonOutOfClubScope, "")
			}
			pass(models.ReasonClubScopeMatch)
		} else if len(pred.TargetMunicipalities) > 0 {
			if attrs.MunicipalityID == nil || !containsInt64(pred.TargetMunicipalities, *attrs.MunicipalityID) {
				return reject(models.ReasonOutOfMunicipalityScope, "")
			}
			pass(models.ReasonMunicipalityScopeMatch)
		}
	}

	code, ok := memberTypeClause(attrs.Role, pred, opts)
	if !ok {
		return reject(models.ReasonRoleMismatch, "")
	}
	pass(code)

	if len(pred.TargetGroups) > 0 {
		if !intersectsInt64(pred.TargetGroups, attrs.Groups) {
			return reject(models.ReasonNotInTargetGroup, "")
		}
		pass(models.ReasonGroupMatch)
	}

	if len(pred.TargetInterests) > 0 {
		if !intersectsInt64(pred.TargetInterests, attrs.Interests) {
			return reject(models.ReasonNoMatchingInterest, "")
		}
		pass(models.ReasonInterestMatch)
	}

	if len(pred.TargetGenders) > 0 {
		if attrs.LegalGender == nil {
			return reject(models.ReasonGenderUnknown, "")
		}
		if !containsGender(pred.TargetGenders, *attrs.LegalGender) {
			return reject(models.ReasonGenderMismatch, "")
		}
		pass(models.ReasonGenderMatch)
	}

	if pred.TargetMinAge != nil || pred.TargetMaxAge != nil {
		if attrs.Age == nil {
			return reject(models.ReasonAgeUnknown, "")
		}
		age := *attrs.Age
		if (pred.TargetMinAge != nil && age < *pred.TargetMinAge) || (pred.TargetMaxAge != nil && age > *pred.TargetMaxAge) {
			return reject(models.ReasonAgeOutOfRange, "")
		}
		pass(models.ReasonAgeInRange)
	}

	if len(pred.TargetGrades) > 0 {
		if attrs.Grade == nil || !containsInt(pred.TargetGrades, *attrs.Grade) {
			return reject(models.ReasonGradeMismatch, "")
		}
		pass(models.ReasonGradeMatch)
	}

	if len(pred.TargetCustomFields) > 0 {
		fieldIDs := make([]string, 0, len(pred.TargetCustomFields))
		for id := range pred.TargetCustomFields {
			fieldIDs = append(fieldIDs, id)
		}
		sort.Strings(fieldIDs)
		for _, id := range fieldIDs {
			have, present := attrs.CustomFields[id]
			if !present || !have.Equal(pred.TargetCustomFields[id]) {
				return reject(models.ReasonCustomFieldMismatch, id)
			}
			reasons = append(reasons, models.Reason{Code: models.ReasonCustomFieldMatch, FieldID: id})
		}
	}

	return models.Decision{Visible: true, Reasons: reasons}
}

func isLive(pred models.Predicate, now time.Time) bool {
	if pred.Status != models.StatusPublished {
		return false
	}
	if pred.PublishedAt != nil && pred.PublishedAt.After(now) {
		return false
	}
	if pred.VisibilityStart != nil && pred.VisibilityStart.After(now) {
		return false
	}
	if pred.VisibilityEnd != nil && pred.VisibilityEnd.Before(now) {
		return false
	}
	return true
}

func memberTypeClause(role models.UserRole, pred models.Predicate, opts models.EvaluateOptions) (models.ReasonCode, bool) {
	memberType := pred.TargetMemberType
	if memberType == "" {
		memberType = models.MemberTypeBoth
	}
	switch role {
	case models.RoleYouthMember:
		return models.ReasonMemberTypeMatch, memberType == models.MemberTypeYouth || memberType == models.MemberTypeBoth
	case models.RoleGuardian:
		return models.ReasonMemberTypeMatch, memberType == models.MemberTypeGuardian || memberType == models.MemberTypeBoth
	}
	if role.IsAdmin() {
		if opts.AdminPreview {
			return models.ReasonMemberTypeBypassed, true
		}
		return models.ReasonMemberTypeMatch, pred.IncludeAdmins
	}
	return "", false
}

func containsInt64(values []int64, v int64) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func containsGender(values []models.Gender, v models.Gender) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func intersectsInt64(a, b []int64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[int64]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
