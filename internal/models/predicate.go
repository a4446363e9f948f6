package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
)

// MemberType selects which member population a predicate addresses.
type MemberType string

const (
	MemberTypeYouth    MemberType = "YOUTH"
	MemberTypeGuardian MemberType = "GUARDIAN"
	MemberTypeBoth     MemberType = "BOTH"
)

// ContentStatus is the lifecycle state of a content item.
type ContentStatus string

const (
	StatusDraft     ContentStatus = "DRAFT"
	StatusScheduled ContentStatus = "SCHEDULED"
	StatusPublished ContentStatus = "PUBLISHED"
	StatusArchived  ContentStatus = "ARCHIVED"
)

// Predicate is the targeting rule set attached to a content item. Empty
// collections mean "no constraint"; nil timestamps are open-ended.
type Predicate struct {
	IsGlobal             bool                  `json:"is_global"`
	IncludeAdmins        bool                  `json:"include_admins"`
	TargetClubs          []int64               `json:"target_clubs"`
	TargetMunicipalities []int64               `json:"target_municipalities"`
	TargetGroups         []int64               `json:"target_groups"`
	TargetInterests      []int64               `json:"target_interests"`
	TargetMemberType     MemberType            `json:"target_member_type" validate:"omitempty,oneof=YOUTH GUARDIAN BOTH"`
	TargetGenders        []Gender              `json:"target_genders" validate:"dive,oneof=MALE FEMALE OTHER"`
	TargetGrades         []int                 `json:"target_grades"`
	TargetMinAge         *int                  `json:"target_min_age" validate:"omitempty,min=0,max=150"`
	TargetMaxAge         *int                  `json:"target_max_age" validate:"omitempty,min=0,max=150"`
	TargetCustomFields   map[string]FieldValue `json:"target_custom_fields"`
	Status               ContentStatus         `json:"status" validate:"required,oneof=DRAFT SCHEDULED PUBLISHED ARCHIVED"`
	PublishedAt          *time.Time            `json:"published_at"`
	VisibilityStart      *time.Time            `json:"visibility_start"`
	VisibilityEnd        *time.Time            `json:"visibility_end"`
	IsPinned             bool                  `json:"is_pinned"`
	PinnedUntil          *time.Time            `json:"pinned_until"`
}

var predicateValidator = newPredicateValidator()

func newPredicateValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewPredicate normalises and validates p, returning the value to persist.
func NewPredicate(p Predicate) (Predicate, error) {
	n := p.Normalize()
	if err := n.Validate(); err != nil {
		return Predicate{}, err
	}
	return n, nil
}

// Validate checks structural invariants. Failures are INVALID_PREDICATE errors
// naming the offending field.
func (p Predicate) Validate() error {
	if err := predicateValidator.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			field := fe.Field()
			if idx := strings.IndexByte(field, '['); idx > 0 {
				field = field[:idx]
			}
			return appErrors.InvalidPredicate(field, fmt.Sprintf("failed %s validation", fe.Tag()))
		}
		return appErrors.InvalidPredicate("predicate", err.Error())
	}
	if p.TargetMinAge != nil && p.TargetMaxAge != nil && *p.TargetMinAge > *p.TargetMaxAge {
		return appErrors.InvalidPredicate("target_min_age", "must not exceed target_max_age")
	}
	if p.VisibilityStart != nil && p.VisibilityEnd != nil && p.VisibilityStart.After(*p.VisibilityEnd) {
		return appErrors.InvalidPredicate("visibility_start", "must not be after visibility_end")
	}
	if p.PublishedAt != nil && p.VisibilityEnd != nil && p.PublishedAt.After(*p.VisibilityEnd) {
		return appErrors.InvalidPredicate("published_at", "must not be after visibility_end")
	}
	for fieldID, required := range p.TargetCustomFields {
		if strings.TrimSpace(fieldID) == "" {
			return appErrors.InvalidPredicate("target_custom_fields", "field id must not be empty")
		}
		if !required.IsScalar() {
			return appErrors.InvalidPredicate("target_custom_fields", fmt.Sprintf("value for field %s must be a scalar", fieldID))
		}
	}
	return nil
}

// Normalize returns a deep copy with sorted, de-duplicated sets, non-nil
// collections and BOTH as the default member type.
func (p Predicate) Normalize() Predicate {
	n := p
	n.TargetClubs = uniqueInt64(p.TargetClubs)
	n.TargetMunicipalities = uniqueInt64(p.TargetMunicipalities)
	n.TargetGroups = uniqueInt64(p.TargetGroups)
	n.TargetInterests = uniqueInt64(p.TargetInterests)
	n.TargetGrades = uniqueInt(p.TargetGrades)
	n.TargetGenders = uniqueGenders(p.TargetGenders)
	n.TargetCustomFields = make(map[string]FieldValue, len(p.TargetCustomFields))
	for k, v := range p.TargetCustomFields {
		n.TargetCustomFields[k] = v
	}
	if n.TargetMemberType == "" {
		n.TargetMemberType = MemberTypeBoth
	}
	n.TargetMinAge = copyInt(p.TargetMinAge)
	n.TargetMaxAge = copyInt(p.TargetMaxAge)
	n.PublishedAt = copyTime(p.PublishedAt)
	n.VisibilityStart = copyTime(p.VisibilityStart)
	n.VisibilityEnd = copyTime(p.VisibilityEnd)
	n.PinnedUntil = copyTime(p.PinnedUntil)
	return n
}

// HasScope reports whether any scope dimension (club, municipality, group,
// interest) is constrained.
func (p Predicate) HasScope() bool {
	return len(p.TargetClubs) > 0 || len(p.TargetMunicipalities) > 0 || len(p.TargetGroups) > 0 || len(p.TargetInterests) > 0
}

// SameTargeting reports whether two predicates target the same audience and
// window, ignoring lifecycle status and pin hints.
func (p Predicate) SameTargeting(other Predicate) bool {
	a, b := p.Normalize(), other.Normalize()
	a.Status, b.Status = "", ""
	a.IsPinned, b.IsPinned = false, false
	a.PinnedUntil, b.PinnedUntil = nil, nil
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ra) == string(rb)
}

// MarshalJSON renders the transport form with empty collections as [] / {}.
func (p Predicate) MarshalJSON() ([]byte, error) {
	type transport Predicate
	return json.Marshal(transport(p.Normalize()))
}

// UnmarshalJSON parses the transport form and normalises collections.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	type transport Predicate
	var t transport
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	*p = Predicate(t).Normalize()
	return nil
}

func uniqueInt64(values []int64) []int64 {
	out := make([]int64, 0, len(values))
	seen := make(map[int64]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func uniqueInt(values []int) []int {
	out := make([]int, 0, len(values))
	seen := make(map[int]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func uniqueGenders(values []Gender) []Gender {
	out := make([]Gender, 0, len(values))
	seen := make(map[Gender]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
