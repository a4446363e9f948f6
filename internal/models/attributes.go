package models

import "time"

// AttributeRecord is the stored, cacheable attribute snapshot of a user.
// Age is not stored; it is derived from BirthDate at evaluation time.
type AttributeRecord struct {
	UserID            int64                 `json:"user_id"`
	Role              UserRole              `json:"role"`
	Active            bool                  `json:"active"`
	VerificationState string                `json:"verification_state"`
	BirthDate         *time.Time            `json:"birth_date,omitempty"`
	LegalGender       *Gender               `json:"legal_gender,omitempty"`
	Grade             *int                  `json:"grade,omitempty"`
	PreferredClubID   *int64                `json:"preferred_club_id,omitempty"`
	MunicipalityID    *int64                `json:"municipality_id,omitempty"`
	FollowedClubs     []int64               `json:"followed_clubs"`
	Groups            []int64               `json:"groups"`
	Interests         []int64               `json:"interests"`
	CustomFields      map[string]FieldValue `json:"custom_fields"`
	Version           int64                 `json:"version"`
}

// UserAttributes is the snapshot consumed by the evaluator.
type UserAttributes struct {
	AttributeRecord
	Age *int `json:"age,omitempty"`
}

// WithAge derives the age from the record on the calendar date of today.
func (r AttributeRecord) WithAge(today time.Time) UserAttributes {
	attrs := UserAttributes{AttributeRecord: r}
	if r.BirthDate != nil {
		age := YearsBetween(*r.BirthDate, today)
		attrs.Age = &age
	}
	return attrs
}

// YearsBetween returns completed years from birth to today. The birthday counts
// only once its month/day has been reached, so Feb 29 birthdays advance on
// Mar 1 in non-leap years.
func YearsBetween(birth, today time.Time) int {
	years := today.Year() - birth.Year()
	if today.Month() < birth.Month() || (today.Month() == birth.Month() && today.Day() < birth.Day()) {
		years--
	}
	return years
}
