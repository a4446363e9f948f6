package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the platform roles.
type UserRole string

const (
	RoleSuperAdmin        UserRole = "SUPER_ADMIN"
	RoleMunicipalityAdmin UserRole = "MUNICIPALITY_ADMIN"
	RoleClubAdmin         UserRole = "CLUB_ADMIN"
	RoleYouthMember       UserRole = "YOUTH_MEMBER"
	RoleGuardian          UserRole = "GUARDIAN"
)

// IsAdmin reports whether the role is one of the administrative roles.
func (r UserRole) IsAdmin() bool {
	switch r {
	case RoleSuperAdmin, RoleMunicipalityAdmin, RoleClubAdmin:
		return true
	}
	return false
}

// AdminRoles lists every administrative role.
func AdminRoles() []UserRole {
	return []UserRole{RoleSuperAdmin, RoleMunicipalityAdmin, RoleClubAdmin}
}

// Gender is the legal gender recorded on a profile.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// GroupSystemType marks groups whose membership is maintained by the platform.
type GroupSystemType string

const (
	SystemGroupRegistered GroupSystemType = "REGISTERED"
	SystemGroupActive     GroupSystemType = "ACTIVE"
	SystemGroupVerified   GroupSystemType = "VERIFIED"
)

// Group is the targeting-relevant projection of a group row.
type Group struct {
	ID             int64            `db:"id" json:"id"`
	Scope          string           `db:"scope" json:"scope"`
	MunicipalityID *int64           `db:"municipality_id" json:"municipality_id,omitempty"`
	ClubID         *int64           `db:"club_id" json:"club_id,omitempty"`
	SystemType     *GroupSystemType `db:"system_type" json:"system_type,omitempty"`
}

// JWTClaims represents the access token payload issued by the auth service.
type JWTClaims struct {
	UserID int64    `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Pagination contains cursor pagination metadata returned in list responses.
type Pagination struct {
	Limit      int    `json:"limit"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
