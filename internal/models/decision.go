package models

// ReasonCode identifies the outcome of one evaluator clause.
type ReasonCode string

// Rejection codes.
const (
	ReasonNotLive                ReasonCode = "NOT_LIVE"
	ReasonOutOfClubScope         ReasonCode = "OUT_OF_CLUB_SCOPE"
	ReasonOutOfMunicipalityScope ReasonCode = "OUT_OF_MUNICIPALITY_SCOPE"
	ReasonRoleMismatch           ReasonCode = "ROLE_MISMATCH"
	ReasonNotInTargetGroup       ReasonCode = "NOT_IN_TARGET_GROUP"
	ReasonNoMatchingInterest     ReasonCode = "NO_MATCHING_INTEREST"
	ReasonGenderMismatch         ReasonCode = "GENDER_MISMATCH"
	ReasonGenderUnknown          ReasonCode = "GENDER_UNKNOWN"
	ReasonAgeOutOfRange          ReasonCode = "AGE_OUT_OF_RANGE"
	ReasonAgeUnknown             ReasonCode = "AGE_UNKNOWN"
	ReasonGradeMismatch          ReasonCode = "GRADE_MISMATCH"
	ReasonCustomFieldMismatch    ReasonCode = "CUSTOM_FIELD_MISMATCH"
)

// Pass codes, emitted in clause order for visible decisions.
const (
	ReasonLive                   ReasonCode = "LIVE"
	ReasonGlobalBypass           ReasonCode = "GLOBAL_BYPASS"
	ReasonClubScopeMatch         ReasonCode = "CLUB_SCOPE_MATCH"
	ReasonMunicipalityScopeMatch ReasonCode = "MUNICIPALITY_SCOPE_MATCH"
	ReasonMemberTypeMatch        ReasonCode = "MEMBER_TYPE_MATCH"
	ReasonMemberTypeBypassed     ReasonCode = "MEMBER_TYPE_BYPASSED"
	ReasonGroupMatch             ReasonCode = "GROUP_MATCH"
	ReasonInterestMatch          ReasonCode = "INTEREST_MATCH"
	ReasonGenderMatch            ReasonCode = "GENDER_MATCH"
	ReasonAgeInRange             ReasonCode = "AGE_IN_RANGE"
	ReasonGradeMatch             ReasonCode = "GRADE_MATCH"
	ReasonCustomFieldMatch       ReasonCode = "CUSTOM_FIELD_MATCH"
)

// RejectionCodes lists every code a rejected decision may carry.
func RejectionCodes() []ReasonCode {
	return []ReasonCode{
		ReasonNotLive, ReasonOutOfClubScope, ReasonOutOfMunicipalityScope, ReasonRoleMismatch,
		ReasonNotInTargetGroup, ReasonNoMatchingInterest, ReasonGenderMismatch, ReasonGenderUnknown,
		ReasonAgeOutOfRange, ReasonAgeUnknown, ReasonGradeMismatch, ReasonCustomFieldMismatch,
	}
}

// Reason is one entry of a decision trail. FieldID is set for custom field codes.
type Reason struct {
	Code    ReasonCode `json:"code"`
	FieldID string     `json:"field_id,omitempty"`
}

// Decision is the evaluator verdict together with the clauses it considered.
type Decision struct {
	Visible bool     `json:"visible"`
	Reasons []Reason `json:"reasons"`
}

// Rejection returns the failing reason of a rejected decision.
func (d Decision) Rejection() (Reason, bool) {
	if d.Visible || len(d.Reasons) == 0 {
		return Reason{}, false
	}
	return d.Reasons[len(d.Reasons)-1], true
}

// Codes flattens the reason trail.
func (d Decision) Codes() []ReasonCode {
	codes := make([]ReasonCode, len(d.Reasons))
	for i, r := range d.Reasons {
		codes[i] = r.Code
	}
	return codes
}

// EvaluateOptions tweaks evaluation for non user-facing callers.
type EvaluateOptions struct {
	// AdminPreview lets admin subjects pass the member type clause.
	AdminPreview bool
}

// Explanation is the debug view of one decision.
type Explanation struct {
	UserID      int64       `json:"user_id"`
	ItemID      int64       `json:"item_id"`
	ItemVersion int         `json:"item_version"`
	Kind        ContentKind `json:"kind"`
	EvaluatedAt string      `json:"evaluated_at"`
	Decision    Decision    `json:"decision"`
}
