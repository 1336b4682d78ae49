package consent

import "time"

// Method is how consent was captured. A digital method carries its own proof
// of identity, so it self-verifies; every other method waits for review.
type Method string

const (
	MethodWritten   Method = "written"
	MethodVerbal    Method = "verbal"
	MethodDigital   Method = "digital"
	MethodRecorded  Method = "recorded"
	MethodWitnessed Method = "witnessed"
)

func (m Method) Valid() bool {
	switch m {
	case MethodWritten, MethodVerbal, MethodDigital, MethodRecorded, MethodWitnessed:
		return true
	}
	return false
}

// SelfVerifies reports whether the method needs no reviewer decision.
func (m Method) SelfVerifies() bool {
	return m == MethodDigital
}

// VerificationStatus tracks the reviewer decision on a consent grant.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
)

// Details captures what the storyteller agreed to.
type Details struct {
	Purpose      string
	Scope        []string
	Duration     string
	Restrictions []string
}

// GrantInput is one consent grant.
type GrantInput struct {
	StoryID     string
	Method      Method
	Details     Details
	WitnessID   string
	WitnessName string
}

// WithdrawalScope is how much of the consent a withdrawal removes.
type WithdrawalScope string

const (
	ScopeFull    WithdrawalScope = "full"
	ScopePartial WithdrawalScope = "partial"
)

func (s WithdrawalScope) Valid() bool {
	return s == ScopeFull || s == ScopePartial
}

// WithdrawInput is one withdrawal request. Reason is required; a partial
// withdrawal must name at least one restriction.
type WithdrawInput struct {
	StoryID             string
	Scope               WithdrawalScope
	Reason              string
	PartialRestrictions []string
}

// Withdrawal is the outcome of a processed withdrawal.
type Withdrawal struct {
	StoryID             string          `json:"story_id"`
	Scope               WithdrawalScope `json:"scope"`
	Reason              string          `json:"reason"`
	PartialRestrictions []string        `json:"partial_restrictions,omitempty"`
	WithdrawnAt         time.Time       `json:"withdrawn_at"`
}

// Record is the current consent state of one story.
type Record struct {
	StoryID             string     `json:"story_id"`
	StoryTitle          string     `json:"story_title"`
	HasConsent          bool       `json:"has_consent"`
	HasExplicitConsent  bool       `json:"has_explicit_consent"`
	Method              Method     `json:"method,omitempty"`
	Purpose             string     `json:"purpose,omitempty"`
	Scope               []string   `json:"scope,omitempty"`
	Restrictions        []string   `json:"restrictions,omitempty"`
	VerificationStatus  string     `json:"verification_status,omitempty"`
	Verified            bool       `json:"verified"`
	VerifiedBy          string     `json:"verified_by,omitempty"`
	VerifiedAt          *time.Time `json:"verified_at,omitempty"`
	WitnessID           string     `json:"witness_id,omitempty"`
	WitnessName         string     `json:"witness_name,omitempty"`
	PartialRestrictions []string   `json:"partial_restrictions,omitempty"`
	WithdrawnAt         *time.Time `json:"withdrawn_at,omitempty"`
	WithdrawalReason    string     `json:"withdrawal_reason,omitempty"`
}

// Eligibility is the distribution decision for one story. Reason is set only
// when CanDistribute is false.
type Eligibility struct {
	HasConsent    bool   `json:"has_consent"`
	IsVerified    bool   `json:"is_verified"`
	CanDistribute bool   `json:"can_distribute"`
	Reason        string `json:"reason,omitempty"`
}

// Denial reasons, in decision order. "not found" deliberately reads the same
// as a missing story so callers cannot probe for story existence.
const (
	ReasonNotFound  = "not found"
	ReasonWithdrawn = "withdrawn"
	ReasonNoConsent = "no consent recorded"
	ReasonPending   = "pending verification"
)

// Role is the platform role carried in the actor's token.
type Role string

const (
	RoleStoryteller Role = "storyteller"
	RoleReviewer    Role = "reviewer"
	RoleAdmin       Role = "admin"
	RoleSystem      Role = "system"
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID       string
	TenantID string
	Email    string
	Name     string
	Role     Role
}
