package story

import "time"

// Status values the consent core reads and writes. Other lifecycle statuses
// (draft, published, archived) are owned by the content pipeline; this core
// only ever sets StatusConsentWithdrawn.
const (
	StatusDraft            = "draft"
	StatusPublished        = "published"
	StatusConsentWithdrawn = "consent_withdrawn"
)

// Story is the slice of story state the consent, audit, and distribution
// core consumes and mutates. Page content, media, and theming live elsewhere.
type Story struct {
	ID            string
	TenantID      string
	Title         string
	StorytellerID string
	AuthorID      string
	Status        string

	// Consent flags derived by the ledger.
	HasConsent         bool
	ConsentVerified    bool
	HasExplicitConsent bool

	// Current consent grant. VerificationStatus is pending until a reviewer
	// acts, except for the self-verifying digital method.
	ConsentMethod       string
	ConsentPurpose      string
	ConsentScope        []string
	ConsentRestrictions []string
	VerificationStatus  string
	VerifiedBy          string
	VerifiedAt          *time.Time
	WitnessID           string
	WitnessName         string

	// Withdrawal state. PartialRestrictions accumulate across partial
	// withdrawals; interpretation belongs to distribution policy callers.
	PartialRestrictions []string
	ConsentWithdrawnAt  *time.Time
	WithdrawalReason    string

	SharingEnabled bool
	EmbedsEnabled  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy reports whether the user is the storyteller or author of record.
func (s *Story) OwnedBy(userID string) bool {
	return userID != "" && (s.StorytellerID == userID || s.AuthorID == userID)
}

// Withdrawn reports whether the story reached the terminal withdrawn state.
func (s *Story) Withdrawn() bool {
	return s.Status == StatusConsentWithdrawn
}
