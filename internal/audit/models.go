package audit

import "time"

// Action identifies one ownership-relevant event kind. The payload carried in
// Entry.NewState is statically known per action (see payloads.go).
type Action string

const (
	ActionConsentGrant             Action = "consent_grant"
	ActionConsentWithdraw          Action = "consent_withdraw"
	ActionConsentUpdate            Action = "consent_update"
	ActionConsentVerify            Action = "consent_verify"
	ActionEmailSent                Action = "email_sent"
	ActionDistributionCreated      Action = "distribution_created"
	ActionDistributionRevoked      Action = "distribution_revoked"
	ActionStoryAnonymized          Action = "story_anonymized"
	ActionDeletionRequestCreated   Action = "deletion_request_created"
	ActionDeletionRequestCompleted Action = "deletion_request_completed"
	ActionDataExported             Action = "data_exported"
)

// Category groups actions for filtered queries and compliance reports.
type Category string

const (
	CategoryConsent      Category = "consent"
	CategoryGDPR         Category = "gdpr"
	CategoryDistribution Category = "distribution"
	CategoryRevocation   Category = "revocation"
)

// actionCategories maps each action to its category. Withdrawal is always
// GDPR-relevant regardless of scope; revocation covers pull-backs of content
// already sent out.
var actionCategories = map[Action]Category{
	ActionConsentGrant:             CategoryConsent,
	ActionConsentUpdate:            CategoryConsent,
	ActionConsentVerify:            CategoryConsent,
	ActionConsentWithdraw:          CategoryGDPR,
	ActionEmailSent:                CategoryGDPR,
	ActionStoryAnonymized:          CategoryGDPR,
	ActionDeletionRequestCreated:   CategoryGDPR,
	ActionDeletionRequestCompleted: CategoryGDPR,
	ActionDataExported:             CategoryGDPR,
	ActionDistributionCreated:      CategoryDistribution,
	ActionDistributionRevoked:      CategoryRevocation,
}

// CategoryFor returns the category for an action. Unknown actions default to
// consent so they never silently fall out of compliance queries.
func CategoryFor(a Action) Category {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryConsent
}

// ActorType distinguishes user-originated entries from system-originated
// ones. A nil actor is legal only for system entries.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Entry is one immutable record of an ownership-relevant action. Entries are
// never updated or deleted; a correction is itself a new entry referencing
// the same entity.
type Entry struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Action        Action    `json:"action"`
	Category      Category  `json:"action_category"`
	ActorID       string    `json:"actor_id,omitempty"`
	ActorType     ActorType `json:"actor_type"`
	NewState      any       `json:"new_state,omitempty"`
	ChangeSummary string    `json:"change_summary"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistoryFilter narrows and pages entity history queries.
type HistoryFilter struct {
	Limit      int
	Offset     int
	Actions    []Action
	Categories []Category
}

// ActivityFilter bounds actor activity queries for subject-access requests.
type ActivityFilter struct {
	Start *time.Time
	End   *time.Time
}

// SearchFilter drives tenant-scoped log search. Term matches change_summary
// substrings only, not full text across all fields.
type SearchFilter struct {
	Term       string
	EntityType string
	Action     Action
	ActorID    string
	Start      *time.Time
	End        *time.Time
	Limit      int
	Offset     int
}

// SearchResult is one page plus the unpaged total.
type SearchResult struct {
	Entries []Entry
	Total   int
}

// Report aggregates an entity's full history for compliance export. It is
// derived purely from the history read path so report and log cannot diverge.
type Report struct {
	EntityType   string           `json:"entity_type"`
	EntityID     string           `json:"entity_id"`
	GeneratedAt  time.Time        `json:"generated_at"`
	TotalActions int              `json:"total_actions"`
	Actions      []Entry          `json:"actions"`
	Statistics   ReportStatistics `json:"statistics"`
}

type ReportStatistics struct {
	ByCategory map[Category]int `json:"by_category"`
	ByAction   map[Action]int   `json:"by_action"`
}
