package audit

// State snapshot payloads, one per action kind. Entry.NewState holds one of
// these; stores serialize it to a generic JSON column, so each action keeps a
// statically known shape in code without a schema per action in the database.
// Snapshots are never read back for mutation.

// ConsentGrantedState records the grant that produced the current flags.
type ConsentGrantedState struct {
	Method             string   `json:"method"`
	Purpose            string   `json:"purpose"`
	Scope              []string `json:"scope,omitempty"`
	Restrictions       []string `json:"restrictions,omitempty"`
	VerificationStatus string   `json:"verification_status"`
	WitnessID          string   `json:"witness_id,omitempty"`
	WitnessName        string   `json:"witness_name,omitempty"`
}

// ConsentVerifiedState records a reviewer decision.
type ConsentVerifiedState struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

// ConsentWithdrawnState records a full or partial withdrawal.
type ConsentWithdrawnState struct {
	Scope                string   `json:"scope"`
	Reason               string   `json:"reason"`
	PartialRestrictions  []string `json:"partial_restrictions,omitempty"`
	EffectiveImmediately bool     `json:"effective_immediately"`
}

// EmailSentState records a notification dispatch attempt, successful or
// simulated. Failures are recorded too; dispatch is best-effort.
type EmailSentState struct {
	Template  string `json:"template"`
	Recipient string `json:"recipient"`
	Success   bool   `json:"success"`
	Simulated bool   `json:"simulated,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DistributionCreatedState records an external send.
type DistributionCreatedState struct {
	Platform string `json:"platform"`
	URL      string `json:"url,omitempty"`
}

// DistributionRevokedState records a pull-back of distributed content.
type DistributionRevokedState struct {
	Platform string `json:"platform,omitempty"`
	Reason   string `json:"reason"`
	Revoked  int    `json:"revoked,omitempty"`
}

// DeletionRequestState records a GDPR request transition.
type DeletionRequestState struct {
	RequestType string `json:"request_type"`
	Status      string `json:"status"`
}

// DataExportedState records a subject-access export build.
type DataExportedState struct {
	Stories    int `json:"stories"`
	Entries    int `json:"entries"`
	ExpirySecs int `json:"expiry_secs,omitempty"`
}
