// Package notification delivers transactional email for consent and GDPR
// events. Delivery is always best-effort: callers record the attempt in the
// audit log and carry on regardless of outcome.
package notification

import "context"

// TemplateType names one transactional email template.
type TemplateType string

const (
	TemplateConsentGranted      TemplateType = "consent_granted_confirmation"
	TemplateConsentWithdrawal   TemplateType = "consent_withdrawal_confirmation"
	TemplateStoryShared         TemplateType = "story_shared_notification"
	TemplateDistributionRevoked TemplateType = "distribution_revoked_notification"
	TemplateDeletionReceived    TemplateType = "deletion_request_received"
	TemplateDeletionCompleted   TemplateType = "deletion_request_completed"
	TemplateDataExportReady     TemplateType = "data_export_ready"
)

// Recipient is who the email goes to. Name is used in the salutation and may
// be derived from the address when the profile has none.
type Recipient struct {
	Email string
	Name  string
}

// Request is one dispatch. Data feeds template interpolation; unknown keys
// are ignored by the template.
type Request struct {
	Template  TemplateType
	Recipient Recipient
	TenantID  string
	Data      map[string]string
}

// Result reports one dispatch attempt. Simulated means no provider was
// configured and nothing left the process.
type Result struct {
	Success   bool
	Simulated bool
	MessageID string
	Err       error
}

// Dispatcher sends one notification. Implementations must not panic on
// unknown templates; they fall back to a generic rendering.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) Result
}
