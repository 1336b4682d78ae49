package gdpr

import (
	"time"

	"storyledger/internal/audit"
	"storyledger/internal/consent"
)

// RequestType is what the data subject asked for.
type RequestType string

const (
	RequestAnonymizeStory RequestType = "anonymize_story"
	RequestDeleteAccount  RequestType = "delete_account"
	RequestExportData     RequestType = "export_data"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestAnonymizeStory, RequestDeleteAccount, RequestExportData:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of a deletion request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// DeletionRequest is one GDPR request. Requests are verified by emailed
// token before processing; the row itself stays after completion as the
// compliance record.
type DeletionRequest struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenant_id"`
	UserID            string        `json:"user_id"`
	Email             string        `json:"email"`
	RequestType       RequestType   `json:"request_type"`
	StoryID           string        `json:"story_id,omitempty"`
	Status            RequestStatus `json:"status"`
	VerificationToken string        `json:"-"`
	VerifiedAt        *time.Time    `json:"verified_at,omitempty"`
	ProcessedAt       *time.Time    `json:"processed_at,omitempty"`
	FailureReason     string        `json:"failure_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// DataExport is the full subject-access package for one user.
type DataExport struct {
	UserID      string                `json:"user_id"`
	TenantID    string                `json:"tenant_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Stories     []consent.StoryExport `json:"stories"`
	Activity    []audit.Entry         `json:"activity"`
}

// ExportArtifact is what a download token resolves to.
type ExportArtifact struct {
	DownloadToken string    `json:"download_token"`
	DownloadURL   string    `json:"download_url"`
	ExpiresAt     time.Time `json:"expires_at"`
}
