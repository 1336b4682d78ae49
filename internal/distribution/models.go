package distribution

import "time"

// Platform is where a story was sent.
type Platform string

const (
	PlatformEmbed      Platform = "embed"
	PlatformTwitter    Platform = "twitter"
	PlatformFacebook   Platform = "facebook"
	PlatformLinkedIn   Platform = "linkedin"
	PlatformWebsite    Platform = "website"
	PlatformBlog       Platform = "blog"
	PlatformAPI        Platform = "api"
	PlatformRSS        Platform = "rss"
	PlatformNewsletter Platform = "newsletter"
	PlatformCustom     Platform = "custom"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformEmbed, PlatformTwitter, PlatformFacebook, PlatformLinkedIn,
		PlatformWebsite, PlatformBlog, PlatformAPI, PlatformRSS,
		PlatformNewsletter, PlatformCustom:
		return true
	}
	return false
}

// Status is a distribution record's lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
	StatusPending Status = "pending"
)

// Distribution records one external placement of a story. Revocation keeps
// the row: the record proves the content was out there and when it was
// pulled back.
type Distribution struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	StoryID      string     `json:"story_id"`
	Platform     Platform   `json:"platform"`
	Status       Status     `json:"status"`
	URL          string     `json:"url,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    string     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}
