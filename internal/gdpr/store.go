package gdpr

import (
	"context"
	"time"
)

// RequestStore persists deletion requests.
type RequestStore interface {
	Save(ctx context.Context, r *DeletionRequest) error
	FindByID(ctx context.Context, id string) (*DeletionRequest, error)
	FindByToken(ctx context.Context, token string) (*DeletionRequest, error)
	Update(ctx context.Context, r *DeletionRequest) error
}

// ArtifactStore holds built export payloads under expiring download tokens.
// Artifacts are ephemeral by design: once the TTL passes the data is gone
// and the subject must request a fresh export.
type ArtifactStore interface {
	Put(ctx context.Context, token string, payload []byte, ttl time.Duration) error
	Get(ctx context.Context, token string) ([]byte, error)
}
