package gdpr

import (
	"context"
	"sync"
	"time"

	"storyledger/pkg/platform/sentinel"
)

// MemoryRequestStore is the in-process request store.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]*DeletionRequest
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]*DeletionRequest)}
}

func (s *MemoryRequestStore) Save(_ context.Context, r *DeletionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (s *MemoryRequestStore) FindByID(_ context.Context, id string) (*DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (s *MemoryRequestStore) FindByToken(_ context.Context, token string) (*DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.VerificationToken == token {
			return cloneRequest(r), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryRequestStore) Update(_ context.Context, r *DeletionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[r.ID] = cloneRequest(r)
	return nil
}

var _ RequestStore = (*MemoryRequestStore)(nil)

func cloneRequest(r *DeletionRequest) *DeletionRequest {
	out := *r
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		out.VerifiedAt = &t
	}
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		out.ProcessedAt = &t
	}
	return &out
}

// MemoryArtifactStore keeps export payloads in-process with expiry applied
// on read.
type MemoryArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[string]memoryArtifact
}

type memoryArtifact struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{artifacts: make(map[string]memoryArtifact)}
}

func (s *MemoryArtifactStore) Put(_ context.Context, token string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.artifacts[token] = memoryArtifact{payload: buf, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryArtifactStore) Get(_ context.Context, token string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[token]
	if !ok || time.Now().After(a.expiresAt) {
		return nil, sentinel.ErrNotFound
	}
	return a.payload, nil
}

var _ ArtifactStore = (*MemoryArtifactStore)(nil)
