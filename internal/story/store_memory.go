package story

import (
	"context"
	"sync"
	"time"

	"storyledger/pkg/platform/sentinel"
)

// MemoryStore keeps stories in a map. Used by unit tests and by local runs
// without a configured postgres URL.
type MemoryStore struct {
	mu      sync.RWMutex
	txMu    sync.Mutex
	stories map[string]*Story
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stories: make(map[string]*Story)}
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stories[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := cloneStory(st)
	return cp, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, tenantID, userID string) ([]*Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Story
	for _, st := range s.stories {
		if st.TenantID != tenantID {
			continue
		}
		if st.StorytellerID == userID || st.AuthorID == userID {
			out = append(out, cloneStory(st))
		}
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, st *Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.stories[st.ID]; exists {
		return sentinel.ErrConflict
	}
	now := time.Now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	s.stories[st.ID] = cloneStory(st)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, st *Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.stories[st.ID]; !exists {
		return sentinel.ErrNotFound
	}
	st.UpdatedAt = time.Now()
	s.stories[st.ID] = cloneStory(st)
	return nil
}

// RunInTx serializes mutations behind a single lock so concurrent
// verify/withdraw interleavings observe committed state, mirroring the
// postgres transaction boundary.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

var _ TxRunner = (*MemoryStore)(nil)

func cloneStory(st *Story) *Story {
	cp := *st
	cp.ConsentScope = append([]string(nil), st.ConsentScope...)
	cp.ConsentRestrictions = append([]string(nil), st.ConsentRestrictions...)
	cp.PartialRestrictions = append([]string(nil), st.PartialRestrictions...)
	return &cp
}
