package distribution

import (
	"context"
	"sort"
	"sync"

	"storyledger/pkg/platform/sentinel"
)

// MemoryStore is the in-process store, used in tests and single-node dev.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Distribution
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Distribution)}
}

func (s *MemoryStore) Save(_ context.Context, d *Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[d.ID] = clone(d)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(d), nil
}

func (s *MemoryStore) ListByStory(_ context.Context, storyID string) ([]*Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Distribution
	for _, d := range s.records {
		if d.StoryID == storyID {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, d *Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[d.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[d.ID] = clone(d)
	return nil
}

var _ Store = (*MemoryStore)(nil)

func clone(d *Distribution) *Distribution {
	out := *d
	if d.RevokedAt != nil {
		t := *d.RevokedAt
		out.RevokedAt = &t
	}
	return &out
}
