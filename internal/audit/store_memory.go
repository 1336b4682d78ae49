package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps entries in-process. Reads return newest-first, matching
// the postgres ordering, so service behavior is identical across stores.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     int
	entries []seqEntry
}

// seqEntry carries an insertion sequence so entries written within the same
// clock tick still order deterministically.
type seqEntry struct {
	Entry
	seq int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries = append(s.entries, seqEntry{Entry: e, seq: s.seq})
	return nil
}

func (s *MemoryStore) ListByEntity(_ context.Context, entityType, entityID string, f HistoryFilter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []seqEntry
	for _, e := range s.entries {
		if e.EntityType != entityType || e.EntityID != entityID {
			continue
		}
		if len(f.Actions) > 0 && !containsAction(f.Actions, e.Action) {
			continue
		}
		if len(f.Categories) > 0 && !containsCategory(f.Categories, e.Category) {
			continue
		}
		matched = append(matched, e)
	}
	newestFirst(matched)
	return page(matched, f.Limit, f.Offset), nil
}

func (s *MemoryStore) ListByActor(_ context.Context, actorID string, f ActivityFilter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []seqEntry
	for _, e := range s.entries {
		if e.ActorID != actorID {
			continue
		}
		if f.Start != nil && e.CreatedAt.Before(*f.Start) {
			continue
		}
		if f.End != nil && e.CreatedAt.After(*f.End) {
			continue
		}
		matched = append(matched, e)
	}
	newestFirst(matched)
	return page(matched, 0, 0), nil
}

func (s *MemoryStore) Search(_ context.Context, tenantID string, f SearchFilter) (SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []seqEntry
	for _, e := range s.entries {
		if e.TenantID != tenantID {
			continue
		}
		if f.Term != "" && !strings.Contains(strings.ToLower(e.ChangeSummary), strings.ToLower(f.Term)) {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		if f.Start != nil && e.CreatedAt.Before(*f.Start) {
			continue
		}
		if f.End != nil && e.CreatedAt.After(*f.End) {
			continue
		}
		matched = append(matched, e)
	}
	newestFirst(matched)
	return SearchResult{
		Entries: page(matched, f.Limit, f.Offset),
		Total:   len(matched),
	}, nil
}

func newestFirst(entries []seqEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].seq > entries[j].seq
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func page(entries []seqEntry, limit, offset int) []Entry {
	if offset >= len(entries) {
		return nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Entry)
	}
	return out
}

func containsAction(actions []Action, a Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

func containsCategory(categories []Category, c Category) bool {
	for _, x := range categories {
		if x == c {
			return true
		}
	}
	return false
}
