package audit

import "context"

// Store is the append-only persistence boundary. Append is the only write;
// there is no update or delete, matching the immutability invariant.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ListByEntity(ctx context.Context, entityType, entityID string, f HistoryFilter) ([]Entry, error)
	ListByActor(ctx context.Context, actorID string, f ActivityFilter) ([]Entry, error)
	Search(ctx context.Context, tenantID string, f SearchFilter) (SearchResult, error)
}
