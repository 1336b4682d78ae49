package story

import "context"

// Store is interface-driven to keep the ledger testable and to allow swapping
// in-memory and postgres persistence without rewiring business code. Stores
// return sentinel errors; services translate them into domain errors.
type Store interface {
	FindByID(ctx context.Context, id string) (*Story, error)
	ListByOwner(ctx context.Context, tenantID, userID string) ([]*Story, error)
	Save(ctx context.Context, s *Story) error
	Update(ctx context.Context, s *Story) error
}

// TxRunner provides the transactional boundary for consent state transitions.
// Implementations may wrap a database transaction or, in-memory, a coarse
// lock; either way read-check-write sequences inside fn are serialized.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
