package distribution

import "context"

// Store persists distribution records. Records are never deleted; revocation
// is an update.
type Store interface {
	Save(ctx context.Context, d *Distribution) error
	FindByID(ctx context.Context, id string) (*Distribution, error)
	ListByStory(ctx context.Context, storyID string) ([]*Distribution, error)
	Update(ctx context.Context, d *Distribution) error
}
