//go:build integration

package gdpr_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyledger/internal/gdpr"
	"storyledger/pkg/platform/sentinel"
	"storyledger/pkg/testutil/containers"
)

func TestPostgresRequestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pg := containers.NewPostgresContainer(t)
	t.Cleanup(func() {
		_ = pg.DB.Close()
		_ = pg.Container.Terminate(context.Background())
	})
	store := gdpr.NewPostgresRequestStore(pg.DB)
	ctx := context.Background()

	newRequest := func(id, token string) *gdpr.DeletionRequest {
		return &gdpr.DeletionRequest{
			ID:                id,
			TenantID:          "tenant-1",
			UserID:            "user-1",
			Email:             "teller@example.com",
			RequestType:       gdpr.RequestExportData,
			Status:            gdpr.StatusPending,
			VerificationToken: token,
			CreatedAt:         time.Now().UTC(),
		}
	}

	t.Run("save and find by id and token", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		require.NoError(t, store.Save(ctx, newRequest("req-1", "tok-1")))

		byID, err := store.FindByID(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, gdpr.RequestExportData, byID.RequestType)
		assert.Equal(t, gdpr.StatusPending, byID.Status)

		byToken, err := store.FindByToken(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "req-1", byToken.ID)
	})

	t.Run("missing request returns sentinel", func(t *testing.T) {
		_, err := store.FindByID(ctx, "nope")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		_, err = store.FindByToken(ctx, "nope")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("duplicate token conflicts", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		require.NoError(t, store.Save(ctx, newRequest("req-1", "tok-1")))
		assert.ErrorIs(t, store.Save(ctx, newRequest("req-2", "tok-1")), sentinel.ErrConflict)
	})

	t.Run("update persists lifecycle transitions", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		require.NoError(t, store.Save(ctx, newRequest("req-1", "tok-1")))

		r, err := store.FindByID(ctx, "req-1")
		require.NoError(t, err)
		now := time.Now().UTC()
		r.Status = gdpr.StatusFailed
		r.VerifiedAt = &now
		r.ProcessedAt = &now
		r.FailureReason = "story not found"
		require.NoError(t, store.Update(ctx, r))

		got, err := store.FindByID(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, gdpr.StatusFailed, got.Status)
		assert.Equal(t, "story not found", got.FailureReason)
		require.NotNil(t, got.VerifiedAt)
		require.NotNil(t, got.ProcessedAt)
	})

	t.Run("update missing returns sentinel", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		assert.ErrorIs(t, store.Update(ctx, newRequest("ghost", "tok-ghost")), sentinel.ErrNotFound)
	})
}
