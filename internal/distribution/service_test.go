package distribution_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyledger/internal/audit"
	"storyledger/internal/consent"
	"storyledger/internal/distribution"
	"storyledger/internal/notification"
	"storyledger/internal/platform/metrics"
	domainerrors "storyledger/pkg/domain-errors"
)

// stubChecker stands in for the consent ledger.
type stubChecker struct {
	elig consent.Eligibility
}

func (s *stubChecker) CheckDistributionEligibility(context.Context, string) (consent.Eligibility, error) {
	return s.elig, nil
}

type fixture struct {
	svc     *distribution.Service
	checker *stubChecker
	store   *distribution.MemoryStore
	audit   *audit.MemoryStore
	log     *audit.Log
	notify  *notification.Noop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	checker := &stubChecker{elig: consent.Eligibility{HasConsent: true, IsVerified: true, CanDistribute: true}}
	store := distribution.NewMemoryStore()
	auditStore := audit.NewMemoryStore()
	m := metrics.NewWith(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog := audit.NewLog(auditStore, nil, logger, m)
	notify := notification.NewNoop()
	return &fixture{
		svc:     distribution.NewService(distribution.NewGate(checker), store, auditLog, notify, logger),
		checker: checker,
		store:   store,
		audit:   auditStore,
		log:     auditLog,
		notify:  notify,
	}
}

var publisher = consent.Actor{ID: "pub-1", TenantID: "tenant-1", Role: consent.RoleStoryteller}

func TestCreateRequiresEligibility(t *testing.T) {
	f := newFixture(t)
	f.checker.elig = consent.Eligibility{HasConsent: true, Reason: consent.ReasonPending}

	_, err := f.svc.Create(context.Background(), publisher, "story-1", distribution.PlatformEmbed, "")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeForbidden))

	records, err := f.svc.ListByStory(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Empty(t, records, "refused distributions leave no record")
}

func TestCreateMissingStoryIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.checker.elig = consent.Eligibility{Reason: consent.ReasonNotFound}

	_, err := f.svc.Create(context.Background(), publisher, "story-1", distribution.PlatformEmbed, "")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeNotFound))
}

func TestCreateRejectsUnknownPlatform(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), publisher, "story-1", "carrier_pigeon", "")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
}

func TestCreateRecordsAndAudits(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Create(context.Background(), publisher, "story-1", distribution.PlatformNewsletter, "https://news.example.com/42")
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusActive, d.Status)
	assert.Equal(t, publisher.ID, d.CreatedBy)

	entries, err := f.log.History(context.Background(), consent.EntityTypeStory, "story-1", audit.HistoryFilter{
		Actions: []audit.Action{audit.ActionDistributionCreated},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.CategoryDistribution, entries[0].Category)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Create(context.Background(), publisher, "story-1", distribution.PlatformEmbed, "")
	require.NoError(t, err)

	revoked, err := f.svc.Revoke(context.Background(), publisher, "story-1", d.ID, "storyteller asked")
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusRevoked, revoked.Status)
	assert.Equal(t, "storyteller asked", revoked.RevokeReason)
	require.NotNil(t, revoked.RevokedAt)

	_, err = f.svc.Revoke(context.Background(), publisher, "story-1", d.ID, "again")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))

	entries, err := f.log.History(context.Background(), consent.EntityTypeStory, "story-1", audit.HistoryFilter{
		Actions: []audit.Action{audit.ActionDistributionRevoked},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.CategoryRevocation, entries[0].Category)
}

func TestRevokeRequiresReason(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Revoke(context.Background(), publisher, "story-1", "dist-1", "")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))

	_, err = f.svc.Revoke(context.Background(), publisher, "story-1", "dist-1", "  \t ")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation), "whitespace-only reason is blank")

	_, err = f.svc.RevokeAll(context.Background(), publisher, "story-1", "   ")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
}

func TestRevokeWrongStoryIsNotFound(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Create(context.Background(), publisher, "story-1", distribution.PlatformEmbed, "")
	require.NoError(t, err)

	_, err = f.svc.Revoke(context.Background(), publisher, "story-2", d.ID, "wrong story")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeNotFound))
}

func TestRevokeAllCascade(t *testing.T) {
	f := newFixture(t)

	for _, p := range []distribution.Platform{distribution.PlatformEmbed, distribution.PlatformTwitter, distribution.PlatformRSS} {
		_, err := f.svc.Create(context.Background(), publisher, "story-1", p, "")
		require.NoError(t, err)
	}
	d, err := f.svc.Create(context.Background(), publisher, "story-1", distribution.PlatformBlog, "")
	require.NoError(t, err)
	_, err = f.svc.Revoke(context.Background(), publisher, "story-1", d.ID, "early pull")
	require.NoError(t, err)

	system := consent.Actor{ID: "system", TenantID: "tenant-1", Role: consent.RoleSystem}
	revoked, err := f.svc.RevokeAll(context.Background(), system, "story-1", "consent withdrawn")
	require.NoError(t, err)
	assert.Equal(t, 3, revoked, "already-revoked records are skipped")

	records, err := f.svc.ListByStory(context.Background(), "story-1")
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, distribution.StatusRevoked, r.Status)
	}

	entries, err := f.log.History(context.Background(), consent.EntityTypeStory, "story-1", audit.HistoryFilter{
		Actions: []audit.Action{audit.ActionDistributionRevoked},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2, "one entry for the single revoke, one for the cascade")
	assert.Equal(t, audit.ActorSystem, entries[0].ActorType)
}

func TestRevokeAllWithNothingActive(t *testing.T) {
	f := newFixture(t)

	revoked, err := f.svc.RevokeAll(context.Background(), publisher, "story-1", "nothing out there")
	require.NoError(t, err)
	assert.Zero(t, revoked)
	assert.Empty(t, f.notify.Sent())
}
