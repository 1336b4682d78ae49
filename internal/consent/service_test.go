package consent_test

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
	"storyledger/internal/notification"
	"storyledger/internal/platform/metrics"
	"storyledger/internal/story"
	domainerrors "storyledger/pkg/domain-errors"
	"storyledger/pkg/testutil"
)

type fixture struct {
	ledger  *consent.Ledger
	stories *story.MemoryStore
	audit   *audit.MemoryStore
	log     *audit.Log
	notify  *notification.Noop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stories := story.NewMemoryStore()
	auditStore := audit.NewMemoryStore()
	m := metrics.NewWith(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog := audit.NewLog(auditStore, nil, logger, m)
	notify := notification.NewNoop()
	return &fixture{
		ledger:  consent.NewLedger(stories, stories, auditLog, notify, logger, m),
		stories: stories,
		audit:   auditStore,
		log:     auditLog,
		notify:  notify,
	}
}

func (f *fixture) seedStory(t *testing.T) *story.Story {
	t.Helper()
	st := &story.Story{
		ID:            "story-1",
		TenantID:      "tenant-1",
		Title:         "The River Crossing",
		StorytellerID: "teller-1",
		AuthorID:      "author-1",
		Status:        story.StatusDraft,
	}
	require.NoError(t, f.stories.Save(context.Background(), st))
	return st
}

var (
	teller   = consent.Actor{ID: "teller-1", TenantID: "tenant-1", Role: consent.RoleStoryteller}
	author   = consent.Actor{ID: "author-1", TenantID: "tenant-1", Role: consent.RoleStoryteller}
	reviewer = consent.Actor{ID: "reviewer-1", TenantID: "tenant-1", Role: consent.RoleReviewer}
	stranger = consent.Actor{ID: "stranger-1", TenantID: "tenant-1", Role: consent.RoleStoryteller}
)

func grant(method consent.Method) consent.GrantInput {
	in := consent.GrantInput{
		StoryID: "story-1",
		Method:  method,
		Details: consent.Details{
			Purpose: "community archive",
			Scope:   []string{"public_site"},
		},
	}
	if method == consent.MethodWitnessed {
		in.WitnessID = "witness-1"
		in.WitnessName = "Hine Witness"
	}
	return in
}

func withdrawal(scope consent.WithdrawalScope, reason string) consent.WithdrawInput {
	in := consent.WithdrawInput{StoryID: "story-1", Scope: scope, Reason: reason}
	if scope == consent.ScopePartial {
		in.PartialRestrictions = []string{"no_social_media"}
	}
	return in
}

func (f *fixture) storyHistory(t *testing.T) []audit.Entry {
	t.Helper()
	entries, err := f.log.History(context.Background(), consent.EntityTypeStory, "story-1", audit.HistoryFilter{})
	require.NoError(t, err)
	return entries
}

func TestGrantDigitalSelfVerifies(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	record, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)

	assert.True(t, record.HasConsent)
	assert.True(t, record.HasExplicitConsent)
	assert.True(t, record.Verified)
	assert.Equal(t, consent.VerificationVerified, record.VerificationStatus)
	assert.Equal(t, teller.ID, record.VerifiedBy)
	require.NotNil(t, record.VerifiedAt)

	elig, err := f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.True(t, elig.CanDistribute)
}

func TestGrantWrittenStartsPending(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	record, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodWritten))
	require.NoError(t, err)

	assert.True(t, record.HasConsent)
	assert.False(t, record.Verified)
	assert.Equal(t, consent.VerificationPending, record.VerificationStatus)
	assert.Empty(t, record.VerifiedBy)

	elig, err := f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.True(t, elig.HasConsent)
	assert.False(t, elig.IsVerified)
	assert.False(t, elig.CanDistribute)
	assert.Equal(t, consent.ReasonPending, elig.Reason)
}

func TestGrantValidation(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	tests := []struct {
		name  string
		input consent.GrantInput
	}{
		{"unknown method", consent.GrantInput{StoryID: "story-1", Method: "telepathy", Details: consent.Details{Purpose: "x"}}},
		{"missing purpose", consent.GrantInput{StoryID: "story-1", Method: consent.MethodWritten}},
		{"whitespace purpose", consent.GrantInput{StoryID: "story-1", Method: consent.MethodWritten, Details: consent.Details{Purpose: "   \t "}}},
		{"witnessed without witness", consent.GrantInput{StoryID: "story-1", Method: consent.MethodWitnessed, Details: consent.Details{Purpose: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.GrantConsent(context.Background(), teller, tt.input)
			assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
		})
	}

	assert.Empty(t, f.storyHistory(t), "failed grants must not leave audit entries")
}

func TestGrantUnknownStoryIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodWritten))
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeNotFound))
}

func TestGrantCrossTenantLooksMissing(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	other := consent.Actor{ID: "teller-1", TenantID: "tenant-2", Role: consent.RoleStoryteller}
	_, err := f.ledger.GrantConsent(context.Background(), other, grant(consent.MethodWritten))
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeNotFound))
}

func TestGrantAfterWithdrawalConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)
	_, err = f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopeFull, "changed my mind"))
	require.NoError(t, err)

	_, err = f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))
}

func TestGrantDispatchesConfirmation(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	actor := teller
	actor.Email = "teller@example.com"
	_, err := f.ledger.GrantConsent(context.Background(), actor, grant(consent.MethodWritten))
	require.NoError(t, err)

	sent := f.notify.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notification.TemplateConsentGranted, sent[0].Template)
	assert.Equal(t, "teller@example.com", sent[0].Recipient.Email)

	// The dispatch itself lands in the trail as a system entry.
	entries := f.storyHistory(t)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionEmailSent, entries[0].Action)
	assert.Equal(t, audit.ActorSystem, entries[0].ActorType)
	assert.Equal(t, audit.ActionConsentGrant, entries[1].Action)
}

func TestWithdrawFullClearsEverything(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)

	w, err := f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopeFull, "family request"))
	require.NoError(t, err)
	assert.Equal(t, consent.ScopeFull, w.Scope)

	st, err := f.stories.FindByID(context.Background(), "story-1")
	require.NoError(t, err)
	assert.False(t, st.HasConsent)
	assert.False(t, st.HasExplicitConsent)
	assert.False(t, st.ConsentVerified)
	assert.Equal(t, story.StatusConsentWithdrawn, st.Status)
	assert.False(t, st.SharingEnabled)
	assert.False(t, st.EmbedsEnabled)
	require.NotNil(t, st.ConsentWithdrawnAt)
	assert.Equal(t, "family request", st.WithdrawalReason)

	elig, err := f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.False(t, elig.CanDistribute)
	assert.Equal(t, consent.ReasonWithdrawn, elig.Reason)
}

func TestWithdrawByAuthorAllowed(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)

	_, err = f.ledger.WithdrawConsent(context.Background(), author, withdrawal(consent.ScopeFull, "author decision"))
	assert.NoError(t, err)
}

func TestWithdrawValidation(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.WithdrawConsent(context.Background(), teller, consent.WithdrawInput{
		StoryID: "story-1", Scope: consent.ScopeFull,
	})
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation), "reason is required")

	_, err = f.ledger.WithdrawConsent(context.Background(), teller, consent.WithdrawInput{
		StoryID: "story-1", Scope: consent.ScopeFull, Reason: "   \t  ",
	})
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation), "whitespace-only reason is blank")

	_, err = f.ledger.WithdrawConsent(context.Background(), teller, consent.WithdrawInput{
		StoryID: "story-1", Scope: consent.ScopePartial, Reason: "too broad",
	})
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation), "partial needs restrictions")

	_, err = f.ledger.WithdrawConsent(context.Background(), teller, consent.WithdrawInput{
		StoryID: "story-1", Scope: "most", Reason: "x",
	})
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation), "scope must be full or partial")
}

func TestWithdrawByStrangerForbiddenAndTraceless(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)
	before := f.storyHistory(t)

	_, err = f.ledger.WithdrawConsent(context.Background(), stranger, withdrawal(consent.ScopeFull, "not mine to take"))
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeForbidden))

	st, err := f.stories.FindByID(context.Background(), "story-1")
	require.NoError(t, err)
	assert.True(t, st.HasConsent, "state must be untouched")
	assert.Equal(t, len(before), len(f.storyHistory(t)), "forbidden attempts leave no audit entry")
	assert.Empty(t, f.notify.Sent())
}

func TestWithdrawFullTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)
	_, err = f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopeFull, "family request"))
	require.NoError(t, err)
	before := f.storyHistory(t)

	w, err := f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopeFull, "again"))
	require.NoError(t, err)
	assert.Equal(t, "family request", w.Reason, "original withdrawal stands")
	assert.Equal(t, len(before), len(f.storyHistory(t)), "repeat withdrawal adds no entry")
}

func TestPartialAfterFullWithdrawalConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)
	_, err = f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopeFull, "family request"))
	require.NoError(t, err)

	_, err = f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopePartial, "only some platforms"))
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))
}

func TestPartialWithdrawalKeepsConsent(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)

	in := withdrawal(consent.ScopePartial, "no social media please")
	_, err = f.ledger.WithdrawConsent(context.Background(), teller, in)
	require.NoError(t, err)

	st, err := f.stories.FindByID(context.Background(), "story-1")
	require.NoError(t, err)
	assert.True(t, st.HasConsent)
	assert.False(t, st.Withdrawn())
	assert.Equal(t, []string{"no_social_media"}, st.PartialRestrictions)

	// A second partial with an overlapping restriction does not duplicate it.
	in.PartialRestrictions = []string{"no_social_media", "no_embeds"}
	_, err = f.ledger.WithdrawConsent(context.Background(), teller, in)
	require.NoError(t, err)
	st, err = f.stories.FindByID(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"no_social_media", "no_embeds"}, st.PartialRestrictions)

	elig, err := f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.True(t, elig.CanDistribute, "partial withdrawal does not gate distribution outright")
}

func TestVerifyApprovesPendingConsent(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodWritten))
	require.NoError(t, err)

	record, err := f.ledger.VerifyConsent(context.Background(), reviewer, "story-1", true, "documents checked")
	require.NoError(t, err)
	assert.True(t, record.Verified)
	assert.Equal(t, consent.VerificationVerified, record.VerificationStatus)
	assert.Equal(t, reviewer.ID, record.VerifiedBy)

	elig, err := f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.True(t, elig.CanDistribute)
}

func TestVerifyRejection(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodWritten))
	require.NoError(t, err)

	record, err := f.ledger.VerifyConsent(context.Background(), reviewer, "story-1", false, "signature mismatch")
	require.NoError(t, err)
	assert.False(t, record.Verified)
	assert.Equal(t, consent.VerificationRejected, record.VerificationStatus)

	elig, err := f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.False(t, elig.CanDistribute)
	assert.Equal(t, consent.ReasonPending, elig.Reason)
}

func TestVerifyRequiresReviewerRole(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodWritten))
	require.NoError(t, err)
	before := f.storyHistory(t)

	_, err = f.ledger.VerifyConsent(context.Background(), teller, "story-1", true, "")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeForbidden))
	assert.Equal(t, len(before), len(f.storyHistory(t)))

	admin := consent.Actor{ID: "admin-1", TenantID: "tenant-1", Role: consent.RoleAdmin}
	_, err = f.ledger.VerifyConsent(context.Background(), admin, "story-1", true, "")
	assert.NoError(t, err, "admins may verify")
}

func TestVerifyAfterWithdrawalConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodWritten))
	require.NoError(t, err)
	_, err = f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopeFull, "family request"))
	require.NoError(t, err)

	_, err = f.ledger.VerifyConsent(context.Background(), reviewer, "story-1", true, "")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict), "withdrawal wins over verification")
}

func TestVerifyAlreadyDecidedConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodWritten))
	require.NoError(t, err)
	_, err = f.ledger.VerifyConsent(context.Background(), reviewer, "story-1", true, "")
	require.NoError(t, err)

	_, err = f.ledger.VerifyConsent(context.Background(), reviewer, "story-1", false, "second thoughts")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))
}

func TestVerifyWithoutConsentConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.VerifyConsent(context.Background(), reviewer, "story-1", true, "")
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))
}

func TestEligibilityDecisionTable(t *testing.T) {
	f := newFixture(t)

	elig, err := f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, consent.Eligibility{Reason: consent.ReasonNotFound}, elig)

	f.seedStory(t)
	elig, err = f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, consent.Eligibility{Reason: consent.ReasonNoConsent}, elig)

	_, err = f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodWritten))
	require.NoError(t, err)
	elig, err = f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, consent.Eligibility{HasConsent: true, Reason: consent.ReasonPending}, elig)

	_, err = f.ledger.VerifyConsent(context.Background(), reviewer, "story-1", true, "")
	require.NoError(t, err)
	elig, err = f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, consent.Eligibility{HasConsent: true, IsVerified: true, CanDistribute: true}, elig)

	_, err = f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopeFull, "family request"))
	require.NoError(t, err)
	elig, err = f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, consent.Eligibility{Reason: consent.ReasonWithdrawn}, elig)
}

func TestEligibilityWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	for i := 0; i < 5; i++ {
		_, err := f.ledger.CheckDistributionEligibility(context.Background(), "story-1")
		require.NoError(t, err)
	}

	assert.Empty(t, f.storyHistory(t))
	st, err := f.stories.FindByID(context.Background(), "story-1")
	require.NoError(t, err)
	assert.False(t, st.HasConsent)
}

func TestGrantVerifyWithdrawLeavesThreeEntries(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	testutil.Given(t, "a story with written consent", func(t *testing.T) {
		_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodWritten))
		require.NoError(t, err)
	})
	testutil.When(t, "a reviewer verifies and the storyteller withdraws", func(t *testing.T) {
		_, err := f.ledger.VerifyConsent(context.Background(), reviewer, "story-1", true, "")
		require.NoError(t, err)
		_, err = f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopeFull, "family request"))
		require.NoError(t, err)
	})
	testutil.Then(t, "the trail holds exactly three entries, newest first", func(t *testing.T) {
		entries, err := f.ledger.GetConsentHistory(context.Background(), "story-1", 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, audit.ActionConsentWithdraw, entries[0].Action)
		assert.Equal(t, audit.ActionConsentVerify, entries[1].Action)
		assert.Equal(t, audit.ActionConsentGrant, entries[2].Action)
		assert.Equal(t,
			[]audit.Category{audit.CategoryGDPR, audit.CategoryConsent, audit.CategoryConsent},
			[]audit.Category{entries[0].Category, entries[1].Category, entries[2].Category})
	})
}

func TestSearchFindsWithdrawalReason(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)
	_, err = f.ledger.WithdrawConsent(context.Background(), teller, withdrawal(consent.ScopeFull, "whanau asked for privacy"))
	require.NoError(t, err)

	result, err := f.log.Search(context.Background(), "tenant-1", audit.SearchFilter{
		Action: audit.ActionConsentWithdraw,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Contains(t, result.Entries[0].ChangeSummary, "whanau asked for privacy")
}

func TestExportConsentRecords(t *testing.T) {
	f := newFixture(t)
	f.seedStory(t)
	second := &story.Story{
		ID:            "story-2",
		TenantID:      "tenant-1",
		Title:         "The Long Summer",
		StorytellerID: "teller-1",
		AuthorID:      "author-2",
		Status:        story.StatusDraft,
	}
	require.NoError(t, f.stories.Save(context.Background(), second))

	_, err := f.ledger.GrantConsent(context.Background(), teller, grant(consent.MethodDigital))
	require.NoError(t, err)

	exports, err := f.ledger.ExportConsentRecords(context.Background(), "tenant-1", "teller-1")
	require.NoError(t, err)
	require.Len(t, exports, 2)

	byID := map[string]consent.StoryExport{}
	for _, e := range exports {
		byID[e.Record.StoryID] = e
	}
	assert.True(t, byID["story-1"].Record.HasConsent)
	assert.Len(t, byID["story-1"].History, 1)
	assert.False(t, byID["story-2"].Record.HasConsent)
	assert.Empty(t, byID["story-2"].History)
}
