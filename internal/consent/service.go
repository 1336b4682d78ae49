package consent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storyledger/internal/audit"
	"storyledger/internal/notification"
	"storyledger/internal/platform/metrics"
	"storyledger/internal/story"
	domainerrors "storyledger/pkg/domain-errors"
	"storyledger/pkg/email"
	"storyledger/pkg/platform/sentinel"
)

// EntityTypeStory is the audit entity type for story consent events.
const EntityTypeStory = "story"

// Ledger owns all consent state transitions for stories. State changes commit
// inside the story store's transaction boundary; audit entries and
// notifications run after commit and are best-effort.
type Ledger struct {
	stories story.Store
	tx      story.TxRunner
	audit   *audit.Log
	notify  notification.Dispatcher
	log     *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewLedger(
	stories story.Store,
	tx story.TxRunner,
	auditLog *audit.Log,
	notify notification.Dispatcher,
	log *slog.Logger,
	m *metrics.Metrics,
) *Ledger {
	return &Ledger{
		stories: stories,
		tx:      tx,
		audit:   auditLog,
		notify:  notify,
		log:     log,
		metrics: m,
		tracer:  otel.Tracer("storyledger/internal/consent"),
	}
}

// GrantConsent records consent for a story. A digital grant self-verifies;
// every other method starts pending review. Granting on a withdrawn story is
// a conflict: withdrawal is terminal.
func (l *Ledger) GrantConsent(ctx context.Context, actor Actor, in GrantInput) (*Record, error) {
	ctx, span := l.tracer.Start(ctx, "consent.grant",
		trace.WithAttributes(attribute.String("story.id", in.StoryID)))
	defer span.End()

	if !in.Method.Valid() {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown consent method %q", in.Method)
	}
	if strings.TrimSpace(in.Details.Purpose) == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "consent purpose is required")
	}
	if in.Method == MethodWitnessed && in.WitnessName == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "witnessed consent requires a witness name")
	}
	if err := authorize(opGrant, actor, nil); err != nil {
		return nil, err
	}

	now := time.Now()
	var updated *story.Story
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		st, err := l.findStory(ctx, in.StoryID, actor.TenantID)
		if err != nil {
			return err
		}
		if st.Withdrawn() {
			return domainerrors.New(domainerrors.CodeConflict, "consent has been withdrawn for this story")
		}

		st.HasConsent = true
		st.HasExplicitConsent = true
		st.ConsentMethod = string(in.Method)
		st.ConsentPurpose = in.Details.Purpose
		st.ConsentScope = in.Details.Scope
		st.ConsentRestrictions = in.Details.Restrictions
		st.WitnessID = in.WitnessID
		st.WitnessName = in.WitnessName
		if in.Method.SelfVerifies() {
			st.ConsentVerified = true
			st.VerificationStatus = VerificationVerified
			st.VerifiedBy = actor.ID
			st.VerifiedAt = &now
		} else {
			st.ConsentVerified = false
			st.VerificationStatus = VerificationPending
			st.VerifiedBy = ""
			st.VerifiedAt = nil
		}

		if err := l.stories.Update(ctx, st); err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store consent grant")
		}
		updated = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.ConsentGrants.Inc()
	l.audit.Record(ctx, audit.Entry{
		TenantID:   actor.TenantID,
		EntityType: EntityTypeStory,
		EntityID:   updated.ID,
		Action:     audit.ActionConsentGrant,
		ActorID:    actor.ID,
		ActorType:  audit.ActorUser,
		NewState: audit.ConsentGrantedState{
			Method:             string(in.Method),
			Purpose:            in.Details.Purpose,
			Scope:              in.Details.Scope,
			Restrictions:       in.Details.Restrictions,
			VerificationStatus: updated.VerificationStatus,
			WitnessID:          in.WitnessID,
			WitnessName:        in.WitnessName,
		},
		ChangeSummary: "Consent granted via " + string(in.Method) + " method for purpose: " + in.Details.Purpose,
	})
	l.dispatch(ctx, actor, notification.TemplateConsentGranted, updated, map[string]string{
		"story_title": updated.Title,
	})

	return recordFromStory(updated), nil
}

// WithdrawConsent removes consent, fully or partially. Only the storyteller
// or author may withdraw. A repeated full withdrawal is a no-op; any other
// operation on a withdrawn story conflicts.
func (l *Ledger) WithdrawConsent(ctx context.Context, actor Actor, in WithdrawInput) (*Withdrawal, error) {
	ctx, span := l.tracer.Start(ctx, "consent.withdraw",
		trace.WithAttributes(
			attribute.String("story.id", in.StoryID),
			attribute.String("withdrawal.scope", string(in.Scope)),
		))
	defer span.End()

	if !in.Scope.Valid() {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown withdrawal scope %q", in.Scope)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "withdrawal reason is required")
	}
	if in.Scope == ScopePartial && len(in.PartialRestrictions) == 0 {
		return nil, domainerrors.New(domainerrors.CodeValidation, "partial withdrawal requires at least one restriction")
	}

	now := time.Now()
	var (
		updated  *story.Story
		repeated bool
	)
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		st, err := l.findStory(ctx, in.StoryID, actor.TenantID)
		if err != nil {
			return err
		}
		if err := authorize(opWithdraw, actor, st); err != nil {
			return err
		}
		if st.Withdrawn() {
			if in.Scope == ScopeFull {
				// Already withdrawn; repeating the request changes nothing.
				updated, repeated = st, true
				return nil
			}
			return domainerrors.New(domainerrors.CodeConflict, "consent has been withdrawn for this story")
		}

		switch in.Scope {
		case ScopeFull:
			st.HasConsent = false
			st.HasExplicitConsent = false
			st.ConsentVerified = false
			st.Status = story.StatusConsentWithdrawn
			st.ConsentWithdrawnAt = &now
			st.WithdrawalReason = in.Reason
			st.SharingEnabled = false
			st.EmbedsEnabled = false
		case ScopePartial:
			st.PartialRestrictions = mergeRestrictions(st.PartialRestrictions, in.PartialRestrictions)
		}

		if err := l.stories.Update(ctx, st); err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store consent withdrawal")
		}
		updated = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	w := &Withdrawal{
		StoryID:             updated.ID,
		Scope:               in.Scope,
		Reason:              in.Reason,
		PartialRestrictions: in.PartialRestrictions,
		WithdrawnAt:         now,
	}
	if repeated {
		if updated.ConsentWithdrawnAt != nil {
			w.WithdrawnAt = *updated.ConsentWithdrawnAt
		}
		w.Reason = updated.WithdrawalReason
		return w, nil
	}

	l.metrics.ConsentWithdrawals.WithLabelValues(string(in.Scope)).Inc()
	l.audit.Record(ctx, audit.Entry{
		TenantID:   actor.TenantID,
		EntityType: EntityTypeStory,
		EntityID:   updated.ID,
		Action:     audit.ActionConsentWithdraw,
		ActorID:    actor.ID,
		ActorType:  audit.ActorUser,
		NewState: audit.ConsentWithdrawnState{
			Scope:                string(in.Scope),
			Reason:               in.Reason,
			PartialRestrictions:  in.PartialRestrictions,
			EffectiveImmediately: true,
		},
		ChangeSummary: "Consent withdrawn (" + string(in.Scope) + "): " + in.Reason,
	})
	l.dispatch(ctx, actor, notification.TemplateConsentWithdrawal, updated, map[string]string{
		"story_title": updated.Title,
	})

	return w, nil
}

// VerifyConsent records a reviewer decision on a pending grant. Withdrawal
// always wins: verifying a withdrawn story conflicts no matter the decision.
func (l *Ledger) VerifyConsent(ctx context.Context, actor Actor, storyID string, approved bool, notes string) (*Record, error) {
	ctx, span := l.tracer.Start(ctx, "consent.verify",
		trace.WithAttributes(
			attribute.String("story.id", storyID),
			attribute.Bool("verify.approved", approved),
		))
	defer span.End()

	if err := authorize(opVerify, actor, nil); err != nil {
		return nil, err
	}

	now := time.Now()
	var updated *story.Story
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		st, err := l.findStory(ctx, storyID, actor.TenantID)
		if err != nil {
			return err
		}
		if st.Withdrawn() {
			return domainerrors.New(domainerrors.CodeConflict, "consent has been withdrawn for this story")
		}
		if !st.HasConsent {
			return domainerrors.New(domainerrors.CodeConflict, "no consent recorded for this story")
		}
		if st.VerificationStatus != VerificationPending {
			return domainerrors.Newf(domainerrors.CodeConflict, "consent verification already %s", st.VerificationStatus)
		}

		if approved {
			st.ConsentVerified = true
			st.VerificationStatus = VerificationVerified
			st.VerifiedBy = actor.ID
			st.VerifiedAt = &now
		} else {
			st.ConsentVerified = false
			st.VerificationStatus = VerificationRejected
			st.VerifiedBy = actor.ID
			st.VerifiedAt = &now
		}

		if err := l.stories.Update(ctx, st); err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store consent verification")
		}
		updated = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	l.metrics.ConsentVerifies.WithLabelValues(outcome).Inc()
	l.audit.Record(ctx, audit.Entry{
		TenantID:      actor.TenantID,
		EntityType:    EntityTypeStory,
		EntityID:      updated.ID,
		Action:        audit.ActionConsentVerify,
		ActorID:       actor.ID,
		ActorType:     audit.ActorUser,
		NewState:      audit.ConsentVerifiedState{Approved: approved, Notes: notes},
		ChangeSummary: "Consent verification " + outcome + " by reviewer",
	})

	return recordFromStory(updated), nil
}

// CheckDistributionEligibility answers whether a story may be distributed
// right now. It reads one row and writes nothing; callers may invoke it as
// often as they like.
func (l *Ledger) CheckDistributionEligibility(ctx context.Context, storyID string) (Eligibility, error) {
	st, err := l.stories.FindByID(ctx, storyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		l.metrics.EligibilityDenials.WithLabelValues(ReasonNotFound).Inc()
		return Eligibility{Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return Eligibility{}, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "eligibility lookup failed")
	}

	switch {
	case st.Withdrawn():
		l.metrics.EligibilityDenials.WithLabelValues(ReasonWithdrawn).Inc()
		return Eligibility{Reason: ReasonWithdrawn}, nil
	case !st.HasConsent:
		l.metrics.EligibilityDenials.WithLabelValues(ReasonNoConsent).Inc()
		return Eligibility{Reason: ReasonNoConsent}, nil
	case !st.ConsentVerified:
		l.metrics.EligibilityDenials.WithLabelValues(ReasonPending).Inc()
		return Eligibility{HasConsent: true, Reason: ReasonPending}, nil
	}
	return Eligibility{HasConsent: true, IsVerified: true, CanDistribute: true}, nil
}

// GetConsentHistory returns a story's consent and GDPR audit trail, newest
// first.
func (l *Ledger) GetConsentHistory(ctx context.Context, storyID string, limit, offset int) ([]audit.Entry, error) {
	return l.audit.History(ctx, EntityTypeStory, storyID, audit.HistoryFilter{
		Limit:      limit,
		Offset:     offset,
		Categories: []audit.Category{audit.CategoryConsent, audit.CategoryGDPR},
	})
}

// StoryExport pairs a story's current consent state with its consent trail.
type StoryExport struct {
	Record  *Record       `json:"record"`
	History []audit.Entry `json:"history"`
}

// ExportConsentRecords builds the consent portion of a subject-access export:
// every story the user tells or authored, with its full consent trail.
func (l *Ledger) ExportConsentRecords(ctx context.Context, tenantID, userID string) ([]StoryExport, error) {
	stories, err := l.stories.ListByOwner(ctx, tenantID, userID)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "list stories for export")
	}

	out := make([]StoryExport, 0, len(stories))
	for _, st := range stories {
		history, err := l.GetConsentHistory(ctx, st.ID, 0, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, StoryExport{Record: recordFromStory(st), History: history})
	}
	return out, nil
}

func (l *Ledger) findStory(ctx context.Context, storyID, tenantID string) (*story.Story, error) {
	st, err := l.stories.FindByID(ctx, storyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "story not found")
	}
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "story lookup failed")
	}
	// Cross-tenant reads look identical to missing stories.
	if tenantID != "" && st.TenantID != tenantID {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "story not found")
	}
	return st, nil
}

// dispatch sends a notification to the acting user and records the attempt
// as an email_sent audit entry. Failures never propagate.
func (l *Ledger) dispatch(ctx context.Context, actor Actor, template notification.TemplateType, st *story.Story, data map[string]string) {
	if actor.Email == "" {
		return
	}
	name := actor.Name
	if name == "" {
		first, _ := email.DeriveNameFromEmail(actor.Email)
		name = first
	}

	res := l.notify.Dispatch(ctx, notification.Request{
		Template:  template,
		Recipient: notification.Recipient{Email: actor.Email, Name: name},
		TenantID:  actor.TenantID,
		Data:      data,
	})

	state := audit.EmailSentState{
		Template:  string(template),
		Recipient: actor.Email,
		Success:   res.Success,
		Simulated: res.Simulated,
		MessageID: res.MessageID,
	}
	if res.Err != nil {
		state.Error = res.Err.Error()
	}
	l.audit.Record(ctx, audit.Entry{
		TenantID:      actor.TenantID,
		EntityType:    EntityTypeStory,
		EntityID:      st.ID,
		Action:        audit.ActionEmailSent,
		ActorType:     audit.ActorSystem,
		NewState:      state,
		ChangeSummary: "Notification " + string(template) + " dispatched to " + actor.Email,
	})
}

func recordFromStory(st *story.Story) *Record {
	return &Record{
		StoryID:             st.ID,
		StoryTitle:          st.Title,
		HasConsent:          st.HasConsent,
		HasExplicitConsent:  st.HasExplicitConsent,
		Method:              Method(st.ConsentMethod),
		Purpose:             st.ConsentPurpose,
		Scope:               st.ConsentScope,
		Restrictions:        st.ConsentRestrictions,
		VerificationStatus:  st.VerificationStatus,
		Verified:            st.ConsentVerified,
		VerifiedBy:          st.VerifiedBy,
		VerifiedAt:          st.VerifiedAt,
		WitnessID:           st.WitnessID,
		WitnessName:         st.WitnessName,
		PartialRestrictions: st.PartialRestrictions,
		WithdrawnAt:         st.ConsentWithdrawnAt,
		WithdrawalReason:    st.WithdrawalReason,
	}
}

func mergeRestrictions(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string{}, existing...)
	for _, r := range existing {
		seen[r] = true
	}
	for _, r := range added {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
