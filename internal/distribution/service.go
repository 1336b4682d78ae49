package distribution

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyledger/internal/audit"
	"storyledger/internal/consent"
	"storyledger/internal/notification"
	domainerrors "storyledger/pkg/domain-errors"
	"storyledger/pkg/platform/sentinel"
)

// Service creates and revokes distribution records. Every create passes
// through the gate; a story that fails the eligibility check cannot be
// distributed by any path.
type Service struct {
	gate   *Gate
	store  Store
	audit  *audit.Log
	notify notification.Dispatcher
	log    *slog.Logger
}

func NewService(gate *Gate, store Store, auditLog *audit.Log, notify notification.Dispatcher, log *slog.Logger) *Service {
	return &Service{gate: gate, store: store, audit: auditLog, notify: notify, log: log}
}

// Create records a new distribution after the gate approves it.
func (s *Service) Create(ctx context.Context, actor consent.Actor, storyID string, platform Platform, url string) (*Distribution, error) {
	if !platform.Valid() {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown platform %q", platform)
	}
	if actor.ID == "" {
		return nil, domainerrors.New(domainerrors.CodeForbidden, "authentication required")
	}

	elig, err := s.gate.Check(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !elig.CanDistribute {
		if elig.Reason == consent.ReasonNotFound {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "story not found")
		}
		return nil, domainerrors.Newf(domainerrors.CodeForbidden, "story is not eligible for distribution: %s", elig.Reason)
	}

	d := &Distribution{
		ID:        uuid.NewString(),
		TenantID:  actor.TenantID,
		StoryID:   storyID,
		Platform:  platform,
		Status:    StatusActive,
		URL:       url,
		CreatedBy: actor.ID,
		CreatedAt: time.Now(),
	}
	if err := s.store.Save(ctx, d); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store distribution")
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID:      actor.TenantID,
		EntityType:    consent.EntityTypeStory,
		EntityID:      storyID,
		Action:        audit.ActionDistributionCreated,
		ActorID:       actor.ID,
		ActorType:     audit.ActorUser,
		NewState:      audit.DistributionCreatedState{Platform: string(platform), URL: url},
		ChangeSummary: "Story distributed to " + string(platform),
	})
	s.dispatch(ctx, actor, notification.TemplateStoryShared, storyID, map[string]string{
		"platform": string(platform),
	})

	return d, nil
}

// ListByStory returns a story's distribution records, newest first.
func (s *Service) ListByStory(ctx context.Context, storyID string) ([]*Distribution, error) {
	out, err := s.store.ListByStory(ctx, storyID)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "list distributions")
	}
	return out, nil
}

// Revoke pulls back one distribution. Revoking an already-revoked record
// conflicts so callers notice double submissions.
func (s *Service) Revoke(ctx context.Context, actor consent.Actor, storyID, distributionID, reason string) (*Distribution, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "revocation reason is required")
	}

	d, err := s.store.FindByID(ctx, distributionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "distribution not found")
	}
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "distribution lookup failed")
	}
	if d.StoryID != storyID {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "distribution not found")
	}
	if d.Status == StatusRevoked {
		return nil, domainerrors.New(domainerrors.CodeConflict, "distribution already revoked")
	}

	s.markRevoked(d, actor.ID, reason)
	if err := s.store.Update(ctx, d); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store distribution revocation")
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID:   actor.TenantID,
		EntityType: consent.EntityTypeStory,
		EntityID:   storyID,
		Action:     audit.ActionDistributionRevoked,
		ActorID:    actor.ID,
		ActorType:  actorType(actor),
		NewState: audit.DistributionRevokedState{
			Platform: string(d.Platform),
			Reason:   reason,
			Revoked:  1,
		},
		ChangeSummary: "Distribution to " + string(d.Platform) + " revoked: " + reason,
	})
	s.dispatch(ctx, actor, notification.TemplateDistributionRevoked, storyID, map[string]string{
		"reason": reason,
	})

	return d, nil
}

// RevokeAll pulls back every active distribution of a story. The consent
// withdrawal cascade calls this with a system actor. Returns how many records
// were revoked; zero is not an error.
func (s *Service) RevokeAll(ctx context.Context, actor consent.Actor, storyID, reason string) (int, error) {
	if strings.TrimSpace(reason) == "" {
		return 0, domainerrors.New(domainerrors.CodeValidation, "revocation reason is required")
	}

	all, err := s.store.ListByStory(ctx, storyID)
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "list distributions")
	}

	revoked := 0
	for _, d := range all {
		if d.Status != StatusActive && d.Status != StatusPending {
			continue
		}
		s.markRevoked(d, actor.ID, reason)
		if err := s.store.Update(ctx, d); err != nil {
			return revoked, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store distribution revocation")
		}
		revoked++
	}
	if revoked == 0 {
		return 0, nil
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID:   actor.TenantID,
		EntityType: consent.EntityTypeStory,
		EntityID:   storyID,
		Action:     audit.ActionDistributionRevoked,
		ActorID:    actor.ID,
		ActorType:  actorType(actor),
		NewState: audit.DistributionRevokedState{
			Reason:  reason,
			Revoked: revoked,
		},
		ChangeSummary: "All distributions revoked: " + reason,
	})
	s.dispatch(ctx, actor, notification.TemplateDistributionRevoked, storyID, map[string]string{
		"reason": reason,
	})

	return revoked, nil
}

func (s *Service) markRevoked(d *Distribution, actorID, reason string) {
	now := time.Now()
	d.Status = StatusRevoked
	d.RevokedAt = &now
	d.RevokedBy = actorID
	d.RevokeReason = reason
}

func (s *Service) dispatch(ctx context.Context, actor consent.Actor, template notification.TemplateType, storyID string, data map[string]string) {
	if actor.Email == "" {
		return
	}
	res := s.notify.Dispatch(ctx, notification.Request{
		Template:  template,
		Recipient: notification.Recipient{Email: actor.Email, Name: actor.Name},
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
	s.audit.Record(ctx, audit.Entry{
		TenantID:      actor.TenantID,
		EntityType:    consent.EntityTypeStory,
		EntityID:      storyID,
		Action:        audit.ActionEmailSent,
		ActorType:     audit.ActorSystem,
		NewState:      state,
		ChangeSummary: "Notification " + string(template) + " dispatched to " + actor.Email,
	})
}

func actorType(actor consent.Actor) audit.ActorType {
	if actor.Role == consent.RoleSystem {
		return audit.ActorSystem
	}
	return audit.ActorUser
}
