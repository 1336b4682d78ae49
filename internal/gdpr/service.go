package gdpr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"storyledger/internal/audit"
	"storyledger/internal/consent"
	"storyledger/internal/distribution"
	"storyledger/internal/notification"
	domainerrors "storyledger/pkg/domain-errors"
	"storyledger/pkg/platform/sentinel"
)

// Audit entity types owned by this package.
const (
	EntityTypeRequest = "deletion_request"
	EntityTypeUser    = "user"
)

// Service handles subject-access exports and deletion requests. Deletion is
// expressed through the consent ledger: a processed request withdraws consent
// and revokes distributions, leaving the audit trail intact.
type Service struct {
	ledger    *consent.Ledger
	dist      *distribution.Service
	audit     *audit.Log
	requests  RequestStore
	artifacts ArtifactStore
	notify    notification.Dispatcher
	log       *slog.Logger
	baseURL   string
	exportTTL time.Duration
}

func NewService(
	ledger *consent.Ledger,
	dist *distribution.Service,
	auditLog *audit.Log,
	requests RequestStore,
	artifacts ArtifactStore,
	notify notification.Dispatcher,
	log *slog.Logger,
	baseURL string,
	exportTTL time.Duration,
) *Service {
	return &Service{
		ledger:    ledger,
		dist:      dist,
		audit:     auditLog,
		requests:  requests,
		artifacts: artifacts,
		notify:    notify,
		log:       log,
		baseURL:   baseURL,
		exportTTL: exportTTL,
	}
}

// ExportUserData aggregates everything held about a user: their stories with
// consent trails, and everything they did. Read-only; the two halves load in
// parallel.
func (s *Service) ExportUserData(ctx context.Context, tenantID, userID string) (*DataExport, error) {
	export := &DataExport{
		UserID:      userID,
		TenantID:    tenantID,
		GeneratedAt: time.Now(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stories, err := s.ledger.ExportConsentRecords(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		export.Stories = stories
		return nil
	})
	g.Go(func() error {
		activity, err := s.audit.UserActivity(ctx, userID, audit.ActivityFilter{})
		if err != nil {
			return err
		}
		export.Activity = activity
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return export, nil
}

// BuildExportArtifact builds a user's export, stores it under an expiring
// download token and records the export in the audit log.
func (s *Service) BuildExportArtifact(ctx context.Context, actor consent.Actor) (*ExportArtifact, error) {
	export, err := s.ExportUserData(ctx, actor.TenantID, actor.ID)
	if err != nil {
		return nil, err
	}

	payload, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "encode export")
	}

	token := uuid.NewString()
	if err := s.artifacts.Put(ctx, token, payload, s.exportTTL); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store export artifact")
	}

	artifact := &ExportArtifact{
		DownloadToken: token,
		DownloadURL:   s.baseURL + "/v1/gdpr/exports/" + token,
		ExpiresAt:     time.Now().Add(s.exportTTL),
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID:   actor.TenantID,
		EntityType: EntityTypeUser,
		EntityID:   actor.ID,
		Action:     audit.ActionDataExported,
		ActorID:    actor.ID,
		ActorType:  audit.ActorUser,
		NewState: audit.DataExportedState{
			Stories:    len(export.Stories),
			Entries:    len(export.Activity),
			ExpirySecs: int(s.exportTTL.Seconds()),
		},
		ChangeSummary: "Data export generated for download",
	})

	return artifact, nil
}

// DownloadExport resolves a download token. Expired and unknown tokens look
// identical.
func (s *Service) DownloadExport(ctx context.Context, token string) ([]byte, error) {
	payload, err := s.artifacts.Get(ctx, token)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "export not found or expired")
	}
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "export lookup failed")
	}
	return payload, nil
}

// CreateRequest opens a deletion request. The subject must confirm via the
// verification token before the request can be processed.
func (s *Service) CreateRequest(ctx context.Context, actor consent.Actor, requestType RequestType, storyID string) (*DeletionRequest, error) {
	if !requestType.Valid() {
		return nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown request type %q", requestType)
	}
	if requestType == RequestAnonymizeStory && storyID == "" {
		return nil, domainerrors.New(domainerrors.CodeValidation, "story anonymization requires a story id")
	}
	if actor.ID == "" {
		return nil, domainerrors.New(domainerrors.CodeForbidden, "authentication required")
	}

	r := &DeletionRequest{
		ID:                uuid.NewString(),
		TenantID:          actor.TenantID,
		UserID:            actor.ID,
		Email:             actor.Email,
		RequestType:       requestType,
		StoryID:           storyID,
		Status:            StatusPending,
		VerificationToken: uuid.NewString(),
		CreatedAt:         time.Now(),
	}
	if err := s.requests.Save(ctx, r); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store deletion request")
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID:   actor.TenantID,
		EntityType: EntityTypeRequest,
		EntityID:   r.ID,
		Action:     audit.ActionDeletionRequestCreated,
		ActorID:    actor.ID,
		ActorType:  audit.ActorUser,
		NewState: audit.DeletionRequestState{
			RequestType: string(requestType),
			Status:      string(StatusPending),
		},
		ChangeSummary: "Deletion request created: " + string(requestType),
	})
	s.dispatch(ctx, r, notification.TemplateDeletionReceived)

	return r, nil
}

// VerifyRequest confirms a request via its emailed token. Verifying twice is
// a no-op.
func (s *Service) VerifyRequest(ctx context.Context, token string) (*DeletionRequest, error) {
	r, err := s.requests.FindByToken(ctx, token)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "deletion request not found")
	}
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "deletion request lookup failed")
	}
	if r.VerifiedAt != nil {
		return r, nil
	}

	now := time.Now()
	r.VerifiedAt = &now
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store request verification")
	}
	return r, nil
}

// GetRequest returns one request's current state.
func (s *Service) GetRequest(ctx context.Context, id string) (*DeletionRequest, error) {
	r, err := s.requests.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.New(domainerrors.CodeNotFound, "deletion request not found")
	}
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "deletion request lookup failed")
	}
	return r, nil
}

// ProcessRequest executes a verified request. export_data builds a download
// artifact; anonymize_story and delete_account withdraw consent and revoke
// distributions through the regular ledger paths so the cascade is audited
// like any other withdrawal.
func (s *Service) ProcessRequest(ctx context.Context, requestID string) (*DeletionRequest, error) {
	r, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, domainerrors.Newf(domainerrors.CodeConflict, "deletion request already %s", r.Status)
	}
	if r.VerifiedAt == nil {
		return nil, domainerrors.New(domainerrors.CodeConflict, "deletion request is not verified")
	}

	r.Status = StatusProcessing
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store request status")
	}

	subject := consent.Actor{
		ID:       r.UserID,
		TenantID: r.TenantID,
		Email:    r.Email,
		Role:     consent.RoleStoryteller,
	}

	var procErr error
	switch r.RequestType {
	case RequestExportData:
		procErr = s.processExport(ctx, r, subject)
	case RequestAnonymizeStory:
		procErr = s.anonymizeStory(ctx, subject, r.StoryID)
	case RequestDeleteAccount:
		procErr = s.deleteAccount(ctx, subject)
	}

	now := time.Now()
	if procErr != nil {
		r.Status = StatusFailed
		r.FailureReason = procErr.Error()
		r.ProcessedAt = &now
		if err := s.requests.Update(ctx, r); err != nil {
			s.log.ErrorContext(ctx, "failed to mark deletion request failed", "request_id", r.ID, "error", err)
		}
		return nil, procErr
	}

	r.Status = StatusCompleted
	r.ProcessedAt = &now
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "store request completion")
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID:   r.TenantID,
		EntityType: EntityTypeRequest,
		EntityID:   r.ID,
		Action:     audit.ActionDeletionRequestCompleted,
		ActorType:  audit.ActorSystem,
		NewState: audit.DeletionRequestState{
			RequestType: string(r.RequestType),
			Status:      string(StatusCompleted),
		},
		ChangeSummary: "Deletion request completed: " + string(r.RequestType),
	})
	s.dispatch(ctx, r, notification.TemplateDeletionCompleted)

	return r, nil
}

func (s *Service) processExport(ctx context.Context, r *DeletionRequest, subject consent.Actor) error {
	artifact, err := s.BuildExportArtifact(ctx, subject)
	if err != nil {
		return err
	}
	if r.Email == "" {
		return nil
	}
	s.notify.Dispatch(ctx, notification.Request{
		Template:  notification.TemplateDataExportReady,
		Recipient: notification.Recipient{Email: r.Email},
		TenantID:  r.TenantID,
		Data: map[string]string{
			"download_url": artifact.DownloadURL,
			"expires_at":   artifact.ExpiresAt.Format(time.RFC1123),
		},
	})
	return nil
}

func (s *Service) anonymizeStory(ctx context.Context, subject consent.Actor, storyID string) error {
	_, err := s.ledger.WithdrawConsent(ctx, subject, consent.WithdrawInput{
		StoryID: storyID,
		Scope:   consent.ScopeFull,
		Reason:  "Story anonymization requested",
	})
	if err != nil {
		return err
	}

	system := consent.Actor{ID: "system", TenantID: subject.TenantID, Role: consent.RoleSystem}
	if _, err := s.dist.RevokeAll(ctx, system, storyID, "Story anonymization requested"); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID:      subject.TenantID,
		EntityType:    consent.EntityTypeStory,
		EntityID:      storyID,
		Action:        audit.ActionStoryAnonymized,
		ActorType:     audit.ActorSystem,
		ChangeSummary: "Story anonymized after deletion request",
	})
	return nil
}

func (s *Service) deleteAccount(ctx context.Context, subject consent.Actor) error {
	stories, err := s.ledger.ExportConsentRecords(ctx, subject.TenantID, subject.ID)
	if err != nil {
		return err
	}
	for _, st := range stories {
		if st.Record.WithdrawnAt != nil {
			continue
		}
		if err := s.anonymizeStory(ctx, subject, st.Record.StoryID); err != nil {
			return err
		}
	}
	return nil
}

// dispatch sends a lifecycle notification for a request and records the
// attempt.
func (s *Service) dispatch(ctx context.Context, r *DeletionRequest, template notification.TemplateType) {
	if r.Email == "" {
		return
	}
	res := s.notify.Dispatch(ctx, notification.Request{
		Template:  template,
		Recipient: notification.Recipient{Email: r.Email},
		TenantID:  r.TenantID,
		Data: map[string]string{
			"request_type": string(r.RequestType),
		},
	})

	state := audit.EmailSentState{
		Template:  string(template),
		Recipient: r.Email,
		Success:   res.Success,
		Simulated: res.Simulated,
		MessageID: res.MessageID,
	}
	if res.Err != nil {
		state.Error = res.Err.Error()
	}
	s.audit.Record(ctx, audit.Entry{
		TenantID:      r.TenantID,
		EntityType:    EntityTypeRequest,
		EntityID:      r.ID,
		Action:        audit.ActionEmailSent,
		ActorType:     audit.ActorSystem,
		NewState:      state,
		ChangeSummary: "Notification " + string(template) + " dispatched to " + r.Email,
	})
}
