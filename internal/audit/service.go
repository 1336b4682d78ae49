package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"storyledger/internal/platform/metrics"
	domainerrors "storyledger/pkg/domain-errors"
)

// StreamPublisher fans entries out to external consumers. Implementations
// must not block; a full buffer drops the entry.
type StreamPublisher interface {
	Publish(e Entry)
}

// Log records and queries the audit trail. Record never reports failure to
// its caller: the state change it follows is already committed, and a lost
// entry must not fail or roll back the operation it describes.
type Log struct {
	store   Store
	stream  StreamPublisher
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewLog(store Store, stream StreamPublisher, log *slog.Logger, m *metrics.Metrics) *Log {
	return &Log{store: store, stream: stream, log: log, metrics: m}
}

// Record validates and appends one entry. Invalid or failed writes are
// logged and counted, never surfaced; callers cannot branch on the outcome.
func (l *Log) Record(ctx context.Context, e Entry) {
	if e.ChangeSummary == "" {
		l.dropped(e, "change summary required")
		return
	}
	if e.ActorID == "" && e.ActorType != ActorSystem {
		l.dropped(e, "non-system entry without actor")
		return
	}
	if e.ActorType == "" {
		e.ActorType = ActorUser
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Category == "" {
		e.Category = CategoryFor(e.Action)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	if err := l.store.Append(ctx, e); err != nil {
		l.metrics.AuditWriteFailures.Inc()
		l.log.ErrorContext(ctx, "audit write failed",
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"error", err,
		)
		return
	}
	if l.stream != nil {
		l.stream.Publish(e)
	}
}

func (l *Log) dropped(e Entry, reason string) {
	l.metrics.AuditWriteFailures.Inc()
	l.log.Error("audit entry rejected",
		"reason", reason,
		"action", e.Action,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
	)
}

// History returns an entity's entries, newest first.
func (l *Log) History(ctx context.Context, entityType, entityID string, f HistoryFilter) ([]Entry, error) {
	entries, err := l.store.ListByEntity(ctx, entityType, entityID, f)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "audit history query failed")
	}
	return entries, nil
}

// UserActivity returns everything a user did across all entities, for
// subject-access requests.
func (l *Log) UserActivity(ctx context.Context, actorID string, f ActivityFilter) ([]Entry, error) {
	entries, err := l.store.ListByActor(ctx, actorID, f)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "audit activity query failed")
	}
	return entries, nil
}

// Search runs a tenant-scoped filtered query over the log.
func (l *Log) Search(ctx context.Context, tenantID string, f SearchFilter) (SearchResult, error) {
	res, err := l.store.Search(ctx, tenantID, f)
	if err != nil {
		return SearchResult{}, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "audit search failed")
	}
	return res, nil
}

// reportPageSize bounds each read while a report drains an entity's history.
const reportPageSize = 200

// ExportReport builds a compliance report for one entity. It is derived
// entirely from the History read path, so the report can never disagree with
// what a direct history query returns.
func (l *Log) ExportReport(ctx context.Context, entityType, entityID string) (*Report, error) {
	var all []Entry
	for offset := 0; ; offset += reportPageSize {
		page, err := l.History(ctx, entityType, entityID, HistoryFilter{
			Limit:  reportPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < reportPageSize {
			break
		}
	}

	stats := ReportStatistics{
		ByCategory: make(map[Category]int),
		ByAction:   make(map[Action]int),
	}
	for _, e := range all {
		stats.ByCategory[e.Category]++
		stats.ByAction[e.Action]++
	}

	return &Report{
		EntityType:   entityType,
		EntityID:     entityID,
		GeneratedAt:  time.Now(),
		TotalActions: len(all),
		Actions:      all,
		Statistics:   stats,
	}, nil
}
