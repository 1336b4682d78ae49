package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	txcontext "storyledger/pkg/platform/tx"
)

// PostgresStore persists entries in the audit_logs table. NewState is stored
// as JSONB; reads hand it back as json.RawMessage since snapshots are opaque
// once written.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const entryColumns = `
	id, tenant_id, entity_type, entity_id, action, action_category,
	actor_id, actor_type, new_state, change_summary, created_at`

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	var state any
	if e.NewState != nil {
		raw, err := json.Marshal(e.NewState)
		if err != nil {
			return fmt.Errorf("marshal new_state: %w", err)
		}
		state = raw
	}

	query := `
		INSERT INTO audit_logs (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		e.ID, e.TenantID, e.EntityType, e.EntityID, e.Action, e.Category,
		nullIfEmpty(e.ActorID), e.ActorType, state, e.ChangeSummary, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entityType, entityID string, f HistoryFilter) ([]Entry, error) {
	where := []string{"entity_type = $1", "entity_id = $2"}
	args := []any{entityType, entityID}

	if len(f.Actions) > 0 {
		placeholders := make([]string, 0, len(f.Actions))
		for _, a := range f.Actions {
			args = append(args, a)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		where = append(where, fmt.Sprintf("action IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(f.Categories) > 0 {
		placeholders := make([]string, 0, len(f.Categories))
		for _, c := range f.Categories {
			args = append(args, c)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		where = append(where, fmt.Sprintf("action_category IN (%s)", strings.Join(placeholders, ", ")))
	}

	query := `SELECT` + entryColumns + `
		FROM audit_logs
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC`
	query, args = withPaging(query, args, f.Limit, f.Offset)

	return s.queryEntries(ctx, query, args)
}

func (s *PostgresStore) ListByActor(ctx context.Context, actorID string, f ActivityFilter) ([]Entry, error) {
	where := []string{"actor_id = $1"}
	args := []any{actorID}

	if f.Start != nil {
		args = append(args, *f.Start)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.End != nil {
		args = append(args, *f.End)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT` + entryColumns + `
		FROM audit_logs
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC`

	return s.queryEntries(ctx, query, args)
}

func (s *PostgresStore) Search(ctx context.Context, tenantID string, f SearchFilter) (SearchResult, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}

	if f.Term != "" {
		args = append(args, "%"+f.Term+"%")
		where = append(where, fmt.Sprintf("change_summary ILIKE $%d", len(args)))
	}
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.ActorID != "" {
		args = append(args, f.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if f.Start != nil {
		args = append(args, *f.Start)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.End != nil {
		args = append(args, *f.End)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_logs WHERE ` + clause
	if err := s.querier(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return SearchResult{}, fmt.Errorf("count audit entries: %w", err)
	}

	query := `SELECT` + entryColumns + `
		FROM audit_logs
		WHERE ` + clause + `
		ORDER BY created_at DESC`
	query, args = withPaging(query, args, f.Limit, f.Offset)

	entries, err := s.queryEntries(ctx, query, args)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Entries: entries, Total: total}, nil
}

var _ Store = (*PostgresStore)(nil)

func withPaging(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func (s *PostgresStore) queryEntries(ctx context.Context, query string, args []any) ([]Entry, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			actorID sql.NullString
			state   []byte
		)
		err := rows.Scan(
			&e.ID, &e.TenantID, &e.EntityType, &e.EntityID, &e.Action, &e.Category,
			&actorID, &e.ActorType, &state, &e.ChangeSummary, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ActorID = actorID.String
		if len(state) > 0 {
			e.NewState = json.RawMessage(state)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
