package distribution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"storyledger/pkg/platform/sentinel"
	txcontext "storyledger/pkg/platform/tx"
)

// PostgresStore persists distribution records in story_distributions.
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

const distColumns = `
	id, tenant_id, story_id, platform, status, url,
	created_by, created_at, revoked_at, revoked_by, revoke_reason`

func (s *PostgresStore) Save(ctx context.Context, d *Distribution) error {
	query := `
		INSERT INTO story_distributions (` + distColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		d.ID, d.TenantID, d.StoryID, d.Platform, d.Status, nullIfEmpty(d.URL),
		d.CreatedBy, d.CreatedAt, d.RevokedAt, nullIfEmpty(d.RevokedBy),
		nullIfEmpty(d.RevokeReason),
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert distribution: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Distribution, error) {
	query := `SELECT` + distColumns + ` FROM story_distributions WHERE id = $1`
	row := s.querier(ctx).QueryRowContext(ctx, query, id)
	d, err := scanDistribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find distribution: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListByStory(ctx context.Context, storyID string) ([]*Distribution, error) {
	query := `SELECT` + distColumns + `
		FROM story_distributions
		WHERE story_id = $1
		ORDER BY created_at DESC`
	rows, err := s.querier(ctx).QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var out []*Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distributions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *Distribution) error {
	query := `
		UPDATE story_distributions SET
			status = $2, url = $3, revoked_at = $4, revoked_by = $5,
			revoke_reason = $6
		WHERE id = $1`
	res, err := s.querier(ctx).ExecContext(ctx, query,
		d.ID, d.Status, nullIfEmpty(d.URL), d.RevokedAt,
		nullIfEmpty(d.RevokedBy), nullIfEmpty(d.RevokeReason),
	)
	if err != nil {
		return fmt.Errorf("update distribution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update distribution rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDistribution(row rowScanner) (*Distribution, error) {
	var (
		d            Distribution
		url          sql.NullString
		revokedBy    sql.NullString
		revokeReason sql.NullString
	)
	err := row.Scan(
		&d.ID, &d.TenantID, &d.StoryID, &d.Platform, &d.Status, &url,
		&d.CreatedBy, &d.CreatedAt, &d.RevokedAt, &revokedBy, &revokeReason,
	)
	if err != nil {
		return nil, err
	}
	d.URL = url.String
	d.RevokedBy = revokedBy.String
	d.RevokeReason = revokeReason.String
	return &d, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
