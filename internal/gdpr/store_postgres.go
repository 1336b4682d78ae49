package gdpr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"storyledger/pkg/platform/sentinel"
	txcontext "storyledger/pkg/platform/tx"
)

// PostgresRequestStore persists deletion requests in deletion_requests.
type PostgresRequestStore struct {
	db *sql.DB
}

func NewPostgresRequestStore(db *sql.DB) *PostgresRequestStore {
	return &PostgresRequestStore{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresRequestStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const requestColumns = `
	id, tenant_id, user_id, email, request_type, story_id, status,
	verification_token, verified_at, processed_at, failure_reason, created_at`

func (s *PostgresRequestStore) Save(ctx context.Context, r *DeletionRequest) error {
	query := `
		INSERT INTO deletion_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		r.ID, r.TenantID, r.UserID, r.Email, r.RequestType,
		nullIfEmpty(r.StoryID), r.Status, r.VerificationToken,
		r.VerifiedAt, r.ProcessedAt, nullIfEmpty(r.FailureReason), r.CreatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert deletion request: %w", err)
	}
	return nil
}

func (s *PostgresRequestStore) FindByID(ctx context.Context, id string) (*DeletionRequest, error) {
	query := `SELECT` + requestColumns + ` FROM deletion_requests WHERE id = $1`
	return s.scanOne(s.querier(ctx).QueryRowContext(ctx, query, id))
}

func (s *PostgresRequestStore) FindByToken(ctx context.Context, token string) (*DeletionRequest, error) {
	query := `SELECT` + requestColumns + ` FROM deletion_requests WHERE verification_token = $1`
	return s.scanOne(s.querier(ctx).QueryRowContext(ctx, query, token))
}

func (s *PostgresRequestStore) Update(ctx context.Context, r *DeletionRequest) error {
	query := `
		UPDATE deletion_requests SET
			status = $2, verified_at = $3, processed_at = $4, failure_reason = $5
		WHERE id = $1`
	res, err := s.querier(ctx).ExecContext(ctx, query,
		r.ID, r.Status, r.VerifiedAt, r.ProcessedAt, nullIfEmpty(r.FailureReason),
	)
	if err != nil {
		return fmt.Errorf("update deletion request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update deletion request rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

var _ RequestStore = (*PostgresRequestStore)(nil)

func (s *PostgresRequestStore) scanOne(row *sql.Row) (*DeletionRequest, error) {
	var (
		r             DeletionRequest
		storyID       sql.NullString
		failureReason sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.TenantID, &r.UserID, &r.Email, &r.RequestType, &storyID,
		&r.Status, &r.VerificationToken, &r.VerifiedAt, &r.ProcessedAt,
		&failureReason, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan deletion request: %w", err)
	}
	r.StoryID = storyID.String
	r.FailureReason = failureReason.String
	return &r, nil
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
