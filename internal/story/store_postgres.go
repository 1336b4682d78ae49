package story

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"storyledger/pkg/platform/sentinel"
	txcontext "storyledger/pkg/platform/tx"
)

// PostgresStore persists the consent-relevant slice of story state.
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

const storyColumns = `
	id, tenant_id, title, storyteller_id, author_id, status,
	has_consent, consent_verified, has_explicit_consent,
	consent_method, consent_purpose, consent_scope, consent_restrictions,
	verification_status, verified_by, verified_at, witness_id, witness_name,
	partial_restrictions, consent_withdrawn_at, withdrawal_reason,
	sharing_enabled, embeds_enabled, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Story, error) {
	query := `SELECT` + storyColumns + ` FROM stories WHERE id = $1`
	row := s.querier(ctx).QueryRowContext(ctx, query, id)
	st, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find story: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, tenantID, userID string) ([]*Story, error) {
	query := `SELECT` + storyColumns + `
		FROM stories
		WHERE tenant_id = $1 AND (storyteller_id = $2 OR author_id = $2)
		ORDER BY created_at DESC`
	rows, err := s.querier(ctx).QueryContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list stories by owner: %w", err)
	}
	defer rows.Close()

	var out []*Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, st *Story) error {
	now := time.Now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	query := `
		INSERT INTO stories (` + storyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`
	_, err := s.querier(ctx).ExecContext(ctx, query, storyArgs(st)...)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, st *Story) error {
	st.UpdatedAt = time.Now()

	query := `
		UPDATE stories SET
			title = $3, storyteller_id = $4, author_id = $5, status = $6,
			has_consent = $7, consent_verified = $8, has_explicit_consent = $9,
			consent_method = $10, consent_purpose = $11, consent_scope = $12,
			consent_restrictions = $13, verification_status = $14,
			verified_by = $15, verified_at = $16, witness_id = $17,
			witness_name = $18, partial_restrictions = $19,
			consent_withdrawn_at = $20, withdrawal_reason = $21,
			sharing_enabled = $22, embeds_enabled = $23, updated_at = $24
		WHERE id = $1 AND tenant_id = $2`
	args := []any{
		st.ID, st.TenantID, st.Title, st.StorytellerID, st.AuthorID, st.Status,
		st.HasConsent, st.ConsentVerified, st.HasExplicitConsent,
		nullIfEmpty(st.ConsentMethod), nullIfEmpty(st.ConsentPurpose),
		pq.Array(st.ConsentScope), pq.Array(st.ConsentRestrictions),
		nullIfEmpty(st.VerificationStatus), nullIfEmpty(st.VerifiedBy),
		st.VerifiedAt, nullIfEmpty(st.WitnessID), nullIfEmpty(st.WitnessName),
		pq.Array(st.PartialRestrictions), st.ConsentWithdrawnAt,
		nullIfEmpty(st.WithdrawalReason), st.SharingEnabled, st.EmbedsEnabled,
		st.UpdatedAt,
	}
	res, err := s.querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update story: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update story rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// RunInTx opens a transaction and stores it in context so nested store calls
// share it. The state transition commits as one unit; audit and notification
// side effects run after commit, best-effort.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
var _ TxRunner = (*PostgresStore)(nil)

func storyArgs(st *Story) []any {
	return []any{
		st.ID, st.TenantID, st.Title, st.StorytellerID, st.AuthorID, st.Status,
		st.HasConsent, st.ConsentVerified, st.HasExplicitConsent,
		nullIfEmpty(st.ConsentMethod), nullIfEmpty(st.ConsentPurpose),
		pq.Array(st.ConsentScope), pq.Array(st.ConsentRestrictions),
		nullIfEmpty(st.VerificationStatus), nullIfEmpty(st.VerifiedBy),
		st.VerifiedAt, nullIfEmpty(st.WitnessID), nullIfEmpty(st.WitnessName),
		pq.Array(st.PartialRestrictions), st.ConsentWithdrawnAt,
		nullIfEmpty(st.WithdrawalReason), st.SharingEnabled, st.EmbedsEnabled,
		st.CreatedAt, st.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*Story, error) {
	var (
		st                 Story
		method, purpose    sql.NullString
		verStatus          sql.NullString
		verifiedBy         sql.NullString
		witnessID, witness sql.NullString
		withdrawalReason   sql.NullString
	)
	err := row.Scan(
		&st.ID, &st.TenantID, &st.Title, &st.StorytellerID, &st.AuthorID, &st.Status,
		&st.HasConsent, &st.ConsentVerified, &st.HasExplicitConsent,
		&method, &purpose,
		pq.Array(&st.ConsentScope), pq.Array(&st.ConsentRestrictions),
		&verStatus, &verifiedBy, &st.VerifiedAt, &witnessID, &witness,
		pq.Array(&st.PartialRestrictions), &st.ConsentWithdrawnAt,
		&withdrawalReason, &st.SharingEnabled, &st.EmbedsEnabled,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.ConsentMethod = method.String
	st.ConsentPurpose = purpose.String
	st.VerificationStatus = verStatus.String
	st.VerifiedBy = verifiedBy.String
	st.WitnessID = witnessID.String
	st.WitnessName = witness.String
	st.WithdrawalReason = withdrawalReason.String
	return &st, nil
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
