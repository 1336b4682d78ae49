//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers Postgres instance with the schema
// applied.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("storyledger_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{Container: container, URL: url, DB: db}
}

// Truncate empties every table. Use between tests to ensure isolation.
func (p *PostgresContainer) Truncate(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx,
		`TRUNCATE stories, audit_logs, story_distributions, deletion_requests`)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS stories (
	id                   TEXT PRIMARY KEY,
	tenant_id            TEXT NOT NULL,
	title                TEXT NOT NULL,
	storyteller_id       TEXT NOT NULL,
	author_id            TEXT NOT NULL,
	status               TEXT NOT NULL,
	has_consent          BOOLEAN NOT NULL DEFAULT FALSE,
	consent_verified     BOOLEAN NOT NULL DEFAULT FALSE,
	has_explicit_consent BOOLEAN NOT NULL DEFAULT FALSE,
	consent_method       TEXT,
	consent_purpose      TEXT,
	consent_scope        TEXT[],
	consent_restrictions TEXT[],
	verification_status  TEXT,
	verified_by          TEXT,
	verified_at          TIMESTAMPTZ,
	witness_id           TEXT,
	witness_name         TEXT,
	partial_restrictions TEXT[],
	consent_withdrawn_at TIMESTAMPTZ,
	withdrawal_reason    TEXT,
	sharing_enabled      BOOLEAN NOT NULL DEFAULT FALSE,
	embeds_enabled       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	entity_type     TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	action          TEXT NOT NULL,
	action_category TEXT NOT NULL,
	actor_id        TEXT,
	actor_type      TEXT NOT NULL,
	new_state       JSONB,
	change_summary  TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_logs_entity_idx ON audit_logs (entity_type, entity_id, created_at DESC);
CREATE INDEX IF NOT EXISTS audit_logs_actor_idx ON audit_logs (actor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS audit_logs_tenant_idx ON audit_logs (tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS story_distributions (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	story_id      TEXT NOT NULL,
	platform      TEXT NOT NULL,
	status        TEXT NOT NULL,
	url           TEXT,
	created_by    TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	revoked_at    TIMESTAMPTZ,
	revoked_by    TEXT,
	revoke_reason TEXT
);
CREATE INDEX IF NOT EXISTS story_distributions_story_idx ON story_distributions (story_id, created_at DESC);

CREATE TABLE IF NOT EXISTS deletion_requests (
	id                 TEXT PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	user_id            TEXT NOT NULL,
	email              TEXT NOT NULL,
	request_type       TEXT NOT NULL,
	story_id           TEXT,
	status             TEXT NOT NULL,
	verification_token TEXT NOT NULL UNIQUE,
	verified_at        TIMESTAMPTZ,
	processed_at       TIMESTAMPTZ,
	failure_reason     TEXT,
	created_at         TIMESTAMPTZ NOT NULL
);
`
