// Package postgres stores back-office records and finalised conversation
// messages in PostgreSQL.
//
// One [pgxpool.Pool] backs both concerns: [Store] implements
// [backoffice.Store] and [transcript.HistorySink]. [Migrate] creates the
// tables on first use.
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ── Records ──────────────────────────────────────────────────────────────────

const ddlRecords = `
CREATE TABLE IF NOT EXISTS backoffice_records (
    id          TEXT         PRIMARY KEY,
    kind        TEXT         NOT NULL,
    name        TEXT         NOT NULL,
    fields      JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_backoffice_records_kind
    ON backoffice_records (kind);

CREATE INDEX IF NOT EXISTS idx_backoffice_records_lower_name
    ON backoffice_records (lower(name));
`

// ── Conversation history ─────────────────────────────────────────────────────

const ddlMessages = `
CREATE TABLE IF NOT EXISTS assistant_messages (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    speaker     TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_assistant_messages_session
    ON assistant_messages (session_id, created_at);
`

// Migrate creates every table and index the store needs. All statements are
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	steps := []struct {
		name string
		ddl  string
	}{
		{"records", ddlRecords},
		{"messages", ddlMessages},
	}
	for _, s := range steps {
		if _, err := pool.Exec(ctx, s.ddl); err != nil {
			return fmt.Errorf("migrate %s: %w", s.name, err)
		}
	}
	return nil
}
