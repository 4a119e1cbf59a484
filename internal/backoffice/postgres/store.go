package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxdesk/internal/backoffice"
	"github.com/MrWong99/voxdesk/internal/transcript"
)

// Compile-time interface checks.
var (
	_ backoffice.Store       = (*Store)(nil)
	_ transcript.HistorySink = (*Store)(nil)
)

// Store is the PostgreSQL-backed record store and message history.
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks database connectivity. It is used as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// ── backoffice.Store ─────────────────────────────────────────────────────────

const recordColumns = `id, kind, name, fields, updated_at`

// Add implements [backoffice.Store].
func (s *Store) Add(ctx context.Context, r backoffice.Record) (backoffice.Record, error) {
	if _, err := backoffice.ParseKind(string(r.Kind)); err != nil {
		return backoffice.Record{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Fields == nil {
		r.Fields = map[string]string{}
	}

	const q = `
		INSERT INTO backoffice_records (id, kind, name, fields)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
		RETURNING updated_at`

	err := s.pool.QueryRow(ctx, q, r.ID, string(r.Kind), r.Name, r.Fields).Scan(&r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return backoffice.Record{}, fmt.Errorf("%w: %q", backoffice.ErrDuplicateID, r.ID)
	}
	if err != nil {
		return backoffice.Record{}, fmt.Errorf("postgres: add record %q: %w", r.ID, err)
	}
	return r, nil
}

// Get implements [backoffice.Store].
func (s *Store) Get(ctx context.Context, id string) (backoffice.Record, error) {
	q := `SELECT ` + recordColumns + ` FROM backoffice_records WHERE id = $1`
	r, err := scanRecord(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return backoffice.Record{}, fmt.Errorf("%w: %q", backoffice.ErrNotFound, id)
	}
	if err != nil {
		return backoffice.Record{}, fmt.Errorf("postgres: get record %q: %w", id, err)
	}
	return r, nil
}

// List implements [backoffice.Store].
func (s *Store) List(ctx context.Context, opts backoffice.ListOptions) ([]backoffice.Record, error) {
	var (
		where []string
		args  []any
	)
	if opts.Kind != "" {
		args = append(args, string(opts.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if opts.Name != "" {
		args = append(args, opts.Name)
		where = append(where, fmt.Sprintf("lower(name) = lower($%d)", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + recordColumns + ` FROM backoffice_records`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(` ORDER BY CASE kind WHEN 'client' THEN 0 WHEN 'campaign' THEN 1 WHEN 'task' THEN 2 ELSE 3 END, lower(name), id`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list records: %w", err)
	}
	defer rows.Close()

	var out []backoffice.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list records: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list records: %w", err)
	}
	return out, nil
}

// Update implements [backoffice.Store]. An empty Kind keeps the stored kind.
func (s *Store) Update(ctx context.Context, r backoffice.Record) (backoffice.Record, error) {
	if r.Fields == nil {
		r.Fields = map[string]string{}
	}

	const q = `
		UPDATE backoffice_records
		SET kind = COALESCE(NULLIF($2, ''), kind),
		    name = $3,
		    fields = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING kind, updated_at`

	var kind string
	err := s.pool.QueryRow(ctx, q, r.ID, string(r.Kind), r.Name, r.Fields).Scan(&kind, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return backoffice.Record{}, fmt.Errorf("%w: %q", backoffice.ErrNotFound, r.ID)
	}
	if err != nil {
		return backoffice.Record{}, fmt.Errorf("postgres: update record %q: %w", r.ID, err)
	}
	r.Kind = backoffice.Kind(kind)
	return r, nil
}

// Remove implements [backoffice.Store].
func (s *Store) Remove(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM backoffice_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: remove record %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", backoffice.ErrNotFound, id)
	}
	return nil
}

func scanRecord(row pgx.Row) (backoffice.Record, error) {
	var (
		r    backoffice.Record
		kind string
	)
	if err := row.Scan(&r.ID, &kind, &r.Name, &r.Fields, &r.UpdatedAt); err != nil {
		return backoffice.Record{}, err
	}
	r.Kind = backoffice.Kind(kind)
	if r.Fields == nil {
		r.Fields = map[string]string{}
	}
	return r, nil
}

// ── transcript.HistorySink ───────────────────────────────────────────────────

// Record implements [transcript.HistorySink].
func (s *Store) Record(ctx context.Context, msg transcript.Message) error {
	const q = `
		INSERT INTO assistant_messages (session_id, speaker, text, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, msg.SessionID, string(msg.Speaker), msg.Text, msg.At); err != nil {
		return fmt.Errorf("postgres: record message: %w", err)
	}
	return nil
}

// Messages returns the history of one session in recording order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]transcript.Message, error) {
	const q = `
		SELECT session_id, speaker, text, created_at
		FROM assistant_messages
		WHERE session_id = $1
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Message, error) {
		var (
			m       transcript.Message
			speaker string
		)
		err := row.Scan(&m.SessionID, &speaker, &m.Text, &m.At)
		m.Speaker = transcript.Speaker(speaker)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: messages: %w", err)
	}
	return msgs, nil
}
