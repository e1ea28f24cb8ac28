package transcript

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time assertion that PGStore satisfies Store.
var _ Store = (*PGStore)(nil)

const ddlFragments = `
CREATE TABLE IF NOT EXISTS transcript_fragments (
    id           BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    seq          INT          NOT NULL,
    text         TEXT         NOT NULL DEFAULT '',
    failed       BOOLEAN      NOT NULL DEFAULT FALSE,
    reason       TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_transcript_fragments_session
    ON transcript_fragments (session_id, seq);
`

// PGStore is a PostgreSQL-backed Store. All methods are safe for concurrent
// use; the store holds a single [pgxpool.Pool].
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore, establishes a connection pool to the
// database at dsn, and runs [Migrate] to ensure the fragments table exists.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: migrate: %w", err)
	}

	return &PGStore{pool: pool}, nil
}

// Migrate creates the fragments table if it does not exist. Idempotent and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlFragments); err != nil {
		return fmt.Errorf("transcript migrate: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, for readiness probes.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append implements Store. Re-appending an already-stored sequence number
// for the same session keeps the first write.
func (s *PGStore) Append(ctx context.Context, sessionID string, f Fragment) error {
	const q = `
		INSERT INTO transcript_fragments (session_id, seq, text, failed, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, seq) DO NOTHING`

	_, err := s.pool.Exec(ctx, q, sessionID, f.Seq, f.Text, f.Failed, f.Reason)
	if err != nil {
		return fmt.Errorf("transcript store: append: %w", err)
	}
	return nil
}

// Fragments implements Store.
func (s *PGStore) Fragments(ctx context.Context, sessionID string) ([]Fragment, error) {
	const q = `
		SELECT seq, text, failed, reason
		FROM   transcript_fragments
		WHERE  session_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("transcript store: fragments: %w", err)
	}
	fragments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Fragment, error) {
		var f Fragment
		err := row.Scan(&f.Seq, &f.Text, &f.Failed, &f.Reason)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: scan rows: %w", err)
	}
	if len(fragments) == 0 {
		return nil, ErrSessionNotFound
	}
	return fragments, nil
}

// Transcript implements Store.
func (s *PGStore) Transcript(ctx context.Context, sessionID string) (string, error) {
	fragments, err := s.Fragments(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return joinFragments(fragments), nil
}

// Sessions implements Store.
func (s *PGStore) Sessions(ctx context.Context) ([]string, error) {
	const q = `
		SELECT   session_id
		FROM     transcript_fragments
		GROUP BY session_id
		ORDER BY max(created_at) DESC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("transcript store: sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: scan rows: %w", err)
	}
	return ids, nil
}
