// Package audit keeps a history of channel reindex runs in PostgreSQL.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS reindex_runs (
    id          BIGSERIAL PRIMARY KEY,
    channel     TEXT        NOT NULL,
    success     BOOLEAN     NOT NULL,
    entries     INTEGER     NOT NULL DEFAULT 0,
    indexed     INTEGER     NOT NULL DEFAULT 0,
    skipped     INTEGER     NOT NULL DEFAULT 0,
    codes       INTEGER     NOT NULL DEFAULT 0,
    error       TEXT        NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reindex_runs_channel_idx ON reindex_runs (channel, finished_at DESC);
`

// Run is one row of reindex_runs.
type Run struct {
	Channel    string    `json:"channel"`
	Success    bool      `json:"success"`
	Entries    int       `json:"entries"`
	Indexed    int       `json:"indexed"`
	Skipped    int       `json:"skipped"`
	Codes      int       `json:"codes"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store writes and lists reindex runs. A Store without a database accepts
// every write and lists nothing, so callers need not check whether the
// audit trail is configured.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "reindex-audit"),
	}
}

func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.db.Ping(ctx)
}

// EnsureSchema creates the reindex_runs table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating reindex_runs: %w", err)
	}
	return nil
}

// Record writes runs in one transaction.
func (s *Store) Record(ctx context.Context, runs ...Run) error {
	if !s.Enabled() || len(runs) == 0 {
		return nil
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO reindex_runs
			    (channel, success, entries, indexed, skipped, codes, error, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range runs {
			if _, err := stmt.ExecContext(ctx,
				r.Channel, r.Success, r.Entries, r.Indexed, r.Skipped, r.Codes, r.Error,
				r.StartedAt.UTC(), r.FinishedAt.UTC(),
			); err != nil {
				return fmt.Errorf("inserting run for %s: %w", r.Channel, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording reindex runs: %w", err)
	}
	s.logger.Debug("reindex runs recorded", "count", len(runs))
	return nil
}

// Recent returns the latest runs for channel, newest first. An empty
// channel lists runs of every channel. Before the table exists nothing is
// listed.
func (s *Store) Recent(ctx context.Context, channel string, limit int) ([]Run, error) {
	if !s.Enabled() {
		return nil, nil
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT channel, success, entries, indexed, skipped, codes, error, started_at, finished_at
		   FROM reindex_runs
		  WHERE $1::text = '' OR channel = $1
		  ORDER BY finished_at DESC
		  LIMIT $2`,
		channel, limit,
	)
	if err != nil {
		if postgres.IsUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing reindex runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.Channel, &r.Success, &r.Entries, &r.Indexed, &r.Skipped, &r.Codes, &r.Error,
			&r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning reindex run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
