// Package sqlite implements a snapshot.Store on SQLite.
//
// SQLite is the default backend: a single local file (or :memory: for
// tests), no server, good enough for a best-effort per-session blob.
// Timestamps are stored as RFC3339Nano strings for reliable round-trips with
// modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"dataprep/internal/snapshot"
)

type Store struct {
	db *sql.DB
}

func init() {
	snapshot.Register("sqlite", New)
}

const createSQL = `CREATE TABLE IF NOT EXISTS pipeline_snapshots (
  session_name TEXT PRIMARY KEY,
  state TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`

func New(ctx context.Context, cfg snapshot.Config) (snapshot.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) Load(ctx context.Context, session string) (*snapshot.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM pipeline_snapshots WHERE session_name = ?`, session,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st snapshot.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode snapshot session=%s: %w", session, err)
	}
	return &st, nil
}

func (s *Store) Save(ctx context.Context, session string, st snapshot.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_snapshots (session_name, state, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(session_name) DO UPDATE SET
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		session, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}
