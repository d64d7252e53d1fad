// Package postgres implements a snapshot.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dataprep/internal/snapshot"
)

type Store struct {
	pool *pgxpool.Pool
}

func init() {
	snapshot.Register("postgres", New)
}

const createSQL = `CREATE TABLE IF NOT EXISTS pipeline_snapshots (
  session_name TEXT PRIMARY KEY,
  state JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

func New(ctx context.Context, cfg snapshot.Config) (snapshot.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Load(ctx context.Context, session string) (*snapshot.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM pipeline_snapshots WHERE session_name = $1`, session,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st snapshot.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode snapshot session=%s: %w", session, err)
	}
	return &st, nil
}

func (s *Store) Save(ctx context.Context, session string, st snapshot.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_snapshots (session_name, state, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (session_name) DO UPDATE SET
		   state = EXCLUDED.state,
		   updated_at = now()`,
		session, raw,
	)
	return err
}
