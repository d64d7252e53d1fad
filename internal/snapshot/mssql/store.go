// Package mssql implements a snapshot.Store on Microsoft SQL Server.
//
// Upsert uses MERGE, which is the SQL Server idiom for the single-statement
// insert-or-update the snapshot contract needs.
package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"dataprep/internal/snapshot"
)

type Store struct {
	db *sql.DB
}

func init() {
	snapshot.Register("mssql", New)
}

const createSQL = `IF OBJECT_ID('pipeline_snapshots', 'U') IS NULL
CREATE TABLE pipeline_snapshots (
  session_name NVARCHAR(256) NOT NULL PRIMARY KEY,
  state NVARCHAR(MAX) NOT NULL,
  updated_at DATETIMEOFFSET NOT NULL
);`

func New(ctx context.Context, cfg snapshot.Config) (snapshot.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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
		`SELECT state FROM pipeline_snapshots WHERE session_name = @p1`, session,
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
		`MERGE pipeline_snapshots AS t
		 USING (SELECT @p1 AS session_name, @p2 AS state) AS src
		 ON t.session_name = src.session_name
		 WHEN MATCHED THEN
		   UPDATE SET state = src.state, updated_at = SYSDATETIMEOFFSET()
		 WHEN NOT MATCHED THEN
		   INSERT (session_name, state, updated_at)
		   VALUES (src.session_name, src.state, SYSDATETIMEOFFSET());`,
		session, string(raw),
	)
	return err
}
