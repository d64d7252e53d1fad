// Package snapshot persists per-session pipeline state as a best-effort
// write-after-success blob.
//
// The contract is deliberately narrow: the engine loads one snapshot at
// session start and saves one after each successful recompute. A failed or
// aborted recompute never touches persisted state, and persistence failures
// never fail the session (the engine logs and moves on). This replaces the
// ambient global the previous generation of the product used for page
// handoff.
package snapshot

import (
	"context"
	"fmt"
	"sync"

	"dataprep/internal/step"
	"dataprep/internal/table"
)

// State is the persisted form of a session: the immutable source table, the
// authored step sequence, and the last successfully computed output table.
type State struct {
	SourceColumns []string    `json:"source_columns"`
	SourceRows    []table.Row `json:"source_rows"`
	Steps         []step.Step `json:"steps"`
	OutputColumns []string    `json:"output_columns"`
	OutputRows    []table.Row `json:"output_rows"`
}

// Source reconstructs the source table.
func (s State) Source() table.Table {
	return table.Table{Columns: s.SourceColumns, Rows: s.SourceRows}
}

// Output reconstructs the last output table.
func (s State) Output() table.Table {
	return table.Table{Columns: s.OutputColumns, Rows: s.OutputRows}
}

// Config selects and configures a snapshot backend.
type Config struct {
	Kind string
	DSN  string
}

// Store is the backend-agnostic persistence interface.
//
// Each backend implements upsert semantics in its own idiom (Postgres
// ON CONFLICT, SQLite upsert, SQL Server MERGE).
type Store interface {
	// Load returns the snapshot for a session, or (nil, nil) when none has
	// been saved yet.
	Load(ctx context.Context, session string) (*State, error)

	// Save upserts the snapshot for a session.
	Save(ctx context.Context, session string, st State) error

	// Close releases backend resources. Treat as call-once.
	Close()
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "sqlite", "postgres").
// Call it from an init() in the backend package. Registering the same kind
// twice panics so ambiguous backend selection fails fast.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("snapshot: Register called with empty kind")
	}
	if f == nil {
		panic("snapshot: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("snapshot: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("snapshot: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("snapshot: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
