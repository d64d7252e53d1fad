// Package pipeline owns the per-session transformation state: the immutable
// source table, the ordered step sequence, and the output table recomputed in
// full after every mutation.
//
// Execution model: single-threaded and synchronous. AddStep/RemoveStep block
// until the recompute finishes; there are no background workers and no
// cancellation of a recompute once started. Per-mutation cost is
// O(rows x steps), which is fine because the sampling policy bounds rows
// upstream. A session is owned by exactly one caller, so there is no locking.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"dataprep/internal/infer"
	"dataprep/internal/metrics"
	"dataprep/internal/snapshot"
	"dataprep/internal/step"
	"dataprep/internal/table"
)

// State is the engine's execution state. It exists to make the lifecycle
// explicit rather than implicit in UI reactivity: Idle -> Applying -> Idle.
type State int

const (
	Idle State = iota
	Applying
)

func (s State) String() string {
	if s == Applying {
		return "applying"
	}
	return "idle"
}

// Logger is the minimal logging interface used by the session.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// InvalidStepError is returned by AddStep when a step definition cannot
// execute against the columns it would see, for example a target column a
// prior RemoveColumns already dropped. Rejecting at append time is the only
// validation the engine performs; step application itself never fails.
type InvalidStepError struct {
	Kind   step.Kind
	Column string
	Reason string
}

func (e *InvalidStepError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("invalid step %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid step %s on column %q: %s", e.Kind, e.Column, e.Reason)
}

// Options configures a Session. The zero value gives a discard logger, no
// metrics, and no persistence.
type Options struct {
	// Logger receives stage logs. Nil means discard.
	Logger Logger

	// Metrics receives recompute counters and durations. Nil means none.
	Metrics metrics.Backend

	// Store, when non-nil, receives a best-effort snapshot after every
	// successful recompute. Save failures are logged, never propagated.
	Store snapshot.Store

	// SessionName keys the persisted snapshot. Defaults to "default".
	SessionName string

	// now is a test seam for deterministic durations.
	now func() time.Time
}

// Session holds one pipeline over one source table.
type Session struct {
	source table.Table
	types  map[string]infer.ColumnType

	steps  []step.Step
	output table.Table
	nextID int64

	state State

	logf    func(format string, v ...any)
	metrics metrics.Backend
	store   snapshot.Store
	name    string
	now     func() time.Time
}

// NewSession creates a session over source, infers column types once, and
// computes the initial output (the source itself, no steps applied yet).
func NewSession(ctx context.Context, source table.Table, opts Options) *Session {
	s := &Session{
		source: source.Clone(),
		types:  infer.Table(source),
		nextID: 1,
		state:  Idle,
	}
	s.applyOptions(opts)
	s.recompute(ctx)
	return s
}

// Resume rebuilds a session from a persisted snapshot: the stored source and
// steps are replayed so the output is recomputed rather than trusted.
// When the store has no snapshot for the session, (nil, nil) is returned.
func Resume(ctx context.Context, store snapshot.Store, opts Options) (*Session, error) {
	name := opts.SessionName
	if name == "" {
		name = "default"
	}

	st, err := store.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("snapshot load: %w", err)
	}
	if st == nil {
		return nil, nil
	}

	s := &Session{
		source: st.Source().Clone(),
		types:  infer.Table(st.Source()),
		steps:  append([]step.Step(nil), st.Steps...),
		nextID: 1,
		state:  Idle,
	}
	for _, stp := range s.steps {
		if stp.ID >= s.nextID {
			s.nextID = stp.ID + 1
		}
	}
	opts.Store = store
	s.applyOptions(opts)
	s.recompute(ctx)
	return s, nil
}

func (s *Session) applyOptions(opts Options) {
	s.logf = func(format string, v ...any) {}
	if opts.Logger != nil {
		s.logf = opts.Logger.Printf
	}
	s.metrics = metrics.Nop{}
	if opts.Metrics != nil {
		s.metrics = opts.Metrics
	}
	s.store = opts.Store
	s.name = opts.SessionName
	if s.name == "" {
		s.name = "default"
	}
	s.now = opts.now
	if s.now == nil {
		s.now = time.Now
	}
}

// Source returns a copy of the immutable source table.
func (s *Session) Source() table.Table { return s.source.Clone() }

// Output returns a copy of the current output table.
func (s *Session) Output() table.Table { return s.output.Clone() }

// Steps returns the current step sequence in order.
func (s *Session) Steps() []step.Step { return append([]step.Step(nil), s.steps...) }

// State returns the engine state. Outside of a mutation call this is always
// Idle; it is exposed for bindings that render an "applying" affordance.
func (s *Session) State() State { return s.state }

// AddStep validates the definition against the columns it would see after
// every existing step, appends it with a fresh id, and recomputes.
func (s *Session) AddStep(ctx context.Context, kind step.Kind, column string, params step.Params, name string) (step.Step, error) {
	stp := step.Step{
		ID:     s.nextID,
		Kind:   kind,
		Column: column,
		Params: params,
		Name:   name,
	}

	if err := stp.Validate(s.outputColumns()); err != nil {
		s.metrics.IncCounter("dataprep.step.rejected", 1, metrics.Labels{"kind": kind.String()})
		return step.Step{}, &InvalidStepError{Kind: kind, Column: column, Reason: err.Error()}
	}

	s.nextID++
	s.steps = append(s.steps, stp)
	s.recompute(ctx)
	return stp, nil
}

// RemoveStep removes the step with the given id and recomputes. Removing an
// absent id is a no-op (and does not recompute). Later steps keep their
// identity and relative order.
func (s *Session) RemoveStep(ctx context.Context, id int64) bool {
	idx := -1
	for i, stp := range s.steps {
		if stp.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	s.steps = append(s.steps[:idx], s.steps[idx+1:]...)
	s.recompute(ctx)
	return true
}

// MoveStep moves the step with the given id to position pos (clamped to the
// sequence bounds) and recomputes. Moving an absent id is a no-op. Steps are
// not re-validated on reorder; application is total, so an order that starves
// a later step of its column degrades silently instead of failing.
func (s *Session) MoveStep(ctx context.Context, id int64, pos int) bool {
	idx := -1
	for i, stp := range s.steps {
		if stp.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	if pos < 0 {
		pos = 0
	}
	if pos >= len(s.steps) {
		pos = len(s.steps) - 1
	}
	if pos == idx {
		return true
	}

	stp := s.steps[idx]
	s.steps = append(s.steps[:idx], s.steps[idx+1:]...)
	s.steps = append(s.steps[:pos], append([]step.Step{stp}, s.steps[pos:]...)...)
	s.recompute(ctx)
	return true
}

// Recompute replays the pipeline from the source and returns the new output.
// It is exposed for callers that mutate nothing but want a fresh replay (the
// result is value-identical by construction).
func (s *Session) Recompute(ctx context.Context) table.Table {
	s.recompute(ctx)
	return s.Output()
}

// outputColumns folds rename/remove effects of every current step over the
// source column sequence.
func (s *Session) outputColumns() []string {
	cols := append([]string(nil), s.source.Columns...)
	for _, stp := range s.steps {
		cols = stp.OutputColumns(cols)
	}
	return cols
}

// ColumnTypes returns the effective type tags of the output columns: the
// load-time inference with ChangeType, RenameColumn and RemoveColumns effects
// folded in, in step order. Inference is never re-run after a coercion; the
// step's declared type wins.
func (s *Session) ColumnTypes() map[string]infer.ColumnType {
	types := make(map[string]infer.ColumnType, len(s.types))
	for k, v := range s.types {
		types[k] = v
	}

	for _, stp := range s.steps {
		switch stp.Kind {
		case step.ChangeType:
			types[stp.Column] = infer.ParseColumnType(stp.Params.NewType)
		case step.RenameColumn:
			if t, ok := types[stp.Column]; ok {
				delete(types, stp.Column)
				types[stp.Params.NewName] = t
			}
		case step.RemoveColumns:
			for _, c := range stp.Params.Columns {
				delete(types, c)
			}
		}
	}
	return types
}

// recompute replays every step, in list order, against a snapshot of the
// source. A step that empties the table does not halt the chain; later steps
// run against the empty intermediate. On success the snapshot store (if any)
// receives the new state.
func (s *Session) recompute(ctx context.Context) {
	s.state = Applying
	start := s.now()

	out := s.source.Clone()
	for _, stp := range s.steps {
		out = stp.Apply(out)
	}
	s.output = out
	s.state = Idle

	dur := s.now().Sub(start).Truncate(time.Microsecond)
	s.logf("stage=recompute ok steps=%d rows_in=%d rows_out=%d duration=%s",
		len(s.steps), s.source.RowCount(), out.RowCount(), dur)

	s.metrics.IncCounter("dataprep.recompute.total", 1, nil)
	s.metrics.ObserveHistogram("dataprep.recompute.duration_ms", float64(dur)/float64(time.Millisecond), nil)
	s.metrics.ObserveHistogram("dataprep.recompute.rows_out", float64(out.RowCount()), nil)
	for _, stp := range s.steps {
		s.metrics.IncCounter("dataprep.step.applied", 1, metrics.Labels{"kind": stp.Kind.String()})
	}

	s.persist(ctx)
}

// persist writes the snapshot after a successful recompute. Best-effort: a
// save failure is logged and otherwise ignored.
func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	st := snapshot.State{
		SourceColumns: s.source.Columns,
		SourceRows:    s.source.Rows,
		Steps:         s.steps,
		OutputColumns: s.output.Columns,
		OutputRows:    s.output.Rows,
	}
	if err := s.store.Save(ctx, s.name, st); err != nil {
		s.logf("stage=snapshot_save status=error session=%s err=%v", s.name, err)
	}
}
