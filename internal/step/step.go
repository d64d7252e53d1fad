// Package step implements the catalog of declarative table transformations.
//
// Every step kind is a pure, total table->table function: malformed or
// missing cell values degrade to sentinel values ("Invalid Date", 0, empty
// string) instead of aborting, because steps must stay safely composable in
// an interactive editor. No kind ever inserts rows.
package step

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dataprep/internal/infer"
	"dataprep/internal/stats"
	"dataprep/internal/table"
)

// Kind is the closed set of transformation kinds. The executor switches over
// Kind exhaustively; adding a kind means extending Apply and Validate.
type Kind int

const (
	RemoveNulls Kind = iota
	FillNulls
	FilterRows
	FilterByComparator
	ChangeType
	RemoveDuplicates
	Uppercase
	Lowercase
	RemoveOutliers
	RenameColumn
	RemoveColumns
)

var kindNames = map[Kind]string{
	RemoveNulls:        "remove_nulls",
	FillNulls:          "fill_nulls",
	FilterRows:         "filter_rows",
	FilterByComparator: "filter_compare",
	ChangeType:         "change_type",
	RemoveDuplicates:   "remove_duplicates",
	Uppercase:          "uppercase",
	Lowercase:          "lowercase",
	RemoveOutliers:     "remove_outliers",
	RenameColumn:       "rename_column",
	RemoveColumns:      "remove_columns",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a kind label back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// FillStrategy selects how FillNulls derives its replacement value.
type FillStrategy string

const (
	// FillLiteral substitutes Params.FillValue verbatim (default).
	FillLiteral FillStrategy = "literal"
	// FillMean substitutes the mean of the column's numeric values.
	FillMean FillStrategy = "mean"
	// FillMedian substitutes the median of the column's numeric values.
	FillMedian FillStrategy = "median"
	// FillMode substitutes the most frequent non-missing value.
	// Ties are broken by the smallest value (see stats.Mode).
	FillMode FillStrategy = "mode"
)

// Params carries the kind-specific parameters of a step. Unused fields are
// ignored by kinds that do not read them.
type Params struct {
	// FillValue is the literal replacement for FillNulls with FillLiteral.
	FillValue string `json:"fill_value,omitempty"`
	// Strategy selects the FillNulls replacement source; empty means literal.
	Strategy FillStrategy `json:"strategy,omitempty"`
	// Substring is the case-insensitive needle for FilterRows.
	Substring string `json:"substring,omitempty"`
	// Operator is one of "=", "!=", ">", "<" for FilterByComparator.
	Operator string `json:"operator,omitempty"`
	// Value is the right-hand side for FilterByComparator.
	Value string `json:"value,omitempty"`
	// NewType is the target type for ChangeType ("number", "text", "date").
	NewType string `json:"new_type,omitempty"`
	// NewName is the replacement name for RenameColumn.
	NewName string `json:"new_name,omitempty"`
	// Columns lists the columns dropped by RemoveColumns.
	Columns []string `json:"columns,omitempty"`
}

// Step is one declarative transformation: a unique id, a kind, a target
// column, parameters, and a display label. Steps are immutable once created;
// editing is modeled as remove + re-add.
type Step struct {
	ID     int64
	Kind   Kind
	Column string
	Params Params
	Name   string
}

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// Apply runs the step against t and returns the transformed table. The input
// table is never mutated.
func (s Step) Apply(t table.Table) table.Table {
	switch s.Kind {
	case RemoveNulls:
		return filterRows(t, func(r table.Row) bool {
			return !table.IsMissing(r[s.Column])
		})

	case FillNulls:
		return s.applyFillNulls(t)

	case FilterRows:
		needle := strings.ToLower(s.Params.Substring)
		return filterRows(t, func(r table.Row) bool {
			return strings.Contains(strings.ToLower(table.Stringify(r[s.Column])), needle)
		})

	case FilterByComparator:
		return s.applyComparator(t)

	case ChangeType:
		return s.applyChangeType(t)

	case RemoveDuplicates:
		return s.applyRemoveDuplicates(t)

	case Uppercase:
		return mapColumn(t, s.Column, func(v any) any {
			return upperCaser.String(table.Stringify(v))
		})

	case Lowercase:
		return mapColumn(t, s.Column, func(v any) any {
			return lowerCaser.String(table.Stringify(v))
		})

	case RemoveOutliers:
		return s.applyRemoveOutliers(t)

	case RenameColumn:
		return s.applyRename(t)

	case RemoveColumns:
		return s.applyRemoveColumns(t)

	default:
		// Unknown kinds pass the table through untouched; AddStep validation
		// rejects them before they can reach an executing pipeline.
		return t.Clone()
	}
}

// Validate checks the step definition against the column set it will see at
// execution time. It returns a plain error describing the first problem; the
// pipeline wraps it into its typed rejection error.
func (s Step) Validate(columns []string) error {
	has := func(name string) bool {
		for _, c := range columns {
			if c == name {
				return true
			}
		}
		return false
	}

	needsColumn := func() error {
		if s.Column == "" {
			return fmt.Errorf("target column is required")
		}
		if !has(s.Column) {
			return fmt.Errorf("column %q does not exist at this point in the pipeline", s.Column)
		}
		return nil
	}

	switch s.Kind {
	case RemoveNulls, FilterRows, RemoveDuplicates, Uppercase, Lowercase, RemoveOutliers:
		return needsColumn()

	case FillNulls:
		if err := needsColumn(); err != nil {
			return err
		}
		switch s.Params.Strategy {
		case "", FillLiteral, FillMean, FillMedian, FillMode:
			return nil
		default:
			return fmt.Errorf("unknown fill strategy %q", s.Params.Strategy)
		}

	case FilterByComparator:
		if err := needsColumn(); err != nil {
			return err
		}
		switch s.Params.Operator {
		case "=", "!=", ">", "<":
			return nil
		default:
			return fmt.Errorf("unknown comparator %q", s.Params.Operator)
		}

	case ChangeType:
		if err := needsColumn(); err != nil {
			return err
		}
		switch strings.ToLower(s.Params.NewType) {
		case "number", "text", "date":
			return nil
		default:
			return fmt.Errorf("unknown target type %q", s.Params.NewType)
		}

	case RenameColumn:
		if err := needsColumn(); err != nil {
			return err
		}
		if s.Params.NewName == "" {
			return fmt.Errorf("new column name is required")
		}
		if has(s.Params.NewName) {
			return fmt.Errorf("column %q already exists", s.Params.NewName)
		}
		return nil

	case RemoveColumns:
		if len(s.Params.Columns) == 0 {
			return fmt.Errorf("at least one column is required")
		}
		for _, c := range s.Params.Columns {
			if !has(c) {
				return fmt.Errorf("column %q does not exist at this point in the pipeline", c)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown step kind %d", int(s.Kind))
	}
}

// OutputColumns folds the step's effect on a column-name sequence. Only
// RenameColumn and RemoveColumns change it; every other kind passes the
// sequence through.
func (s Step) OutputColumns(columns []string) []string {
	switch s.Kind {
	case RenameColumn:
		out := make([]string, len(columns))
		for i, c := range columns {
			if c == s.Column {
				out[i] = s.Params.NewName
			} else {
				out[i] = c
			}
		}
		return out

	case RemoveColumns:
		dropped := make(map[string]bool, len(s.Params.Columns))
		for _, c := range s.Params.Columns {
			dropped[c] = true
		}
		out := make([]string, 0, len(columns))
		for _, c := range columns {
			if !dropped[c] {
				out = append(out, c)
			}
		}
		return out

	default:
		return append([]string(nil), columns...)
	}
}

func (s Step) applyFillNulls(t table.Table) table.Table {
	fill := any(s.Params.FillValue)

	switch s.Params.Strategy {
	case FillMean:
		if m, ok := stats.Mean(numericColumn(t, s.Column)); ok {
			fill = m
		}
	case FillMedian:
		if m, ok := stats.Median(numericColumn(t, s.Column)); ok {
			fill = m
		}
	case FillMode:
		var candidates []string
		for _, r := range t.Rows {
			if !table.IsMissing(r[s.Column]) {
				candidates = append(candidates, table.Stringify(r[s.Column]))
			}
		}
		if m, ok := stats.Mode(candidates); ok {
			fill = m
		}
	}

	return mapColumn(t, s.Column, func(v any) any {
		if table.IsMissing(v) {
			return fill
		}
		return v
	})
}

func (s Step) applyComparator(t table.Table) table.Table {
	op := s.Params.Operator
	rhs := s.Params.Value

	return filterRows(t, func(r table.Row) bool {
		v := r[s.Column]
		switch op {
		case ">":
			a, aok := table.Number(v)
			b, bok := table.Number(rhs)
			return aok && bok && a > b
		case "<":
			a, aok := table.Number(v)
			b, bok := table.Number(rhs)
			return aok && bok && a < b
		case "=":
			return table.ScalarEqual(v, rhs)
		case "!=":
			return !table.ScalarEqual(v, rhs)
		default:
			return true
		}
	})
}

func (s Step) applyChangeType(t table.Table) table.Table {
	switch strings.ToLower(s.Params.NewType) {
	case "number":
		return mapColumn(t, s.Column, func(v any) any {
			if n, ok := table.Number(v); ok {
				return n
			}
			return float64(0)
		})

	case "text":
		return mapColumn(t, s.Column, func(v any) any {
			return table.Stringify(v)
		})

	case "date":
		return mapColumn(t, s.Column, func(v any) any {
			if ts, ok := infer.ParseDate(table.Stringify(v)); ok {
				return ts.Format("2006-01-02")
			}
			// Unparsable input yields a string sentinel, not an error.
			return "Invalid Date"
		})

	default:
		return t.Clone()
	}
}

func (s Step) applyRemoveDuplicates(t table.Table) table.Table {
	seen := make(map[string]bool, len(t.Rows))
	return filterRows(t, func(r table.Row) bool {
		k := dedupeKey(r[s.Column])
		if seen[k] {
			return false
		}
		seen[k] = true
		return true
	})
}

func (s Step) applyRemoveOutliers(t table.Table) table.Table {
	lower, upper, ok := stats.OutlierBounds(numericColumn(t, s.Column))
	if !ok {
		return t.Clone()
	}
	return filterRows(t, func(r table.Row) bool {
		n, numeric := table.Number(r[s.Column])
		if !numeric {
			// Rows with non-numeric values are retained, unaffected by the
			// filter; only numeric cells are judged against the fence.
			return true
		}
		return n >= lower && n <= upper
	})
}

func (s Step) applyRename(t table.Table) table.Table {
	out := table.Table{
		Columns: s.OutputColumns(t.Columns),
		Rows:    make([]table.Row, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		nr := make(table.Row, len(r))
		for k, v := range r {
			if k == s.Column {
				nr[s.Params.NewName] = v
			} else {
				nr[k] = v
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

func (s Step) applyRemoveColumns(t table.Table) table.Table {
	dropped := make(map[string]bool, len(s.Params.Columns))
	for _, c := range s.Params.Columns {
		dropped[c] = true
	}

	out := table.Table{
		Columns: s.OutputColumns(t.Columns),
		Rows:    make([]table.Row, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		nr := make(table.Row, len(r))
		for k, v := range r {
			if !dropped[k] {
				nr[k] = v
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// filterRows copies t keeping only rows for which keep returns true.
func filterRows(t table.Table, keep func(table.Row) bool) table.Table {
	out := table.Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]table.Row, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		if !keep(r) {
			continue
		}
		nr := make(table.Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// mapColumn copies t applying fn to one column of every row.
func mapColumn(t table.Table, column string, fn func(any) any) table.Table {
	out := table.Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]table.Row, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		nr := make(table.Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		nr[column] = fn(nr[column])
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// numericColumn extracts the parseable numeric values of a column, in row
// order. Non-numeric cells are excluded from the computation (their rows are
// a concern of the caller, not of the statistic).
func numericColumn(t table.Table, column string) []float64 {
	out := make([]float64, 0, len(t.Rows))
	for _, r := range t.Rows {
		if n, ok := table.Number(r[column]); ok {
			out = append(out, n)
		}
	}
	return out
}

// dedupeKey produces the identity key for RemoveDuplicates. A missing value
// is encoded as a single NUL byte so that nil differs from empty string.
func dedupeKey(v any) string {
	if v == nil {
		return "\x00"
	}
	return table.Stringify(v)
}
