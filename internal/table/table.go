// Package table defines the in-memory tabular data model shared by the
// transformation engine, the quality analyzer, and the exporter.
//
// A cell holds one of:
//   - nil (missing value)
//   - float64 (number)
//   - string (text, including date-as-text)
//
// There is no per-column type enforcement across rows; column types are a
// derived observation (see internal/infer), never an invariant of the model.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Row is an insertion-ordered mapping from column name to cell value.
// Ordering is carried by Table.Columns, not by the map itself.
type Row map[string]any

// Table is an ordered sequence of rows plus an ordered column-name sequence.
//
// Invariant: every row's key set equals Columns (as a set). Construction and
// transformation code is responsible for maintaining it; the type does not
// enforce it on mutation.
type Table struct {
	Columns []string
	Rows    []Row
}

// New returns an empty table with the given column order.
func New(columns []string) Table {
	return Table{Columns: append([]string(nil), columns...)}
}

// RowCount returns the number of rows.
func (t Table) RowCount() int { return len(t.Rows) }

// HasColumn reports whether name is in the column sequence.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ColumnValues returns the column's values in row order.
func (t Table) ColumnValues(name string) []any {
	out := make([]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, r[name])
	}
	return out
}

// Clone returns a deep copy: new column slice, new row slice, new row maps.
// Cell values themselves are immutable scalars and are shared.
func (t Table) Clone() Table {
	out := Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Equal reports value-identity of two tables: same column order, same row
// order, and scalar-equal cells.
func Equal(a, b Table) bool {
	if len(a.Columns) != len(b.Columns) || len(a.Rows) != len(b.Rows) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	for i := range a.Rows {
		for _, c := range a.Columns {
			if !ScalarEqual(a.Rows[i][c], b.Rows[i][c]) {
				return false
			}
		}
	}
	return true
}

// IsMissing reports whether a cell counts as null for step and quality
// semantics: nil or empty string.
func IsMissing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// Number extracts a finite numeric value from a cell. Strings are parsed
// after trimming edge whitespace.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Stringify renders a cell with default string coercion: nil becomes "",
// numbers use the shortest round-trip decimal form ("30", not "30.000000").
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}

// ScalarEqual compares two cells by stringified form, which matches the
// loosely-typed comparison semantics of the step catalog (a cell holding
// float64(30) equals a cell holding "30").
func ScalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Stringify(a) == Stringify(b)
}
