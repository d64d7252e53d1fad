// Package export serializes tables to delimited text and parses that format
// back into tables.
//
// Known limitation, kept on purpose: values are written with no quoting or
// escaping, so a value containing the field separator or a newline will not
// round-trip. The engine's tables come from bounded samples where this has
// not been a practical problem; callers that need full CSV semantics should
// quote upstream.
package export

import (
	"fmt"
	"io"
	"strings"

	"dataprep/internal/table"
)

// DefaultSeparator is the field separator used when none is specified.
const DefaultSeparator = ","

// Export renders t as delimited text: a header line of column names, then
// one line per row with values in column order, using default string
// coercion (nil renders empty).
func Export(t table.Table, sep string) string {
	if sep == "" {
		sep = DefaultSeparator
	}

	var b strings.Builder
	b.WriteString(strings.Join(t.Columns, sep))
	b.WriteByte('\n')

	for _, r := range t.Rows {
		for i, c := range t.Columns {
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(table.Stringify(r[c]))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Write streams the delimited form of t to w.
func Write(w io.Writer, t table.Table, sep string) error {
	_, err := io.WriteString(w, Export(t, sep))
	return err
}

// Parse reads delimited text produced by Export back into a table. All cells
// come back as strings (or nil for empty cells); the format carries no type
// information.
//
// Lines whose field count does not match the header are rejected, since with
// no quoting a mismatch always means corrupt input.
func Parse(data string, sep string) (table.Table, error) {
	if sep == "" {
		sep = DefaultSeparator
	}

	data = strings.TrimSuffix(data, "\n")
	if data == "" {
		return table.Table{}, fmt.Errorf("export: empty input")
	}

	lines := strings.Split(data, "\n")
	columns := strings.Split(lines[0], sep)
	t := table.New(columns)

	for i, line := range lines[1:] {
		fields := strings.Split(line, sep)
		if len(fields) != len(columns) {
			return table.Table{}, fmt.Errorf("export: line %d has %d fields, want %d", i+2, len(fields), len(columns))
		}
		r := make(table.Row, len(columns))
		for j, c := range columns {
			if fields[j] == "" {
				r[c] = nil
				continue
			}
			r[c] = fields[j]
		}
		t.Rows = append(t.Rows, r)
	}
	return t, nil
}
