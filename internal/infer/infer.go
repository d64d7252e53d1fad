// Package infer classifies table columns into a coarse type tag from sampled
// values.
//
// The policy is intentionally naive: only the first non-missing value of a
// column is examined, so a mixed-type column is tagged by whatever happens to
// appear first. Inference runs once at load time and is not re-run after
// type-changing transformation steps; those declare their own output type.
package infer

import (
	"strings"
	"time"

	"dataprep/internal/table"
)

// ColumnType is the closed set of column type tags.
type ColumnType int

const (
	Text ColumnType = iota
	Number
	Date
)

func (t ColumnType) String() string {
	switch t {
	case Number:
		return "number"
	case Date:
		return "date"
	default:
		return "text"
	}
}

// ParseColumnType maps external type labels onto a ColumnType. Upload
// descriptors use "numeric"; the engine's own labels are "number", "date",
// "text". Unknown labels fall back to Text.
func ParseColumnType(s string) ColumnType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number", "numeric", "integer", "float":
		return Number
	case "date", "datetime", "timestamp":
		return Date
	default:
		return Text
	}
}

// dateLayouts are tried in order by ParseDate. The list is biased toward ISO
// forms, then common slash-separated forms (month first).
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
}

// ParseDate parses a calendar date from a string cell.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Infer classifies a column from its sampled values.
//
// The first non-missing value decides: finite number -> Number, parsable
// calendar date -> Date, anything else (or an all-missing sample) -> Text.
func Infer(column string, sample []any) ColumnType {
	_ = column // tag depends only on values; name kept for the contract

	for _, v := range sample {
		if table.IsMissing(v) {
			continue
		}
		if _, ok := table.Number(v); ok {
			return Number
		}
		if s, ok := v.(string); ok {
			if _, ok := ParseDate(s); ok {
				return Date
			}
		}
		return Text
	}
	return Text
}

// Table infers every column of t, keyed by column name.
func Table(t table.Table) map[string]ColumnType {
	out := make(map[string]ColumnType, len(t.Columns))
	for _, c := range t.Columns {
		out[c] = Infer(c, t.ColumnValues(c))
	}
	return out
}
