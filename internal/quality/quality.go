// Package quality computes per-column and overall statistics over the current
// output table. It is read-only and recomputed on demand; nothing here is
// cached from prior transformation steps.
package quality

import (
	"dataprep/internal/infer"
	"dataprep/internal/stats"
	"dataprep/internal/table"
)

// ColumnProfile is the derived per-column report. It is never stored as
// authoritative state.
type ColumnProfile struct {
	Name           string           `json:"name"`
	Type           infer.ColumnType `json:"-"`
	TypeLabel      string           `json:"type"`
	NullCount      int              `json:"null_count"`
	NullPercentage float64          `json:"null_percentage"`
	UniqueCount    int              `json:"unique_count"`

	// OutlierCount is computed for numeric columns only, via the same IQR
	// fence the outlier-removal step uses, re-derived from current values.
	OutlierCount int  `json:"outlier_count"`
	Numeric      bool `json:"numeric"`
}

// Report is the table-level quality summary.
type Report struct {
	Columns []ColumnProfile `json:"columns"`
	Rows    int             `json:"rows"`

	// Score is max(0, 100 - 2 * average(null percentage across columns)).
	Score float64 `json:"score"`

	// Grade buckets the score: Excellent >= 90, Good >= 70, Fair >= 50,
	// otherwise Poor.
	Grade string `json:"grade"`

	// ReadyForML is true when Score >= 70.
	ReadyForML bool `json:"ready_for_ml"`
}

// Analyze profiles every column of t. types carries the effective column
// types (load-time inference plus any declared coercions); columns absent
// from the map are treated as text.
func Analyze(t table.Table, types map[string]infer.ColumnType) Report {
	rep := Report{
		Columns: make([]ColumnProfile, 0, len(t.Columns)),
		Rows:    t.RowCount(),
	}

	var nullPctSum float64
	for _, name := range t.Columns {
		p := profileColumn(t, name, types[name])
		nullPctSum += p.NullPercentage
		rep.Columns = append(rep.Columns, p)
	}

	avgNullPct := 0.0
	if len(rep.Columns) > 0 {
		avgNullPct = nullPctSum / float64(len(rep.Columns))
	}
	rep.Score = 100 - 2*avgNullPct
	if rep.Score < 0 {
		rep.Score = 0
	}
	rep.Grade = grade(rep.Score)
	rep.ReadyForML = rep.Score >= 70
	return rep
}

func profileColumn(t table.Table, name string, typ infer.ColumnType) ColumnProfile {
	p := ColumnProfile{
		Name:      name,
		Type:      typ,
		TypeLabel: typ.String(),
		Numeric:   typ == infer.Number,
	}

	distinct := make(map[string]struct{}, len(t.Rows))
	var numeric []float64

	for _, r := range t.Rows {
		v := r[name]
		if table.IsMissing(v) {
			p.NullCount++
			continue
		}
		distinct[table.Stringify(v)] = struct{}{}
		if n, ok := table.Number(v); ok {
			numeric = append(numeric, n)
		}
	}
	p.UniqueCount = len(distinct)

	if t.RowCount() > 0 {
		p.NullPercentage = float64(p.NullCount) / float64(t.RowCount()) * 100
	}

	if p.Numeric {
		if lower, upper, ok := stats.OutlierBounds(numeric); ok {
			for _, n := range numeric {
				if n < lower || n > upper {
					p.OutlierCount++
				}
			}
		}
	}
	return p
}

func grade(score float64) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 70:
		return "Good"
	case score >= 50:
		return "Fair"
	default:
		return "Poor"
	}
}
