// Package dataset loads the upload/analysis service's dataset descriptor and
// turns its sampled rows into an engine table.
//
// The descriptor is the only input contract the engine has with the upload
// side: ordered column names, a type hint map, a bounded row sample (the
// service emits it under either "preview" or "sample_data"), and the total
// row count of the original file. A missing or malformed descriptor is not an
// error; the engine falls back to a fixed built-in demo table so the editor
// always has something to operate on.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dataprep/internal/infer"
	"dataprep/internal/table"
)

// MaxSampleRows caps how many descriptor rows are loaded. The engine replays
// the whole pipeline on every mutation, so the sample staying small is what
// keeps interactive latency small.
const MaxSampleRows = 100

// Descriptor mirrors the upload service's dataset payload.
type Descriptor struct {
	ColumnNames  []string          `json:"column_names"`
	ColumnTypes  map[string]string `json:"inferred_column_types"`
	Preview      []map[string]any  `json:"preview"`
	SampleData   []map[string]any  `json:"sample_data"`
	NumberOfRows int               `json:"number_of_rows"`
}

// rows returns whichever sample field the service populated.
func (d Descriptor) rows() []map[string]any {
	if len(d.Preview) > 0 {
		return d.Preview
	}
	return d.SampleData
}

// Dataset is a loaded source table plus its type hints.
type Dataset struct {
	Table table.Table
	// Types are the effective load-time column types: the descriptor's hints
	// where present, first-value inference otherwise.
	Types map[string]infer.ColumnType
	// TotalRows is the row count of the original file, which can exceed the
	// loaded sample.
	TotalRows int
	// Fallback is true when the demo table was substituted.
	Fallback bool
}

// Load decodes a descriptor from r. Any defect - decode failure, no columns,
// no sample rows - yields the demo dataset instead of an error.
func Load(r io.Reader) Dataset {
	var d Descriptor
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return Demo()
	}
	return FromDescriptor(d)
}

// LoadFile opens and decodes a descriptor file, with the same fallback
// behavior as Load.
func LoadFile(path string) Dataset {
	f, err := os.Open(path)
	if err != nil {
		return Demo()
	}
	defer f.Close()
	return Load(f)
}

// FromDescriptor builds a Dataset from a decoded descriptor, falling back to
// the demo table when the descriptor is unusable.
func FromDescriptor(d Descriptor) Dataset {
	sample := d.rows()
	if len(d.ColumnNames) == 0 || len(sample) == 0 {
		return Demo()
	}
	if len(sample) > MaxSampleRows {
		sample = sample[:MaxSampleRows]
	}

	t := table.New(d.ColumnNames)
	for _, src := range sample {
		r := make(table.Row, len(t.Columns))
		for _, c := range t.Columns {
			r[c] = normalizeCell(src[c])
		}
		t.Rows = append(t.Rows, r)
	}

	types := infer.Table(t)
	for c, label := range d.ColumnTypes {
		if t.HasColumn(c) {
			types[c] = infer.ParseColumnType(label)
		}
	}

	total := d.NumberOfRows
	if total < len(t.Rows) {
		total = len(t.Rows)
	}

	return Dataset{Table: t, Types: types, TotalRows: total}
}

// FromTable wraps an already-built table (e.g. parsed delimited text) as a
// Dataset, inferring column types from its values.
func FromTable(t table.Table) Dataset {
	return Dataset{
		Table:     t,
		Types:     infer.Table(t),
		TotalRows: t.RowCount(),
	}
}

// normalizeCell reduces a decoded JSON value to the engine's cell domain:
// nil, float64, or string.
func normalizeCell(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return t
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// Demo returns the built-in fallback table: a small employee sample with the
// defects the editor's steps are meant to exercise (missing values, an
// obvious salary outlier, mixed-case text, a duplicate city).
func Demo() Dataset {
	t := table.Table{
		Columns: []string{"Name", "Age", "City", "Salary", "JoinDate"},
		Rows: []table.Row{
			{"Name": "Alice Johnson", "Age": float64(34), "City": "Berlin", "Salary": float64(52000), "JoinDate": "2019-04-12"},
			{"Name": "Bob Smith", "Age": float64(28), "City": "berlin", "Salary": float64(48500), "JoinDate": "2020-11-03"},
			{"Name": "Carla Diaz", "Age": nil, "City": "Madrid", "Salary": float64(51000), "JoinDate": "2018-07-21"},
			{"Name": "Dan Lee", "Age": float64(45), "City": "Oslo", "Salary": float64(460000), "JoinDate": "2016-01-15"},
			{"Name": "Eve Novak", "Age": float64(31), "City": "", "Salary": float64(49800), "JoinDate": "2021-02-09"},
			{"Name": "Frank Mills", "Age": float64(52), "City": "Madrid", "Salary": nil, "JoinDate": "2015-09-30"},
			{"Name": "Grace Chen", "Age": float64(26), "City": "Berlin", "Salary": float64(47200), "JoinDate": "2022-05-18"},
			{"Name": "Hugo Brandt", "Age": float64(39), "City": "Vienna", "Salary": float64(53500), "JoinDate": "2017-12-01"},
		},
	}
	return Dataset{
		Table:     t,
		Types:     infer.Table(t),
		TotalRows: t.RowCount(),
		Fallback:  true,
	}
}
