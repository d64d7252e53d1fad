package step

import (
	"testing"

	"dataprep/internal/table"
)

func newTable(columns []string, rows ...table.Row) table.Table {
	return table.Table{Columns: columns, Rows: rows}
}

func columnValues(t table.Table, col string) []any {
	out := make([]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, r[col])
	}
	return out
}

// TestApplyIsPure verifies that Apply never mutates its input table. Every
// downstream guarantee (deterministic recompute, snapshot integrity) depends
// on steps copying rather than editing in place.
func TestApplyIsPure(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"Name", "Age"},
		table.Row{"Name": "a", "Age": float64(1)},
		table.Row{"Name": "b", "Age": nil},
	)
	want := src.Clone()

	steps := []Step{
		{Kind: RemoveNulls, Column: "Age"},
		{Kind: FillNulls, Column: "Age", Params: Params{FillValue: "0"}},
		{Kind: Uppercase, Column: "Name"},
		{Kind: ChangeType, Column: "Age", Params: Params{NewType: "text"}},
		{Kind: RenameColumn, Column: "Age", Params: Params{NewName: "Years"}},
		{Kind: RemoveColumns, Params: Params{Columns: []string{"Age"}}},
	}
	for _, s := range steps {
		_ = s.Apply(src)
		if !table.Equal(src, want) {
			t.Fatalf("step %s mutated its input", s.Kind)
		}
	}
}

func TestRemoveNulls(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"Age"},
		table.Row{"Age": float64(30)},
		table.Row{"Age": nil},
		table.Row{"Age": ""},
		table.Row{"Age": float64(25)},
	)

	out := Step{Kind: RemoveNulls, Column: "Age"}.Apply(src)
	if out.RowCount() != 2 {
		t.Fatalf("rows = %d, want 2", out.RowCount())
	}
	if got := columnValues(out, "Age"); got[0] != float64(30) || got[1] != float64(25) {
		t.Fatalf("kept values = %v", got)
	}
}

// TestFillNullsLiteral covers the fill-then-pass-through contract: missing
// values are substituted verbatim, everything else flows through untouched.
func TestFillNullsLiteral(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"Age"},
		table.Row{"Age": float64(30)},
		table.Row{"Age": nil},
		table.Row{"Age": float64(25)},
	)

	out := Step{Kind: FillNulls, Column: "Age", Params: Params{FillValue: "0"}}.Apply(src)

	want := []any{float64(30), "0", float64(25)}
	got := columnValues(out, "Age")
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d = %#v, want %#v", i, got[i], want[i])
		}
	}
}

func TestFillNullsStrategies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strategy FillStrategy
		values   []any
		want     any
	}{
		{"mean", FillMean, []any{float64(10), nil, float64(20)}, float64(15)},
		{"median", FillMedian, []any{float64(1), nil, float64(2), float64(100)}, float64(2)},
		{"mode picks most frequent", FillMode, []any{"a", "b", "b", nil}, "b"},
		// Ties break toward the smallest value, not input order.
		{"mode tie break", FillMode, []any{"b", "a", nil}, "a"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rows := make([]table.Row, 0, len(tt.values))
			for _, v := range tt.values {
				rows = append(rows, table.Row{"C": v})
			}
			src := newTable([]string{"C"}, rows...)

			out := Step{Kind: FillNulls, Column: "C", Params: Params{Strategy: tt.strategy}}.Apply(src)
			for i, v := range columnValues(out, "C") {
				if tt.values[i] != nil {
					continue
				}
				if v != tt.want {
					t.Fatalf("filled value = %#v, want %#v", v, tt.want)
				}
			}
		})
	}
}

func TestFilterRows(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"City"},
		table.Row{"City": "Berlin"},
		table.Row{"City": "MADRID"},
		table.Row{"City": "Oslo"},
		table.Row{"City": nil},
	)

	out := Step{Kind: FilterRows, Column: "City", Params: Params{Substring: "mad"}}.Apply(src)
	if out.RowCount() != 1 || out.Rows[0]["City"] != "MADRID" {
		t.Fatalf("got %v", out.Rows)
	}
}

func TestFilterByComparator(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"V"},
		table.Row{"V": float64(10)},
		table.Row{"V": "15"},
		table.Row{"V": "abc"},
		table.Row{"V": nil},
	)

	tests := []struct {
		name     string
		operator string
		value    string
		wantRows int
	}{
		// Numeric comparison parses both sides; unparsable cells never match.
		{"greater", ">", "12", 1},
		{"less", "<", "12", 1},
		{"equal compares as-is", "=", "15", 1},
		{"not equal keeps the rest", "!=", "15", 3},
		{"equal matches number against string", "=", "10", 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := Step{
				Kind:   FilterByComparator,
				Column: "V",
				Params: Params{Operator: tt.operator, Value: tt.value},
			}.Apply(src)
			if out.RowCount() != tt.wantRows {
				t.Fatalf("rows = %d, want %d", out.RowCount(), tt.wantRows)
			}
		})
	}
}

// TestChangeType verifies the total-function contract of type coercion:
// malformed input degrades to sentinels (0, "Invalid Date") and never fails.
func TestChangeType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		newType string
		in      any
		want    any
	}{
		{"number from string", "number", "42.5", float64(42.5)},
		{"number sentinel", "number", "abc", float64(0)},
		{"number from nil", "number", nil, float64(0)},
		{"text from number", "text", float64(30), "30"},
		{"text from nil", "text", nil, ""},
		{"date iso reformat", "date", "2021/02/09", "2021-02-09"},
		{"date from slash month first", "date", "02/09/2021", "2021-02-09"},
		{"date sentinel", "date", "not a date", "Invalid Date"},
		{"date sentinel from nil", "date", nil, "Invalid Date"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := newTable([]string{"C"}, table.Row{"C": tt.in})
			out := Step{Kind: ChangeType, Column: "C", Params: Params{NewType: tt.newType}}.Apply(src)
			if got := out.Rows[0]["C"]; got != tt.want {
				t.Fatalf("ChangeType(%s, %#v) = %#v, want %#v", tt.newType, tt.in, got, tt.want)
			}
		})
	}
}

// TestRemoveDuplicates verifies first-occurrence-wins, order preservation,
// and that a missing value and an empty string count as distinct identities.
func TestRemoveDuplicates(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"City", "N"},
		table.Row{"City": "Berlin", "N": float64(1)},
		table.Row{"City": "Madrid", "N": float64(2)},
		table.Row{"City": "Berlin", "N": float64(3)},
		table.Row{"City": nil, "N": float64(4)},
		table.Row{"City": "", "N": float64(5)},
	)

	out := Step{Kind: RemoveDuplicates, Column: "City"}.Apply(src)
	if out.RowCount() != 4 {
		t.Fatalf("rows = %d, want 4", out.RowCount())
	}
	// First Berlin row survives, second is dropped.
	if out.Rows[0]["N"] != float64(1) || out.Rows[1]["N"] != float64(2) {
		t.Fatalf("unexpected survivors: %v", out.Rows)
	}
	// nil and "" are distinct identities.
	if out.Rows[2]["N"] != float64(4) || out.Rows[3]["N"] != float64(5) {
		t.Fatalf("nil and empty collapsed: %v", out.Rows)
	}
}

func TestCaseFold(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"Name"},
		table.Row{"Name": "Alice"},
		table.Row{"Name": nil},
	)

	up := Step{Kind: Uppercase, Column: "Name"}.Apply(src)
	if up.Rows[0]["Name"] != "ALICE" || up.Rows[1]["Name"] != "" {
		t.Fatalf("uppercase: %v", up.Rows)
	}

	down := Step{Kind: Lowercase, Column: "Name"}.Apply(src)
	if down.Rows[0]["Name"] != "alice" {
		t.Fatalf("lowercase: %v", down.Rows)
	}
}

// TestRemoveOutliers replays the salary fixture: Q1/Q3 over sorted
// [10,11,12,13,1000] give bounds that exclude only 1000.
func TestRemoveOutliers(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"Salary"},
		table.Row{"Salary": float64(10)},
		table.Row{"Salary": float64(12)},
		table.Row{"Salary": float64(11)},
		table.Row{"Salary": float64(13)},
		table.Row{"Salary": float64(1000)},
	)

	out := Step{Kind: RemoveOutliers, Column: "Salary"}.Apply(src)
	if out.RowCount() != 4 {
		t.Fatalf("rows = %d, want 4", out.RowCount())
	}
	for _, r := range out.Rows {
		if r["Salary"] == float64(1000) {
			t.Fatal("outlier row survived")
		}
	}
}

// TestRemoveOutliersIdempotence pins down both behaviors of repeated
// application: a fixture where the second pass is a no-op, and one where the
// re-derived tighter bounds legitimately remove more rows.
func TestRemoveOutliersIdempotence(t *testing.T) {
	t.Parallel()

	s := Step{Kind: RemoveOutliers, Column: "V"}

	t.Run("second pass is a no-op", func(t *testing.T) {
		t.Parallel()

		src := newTable([]string{"V"},
			table.Row{"V": float64(10)},
			table.Row{"V": float64(12)},
			table.Row{"V": float64(11)},
			table.Row{"V": float64(13)},
			table.Row{"V": float64(1000)},
		)
		once := s.Apply(src)
		twice := s.Apply(once)
		if !table.Equal(once, twice) {
			t.Fatalf("second pass changed the table: %v vs %v", once.Rows, twice.Rows)
		}
	})

	t.Run("second pass can remove more", func(t *testing.T) {
		t.Parallel()

		src := newTable([]string{"V"},
			table.Row{"V": float64(1)},
			table.Row{"V": float64(2)},
			table.Row{"V": float64(3)},
			table.Row{"V": float64(4)},
			table.Row{"V": float64(100)},
			table.Row{"V": float64(1000)},
		)
		once := s.Apply(src)
		if once.RowCount() != 5 {
			t.Fatalf("first pass rows = %d, want 5", once.RowCount())
		}
		twice := s.Apply(once)
		if twice.RowCount() != 4 {
			t.Fatalf("second pass rows = %d, want 4", twice.RowCount())
		}
	})
}

func TestRemoveOutliersRetainsNonNumericRows(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"V"},
		table.Row{"V": float64(10)},
		table.Row{"V": "n/a"},
		table.Row{"V": float64(11)},
		table.Row{"V": float64(12)},
		table.Row{"V": float64(13)},
		table.Row{"V": float64(1000)},
	)

	out := Step{Kind: RemoveOutliers, Column: "V"}.Apply(src)
	found := false
	for _, r := range out.Rows {
		if r["V"] == "n/a" {
			found = true
		}
		if r["V"] == float64(1000) {
			t.Fatal("outlier row survived")
		}
	}
	if !found {
		t.Fatal("non-numeric row was dropped by the outlier filter")
	}
}

func TestRenameColumn(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"Name", "Age"},
		table.Row{"Name": "a", "Age": float64(1)},
	)

	out := Step{Kind: RenameColumn, Column: "Age", Params: Params{NewName: "Years"}}.Apply(src)
	if out.Columns[1] != "Years" {
		t.Fatalf("columns = %v", out.Columns)
	}
	if _, ok := out.Rows[0]["Age"]; ok {
		t.Fatal("old key still present in row")
	}
	if out.Rows[0]["Years"] != float64(1) {
		t.Fatalf("value lost: %v", out.Rows[0])
	}
}

// TestRemoveColumns is the column-projection scenario: dropping City from
// [Name,City,Age] leaves [Name,Age] and strips the key from every row.
func TestRemoveColumns(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"Name", "City", "Age"},
		table.Row{"Name": "a", "City": "Berlin", "Age": float64(1)},
		table.Row{"Name": "b", "City": "Oslo", "Age": float64(2)},
	)

	out := Step{Kind: RemoveColumns, Params: Params{Columns: []string{"City"}}}.Apply(src)
	if len(out.Columns) != 2 || out.Columns[0] != "Name" || out.Columns[1] != "Age" {
		t.Fatalf("columns = %v", out.Columns)
	}
	for i, r := range out.Rows {
		if _, ok := r["City"]; ok {
			t.Fatalf("row %d still has City", i)
		}
	}
}

// TestOrderSensitivity verifies that step order is semantic, not cosmetic:
// filling nulls before removing them preserves every row, the reverse drops
// the null rows first.
func TestOrderSensitivity(t *testing.T) {
	t.Parallel()

	src := newTable([]string{"Age"},
		table.Row{"Age": float64(30)},
		table.Row{"Age": nil},
		table.Row{"Age": float64(25)},
	)

	fill := Step{Kind: FillNulls, Column: "Age", Params: Params{FillValue: "X"}}
	remove := Step{Kind: RemoveNulls, Column: "Age"}

	fillFirst := remove.Apply(fill.Apply(src))
	if fillFirst.RowCount() != 3 {
		t.Fatalf("fill-then-remove rows = %d, want 3", fillFirst.RowCount())
	}

	removeFirst := fill.Apply(remove.Apply(src))
	if removeFirst.RowCount() != 2 {
		t.Fatalf("remove-then-fill rows = %d, want 2", removeFirst.RowCount())
	}

	if table.Equal(fillFirst, removeFirst) {
		t.Fatal("orderings produced identical tables")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	columns := []string{"Name", "Age"}

	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{"valid remove nulls", Step{Kind: RemoveNulls, Column: "Age"}, false},
		{"missing column", Step{Kind: RemoveNulls, Column: "Ghost"}, true},
		{"empty column", Step{Kind: RemoveNulls}, true},
		{"valid comparator", Step{Kind: FilterByComparator, Column: "Age", Params: Params{Operator: ">", Value: "1"}}, false},
		{"bad comparator", Step{Kind: FilterByComparator, Column: "Age", Params: Params{Operator: ">="}}, true},
		{"valid change type", Step{Kind: ChangeType, Column: "Age", Params: Params{NewType: "number"}}, false},
		{"bad change type", Step{Kind: ChangeType, Column: "Age", Params: Params{NewType: "boolean"}}, true},
		{"valid rename", Step{Kind: RenameColumn, Column: "Age", Params: Params{NewName: "Years"}}, false},
		{"rename collision", Step{Kind: RenameColumn, Column: "Age", Params: Params{NewName: "Name"}}, true},
		{"rename empty target", Step{Kind: RenameColumn, Column: "Age"}, true},
		{"valid remove columns", Step{Kind: RemoveColumns, Params: Params{Columns: []string{"Age"}}}, false},
		{"remove unknown column", Step{Kind: RemoveColumns, Params: Params{Columns: []string{"Ghost"}}}, true},
		{"remove no columns", Step{Kind: RemoveColumns}, true},
		{"bad fill strategy", Step{Kind: FillNulls, Column: "Age", Params: Params{Strategy: "mystery"}}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.step.Validate(columns)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOutputColumns(t *testing.T) {
	t.Parallel()

	columns := []string{"Name", "City", "Age"}

	rename := Step{Kind: RenameColumn, Column: "City", Params: Params{NewName: "Town"}}
	got := rename.OutputColumns(columns)
	if got[1] != "Town" {
		t.Fatalf("rename fold = %v", got)
	}

	remove := Step{Kind: RemoveColumns, Params: Params{Columns: []string{"City", "Age"}}}
	got = remove.OutputColumns(columns)
	if len(got) != 1 || got[0] != "Name" {
		t.Fatalf("remove fold = %v", got)
	}

	passthrough := Step{Kind: RemoveNulls, Column: "Age"}
	got = passthrough.OutputColumns(columns)
	if len(got) != 3 {
		t.Fatalf("passthrough fold = %v", got)
	}
}

func TestKindRoundTrip(t *testing.T) {
	t.Parallel()

	for k := range kindNames {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("no_such_kind"); ok {
		t.Fatal("ParseKind accepted an unknown label")
	}
}
