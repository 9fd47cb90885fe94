// Package survey holds the in-memory response table the report is built from.
//
// A Table is never mutated after construction: filtering, renaming and
// filling produce new tables that may share row storage with their source.
package survey

import (
	"fmt"
	"sort"
)

// SourceColumn is the provenance column naming the export file a row came from.
const SourceColumn = "source_file"

// Table is a rectangular set of respondent rows. Cells are display strings;
// an empty cell means the respondent gave no (valid) answer.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// NewTable creates an empty table with the given column names. Duplicate
// names keep their first position.
func NewTable(columns ...string) *Table {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		if _, ok := t.index[c]; ok {
			continue
		}
		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	return t
}

// AppendRow adds one row. values must line up with Columns().
func (t *Table) AppendRow(values ...string) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}
	row := make([]string, len(values))
	copy(row, values)
	t.rows = append(t.rows, row)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Columns returns a copy of the column names in table order.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether name is part of the schema.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Column looks a column up by name. The boolean is false when this table's
// schema has no such column, which is normal for questions that were not
// asked in every survey wave.
func (t *Table) Column(name string) (Column, bool) {
	if t == nil {
		return Column{}, false
	}
	idx, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return Column{t: t, idx: idx, Name: name}, true
}

// Row returns a view on row i.
func (t *Table) Row(i int) Row {
	return Row{t: t, i: i}
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := t.shallow()
	for i := range t.rows {
		if keep(Row{t: t, i: i}) {
			out.rows = append(out.rows, t.rows[i])
		}
	}
	return out
}

func (t *Table) shallow() *Table {
	out := &Table{
		columns: t.columns,
		index:   t.index,
	}
	return out
}

// Concat stacks tables on top of each other. The result's columns are the
// union of all inputs in first-seen order; cells a table does not have are
// left empty.
func Concat(tables ...*Table) *Table {
	var columns []string
	seen := make(map[string]bool)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}

	out := NewTable(columns...)
	for _, t := range tables {
		if t == nil {
			continue
		}
		mapping := make([]int, len(t.columns))
		for i, c := range t.columns {
			mapping[i] = out.index[c]
		}
		for _, r := range t.rows {
			row := make([]string, len(columns))
			for i, v := range r {
				row[mapping[i]] = v
			}
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// Column is a resolved column of a specific table.
type Column struct {
	t    *Table
	idx  int
	Name string
}

// Value returns the cell of row i.
func (c Column) Value(i int) string {
	return c.t.rows[i][c.idx]
}

// Values returns every cell of the column in row order.
func (c Column) Values() []string {
	out := make([]string, len(c.t.rows))
	for i, r := range c.t.rows {
		out[i] = r[c.idx]
	}
	return out
}

// Distinct returns the non-empty values of the column in natural order.
func (c Column) Distinct() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range c.t.rows {
		v := r[c.idx]
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return NaturalLess(out[i], out[j]) })
	return out
}

// Row is a read-only view of one respondent.
type Row struct {
	t *Table
	i int
}

// Get returns the cell for column name, or "" if the column does not exist.
func (r Row) Get(name string) string {
	idx, ok := r.t.index[name]
	if !ok {
		return ""
	}
	return r.t.rows[r.i][idx]
}
