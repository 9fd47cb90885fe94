package survey

// Rename returns a table whose columns are renamed according to names
// (old -> new). Unknown old names are ignored. A rename onto an existing
// column name is skipped so no data is silently shadowed.
func (t *Table) Rename(names map[string]string) *Table {
	columns := t.Columns()
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		taken[c] = true
	}
	for i, c := range columns {
		to, ok := names[c]
		if !ok || to == "" || to == c || taken[to] {
			continue
		}
		delete(taken, c)
		taken[to] = true
		columns[i] = to
	}

	out := NewTable(columns...)
	out.rows = t.rows
	return out
}

// FillEmpty returns a table in which empty cells of column are replaced by
// value. The table is returned unchanged when the column does not exist.
func (t *Table) FillEmpty(column, value string) *Table {
	col, ok := t.Column(column)
	if !ok {
		return t
	}
	out := t.shallow()
	out.rows = make([][]string, len(t.rows))
	for i, r := range t.rows {
		if r[col.idx] != "" {
			out.rows[i] = r
			continue
		}
		row := make([]string, len(r))
		copy(row, r)
		row[col.idx] = value
		out.rows[i] = row
	}
	return out
}

// WithColumn returns a table in which every row holds value in column. The
// column is appended when it does not exist and overwritten when it does.
func (t *Table) WithColumn(column, value string) *Table {
	columns := t.Columns()
	idx, exists := t.index[column]
	if !exists {
		idx = len(columns)
		columns = append(columns, column)
	}
	out := NewTable(columns...)
	out.rows = make([][]string, len(t.rows))
	for i, r := range t.rows {
		row := make([]string, len(columns))
		copy(row, r)
		row[idx] = value
		out.rows[i] = row
	}
	return out
}
