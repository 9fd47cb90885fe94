package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, columns []string, rows ...[]string) *Table {
	t.Helper()
	tbl := NewTable(columns...)
	for _, r := range rows {
		require.NoError(t, tbl.AppendRow(r...))
	}
	return tbl
}

func TestTable_AppendRow(t *testing.T) {
	tbl := NewTable("Q1", SourceColumn)

	assert.NoError(t, tbl.AppendRow("Online", "wave1.sav"))
	assert.Error(t, tbl.AppendRow("too", "many", "values"))
	assert.Equal(t, 1, tbl.Len())
	assert.False(t, tbl.Empty())
}

func TestTable_ColumnLookup(t *testing.T) {
	tbl := mustTable(t, []string{"Q1", "Q2"}, []string{"a", "1"}, []string{"b", ""})

	t.Run("present column", func(t *testing.T) {
		col, ok := tbl.Column("Q2")
		require.True(t, ok)
		assert.Equal(t, "Q2", col.Name)
		assert.Equal(t, []string{"1", ""}, col.Values())
	})

	t.Run("absent column", func(t *testing.T) {
		_, ok := tbl.Column("Q99")
		assert.False(t, ok)
		assert.False(t, tbl.HasColumn("Q99"))
	})

	t.Run("nil table", func(t *testing.T) {
		var nilTable *Table
		_, ok := nilTable.Column("Q1")
		assert.False(t, ok)
		assert.True(t, nilTable.Empty())
	})
}

func TestConcat(t *testing.T) {
	a := mustTable(t, []string{"Q1", SourceColumn}, []string{"x", "a.sav"})
	b := mustTable(t, []string{"Q2", SourceColumn}, []string{"y", "b.sav"})

	out := Concat(a, nil, b)

	assert.Equal(t, []string{"Q1", SourceColumn, "Q2"}, out.Columns())
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "x", out.Row(0).Get("Q1"))
	assert.Equal(t, "", out.Row(0).Get("Q2"))
	assert.Equal(t, "b.sav", out.Row(1).Get(SourceColumn))
	assert.Equal(t, "", out.Row(1).Get("Q1"))
}

func TestConcat_NoTables(t *testing.T) {
	out := Concat()
	assert.True(t, out.Empty())
	assert.Empty(t, out.Columns())
}

func TestColumn_Distinct(t *testing.T) {
	tbl := mustTable(t, []string{"Q2"},
		[]string{"10 (Very Satisfied)"}, []string{"2"}, []string{""},
		[]string{"9"}, []string{"2"}, []string{"1 (Very Dissatisfied)"})

	col, _ := tbl.Column("Q2")
	assert.Equal(t, []string{"1 (Very Dissatisfied)", "2", "9", "10 (Very Satisfied)"}, col.Distinct())
}

func TestNaturalLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"2", "10", true},
		{"10", "2", false},
		{"9", "10 (Very Satisfied)", true},
		{"5", "Apple", true},
		{"Apple", "5", false},
		{"Female", "Male", true},
		{"wave-2.sav", "wave-10.sav", true},
		{"wave-10.sav", "wave-2.sav", false},
		{"wave-02.sav", "wave-2.sav", false},
		{"wave-2.sav", "wave-2b.sav", true},
		{"wave.sav", "wave-1.sav", false},
	}
	for _, tc := range cases {
		t.Run(tc.a+" vs "+tc.b, func(t *testing.T) {
			assert.Equal(t, tc.want, NaturalLess(tc.a, tc.b))
		})
	}
}

func TestRenameAndFill(t *testing.T) {
	tbl := mustTable(t, []string{"Q20A", "Q25"}, []string{"Male", ""}, []string{"Female", "Yes"})

	renamed := tbl.Rename(map[string]string{"Q20A": "Gender", "Q404": "Nope"})
	assert.Equal(t, []string{"Gender", "Q25"}, renamed.Columns())
	assert.Equal(t, "Male", renamed.Row(0).Get("Gender"))

	filled := renamed.FillEmpty("Q25", "High school or less")
	assert.Equal(t, "High school or less", filled.Row(0).Get("Q25"))
	assert.Equal(t, "Yes", filled.Row(1).Get("Q25"))
	// source untouched
	assert.Equal(t, "", renamed.Row(0).Get("Q25"))

	assert.Same(t, renamed, renamed.FillEmpty("Missing", "x"))
}

func TestRename_DoesNotShadowExisting(t *testing.T) {
	tbl := mustTable(t, []string{"Q1", "Gender"}, []string{"a", "b"})
	out := tbl.Rename(map[string]string{"Q1": "Gender"})
	assert.Equal(t, []string{"Q1", "Gender"}, out.Columns())
}
