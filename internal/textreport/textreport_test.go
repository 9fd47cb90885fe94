package textreport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godilite/surveydash/internal/service"
)

func TestWrite(t *testing.T) {
	r := &service.Report{
		Title:   []string{"ROXOR", "60-Day Satisfaction"},
		Rows:    5,
		Matched: 4,
		Files: []service.FileSummary{
			{Name: "a.sav", Rows: 5},
			{Name: "b.sav", Error: "not an SPSS system file"},
		},
		Sections: []service.Section{
			{
				Title:       "Dealer return experience",
				ValueFormat: "%.1f%%",
				Breakdown: &service.Breakdown{
					Categories: []string{"Poor", "Good"},
					Sources:    []string{"a.sav", "c.sav"},
					Values:     [][]float64{{25, 0}, {75, 0}},
					Totals:     []int{4, 0},
					NoData:     []bool{false, true},
				},
			},
			{Title: "Age", Notice: `Column "QD" is not present in the loaded data.`},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "ROXOR\n60-Day Satisfaction\n")
	assert.Contains(t, out, "5 respondents, 4 matching filters")
	assert.Contains(t, out, "warning: skipped b.sav: not an SPSS system file")
	assert.Contains(t, out, "Dealer return experience")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "a.sav")
	assert.Contains(t, out, `Column "QD" is not present`)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Dealer return")), bytes.Index(buf.Bytes(), []byte("75.0%")))
}

func TestNoData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NoData(&buf))
	assert.Equal(t, "No data available to display.\n", buf.String())
}
