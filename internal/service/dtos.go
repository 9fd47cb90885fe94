package service

import (
	"time"

	"github.com/godilite/surveydash/internal/catalog"
	"github.com/godilite/surveydash/internal/survey"
)

// Unit says how Breakdown values are read.
type Unit string

const (
	UnitPercent Unit = "percent"
	UnitScore   Unit = "score"
)

// Breakdown is a categories x sources matrix. Values[i][j] is the value of
// Categories[i] for Sources[j].
type Breakdown struct {
	Categories []string    `json:"categories"`
	Sources    []string    `json:"sources"`
	Values     [][]float64 `json:"values"`
	// Totals holds the respondents counted per source.
	Totals  []int    `json:"totals"`
	NoData  []bool   `json:"no_data"`
	Dropped []string `json:"dropped,omitempty"`
	Unit    Unit     `json:"unit"`
}

// Value returns the value for a category and source, 0 when either is
// unknown.
func (b Breakdown) Value(category, source string) float64 {
	ci, si := indexOf(b.Categories, category), indexOf(b.Sources, source)
	if ci < 0 || si < 0 {
		return 0
	}
	return b.Values[ci][si]
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// Section is one charted question, or the notice explaining why it has no
// chart.
type Section struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Subtitle    string       `json:"subtitle,omitempty"`
	Kind        catalog.Kind `json:"kind"`
	Column      string       `json:"column"`
	ValueFormat string       `json:"value_format"`
	Breakdown   *Breakdown   `json:"breakdown,omitempty"`
	Notice      string       `json:"notice,omitempty"`
}

// FileSummary describes one loaded export.
type FileSummary struct {
	Name  string `json:"name"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

// Report is everything a render surface needs for one page.
type Report struct {
	Title      []string       `json:"title"`
	Generation uint64         `json:"generation"`
	LoadedAt   time.Time      `json:"loaded_at"`
	Rows       int            `json:"rows"`
	Matched    int            `json:"matched"`
	Files      []FileSummary  `json:"files"`
	Facets     []survey.Facet `json:"facets"`
	Sections   []Section      `json:"sections"`
	Notice     string         `json:"notice,omitempty"`
}
