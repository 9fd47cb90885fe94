package service

import (
	"errors"
	"fmt"
	"sort"

	"github.com/godilite/surveydash/internal/catalog"
	"github.com/godilite/surveydash/internal/survey"
)

var (
	ErrNoData           = errors.New("no data available")
	ErrColumnNotFound   = errors.New("column not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrLoadFailure      = errors.New("load failure")
)

// BreakdownSpec selects what Aggregate counts.
type BreakdownSpec struct {
	Column  string
	GroupBy string
	Order   []string
	Merge   *catalog.Merge
}

// TopBoxSpec selects what TopBoxShare counts.
type TopBoxSpec struct {
	Column  string
	GroupBy string
	Label   string
	Values  []string
	Exclude []string
}

// MeanSpec selects what MeanScore averages.
type MeanSpec struct {
	Column  string
	GroupBy string
	Label   string
	Scale   map[string]float64
	Exclude []string
}

type columns struct {
	value   survey.Column
	group   survey.Column
	sources []string
	index   map[string]int
}

func resolve(t *survey.Table, column, groupBy string) (columns, error) {
	value, ok := t.Column(column)
	if !ok {
		return columns{}, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	group, ok := t.Column(groupBy)
	if !ok {
		return columns{}, fmt.Errorf("%w: %q", ErrColumnNotFound, groupBy)
	}
	c := columns{value: value, group: group, sources: group.Distinct()}
	c.index = make(map[string]int, len(c.sources))
	for i, s := range c.sources {
		c.index[s] = i
	}
	return c, nil
}

func set(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

// Aggregate computes, per source, the percentage of respondents giving each
// answer in spec.Column. Empty answers are not counted. Members of
// spec.Merge are summed into one bucket, then the result is laid out in
// spec.Order: listed answers nobody gave are 0 and answers the order does
// not list are dropped and reported in Dropped. A source with no answers
// is all 0 and flagged NoData.
func Aggregate(t *survey.Table, spec BreakdownSpec) (Breakdown, error) {
	c, err := resolve(t, spec.Column, spec.GroupBy)
	if err != nil {
		return Breakdown{}, err
	}

	counts := make(map[string][]int)
	totals := make([]int, len(c.sources))
	for i := 0; i < t.Len(); i++ {
		answer := c.value.Value(i)
		src, ok := c.index[c.group.Value(i)]
		if answer == "" || !ok {
			continue
		}
		if counts[answer] == nil {
			counts[answer] = make([]int, len(c.sources))
		}
		counts[answer][src]++
		totals[src]++
	}

	categories := make([]string, 0, len(counts))
	for k := range counts {
		categories = append(categories, k)
	}
	sort.Slice(categories, func(i, j int) bool { return survey.NaturalLess(categories[i], categories[j]) })

	order := spec.Order
	if spec.Merge != nil {
		categories = mergeInto(counts, categories, spec.Merge, len(c.sources))
		order = placeMerged(order, spec.Merge)
	}
	if len(order) == 0 {
		order = categories
	}

	listed := set(order)
	b := Breakdown{
		Categories: append([]string(nil), order...),
		Sources:    c.sources,
		Values:     make([][]float64, len(order)),
		Totals:     totals,
		NoData:     make([]bool, len(c.sources)),
		Unit:       UnitPercent,
	}
	for _, cat := range categories {
		if !listed[cat] {
			b.Dropped = append(b.Dropped, cat)
		}
	}
	for j, total := range totals {
		b.NoData[j] = total == 0
	}
	for i, cat := range order {
		b.Values[i] = make([]float64, len(c.sources))
		row := counts[cat]
		if row == nil {
			continue
		}
		for j, total := range totals {
			if total > 0 {
				b.Values[i][j] = float64(row[j]) / float64(total) * 100
			}
		}
	}
	return b, nil
}

// mergeInto sums the member rows of m into one row labelled m.Label and
// returns the categories with the members replaced by the label at the
// first member's position.
func mergeInto(counts map[string][]int, categories []string, m *catalog.Merge, width int) []string {
	members := set(m.Members)
	merged := counts[m.Label]
	out := make([]string, 0, len(categories))
	placed := merged != nil
	for _, cat := range categories {
		if cat == m.Label {
			out = append(out, cat)
			continue
		}
		if !members[cat] {
			out = append(out, cat)
			continue
		}
		if merged == nil {
			merged = make([]int, width)
		}
		for j, n := range counts[cat] {
			merged[j] += n
		}
		delete(counts, cat)
		if !placed {
			out = append(out, m.Label)
			placed = true
		}
	}
	if merged != nil {
		counts[m.Label] = merged
	}
	return out
}

// placeMerged replaces members listed in order by the merge label at the
// first member's position, unless the order already lists the label.
func placeMerged(order []string, m *catalog.Merge) []string {
	if len(order) == 0 {
		return order
	}
	for _, o := range order {
		if o == m.Label {
			return order
		}
	}
	members := set(m.Members)
	out := make([]string, 0, len(order))
	placed := false
	for _, o := range order {
		if !members[o] {
			out = append(out, o)
			continue
		}
		if !placed {
			out = append(out, m.Label)
			placed = true
		}
	}
	return out
}

// TopBoxShare computes, per source, the percentage of respondents whose
// answer is one of spec.Values. The denominator is every row of the source,
// blank answers included; only answers listed in spec.Exclude are left out.
func TopBoxShare(t *survey.Table, spec TopBoxSpec) (Breakdown, error) {
	c, err := resolve(t, spec.Column, spec.GroupBy)
	if err != nil {
		return Breakdown{}, err
	}

	box, excluded := set(spec.Values), set(spec.Exclude)
	hits := make([]int, len(c.sources))
	totals := make([]int, len(c.sources))
	for i := 0; i < t.Len(); i++ {
		answer := c.value.Value(i)
		src, ok := c.index[c.group.Value(i)]
		if excluded[answer] || !ok {
			continue
		}
		totals[src]++
		if box[answer] {
			hits[src]++
		}
	}

	b := singleRow(spec.Label, c.sources, totals, UnitPercent)
	for j, total := range totals {
		if total > 0 {
			b.Values[0][j] = float64(hits[j]) / float64(total) * 100
		}
	}
	return b, nil
}

// MeanScore computes, per source, the mean of spec.Scale over the answers
// the scale knows. Excluded answers and answers outside the scale are
// ignored.
func MeanScore(t *survey.Table, spec MeanSpec) (Breakdown, error) {
	c, err := resolve(t, spec.Column, spec.GroupBy)
	if err != nil {
		return Breakdown{}, err
	}

	excluded := set(spec.Exclude)
	sums := make([]float64, len(c.sources))
	totals := make([]int, len(c.sources))
	for i := 0; i < t.Len(); i++ {
		answer := c.value.Value(i)
		src, ok := c.index[c.group.Value(i)]
		if !ok || excluded[answer] {
			continue
		}
		score, ok := spec.Scale[answer]
		if !ok {
			continue
		}
		sums[src] += score
		totals[src]++
	}

	b := singleRow(spec.Label, c.sources, totals, UnitScore)
	for j, total := range totals {
		if total > 0 {
			b.Values[0][j] = sums[j] / float64(total)
		}
	}
	return b, nil
}

func singleRow(label string, sources []string, totals []int, unit Unit) Breakdown {
	b := Breakdown{
		Categories: []string{label},
		Sources:    sources,
		Values:     [][]float64{make([]float64, len(sources))},
		Totals:     totals,
		NoData:     make([]bool, len(sources)),
		Unit:       unit,
	}
	for j, total := range totals {
		b.NoData[j] = total == 0
	}
	return b
}
