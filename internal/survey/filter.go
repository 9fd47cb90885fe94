package survey

import "sort"

// Selection maps a facet column to the values a respondent may have in it.
// Facets with no values are unconstrained. Values within a facet are OR-ed;
// facets are AND-ed.
type Selection map[string][]string

// Clean drops facets with no non-empty values.
func (s Selection) Clean() Selection {
	out := make(Selection, len(s))
	for facet, values := range s {
		var kept []string
		for _, v := range values {
			if v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			out[facet] = kept
		}
	}
	return out
}

// Predicate returns a row filter for the selection, ignoring the facet named
// except (pass "" to apply every facet).
func (s Selection) Predicate(except string) func(Row) bool {
	sets := make(map[string]map[string]bool, len(s))
	for facet, values := range s.Clean() {
		if facet == except {
			continue
		}
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		sets[facet] = set
	}
	return func(r Row) bool {
		for facet, set := range sets {
			if !set[r.Get(facet)] {
				return false
			}
		}
		return true
	}
}

// Select narrows the table to the rows matching every facet.
func (t *Table) Select(s Selection) *Table {
	if len(s.Clean()) == 0 {
		return t
	}
	return t.Filter(s.Predicate(""))
}

// Facet describes one filter widget: the values that can still be picked
// given the other facets' selections.
type Facet struct {
	Name      string   `json:"name"`
	Options   []string `json:"options"`
	Selected  []string `json:"selected"`
	Available bool     `json:"available"`
}

// FacetOptions computes the options for each facet from the table narrowed
// by every other facet, so choices stay consistent in any order.
func FacetOptions(t *Table, facets []string, s Selection) []Facet {
	s = s.Clean()
	out := make([]Facet, 0, len(facets))
	for _, name := range facets {
		f := Facet{Name: name, Selected: append([]string(nil), s[name]...)}
		sort.Strings(f.Selected)
		if _, ok := t.Column(name); ok {
			f.Available = true
			narrowed := t.Filter(s.Predicate(name))
			col, _ := narrowed.Column(name)
			f.Options = col.Distinct()
		}
		out = append(out, f)
	}
	return out
}
