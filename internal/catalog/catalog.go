// Package catalog describes the report: its header lines, the facets a
// reader can filter by, the clean-up applied to freshly loaded exports, and
// the ordered list of questions to chart.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

// Kind selects the aggregation a question is charted with.
type Kind string

const (
	// KindBreakdown charts the share of each answer per source file.
	KindBreakdown Kind = "breakdown"
	// KindTopBox charts the share of answers falling in Box per source file.
	KindTopBox Kind = "top_box"
	// KindMean charts the mean of Scale-mapped answers per source file.
	KindMean Kind = "mean"
)

type Catalog struct {
	Title      []string   `yaml:"title"`
	Facets     []string   `yaml:"facets"`
	Transforms Transforms `yaml:"transforms"`
	Questions  []Question `yaml:"questions"`
}

// Transforms run on every freshly loaded table, fills first, then renames.
type Transforms struct {
	FillEmpty []FillRule        `yaml:"fill_empty"`
	Rename    map[string]string `yaml:"rename"`
}

type FillRule struct {
	Column string `yaml:"column"`
	Value  string `yaml:"value"`
}

// Question is one report section. ValueFormat overrides the bar label
// format, e.g. "%.0f%%".
type Question struct {
	ID          string             `yaml:"id"`
	Title       string             `yaml:"title"`
	Subtitle    string             `yaml:"subtitle"`
	Column      string             `yaml:"column"`
	Kind        Kind               `yaml:"kind"`
	Order       []string           `yaml:"order"`
	Merge       *Merge             `yaml:"merge"`
	Box         *Box               `yaml:"box"`
	Exclude     []string           `yaml:"exclude"`
	Scale       map[string]float64 `yaml:"scale"`
	ValueFormat string             `yaml:"value_format"`
}

// Merge collapses several answers into one bucket, e.g. "1".."5" into
// "5 or less".
type Merge struct {
	Label   string   `yaml:"label"`
	Members []string `yaml:"members"`
}

// Box is the answer set counted by a top-box question.
type Box struct {
	Label  string   `yaml:"label"`
	Values []string `yaml:"values"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every question can be charted.
func (c *Catalog) Validate() error {
	if len(c.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidCatalog)
	}
	seen := make(map[string]bool, len(c.Questions))
	for i, q := range c.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidCatalog, i+1)
		}
		if seen[q.ID] {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidCatalog, q.ID)
		}
		seen[q.ID] = true
		if q.Column == "" {
			return fmt.Errorf("%w: question %q has no column", ErrInvalidCatalog, q.ID)
		}

		switch q.Kind {
		case KindBreakdown:
			if q.Merge != nil && (q.Merge.Label == "" || len(q.Merge.Members) == 0) {
				return fmt.Errorf("%w: question %q merge needs a label and members", ErrInvalidCatalog, q.ID)
			}
		case KindTopBox:
			if q.Box == nil || len(q.Box.Values) == 0 {
				return fmt.Errorf("%w: question %q needs box values", ErrInvalidCatalog, q.ID)
			}
		case KindMean:
			if len(q.Scale) == 0 {
				return fmt.Errorf("%w: question %q needs a scale", ErrInvalidCatalog, q.ID)
			}
		default:
			return fmt.Errorf("%w: question %q has unknown kind %q", ErrInvalidCatalog, q.ID, q.Kind)
		}
	}
	for _, r := range c.Transforms.FillEmpty {
		if r.Column == "" {
			return fmt.Errorf("%w: fill_empty rule without column", ErrInvalidCatalog)
		}
	}
	return nil
}

// Question returns the question with the given id.
func (c *Catalog) Question(id string) (Question, bool) {
	for _, q := range c.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
