package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/godilite/surveydash/internal/catalog"
	"github.com/godilite/surveydash/internal/state"
	"github.com/godilite/surveydash/internal/survey"
)

const (
	// NoDataMessage is shown instead of the whole report when nothing loaded.
	NoDataMessage = "No data available to display."
	// NoMatchMessage is shown when the filters exclude every respondent.
	NoMatchMessage = "No respondents match the selected filters."

	meanLabel = "Mean"
)

// ReportService builds reports from the current snapshot and the catalog.
type ReportService struct {
	source  SnapshotSource
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewReportService creates a new ReportService instance.
func NewReportService(source SnapshotSource, cat *catalog.Catalog, logger *zap.Logger) *ReportService {
	if source == nil {
		panic("source must not be nil")
	}
	if cat == nil {
		panic("catalog must not be nil")
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	return &ReportService{
		source:  source,
		catalog: cat,
		logger:  logger.Named("report"),
	}
}

// Catalog returns the question catalog reports are built from.
func (s *ReportService) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *ReportService) snapshot(ctx context.Context) (*state.Snapshot, error) {
	snap, err := s.source.Current(ctx)
	if err != nil {
		if snap == nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadFailure, err)
		}
		s.logger.Warn("serving previous snapshot after failed reload", zap.Error(err))
	}
	if snap.Table().Empty() {
		return snap, ErrNoData
	}
	return snap, nil
}

// Build returns the full report for a filter selection. When nothing is
// loaded it returns ErrNoData and no sections are computed.
func (s *ReportService) Build(ctx context.Context, sel survey.Selection) (*Report, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	table := snap.Table()
	sel = sel.Clean()
	filtered := table.Select(sel)

	r := &Report{
		Title:      s.catalog.Title,
		Generation: snap.Generation,
		LoadedAt:   snap.Result.LoadedAt,
		Rows:       table.Len(),
		Matched:    filtered.Len(),
		Files:      fileSummaries(snap),
		Facets:     survey.FacetOptions(table, s.catalog.Facets, sel),
	}
	if filtered.Empty() {
		r.Notice = NoMatchMessage
		return r, nil
	}

	for _, q := range s.catalog.Questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.Sections = append(r.Sections, s.section(q, filtered))
	}

	s.logger.Info("built report",
		zap.Uint64("generation", r.Generation),
		zap.Int("rows", r.Rows),
		zap.Int("matched", r.Matched),
		zap.Int("filters", len(sel)))
	return r, nil
}

// Section builds a single question for a filter selection.
func (s *ReportService) Section(ctx context.Context, id string, sel survey.Selection) (Section, error) {
	q, ok := s.catalog.Question(id)
	if !ok {
		return Section{}, fmt.Errorf("%w: %q", ErrQuestionNotFound, id)
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return Section{}, err
	}
	filtered := snap.Table().Select(sel.Clean())
	if filtered.Empty() {
		return Section{}, ErrNoData
	}
	return s.section(q, filtered), nil
}

func (s *ReportService) section(q catalog.Question, t *survey.Table) Section {
	sec := Section{
		ID:          q.ID,
		Title:       q.Title,
		Subtitle:    q.Subtitle,
		Kind:        q.Kind,
		Column:      q.Column,
		ValueFormat: valueFormat(q),
	}

	var (
		b   Breakdown
		err error
	)
	switch q.Kind {
	case catalog.KindTopBox:
		b, err = TopBoxShare(t, TopBoxSpec{
			Column:  q.Column,
			GroupBy: survey.SourceColumn,
			Label:   q.Box.Label,
			Values:  q.Box.Values,
			Exclude: q.Exclude,
		})
	case catalog.KindMean:
		b, err = MeanScore(t, MeanSpec{
			Column:  q.Column,
			GroupBy: survey.SourceColumn,
			Label:   meanLabel,
			Scale:   q.Scale,
			Exclude: q.Exclude,
		})
	default:
		b, err = Aggregate(t, BreakdownSpec{
			Column:  q.Column,
			GroupBy: survey.SourceColumn,
			Order:   q.Order,
			Merge:   q.Merge,
		})
	}

	switch {
	case errors.Is(err, ErrColumnNotFound):
		s.logger.Warn("question column missing",
			zap.String("question", q.ID),
			zap.String("column", q.Column))
		sec.Notice = fmt.Sprintf("Column %q is not present in the loaded data.", q.Column)
	case err != nil:
		sec.Notice = err.Error()
	default:
		if len(b.Dropped) > 0 {
			s.logger.Debug("answers outside the configured order",
				zap.String("question", q.ID),
				zap.Strings("dropped", b.Dropped))
		}
		sec.Breakdown = &b
	}
	return sec
}

func valueFormat(q catalog.Question) string {
	switch {
	case q.ValueFormat != "":
		return q.ValueFormat
	case q.Kind == catalog.KindMean:
		return "%.2f"
	default:
		return "%.1f%%"
	}
}

func fileSummaries(snap *state.Snapshot) []FileSummary {
	out := make([]FileSummary, 0, len(snap.Result.Files))
	for _, f := range snap.Result.Files {
		fs := FileSummary{Name: f.Name, Rows: f.Rows}
		if f.Err != nil {
			fs.Error = f.Err.Error()
		}
		out = append(out, fs)
	}
	return out
}
