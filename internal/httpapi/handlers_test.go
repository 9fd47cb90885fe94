package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/godilite/surveydash/internal/catalog"
	"github.com/godilite/surveydash/internal/httpapi/mocks"
	"github.com/godilite/surveydash/internal/loader"
	"github.com/godilite/surveydash/internal/repository/models"
	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/state"
	"github.com/godilite/surveydash/internal/survey"
	"github.com/godilite/surveydash/internal/watcher"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testCatalog = &catalog.Catalog{
	Title:  []string{"ROXOR", "60-Day Satisfaction"},
	Facets: []string{"Gender"},
}

func breakdown() *service.Breakdown {
	return &service.Breakdown{
		Categories: []string{"Yes", "No"},
		Sources:    []string{"wave-01.sav", "wave-02.sav"},
		Values:     [][]float64{{60, 75}, {40, 25}},
		Totals:     []int{5, 4},
		NoData:     []bool{false, false},
		Unit:       service.UnitPercent,
	}
}

func report() *service.Report {
	return &service.Report{
		Title:      testCatalog.Title,
		Generation: 2,
		LoadedAt:   time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC),
		Rows:       9,
		Matched:    9,
		Files: []service.FileSummary{
			{Name: "wave-01.sav", Rows: 5},
			{Name: "broken.sav", Error: "not an SPSS system file"},
		},
		Facets: []survey.Facet{{Name: "Gender", Options: []string{"Female", "Male"}, Selected: []string{"Female"}, Available: true}},
		Sections: []service.Section{
			{ID: "awareness", Title: "Heard of ROXOR?", ValueFormat: "%.1f%%", Breakdown: breakdown()},
			{ID: "age", Title: "Age", Notice: `Column "QD" is not present in the loaded data.`},
		},
	}
}

func snapshot() *state.Snapshot {
	tbl := survey.NewTable("Q1", survey.SourceColumn)
	_ = tbl.AppendRow("Yes", "wave-01.sav")
	_ = tbl.AppendRow("No", "wave-01.sav")
	return &state.Snapshot{
		Generation: 2,
		Result: loader.Result{
			Table:    tbl,
			Files:    []loader.FileStatus{{Name: "wave-01.sav", Rows: 2}, {Name: "broken.sav", Err: errors.New("bad magic")}},
			LoadedAt: time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC),
		},
	}
}

func newTestServer(t *testing.T, reports ReportBuilder, st StateStore, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	s, err := New(reports, st, opts...)
	require.NoError(t, err)
	return s
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func reportsReturning(r *service.Report, err error) *mocks.MockReportBuilder {
	return &mocks.MockReportBuilder{
		BuildFunc: func(ctx context.Context, sel survey.Selection) (*service.Report, error) {
			return r, err
		},
		CatalogFunc: func() *catalog.Catalog { return testCatalog },
	}
}

func TestNew(t *testing.T) {
	t.Run("nil dependencies panic", func(t *testing.T) {
		assert.Panics(t, func() { _, _ = New(nil, &mocks.MockStateStore{}) })
		assert.Panics(t, func() { _, _ = New(&mocks.MockReportBuilder{}, nil) })
	})

	t.Run("invalid port", func(t *testing.T) {
		_, err := New(&mocks.MockReportBuilder{}, &mocks.MockStateStore{}, WithLogger(zap.NewNop()), WithPort(0))
		assert.Error(t, err)
	})
}

func TestIndex(t *testing.T) {
	t.Run("no data shows only the notice", func(t *testing.T) {
		s := newTestServer(t, reportsReturning(nil, service.ErrNoData), &mocks.MockStateStore{})

		w := do(s, http.MethodGet, "/")
		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, service.NoDataMessage)
		assert.Contains(t, body, "<h1>ROXOR</h1>")
		assert.NotContains(t, body, "<svg")
		assert.NotContains(t, body, "<section")
	})

	t.Run("sections render charts and notices", func(t *testing.T) {
		s := newTestServer(t, reportsReturning(report(), nil), &mocks.MockStateStore{})

		w := do(s, http.MethodGet, "/?Gender=Female")
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "Heard of ROXOR?")
		assert.Contains(t, body, "<svg")
		assert.Contains(t, body, "wave-02.sav")
		assert.Contains(t, body, "is not present in the loaded data.")
		assert.Contains(t, body, `value="Female" checked`)
		assert.NotContains(t, body, `value="Male" checked`)
		assert.Contains(t, body, "Skipped broken.sav")
		assert.Contains(t, body, `/api/export.xlsx?Gender=Female`)
	})

	t.Run("load failure", func(t *testing.T) {
		s := newTestServer(t, reportsReturning(nil, service.ErrLoadFailure), &mocks.MockStateStore{})

		w := do(s, http.MethodGet, "/")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "could not be loaded")
	})
}

func TestIndex_WithReportService(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
title: ["Test Survey"]
facets: ["Gender"]
questions:
  - id: awareness
    title: Heard of it?
    column: Q1
    kind: breakdown
    order: ["Yes", "No"]
  - id: missing
    title: Missing column
    column: Q99
    kind: breakdown
`))
	require.NoError(t, err)

	loads := 0
	st := state.New(func(ctx context.Context) (loader.Result, error) {
		loads++
		tbl := survey.NewTable("Q1", "Gender", survey.SourceColumn)
		_ = tbl.AppendRow("Yes", "Female", "a.sav")
		_ = tbl.AppendRow("No", "Male", "a.sav")
		_ = tbl.AppendRow("Yes", "Male", "b.sav")
		return loader.Result{Table: tbl, LoadedAt: time.Now()}, nil
	}, state.WithLogger(zap.NewNop()))
	reports := service.NewReportService(st, cat, zap.NewNop())
	s := newTestServer(t, reports, st)

	w := do(s, http.MethodGet, "/?Gender=Male")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Test Survey")
	assert.Contains(t, body, "2 of 3 respondents")
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, `Column &#34;Q99&#34; is not present`)

	w = do(s, http.MethodGet, "/charts/awareness.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, 1, loads)
}

func TestChart(t *testing.T) {
	sections := map[string]service.Section{
		"awareness": {ID: "awareness", Title: "Heard of ROXOR?", Breakdown: breakdown()},
		"age":       {ID: "age", Title: "Age", Notice: "Column \"QD\" is not present in the loaded data."},
	}
	reports := &mocks.MockReportBuilder{
		SectionFunc: func(ctx context.Context, id string, sel survey.Selection) (service.Section, error) {
			sec, ok := sections[id]
			if !ok {
				return service.Section{}, service.ErrQuestionNotFound
			}
			return sec, nil
		},
		CatalogFunc: func() *catalog.Catalog { return testCatalog },
	}
	s := newTestServer(t, reports, &mocks.MockStateStore{})

	t.Run("svg", func(t *testing.T) {
		w := do(s, http.MethodGet, "/charts/awareness.svg")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "wave-01.sav")
	})

	t.Run("png", func(t *testing.T) {
		w := do(s, http.MethodGet, "/charts/awareness.PNG")
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))
	})

	t.Run("not found", func(t *testing.T) {
		for _, target := range []string{"/charts/awareness.gif", "/charts/nope.svg", "/charts/age.svg"} {
			w := do(s, http.MethodGet, target)
			assert.Equal(t, http.StatusNotFound, w.Code, target)
		}
	})
}

func TestReportAndFacets(t *testing.T) {
	var got survey.Selection
	reports := &mocks.MockReportBuilder{
		BuildFunc: func(ctx context.Context, sel survey.Selection) (*service.Report, error) {
			got = sel
			return report(), nil
		},
		CatalogFunc: func() *catalog.Catalog { return testCatalog },
	}
	s := newTestServer(t, reports, &mocks.MockStateStore{})

	w := do(s, http.MethodGet, "/api/report?Gender=Female&Gender=Male&Region=North")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, survey.Selection{"Gender": {"Female", "Male"}}, got)

	var body service.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sections, 2)
	assert.Equal(t, 75.0, body.Sections[0].Breakdown.Value("Yes", "wave-02.sav"))

	w = do(s, http.MethodGet, "/api/facets")
	require.Equal(t, http.StatusOK, w.Code)
	var facets struct {
		Facets []survey.Facet `json:"facets"`
		Rows   int            `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &facets))
	assert.Equal(t, 9, facets.Rows)
	assert.Equal(t, "Gender", facets.Facets[0].Name)
}

func TestReport_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"no data", service.ErrNoData, http.StatusNotFound},
		{"load failure", service.ErrLoadFailure, http.StatusServiceUnavailable},
		{"load timed out", fmt.Errorf("%w: %w", service.ErrLoadFailure, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, reportsReturning(nil, tt.err), &mocks.MockStateStore{})
			w := do(s, http.MethodGet, "/api/report")
			assert.Equal(t, tt.code, w.Code)
			assert.NotContains(t, w.Body.String(), "boom")
		})
	}
}

func TestStatus(t *testing.T) {
	t.Run("nothing loaded", func(t *testing.T) {
		s := newTestServer(t, reportsReturning(nil, nil), &mocks.MockStateStore{
			NeedsReloadFunc: func() bool { return true },
		})
		w := do(s, http.MethodGet, "/api/status")
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, true, body["needs_reload"])
		assert.Equal(t, 0.0, body["generation"])
		assert.NotContains(t, body, "watcher")
		assert.NotContains(t, body, "loaded_at")
	})

	t.Run("loaded with watcher and history", func(t *testing.T) {
		watch := &mocks.MockWatchStatus{
			RunningFunc: func() bool { return true },
			StatsFunc:   func() watcher.Stats { return watcher.Stats{Created: 2, Notifications: 1} },
		}
		history := &mocks.MockLoadHistory{
			RecentLoadsFunc: func(ctx context.Context, limit int) ([]models.LoadRun, error) {
				assert.Equal(t, defaultHistoryLimit, limit)
				return []models.LoadRun{{
					ID:         "run-1",
					Generation: 2,
					Duration:   1500 * time.Millisecond,
					Rows:       2,
					Files:      []models.LoadFile{{Name: "broken.sav", Error: "bad magic"}},
				}}, nil
			},
		}
		s := newTestServer(t, reportsReturning(nil, nil), &mocks.MockStateStore{PeekFunc: snapshot},
			WithWatchStatus(watch), WithLoadHistory(history))

		w := do(s, http.MethodGet, "/api/status")
		require.Equal(t, http.StatusOK, w.Code)

		var body statusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, uint64(2), body.Generation)
		assert.Equal(t, 2, body.Rows)
		require.Len(t, body.Files, 2)
		assert.Equal(t, "bad magic", body.Files[1].Error)
		require.NotNil(t, body.Watcher)
		assert.True(t, body.Watcher.Running)
		assert.Equal(t, 2, body.Watcher.Stats.Created)
		require.Len(t, body.RecentLoads, 1)
		assert.Equal(t, int64(1500), body.RecentLoads[0].DurationMs)
		assert.Equal(t, "bad magic", body.RecentLoads[0].Files[0].Error)
	})

	t.Run("history failure is not fatal", func(t *testing.T) {
		history := &mocks.MockLoadHistory{}
		s := newTestServer(t, reportsReturning(nil, nil), &mocks.MockStateStore{PeekFunc: snapshot},
			WithLoadHistory(history))

		w := do(s, http.MethodGet, "/api/status")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestReload(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := newTestServer(t, reportsReturning(nil, nil), &mocks.MockStateStore{
			ReloadFunc: func(ctx context.Context) (*state.Snapshot, error) { return snapshot(), nil },
		})
		w := do(s, http.MethodPost, "/api/reload")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"generation":2,"rows":2,"files":2}`, w.Body.String())
	})

	t.Run("failure", func(t *testing.T) {
		s := newTestServer(t, reportsReturning(nil, nil), &mocks.MockStateStore{})
		w := do(s, http.MethodPost, "/api/reload")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("get is not allowed", func(t *testing.T) {
		s := newTestServer(t, reportsReturning(nil, nil), &mocks.MockStateStore{})
		w := do(s, http.MethodGet, "/api/reload")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExport(t *testing.T) {
	s := newTestServer(t, reportsReturning(report(), nil), &mocks.MockStateStore{})

	w := do(s, http.MethodGet, "/api/export.xlsx")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "surveydash-report.xlsx")
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"))

	empty := newTestServer(t, reportsReturning(nil, service.ErrNoData), &mocks.MockStateStore{})
	w = do(empty, http.MethodGet, "/api/export.xlsx")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, reportsReturning(nil, nil), &mocks.MockStateStore{})

	w := do(s, http.MethodGet, "/api/status")
	assert.Len(t, w.Header().Get(requestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}
