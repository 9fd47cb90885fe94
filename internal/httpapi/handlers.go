package httpapi

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/godilite/surveydash/internal/chart"
	"github.com/godilite/surveydash/internal/export"
	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/survey"
	"github.com/godilite/surveydash/internal/watcher"
)

const chartFailedMessage = "This chart could not be drawn."

var templateFuncs = template.FuncMap{
	"selected": func(f survey.Facet, v string) bool {
		return slices.Contains(f.Selected, v)
	},
}

// selection reads facet filters from the query string. Only facets named in
// the catalog are read, each possibly repeated.
func (s *Server) selection(c *gin.Context) survey.Selection {
	sel := survey.Selection{}
	for _, facet := range s.reports.Catalog().Facets {
		if values := c.QueryArray(facet); len(values) > 0 {
			sel[facet] = values
		}
	}
	return sel
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.requestTimeout)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service errors to an HTTP status and a message safe to show.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNoData):
		return http.StatusNotFound, service.NoDataMessage
	case errors.Is(err, service.ErrQuestionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, service.ErrLoadFailure):
		return http.StatusServiceUnavailable, "survey exports could not be loaded"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeError(c *gin.Context, op string, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request error", zap.String("op", op), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(code, errorResponse{Error: msg})
}

type pageSection struct {
	service.Section
	SVG template.HTML
}

type pageData struct {
	Title        []string
	Report       *service.Report
	Sections     []pageSection
	Notice       string
	Query        template.URL
	PollInterval int64
}

func (s *Server) index(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	data := pageData{
		Title:        s.reports.Catalog().Title,
		Query:        template.URL(c.Request.URL.RawQuery),
		PollInterval: s.pollInterval.Milliseconds(),
	}

	report, err := s.reports.Build(ctx, s.selection(c))
	code := http.StatusOK
	switch {
	case errors.Is(err, service.ErrNoData):
		data.Notice = service.NoDataMessage
	case err != nil:
		code, data.Notice = statusFor(err)
		if code >= http.StatusInternalServerError {
			s.logger.Error("page build failed", zap.Error(err))
		}
	default:
		data.Report = report
		data.Notice = report.Notice
		data.Sections = s.drawSections(report.Sections)
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		s.writeError(c, "index", err)
		return
	}
	c.Data(code, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) drawSections(sections []service.Section) []pageSection {
	out := make([]pageSection, 0, len(sections))
	for _, sec := range sections {
		ps := pageSection{Section: sec}
		if sec.Breakdown != nil {
			var buf bytes.Buffer
			err := chart.Render(&buf, *sec.Breakdown, chart.Options{
				Format:      chart.SVG,
				ValueFormat: sec.ValueFormat,
			})
			if err != nil {
				s.logger.Warn("chart render failed", zap.String("section", sec.ID), zap.Error(err))
				ps.Notice = chartFailedMessage
			} else {
				ps.SVG = template.HTML(buf.String())
			}
		}
		out = append(out, ps)
	}
	return out
}

// chart serves one section as /charts/<id>.svg or /charts/<id>.png.
func (s *Server) chart(c *gin.Context) {
	file := c.Param("file")
	ext := path.Ext(file)
	var format chart.Format
	switch strings.ToLower(ext) {
	case ".svg":
		format = chart.SVG
	case ".png":
		format = chart.PNG
	default:
		c.JSON(http.StatusNotFound, errorResponse{Error: "unknown chart format " + ext})
		return
	}
	id := strings.TrimSuffix(file, ext)

	ctx, cancel := s.requestContext(c)
	defer cancel()

	sec, err := s.reports.Section(ctx, id, s.selection(c))
	if err != nil {
		s.writeError(c, "chart", err)
		return
	}
	if sec.Breakdown == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: sec.Notice})
		return
	}

	var buf bytes.Buffer
	err = chart.Render(&buf, *sec.Breakdown, chart.Options{
		Format:      format,
		Title:       sec.Title,
		ValueFormat: sec.ValueFormat,
	})
	if err != nil {
		s.writeError(c, "chart", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, chart.ContentType(format), buf.Bytes())
}

func (s *Server) report(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	report, err := s.reports.Build(ctx, s.selection(c))
	if err != nil {
		s.writeError(c, "report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) facets(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	report, err := s.reports.Build(ctx, s.selection(c))
	if err != nil {
		s.writeError(c, "facets", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"facets":  report.Facets,
		"rows":    report.Rows,
		"matched": report.Matched,
	})
}

type watchStatus struct {
	Running bool          `json:"running"`
	Stats   watcher.Stats `json:"stats"`
}

type loadFile struct {
	Name  string `json:"name"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

type loadRun struct {
	ID         string     `json:"id"`
	Generation uint64     `json:"generation"`
	StartedAt  time.Time  `json:"started_at"`
	DurationMs int64      `json:"duration_ms"`
	Rows       int        `json:"rows"`
	Files      []loadFile `json:"files"`
}

type statusResponse struct {
	Generation  uint64                `json:"generation"`
	NeedsReload bool                  `json:"needs_reload"`
	LoadedAt    *time.Time            `json:"loaded_at,omitempty"`
	Rows        int                   `json:"rows"`
	Files       []service.FileSummary `json:"files"`
	Watcher     *watchStatus          `json:"watcher,omitempty"`
	RecentLoads []loadRun             `json:"recent_loads,omitempty"`
}

// status reports what is loaded without triggering a reload, so polling
// clients stay cheap.
func (s *Server) status(c *gin.Context) {
	resp := statusResponse{
		NeedsReload: s.state.NeedsReload(),
		Files:       []service.FileSummary{},
	}
	if snap := s.state.Peek(); snap != nil {
		loadedAt := snap.Result.LoadedAt
		resp.Generation = snap.Generation
		resp.LoadedAt = &loadedAt
		resp.Rows = snap.Table().Len()
		for _, f := range snap.Result.Files {
			fs := service.FileSummary{Name: f.Name, Rows: f.Rows}
			if f.Err != nil {
				fs.Error = f.Err.Error()
			}
			resp.Files = append(resp.Files, fs)
		}
	}
	if s.watch != nil {
		resp.Watcher = &watchStatus{Running: s.watch.Running(), Stats: s.watch.Stats()}
	}
	if s.history != nil {
		ctx, cancel := s.requestContext(c)
		defer cancel()
		runs, err := s.history.RecentLoads(ctx, s.historyLimit)
		if err != nil {
			s.logger.Warn("load history unavailable", zap.Error(err))
		}
		for _, run := range runs {
			lr := loadRun{
				ID:         run.ID,
				Generation: run.Generation,
				StartedAt:  run.StartedAt,
				DurationMs: run.Duration.Milliseconds(),
				Rows:       run.Rows,
			}
			for _, f := range run.Files {
				lr.Files = append(lr.Files, loadFile{Name: f.Name, Rows: f.Rows, Error: f.Error})
			}
			resp.RecentLoads = append(resp.RecentLoads, lr)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) reload(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	snap, err := s.state.Reload(ctx)
	if err != nil {
		s.logger.Error("manual reload failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "survey exports could not be loaded"})
		return
	}
	s.logger.Info("reload requested over HTTP", zap.Uint64("generation", snap.Generation))
	c.JSON(http.StatusOK, gin.H{
		"generation": snap.Generation,
		"rows":       snap.Table().Len(),
		"files":      len(snap.Result.Files),
	})
}

func (s *Server) export(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	report, err := s.reports.Build(ctx, s.selection(c))
	if err != nil {
		s.writeError(c, "export", err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, report); err != nil {
		s.writeError(c, "export", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="surveydash-report.xlsx"`)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}
