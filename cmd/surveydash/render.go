package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/godilite/surveydash/internal/catalog"
	"github.com/godilite/surveydash/internal/chart"
	"github.com/godilite/surveydash/internal/export"
	"github.com/godilite/surveydash/internal/loader"
	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/state"
	"github.com/godilite/surveydash/internal/survey"
	"github.com/godilite/surveydash/internal/textreport"
)

var (
	renderDir     string
	renderFilters []string
	renderCharts  string
	renderFormat  string
	renderXLSX    string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Load the exports once and print the report",
	Example: `  surveydash render
  surveydash render --filter Gender=Female --filter Gender=Male --charts ./out --format png`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVar(&renderDir, "dir", "", "export directory (default SURVEY_DIR)")
	renderCmd.Flags().StringArrayVarP(&renderFilters, "filter", "f", nil, "facet filter as Facet=Value, repeatable")
	renderCmd.Flags().StringVar(&renderCharts, "charts", "", "write one chart per section into this directory")
	renderCmd.Flags().StringVar(&renderFormat, "format", "svg", "chart format: svg or png")
	renderCmd.Flags().StringVar(&renderXLSX, "xlsx", "", "also write the report as a workbook")
}

func parseFilters(args []string) (survey.Selection, error) {
	sel := survey.Selection{}
	for _, arg := range args {
		facet, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(facet) == "" {
			return nil, fmt.Errorf("invalid filter %q, want Facet=Value", arg)
		}
		facet = strings.TrimSpace(facet)
		sel[facet] = append(sel[facet], strings.TrimSpace(value))
	}
	return sel, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	format := chart.Format(strings.ToLower(renderFormat))
	if format != chart.SVG && format != chart.PNG {
		return fmt.Errorf("unknown chart format %q", renderFormat)
	}
	sel, err := parseFilters(renderFilters)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.Survey.CatalogFile)
	if err != nil {
		return err
	}
	dir := renderDir
	if dir == "" {
		dir = cfg.Survey.Dir
	}
	ld := loader.New(
		loader.WithExtensions(cfg.Survey.Extensions...),
		loader.WithTransforms(cat.Transforms),
		loader.WithParallelism(cfg.Survey.Parallelism),
		loader.WithLogger(logger),
	)
	st := state.New(func(ctx context.Context) (loader.Result, error) {
		return ld.LoadAll(ctx, dir)
	}, state.WithLogger(logger))
	reports := service.NewReportService(st, cat, logger)

	out := cmd.OutOrStdout()
	report, err := reports.Build(cmd.Context(), sel)
	if errors.Is(err, service.ErrNoData) {
		return textreport.NoData(out)
	}
	if err != nil {
		return err
	}
	if err := textreport.Write(out, report); err != nil {
		return err
	}

	if renderCharts != "" {
		if err := writeCharts(renderCharts, report, format); err != nil {
			return err
		}
	}
	if renderXLSX != "" {
		var buf bytes.Buffer
		if err := export.Write(&buf, report); err != nil {
			return err
		}
		if err := os.WriteFile(renderXLSX, buf.Bytes(), 0o644); err != nil {
			return err
		}
		logger.Info("wrote workbook", zap.String("path", renderXLSX))
	}
	return nil
}

func writeCharts(dir string, report *service.Report, format chart.Format) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, sec := range report.Sections {
		if sec.Breakdown == nil {
			continue
		}
		path := filepath.Join(dir, sec.ID+"."+string(format))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		err = chart.Render(f, *sec.Breakdown, chart.Options{
			Format:      format,
			Title:       sec.Title,
			ValueFormat: sec.ValueFormat,
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("chart %s: %w", sec.ID, err)
		}
		logger.Info("wrote chart", zap.String("path", path))
	}
	return nil
}
