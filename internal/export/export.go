// Package export writes a report as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/godilite/surveydash/internal/service"
)

const (
	summarySheet = "Summary"
	maxSheetName = 31
	// ContentType is the MIME type of the workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Write encodes the report as a workbook: a summary sheet with the header
// and loaded files, then one sheet per charted section.
func Write(w io.Writer, r *service.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := writeSummary(f, r, bold); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}

	used := map[string]bool{summarySheet: true}
	for _, sec := range r.Sections {
		if sec.Breakdown == nil {
			continue
		}
		name := sheetName(sec.ID, used)
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
		if err := writeSection(f, name, sec, bold); err != nil {
			return fmt.Errorf("sheet %s: %w", name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeSummary(f *excelize.File, r *service.Report, bold int) error {
	row := 1
	for _, line := range r.Title {
		if err := f.SetCellValue(summarySheet, cell(1, row), line); err != nil {
			return err
		}
		row++
	}
	row++
	rows := [][]any{
		{"Generation", r.Generation},
		{"Respondents", r.Rows},
		{"Matching filters", r.Matched},
	}
	if !r.LoadedAt.IsZero() {
		rows = append(rows, []any{"Loaded at", r.LoadedAt.Format("2006-01-02 15:04:05")})
	}
	for _, values := range rows {
		if err := f.SetSheetRow(summarySheet, cell(1, row), &values); err != nil {
			return err
		}
		row++
	}

	row++
	if err := f.SetSheetRow(summarySheet, cell(1, row), &[]any{"File", "Rows", "Error"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, cell(1, row), cell(3, row), bold); err != nil {
		return err
	}
	for _, file := range r.Files {
		row++
		if err := f.SetSheetRow(summarySheet, cell(1, row), &[]any{file.Name, file.Rows, file.Error}); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "A", 28)
}

func writeSection(f *excelize.File, sheet string, sec service.Section, bold int) error {
	b := sec.Breakdown
	if err := f.SetCellValue(sheet, "A1", sec.Title); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "A1", bold); err != nil {
		return err
	}
	if sec.Subtitle != "" {
		if err := f.SetCellValue(sheet, "A2", sec.Subtitle); err != nil {
			return err
		}
	}

	const headerRow = 4
	header := []any{"Answer"}
	for _, s := range b.Sources {
		header = append(header, s)
	}
	if err := f.SetSheetRow(sheet, cell(1, headerRow), &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, cell(1, headerRow), cell(len(header), headerRow), bold); err != nil {
		return err
	}

	for i, cat := range b.Categories {
		values := []any{cat}
		for j := range b.Sources {
			values = append(values, b.Values[i][j])
		}
		if err := f.SetSheetRow(sheet, cell(1, headerRow+1+i), &values); err != nil {
			return err
		}
	}

	totals := []any{"n"}
	for _, n := range b.Totals {
		totals = append(totals, n)
	}
	if err := f.SetSheetRow(sheet, cell(1, headerRow+1+len(b.Categories)), &totals); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", "A", 48)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// sheetName derives a unique, valid worksheet name from id.
func sheetName(id string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, id)
	if name == "" {
		name = "Section"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	candidate := name
	for n := 2; used[strings.ToLower(candidate)] || used[candidate]; n++ {
		suffix := fmt.Sprintf("~%d", n)
		candidate = name
		if len(candidate)+len(suffix) > maxSheetName {
			candidate = candidate[:maxSheetName-len(suffix)]
		}
		candidate += suffix
	}
	used[strings.ToLower(candidate)] = true
	used[candidate] = true
	return candidate
}
