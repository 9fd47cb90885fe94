// Package textreport prints a report as plain-text tables.
package textreport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/godilite/surveydash/internal/service"
)

// Write prints the report header, any load warnings, and one table per
// section. Sections without data print their notice instead.
func Write(w io.Writer, r *service.Report) error {
	bw := bufio.NewWriter(w)
	for _, line := range r.Title {
		fmt.Fprintln(bw, line)
	}
	if len(r.Title) > 0 {
		fmt.Fprintln(bw, strings.Repeat("=", titleWidth(r.Title)))
	}
	fmt.Fprintf(bw, "%d respondents", r.Rows)
	if r.Matched != r.Rows {
		fmt.Fprintf(bw, ", %d matching filters", r.Matched)
	}
	fmt.Fprintln(bw)
	for _, f := range r.Files {
		if f.Error != "" {
			fmt.Fprintf(bw, "warning: skipped %s: %s\n", f.Name, f.Error)
		}
	}
	if r.Notice != "" {
		fmt.Fprintf(bw, "\n%s\n", r.Notice)
	}

	for _, sec := range r.Sections {
		fmt.Fprintf(bw, "\n%s\n", sec.Title)
		if sec.Subtitle != "" {
			fmt.Fprintf(bw, "%s\n", sec.Subtitle)
		}
		if sec.Breakdown == nil {
			fmt.Fprintf(bw, "  %s\n", sec.Notice)
			continue
		}
		// the table writes straight through, so flush what precedes it
		if err := bw.Flush(); err != nil {
			return err
		}
		Table(w, *sec.Breakdown, sec.ValueFormat)
	}
	return bw.Flush()
}

// NoData prints the whole-report notice shown when nothing is loaded.
func NoData(w io.Writer) error {
	_, err := fmt.Fprintln(w, service.NoDataMessage)
	return err
}

// Table prints one breakdown: a row per category, a column per source and a
// footer with the respondents counted.
func Table(w io.Writer, b service.Breakdown, format string) {
	if format == "" {
		format = "%.1f%%"
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(append([]string{"Answer"}, b.Sources...))

	align := make([]int, len(b.Sources)+1)
	align[0] = tablewriter.ALIGN_LEFT
	for i := 1; i < len(align); i++ {
		align[i] = tablewriter.ALIGN_RIGHT
	}
	table.SetColumnAlignment(align)

	for i, cat := range b.Categories {
		row := make([]string, 0, len(b.Sources)+1)
		row = append(row, cat)
		for j := range b.Sources {
			if j < len(b.NoData) && b.NoData[j] {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf(format, b.Values[i][j]))
		}
		table.Append(row)
	}

	footer := make([]string, 0, len(b.Totals)+1)
	footer = append(footer, "n")
	for _, n := range b.Totals {
		footer = append(footer, strconv.Itoa(n))
	}
	table.SetFooter(footer)
	table.Render()
}

func titleWidth(lines []string) int {
	w := 0
	for _, l := range lines {
		if len(l) > w {
			w = len(l)
		}
	}
	return w
}
