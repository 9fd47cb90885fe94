package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/godilite/surveydash/internal/savfile"
	"github.com/godilite/surveydash/internal/survey"
)

var errNoHeader = errors.New("no header row")

func readSAV(_ context.Context, path string) (*survey.Table, error) {
	f, err := savfile.Open(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(f.Variables))
	for i, v := range f.Variables {
		names[i] = v.Name
	}
	t := survey.NewTable(headerNames(names)...)
	row := make([]string, len(f.Variables))
	for _, c := range f.Cases {
		for i, v := range c {
			row[i] = f.Display(i, v)
		}
		if err := t.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// readXLSX reads the first sheet; its first row is the header.
func readXLSX(ctx context.Context, path string) (*survey.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errNoHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromRecords(ctx, rows)
}

func readCSV(ctx context.Context, path string) (*survey.Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return fromRecords(ctx, records)
}

// fromRecords builds a table from a header row and data rows. Short rows
// are padded, extra cells beyond the header are dropped.
func fromRecords(ctx context.Context, records [][]string) (*survey.Table, error) {
	if len(records) == 0 {
		return nil, errNoHeader
	}
	columns := headerNames(records[0])
	t := survey.NewTable(columns...)
	row := make([]string, len(columns))
	for i, rec := range records[1:] {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j := range row {
			row[j] = ""
			if j < len(rec) {
				row[j] = strings.TrimSpace(rec[j])
			}
		}
		if err := t.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// headerNames trims names, names blank columns after their position and
// suffixes duplicates so every column stays addressable.
func headerNames(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Column" + strconv.Itoa(i+1)
		}
		candidate := name
		for n := 1; used[candidate]; n++ {
			candidate = name + "." + strconv.Itoa(n)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}
