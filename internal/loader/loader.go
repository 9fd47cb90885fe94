// Package loader turns a directory of survey exports into one respondent
// table tagged with the file each row came from.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/godilite/surveydash/internal/catalog"
	"github.com/godilite/surveydash/internal/survey"
)

const defaultParallelism = 4

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrParserPanic       = errors.New("export parser panicked")
)

// DefaultExtensions is the set of export extensions loaded when none are
// configured.
var DefaultExtensions = []string{".sav"}

// Parser reads one export file into a table.
type Parser func(ctx context.Context, path string) (*survey.Table, error)

var parsers = map[string]Parser{
	".sav":  readSAV,
	".xlsx": readXLSX,
	".csv":  readCSV,
}

// FileStatus reports how one export file loaded. Err is nil on success.
type FileStatus struct {
	Name string
	Rows int
	Err  error
}

// Result is the outcome of one LoadAll call.
type Result struct {
	Table    *survey.Table
	Files    []FileStatus
	LoadedAt time.Time
	Duration time.Duration
}

// Failed returns the files that could not be read.
func (r Result) Failed() []FileStatus {
	var out []FileStatus
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Loader reads every qualifying export in a directory.
type Loader struct {
	extensions  []string
	transforms  catalog.Transforms
	parallelism int
	logger      *zap.Logger
}

type Option func(*Loader)

// WithExtensions sets the qualifying extensions, e.g. ".sav", ".xlsx".
// Matching is case-insensitive.
func WithExtensions(exts ...string) Option {
	return func(l *Loader) {
		l.extensions = normalizeExtensions(exts)
	}
}

// WithTransforms sets the clean-up applied to the combined table.
func WithTransforms(t catalog.Transforms) Option {
	return func(l *Loader) {
		l.transforms = t
	}
}

// WithParallelism bounds how many files are parsed at once.
func WithParallelism(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.parallelism = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

func New(opts ...Option) *Loader {
	l := &Loader{
		extensions:  DefaultExtensions,
		parallelism: defaultParallelism,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if len(l.extensions) == 0 {
		l.extensions = DefaultExtensions
	}
	l.logger = l.logger.Named("loader")
	return l
}

// Extensions returns the qualifying extensions, lower-cased with a leading dot.
func (l *Loader) Extensions() []string {
	return append([]string(nil), l.extensions...)
}

// Qualifies reports whether a file name has a qualifying extension.
func (l *Loader) Qualifies(name string) bool {
	return HasExtension(name, l.extensions)
}

// HasExtension reports whether name ends with one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func normalizeExtensions(exts []string) []string {
	var out []string
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// LoadAll reads every qualifying file in dir, in name order. A file that
// cannot be parsed is skipped with a warning. A missing directory or one
// without qualifying files yields an empty table. The only errors returned
// are context cancellation and an unreadable directory.
func (l *Loader) LoadAll(ctx context.Context, dir string) (Result, error) {
	start := time.Now()
	names, err := l.list(dir)
	if err != nil {
		return Result{}, err
	}

	tables := make([]*survey.Table, len(names))
	files := make([]FileStatus, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := l.parse(gctx, filepath.Join(dir, name))
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				l.logger.Warn("skipping unreadable export",
					zap.String("file", name),
					zap.Error(err))
				files[i] = FileStatus{Name: name, Err: err}
				return nil
			}
			tables[i] = t.WithColumn(survey.SourceColumn, name)
			files[i] = FileStatus{Name: name, Rows: t.Len()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("load exports: %w", err)
	}

	table := l.apply(survey.Concat(tables...))
	res := Result{
		Table:    table,
		Files:    files,
		LoadedAt: start,
		Duration: time.Since(start),
	}
	l.logger.Info("loaded exports",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("failed", len(res.Failed())),
		zap.Int("rows", table.Len()),
		zap.Duration("took", res.Duration))
	return res, nil
}

func (l *Loader) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("export directory does not exist", zap.String("dir", dir))
			return nil, nil
		}
		return nil, fmt.Errorf("read export directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !l.Qualifies(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool { return survey.NaturalLess(names[i], names[j]) })
	return names, nil
}

// parse reads one export. A parser panic fails only that file.
func (l *Loader) parse(ctx context.Context, path string) (t *survey.Table, err error) {
	parse, ok := parsers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("%w: %s: %v", ErrParserPanic, filepath.Base(path), r)
		}
	}()
	return parse(ctx, path)
}

func (l *Loader) apply(t *survey.Table) *survey.Table {
	for _, r := range l.transforms.FillEmpty {
		t = t.FillEmpty(r.Column, r.Value)
	}
	if len(l.transforms.Rename) > 0 {
		t = t.Rename(l.transforms.Rename)
	}
	return t
}
