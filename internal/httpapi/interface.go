package httpapi

import (
	"context"

	"github.com/godilite/surveydash/internal/catalog"
	"github.com/godilite/surveydash/internal/repository/models"
	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/state"
	"github.com/godilite/surveydash/internal/survey"
	"github.com/godilite/surveydash/internal/watcher"
)

type ReportBuilder interface {
	Build(ctx context.Context, sel survey.Selection) (*service.Report, error)
	Section(ctx context.Context, id string, sel survey.Selection) (service.Section, error)
	Catalog() *catalog.Catalog
}

type StateStore interface {
	Peek() *state.Snapshot
	NeedsReload() bool
	Reload(ctx context.Context) (*state.Snapshot, error)
}

// WatchStatus is satisfied by *watcher.Watcher.
type WatchStatus interface {
	Running() bool
	Stats() watcher.Stats
}

// LoadHistory is satisfied by *repository.LoadHistoryRepository.
type LoadHistory interface {
	RecentLoads(ctx context.Context, limit int) ([]models.LoadRun, error)
	FileStats(ctx context.Context) ([]models.FileLoadStats, error)
}
