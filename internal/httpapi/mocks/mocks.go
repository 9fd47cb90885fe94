package mocks

import (
	"context"
	"errors"

	"github.com/godilite/surveydash/internal/catalog"
	"github.com/godilite/surveydash/internal/repository/models"
	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/state"
	"github.com/godilite/surveydash/internal/survey"
	"github.com/godilite/surveydash/internal/watcher"
)

// MockReportBuilder is a mock implementation of the ReportBuilder interface.
type MockReportBuilder struct {
	BuildFunc   func(ctx context.Context, sel survey.Selection) (*service.Report, error)
	SectionFunc func(ctx context.Context, id string, sel survey.Selection) (service.Section, error)
	CatalogFunc func() *catalog.Catalog
}

// Build implements the ReportBuilder interface
func (m *MockReportBuilder) Build(ctx context.Context, sel survey.Selection) (*service.Report, error) {
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, sel)
	}
	return nil, errors.New("BuildFunc not implemented")
}

// Section implements the ReportBuilder interface
func (m *MockReportBuilder) Section(ctx context.Context, id string, sel survey.Selection) (service.Section, error) {
	if m.SectionFunc != nil {
		return m.SectionFunc(ctx, id, sel)
	}
	return service.Section{}, errors.New("SectionFunc not implemented")
}

// Catalog implements the ReportBuilder interface
func (m *MockReportBuilder) Catalog() *catalog.Catalog {
	if m.CatalogFunc != nil {
		return m.CatalogFunc()
	}
	return &catalog.Catalog{}
}

// MockStateStore is a mock implementation of the StateStore interface.
type MockStateStore struct {
	PeekFunc        func() *state.Snapshot
	NeedsReloadFunc func() bool
	ReloadFunc      func(ctx context.Context) (*state.Snapshot, error)
}

// Peek implements the StateStore interface
func (m *MockStateStore) Peek() *state.Snapshot {
	if m.PeekFunc != nil {
		return m.PeekFunc()
	}
	return nil
}

// NeedsReload implements the StateStore interface
func (m *MockStateStore) NeedsReload() bool {
	if m.NeedsReloadFunc != nil {
		return m.NeedsReloadFunc()
	}
	return false
}

// Reload implements the StateStore interface
func (m *MockStateStore) Reload(ctx context.Context) (*state.Snapshot, error) {
	if m.ReloadFunc != nil {
		return m.ReloadFunc(ctx)
	}
	return nil, errors.New("ReloadFunc not implemented")
}

// MockWatchStatus is a mock implementation of the WatchStatus interface.
type MockWatchStatus struct {
	RunningFunc func() bool
	StatsFunc   func() watcher.Stats
}

// Running implements the WatchStatus interface
func (m *MockWatchStatus) Running() bool {
	if m.RunningFunc != nil {
		return m.RunningFunc()
	}
	return false
}

// Stats implements the WatchStatus interface
func (m *MockWatchStatus) Stats() watcher.Stats {
	if m.StatsFunc != nil {
		return m.StatsFunc()
	}
	return watcher.Stats{}
}

// MockLoadHistory is a mock implementation of the LoadHistory interface.
type MockLoadHistory struct {
	RecentLoadsFunc func(ctx context.Context, limit int) ([]models.LoadRun, error)
	FileStatsFunc   func(ctx context.Context) ([]models.FileLoadStats, error)
}

// RecentLoads implements the LoadHistory interface
func (m *MockLoadHistory) RecentLoads(ctx context.Context, limit int) ([]models.LoadRun, error) {
	if m.RecentLoadsFunc != nil {
		return m.RecentLoadsFunc(ctx, limit)
	}
	return nil, errors.New("RecentLoadsFunc not implemented")
}

// FileStats implements the LoadHistory interface
func (m *MockLoadHistory) FileStats(ctx context.Context) ([]models.FileLoadStats, error) {
	if m.FileStatsFunc != nil {
		return m.FileStatsFunc(ctx)
	}
	return nil, errors.New("FileStatsFunc not implemented")
}
