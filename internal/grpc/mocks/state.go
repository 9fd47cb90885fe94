package mocks

import (
	"context"
	"errors"

	"github.com/godilite/surveydash/internal/state"
)

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
