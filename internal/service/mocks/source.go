package mocks

import (
	"context"
	"errors"

	"github.com/godilite/surveydash/internal/state"
)

// MockSnapshotSource is a mock implementation of the SnapshotSource
// interface for testing the service layer.
type MockSnapshotSource struct {
	CurrentFunc func(ctx context.Context) (*state.Snapshot, error)
}

// Current implements the SnapshotSource interface
func (m *MockSnapshotSource) Current(ctx context.Context) (*state.Snapshot, error) {
	if m.CurrentFunc != nil {
		return m.CurrentFunc(ctx)
	}
	return nil, errors.New("CurrentFunc not implemented")
}
