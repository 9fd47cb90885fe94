package grpc

import (
	"context"

	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/state"
	"github.com/godilite/surveydash/internal/survey"
)

type ReportBuilder interface {
	Build(ctx context.Context, sel survey.Selection) (*service.Report, error)
}

// StateStore is the part of the application state the handlers need.
type StateStore interface {
	Peek() *state.Snapshot
	NeedsReload() bool
	Reload(ctx context.Context) (*state.Snapshot, error)
}
