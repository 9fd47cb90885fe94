package mocks

import (
	"context"
	"errors"

	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/survey"
)

// MockReportBuilder is a mock implementation of the ReportBuilder interface
// for testing the handler layer. It uses function-based mocking for flexibility.
type MockReportBuilder struct {
	BuildFunc func(ctx context.Context, sel survey.Selection) (*service.Report, error)
}

// Build implements the ReportBuilder interface
func (m *MockReportBuilder) Build(ctx context.Context, sel survey.Selection) (*service.Report, error) {
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, sel)
	}
	return nil, errors.New("BuildFunc not implemented")
}
