package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/survey"
)

const defaultGRPCTimeout = 10 * time.Second

type GRPCHandlers struct {
	reports ReportBuilder
	state   StateStore
	logger  *zap.Logger
	timeout time.Duration
}

// NewGRPCHandlers initializes the gRPC handlers.
func NewGRPCHandlers(reports ReportBuilder, state StateStore, logger *zap.Logger, timeout time.Duration) *GRPCHandlers {
	if reports == nil {
		panic("nil ReportBuilder provided to NewGRPCHandlers")
	}
	if state == nil {
		panic("nil StateStore provided to NewGRPCHandlers")
	}
	if timeout <= 0 {
		timeout = defaultGRPCTimeout
	}
	return &GRPCHandlers{
		reports: reports,
		state:   state,
		logger:  logger.Named("grpc-handler"),
		timeout: timeout,
	}
}

// parseSelection reads the optional "filters" field: a struct mapping a
// facet to a list of values (a single string is accepted too).
func parseSelection(req *structpb.Struct) (survey.Selection, error) {
	filters, ok := req.GetFields()["filters"]
	if !ok {
		return nil, nil
	}
	fs := filters.GetStructValue()
	if fs == nil {
		return nil, status.Error(codes.InvalidArgument, "filters must be an object")
	}

	sel := make(survey.Selection, len(fs.GetFields()))
	for facet, v := range fs.GetFields() {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			sel[facet] = []string{kind.StringValue}
		case *structpb.Value_ListValue:
			for _, item := range kind.ListValue.GetValues() {
				s, ok := item.GetKind().(*structpb.Value_StringValue)
				if !ok {
					return nil, status.Errorf(codes.InvalidArgument, "filter %q must hold strings", facet)
				}
				sel[facet] = append(sel[facet], s.StringValue)
			}
		default:
			return nil, status.Errorf(codes.InvalidArgument, "filter %q must be a string or a list of strings", facet)
		}
	}
	return sel, nil
}

// toStruct converts a JSON-tagged value into a Struct with the same shape
// as the HTTP API response.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func (s *GRPCHandlers) handleError(ctx context.Context, op string, err error) error {
	switch ctx.Err() {
	case context.Canceled:
		s.logger.Warn("request canceled", zap.String("op", op))
		return status.Error(codes.Canceled, "request canceled")
	case context.DeadlineExceeded:
		s.logger.Warn("request timeout", zap.String("op", op))
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}

	switch {
	case errors.Is(err, service.ErrNoData):
		s.logger.Info("no data loaded", zap.String("op", op))
		return status.Error(codes.NotFound, service.NoDataMessage)
	case errors.Is(err, service.ErrQuestionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrLoadFailure):
		s.logger.Error("load failure", zap.String("op", op), zap.Error(err))
		return status.Error(codes.Unavailable, "survey exports could not be loaded")
	default:
		s.logger.Error("unexpected error", zap.String("op", op), zap.Error(err))
		return status.Errorf(codes.Internal, "%s failed: %v", op, err)
	}
}

func (s *GRPCHandlers) GetReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sel, err := parseSelection(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.reports.Build(ctx, sel)
	if err != nil {
		return nil, s.handleError(ctx, "GetReport", err)
	}

	out, err := toStruct(report)
	if err != nil {
		return nil, s.handleError(ctx, "GetReport", fmt.Errorf("encode report: %w", err))
	}
	return out, nil
}

func (s *GRPCHandlers) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := map[string]any{
		"generation":   0,
		"needs_reload": s.state.NeedsReload(),
		"rows":         0,
	}
	if snap := s.state.Peek(); snap != nil {
		files := make([]any, 0, len(snap.Result.Files))
		for _, f := range snap.Result.Files {
			file := map[string]any{"name": f.Name, "rows": f.Rows}
			if f.Err != nil {
				file["error"] = f.Err.Error()
			}
			files = append(files, file)
		}
		st["generation"] = snap.Generation
		st["rows"] = snap.Table().Len()
		st["files"] = files
	}

	out, err := toStruct(st)
	if err != nil {
		return nil, s.handleError(ctx, "GetStatus", err)
	}
	return out, nil
}

func (s *GRPCHandlers) GetLoadedAt(ctx context.Context, _ *emptypb.Empty) (*timestamppb.Timestamp, error) {
	snap := s.state.Peek()
	if snap == nil {
		return nil, status.Error(codes.NotFound, "nothing loaded yet")
	}
	return timestamppb.New(snap.Result.LoadedAt), nil
}

func (s *GRPCHandlers) Reload(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap, err := s.state.Reload(ctx)
	if err != nil {
		return nil, s.handleError(ctx, "Reload", fmt.Errorf("%w: %w", service.ErrLoadFailure, err))
	}
	s.logger.Info("reload requested over gRPC", zap.Uint64("generation", snap.Generation))

	return toStruct(map[string]any{
		"generation": snap.Generation,
		"rows":       snap.Table().Len(),
		"files":      len(snap.Result.Files),
	})
}
