package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/godilite/surveydash/internal/grpc/mocks"
	"github.com/godilite/surveydash/internal/loader"
	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/state"
	"github.com/godilite/surveydash/internal/survey"
)

func sampleReport() *service.Report {
	return &service.Report{
		Title:      []string{"ROXOR"},
		Generation: 4,
		Rows:       2,
		Matched:    2,
		Sections: []service.Section{{
			ID:    "gender",
			Title: "Gender",
			Breakdown: &service.Breakdown{
				Categories: []string{"Female", "Male"},
				Sources:    []string{"a.sav"},
				Values:     [][]float64{{50}, {50}},
				Totals:     []int{2},
				NoData:     []bool{false},
				Unit:       service.UnitPercent,
			},
		}},
	}
}

func snapshot() *state.Snapshot {
	tbl := survey.NewTable("Q1", survey.SourceColumn)
	_ = tbl.AppendRow("x", "a.sav")
	return &state.Snapshot{
		Generation: 4,
		Result: loader.Result{
			Table:    tbl,
			Files:    []loader.FileStatus{{Name: "a.sav", Rows: 1}, {Name: "b.sav", Err: errors.New("bad magic")}},
			LoadedAt: time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC),
		},
	}
}

// TestNewGRPCHandlers tests the constructor
func TestNewGRPCHandlers(t *testing.T) {
	t.Run("valid parameters", func(t *testing.T) {
		h := NewGRPCHandlers(&mocks.MockReportBuilder{}, &mocks.MockStateStore{}, zap.NewNop(), time.Minute)
		assert.NotNil(t, h)
		assert.Equal(t, time.Minute, h.timeout)
	})

	t.Run("nil report builder panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewGRPCHandlers(nil, &mocks.MockStateStore{}, zap.NewNop(), time.Minute)
		})
	})

	t.Run("nil state panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewGRPCHandlers(&mocks.MockReportBuilder{}, nil, zap.NewNop(), time.Minute)
		})
	})

	t.Run("zero timeout uses default", func(t *testing.T) {
		h := NewGRPCHandlers(&mocks.MockReportBuilder{}, &mocks.MockStateStore{}, zap.NewNop(), 0)
		assert.Equal(t, defaultGRPCTimeout, h.timeout)
	})
}

func TestGetReport(t *testing.T) {
	ctx := context.Background()

	t.Run("success with filters", func(t *testing.T) {
		reports := &mocks.MockReportBuilder{
			BuildFunc: func(ctx context.Context, sel survey.Selection) (*service.Report, error) {
				assert.Equal(t, survey.Selection{"Gender": {"Female", "Male"}, "Marital Status": {"Married"}}, sel)
				return sampleReport(), nil
			},
		}
		h := NewGRPCHandlers(reports, &mocks.MockStateStore{}, zap.NewNop(), time.Second)

		req, err := structpb.NewStruct(map[string]any{
			"filters": map[string]any{
				"Gender":         []any{"Female", "Male"},
				"Marital Status": "Married",
			},
		})
		require.NoError(t, err)

		resp, err := h.GetReport(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, float64(4), resp.Fields["generation"].GetNumberValue())
		sections := resp.Fields["sections"].GetListValue().GetValues()
		require.Len(t, sections, 1)
		assert.Equal(t, "Gender", sections[0].GetStructValue().Fields["title"].GetStringValue())
	})

	t.Run("invalid filters", func(t *testing.T) {
		h := NewGRPCHandlers(&mocks.MockReportBuilder{}, &mocks.MockStateStore{}, zap.NewNop(), time.Second)
		for _, filters := range []any{"Gender", map[string]any{"Gender": 3.0}, map[string]any{"Gender": []any{true}}} {
			req, err := structpb.NewStruct(map[string]any{"filters": filters})
			require.NoError(t, err)
			_, err = h.GetReport(ctx, req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		cases := []struct {
			name string
			err  error
			code codes.Code
		}{
			{"no data", service.ErrNoData, codes.NotFound},
			{"load failure", service.ErrLoadFailure, codes.Unavailable},
			{"unexpected", errors.New("boom"), codes.Internal},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				reports := &mocks.MockReportBuilder{
					BuildFunc: func(ctx context.Context, sel survey.Selection) (*service.Report, error) {
						return nil, tc.err
					},
				}
				h := NewGRPCHandlers(reports, &mocks.MockStateStore{}, zap.NewNop(), time.Second)
				_, err := h.GetReport(ctx, &structpb.Struct{})
				assert.Equal(t, tc.code, status.Code(err))
			})
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		reports := &mocks.MockReportBuilder{
			BuildFunc: func(ctx context.Context, sel survey.Selection) (*service.Report, error) {
				return nil, ctx.Err()
			},
		}
		h := NewGRPCHandlers(reports, &mocks.MockStateStore{}, zap.NewNop(), time.Second)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := h.GetReport(cctx, &structpb.Struct{})
		assert.Equal(t, codes.Canceled, status.Code(err))
	})
}

func TestGetStatusAndLoadedAt(t *testing.T) {
	ctx := context.Background()

	t.Run("before first load", func(t *testing.T) {
		h := NewGRPCHandlers(&mocks.MockReportBuilder{}, &mocks.MockStateStore{
			NeedsReloadFunc: func() bool { return true },
		}, zap.NewNop(), time.Second)

		st, err := h.GetStatus(ctx, &emptypb.Empty{})
		require.NoError(t, err)
		assert.True(t, st.Fields["needs_reload"].GetBoolValue())
		assert.Zero(t, st.Fields["generation"].GetNumberValue())

		_, err = h.GetLoadedAt(ctx, &emptypb.Empty{})
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("loaded", func(t *testing.T) {
		h := NewGRPCHandlers(&mocks.MockReportBuilder{}, &mocks.MockStateStore{
			PeekFunc: snapshot,
		}, zap.NewNop(), time.Second)

		st, err := h.GetStatus(ctx, &emptypb.Empty{})
		require.NoError(t, err)
		assert.Equal(t, float64(4), st.Fields["generation"].GetNumberValue())
		assert.Equal(t, float64(1), st.Fields["rows"].GetNumberValue())
		files := st.Fields["files"].GetListValue().GetValues()
		require.Len(t, files, 2)
		assert.Equal(t, "bad magic", files[1].GetStructValue().Fields["error"].GetStringValue())

		ts, err := h.GetLoadedAt(ctx, &emptypb.Empty{})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC), ts.AsTime())
	})
}

func TestReload(t *testing.T) {
	ctx := context.Background()

	h := NewGRPCHandlers(&mocks.MockReportBuilder{}, &mocks.MockStateStore{
		ReloadFunc: func(ctx context.Context) (*state.Snapshot, error) { return snapshot(), nil },
	}, zap.NewNop(), time.Second)
	resp, err := h.Reload(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, float64(4), resp.Fields["generation"].GetNumberValue())
	assert.Equal(t, float64(2), resp.Fields["files"].GetNumberValue())

	failing := NewGRPCHandlers(&mocks.MockReportBuilder{}, &mocks.MockStateStore{
		ReloadFunc: func(ctx context.Context) (*state.Snapshot, error) { return nil, errors.New("disk gone") },
	}, zap.NewNop(), time.Second)
	_, err = failing.Reload(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestServiceDesc_OverTheWire(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpclib.NewServer()
	h := NewGRPCHandlers(&mocks.MockReportBuilder{
		BuildFunc: func(ctx context.Context, sel survey.Selection) (*service.Report, error) {
			return sampleReport(), nil
		},
	}, &mocks.MockStateStore{PeekFunc: snapshot}, zap.NewNop(), time.Second)
	RegisterReportServiceServer(srv, h)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpclib.NewClient("passthrough:///bufnet",
		grpclib.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpclib.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := NewReportServiceClient(conn)

	report, err := client.GetReport(ctx, &structpb.Struct{})
	require.NoError(t, err)
	assert.Equal(t, "ROXOR", report.Fields["title"].GetListValue().GetValues()[0].GetStringValue())

	st, err := client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(4), st.Fields["generation"].GetNumberValue())

	ts, err := client.GetLoadedAt(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.AsTime().Year())
}
