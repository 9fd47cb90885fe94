package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor(t *testing.T) {
	logger := zaptest.NewLogger(t)

	interceptor := LoggingInterceptor(logger)
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/TestMethod"}

	t.Run("successful request", func(t *testing.T) {
		resp, err := interceptor(context.Background(), "test request", info, func(ctx context.Context, req any) (any, error) {
			return "success", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
	})

	t.Run("error request", func(t *testing.T) {
		_, err := interceptor(context.Background(), "test request", info, func(ctx context.Context, req any) (any, error) {
			return nil, status.Error(codes.InvalidArgument, "test error")
		})
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestLoggingInterceptor_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := LoggingInterceptor(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: "/surveydash.v1.ReportService/GetReport"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "req-7"))
	for _, code := range []codes.Code{codes.OK, codes.NotFound, codes.Unavailable} {
		_, _ = interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
			if code == codes.OK {
				return "ok", nil
			}
			return nil, status.Error(code, "nope")
		})
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "req-7", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "nope", entries[2].ContextMap()["message"])
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Panics"}

	resp, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})
	assert.Nil(t, resp)
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err = interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "fine", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fine", resp)
}

func TestNew_InvalidPort(t *testing.T) {
	_, err := New(WithPort(70000))
	assert.Error(t, err)
}

func TestServerBuilderWithLogging(t *testing.T) {
	logger := zaptest.NewLogger(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server, err := New(
		WithListener(lis),
		WithLogger(logger),
		WithLogging(true),
		WithRecovery(true),
	)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, server.Shutdown(context.Background()))
	}()

	assert.NotNil(t, server.grpcServer)
	assert.NotNil(t, server.healthServer)
	assert.Equal(t, lis.Addr(), server.Addr())

	server.Start()

	conn, err := grpc.NewClient(server.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestServerShutdownBeforeStartClosesListener(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server, err := New(WithListener(lis))
	require.NoError(t, err)
	require.NoError(t, server.Shutdown(context.Background()))

	_, err = lis.Accept()
	assert.ErrorIs(t, err, net.ErrClosed)
}
