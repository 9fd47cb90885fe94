package app

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/godilite/surveydash/internal/catalog"
	"github.com/godilite/surveydash/internal/config"
	handler "github.com/godilite/surveydash/internal/grpc"
	"github.com/godilite/surveydash/internal/httpapi"
	"github.com/godilite/surveydash/internal/loader"
	"github.com/godilite/surveydash/internal/repository"
	"github.com/godilite/surveydash/internal/repository/models"
	"github.com/godilite/surveydash/internal/service"
	"github.com/godilite/surveydash/internal/state"
	"github.com/godilite/surveydash/internal/watcher"
	dbbuilder "github.com/godilite/surveydash/pkg/database"
	grpcsrv "github.com/godilite/surveydash/pkg/grpc/server"
	"github.com/godilite/surveydash/pkg/pubsub"
)

const (
	shutdownTimeout = 10 * time.Second
	recordTimeout   = 5 * time.Second
	grpcTimeout     = time.Minute
)

type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	catalog *catalog.Catalog
	state   *state.State
	reports *service.ReportService
	watcher *watcher.Watcher

	dbPool     *sql.DB
	history    *repository.LoadHistoryRepository
	bus        *pubsub.Broadcaster
	grpcServer *grpcsrv.Server
	httpServer *httpapi.Server
}

type Options struct {
	HTTPListener net.Listener
	GRPCListener net.Listener
}

type Option func(*Options)

// WithHTTPListener serves the dashboard on lis instead of the configured port.
func WithHTTPListener(lis net.Listener) Option {
	return func(o *Options) {
		o.HTTPListener = lis
	}
}

// WithGRPCListener serves gRPC on lis instead of the configured port.
func WithGRPCListener(lis net.Listener) Option {
	return func(o *Options) {
		o.GRPCListener = lis
	}
}

// NewApp wires every component. Only configuration problems are fatal; the
// load history, reload broadcasts and gRPC are dropped with a warning when
// they cannot start.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	cat, err := catalog.Load(cfg.Survey.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("catalog init failed: %w", err)
	}
	logger.Info("Question catalog loaded", zap.Int("questions", len(cat.Questions)))

	ld := loader.New(
		loader.WithExtensions(cfg.Survey.Extensions...),
		loader.WithTransforms(cat.Transforms),
		loader.WithParallelism(cfg.Survey.Parallelism),
		loader.WithLogger(logger),
	)
	dir := cfg.Survey.Dir
	st := state.New(func(ctx context.Context) (loader.Result, error) {
		return ld.LoadAll(ctx, dir)
	}, state.WithLogger(logger), state.WithReloadTimeout(cfg.Survey.ReloadTimeout.Duration))

	a := &App{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		state:   st,
		reports: service.NewReportService(st, cat, logger),
	}

	a.initHistory()
	a.initBroadcast(ctx)

	a.watcher = watcher.New(dir, a.exportsChanged,
		watcher.WithExtensions(ld.Extensions()...),
		watcher.WithDebounce(cfg.Survey.WatchDebounce.Duration),
		watcher.WithLogger(logger),
	)

	if cfg.GRPC.Enabled {
		a.initGRPC(options.GRPCListener)
	}
	if cfg.HTTP.Enabled {
		httpOpts := []httpapi.Option{
			httpapi.WithPort(cfg.HTTP.Port),
			httpapi.WithLogger(logger),
			httpapi.WithWatchStatus(a.watcher),
			httpapi.WithDebugMode(cfg.AppEnv == "development"),
		}
		if options.HTTPListener != nil {
			httpOpts = append(httpOpts, httpapi.WithListener(options.HTTPListener))
		}
		if a.history != nil {
			httpOpts = append(httpOpts, httpapi.WithLoadHistory(a.history))
		}
		a.httpServer, err = httpapi.New(a.reports, st, httpOpts...)
		if err != nil {
			a.abort()
			return nil, fmt.Errorf("failed to create HTTP server: %w", err)
		}
	}

	return a, nil
}

func (a *App) initHistory() {
	path := a.cfg.Database.Path
	if path == "" {
		a.logger.Info("Load history disabled")
		return
	}
	db, err := dbbuilder.New(
		dbbuilder.WithDriver(a.cfg.Database.Driver),
		dbbuilder.WithDataSource(path),
		dbbuilder.WithRetry(1, 0),
		dbbuilder.WithMigrations(repository.Schema...),
	)
	if err != nil {
		a.logger.Warn("Load history disabled", zap.String("path", path), zap.Error(err))
		return
	}
	a.dbPool = db
	a.history = repository.NewLoadHistoryRepository(db)
	a.state.OnReload(a.recordLoad)
	a.logger.Info("Database pool initialized", zap.String("path", path))
}

func (a *App) initBroadcast(ctx context.Context) {
	if a.cfg.Redis.Addr == "" {
		return
	}
	bus, err := pubsub.New(ctx,
		pubsub.WithAddress(a.cfg.Redis.Addr),
		pubsub.WithPassword(a.cfg.Redis.Password),
		pubsub.WithDB(a.cfg.Redis.DB),
		pubsub.WithChannel(a.cfg.Redis.Channel),
	)
	if err != nil {
		a.logger.Warn("Reload broadcast disabled", zap.String("addr", a.cfg.Redis.Addr), zap.Error(err))
		return
	}
	a.bus = bus
	a.logger.Info("Reload broadcast initialized",
		zap.String("addr", a.cfg.Redis.Addr),
		zap.String("origin", bus.Origin()))
}

func (a *App) initGRPC(lis net.Listener) {
	opts := []grpcsrv.Option{
		grpcsrv.WithPort(a.cfg.GRPC.Port),
		grpcsrv.WithLogger(a.logger),
		grpcsrv.WithReflection(a.cfg.GRPC.ReflectionEnabled),
		grpcsrv.WithLogging(true),
		grpcsrv.WithRecovery(true),
	}
	if lis != nil {
		opts = append(opts, grpcsrv.WithListener(lis))
	}
	srv, err := grpcsrv.New(opts...)
	if err != nil {
		a.logger.Warn("gRPC disabled", zap.Int("port", a.cfg.GRPC.Port), zap.Error(err))
		return
	}

	h := handler.NewGRPCHandlers(a.reports, a.state, a.logger, grpcTimeout)
	srv.RegisterServiceWithHealth(handler.ServiceName, func(s *grpc.Server) {
		handler.RegisterReportServiceServer(s, h)
	})
	a.grpcServer = srv
}

// exportsChanged runs on the watcher goroutine. It only flags the state;
// the next render reloads.
func (a *App) exportsChanged() {
	a.state.MarkStale()
	if a.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	err := a.bus.Publish(ctx, pubsub.Event{
		Generation: a.state.Generation(),
		Reason:     "export directory changed",
	})
	if err != nil {
		a.logger.Warn("reload broadcast failed", zap.Error(err))
	}
}

func (a *App) remoteChange(e pubsub.Event) {
	a.logger.Info("reload requested by peer",
		zap.String("origin", e.Origin),
		zap.String("reason", e.Reason))
	a.state.MarkStale()
}

func (a *App) recordLoad(snap *state.Snapshot) {
	run := models.LoadRun{
		ID:         uuid.NewString(),
		Generation: snap.Generation,
		StartedAt:  snap.Result.LoadedAt,
		Duration:   snap.Result.Duration,
		Rows:       snap.Table().Len(),
	}
	for _, f := range snap.Result.Files {
		lf := models.LoadFile{RunID: run.ID, Name: f.Name, Rows: f.Rows}
		if f.Err != nil {
			lf.Error = f.Err.Error()
		}
		run.Files = append(run.Files, lf)
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := a.history.RecordLoad(ctx, run); err != nil {
		a.logger.Warn("failed to record load", zap.Uint64("generation", run.Generation), zap.Error(err))
	}
}

// Start brings up the watcher, broadcasts and servers, then loads the
// exports once so the first page is fast.
func (a *App) Start(ctx context.Context) error {
	if err := a.watcher.Start(ctx); err != nil {
		a.logger.Warn("directory watcher unavailable, exports load once until a manual reload",
			zap.String("dir", a.cfg.Survey.Dir), zap.Error(err))
	}

	if a.bus != nil {
		if err := a.bus.Subscribe(ctx, a.remoteChange); err != nil {
			a.logger.Warn("reload subscription failed", zap.Error(err))
		}
	}

	if _, err := a.state.Reload(ctx); err != nil {
		a.logger.Warn("initial load failed", zap.Error(err))
	}

	if a.grpcServer != nil {
		a.grpcServer.Start()
	}
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the application and blocks until ctx ends or a shutdown
// signal is received.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application starting")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Shutdown()
		return err
	}

	<-ctx.Done()
	a.logger.Info("application shutting down")
	a.Shutdown()
	return nil
}

// Shutdown stops the servers and releases every resource.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("HTTP shutdown error", zap.Error(err))
		}
	}
	if a.grpcServer != nil {
		if err := a.grpcServer.Shutdown(ctx); err != nil {
			a.logger.Error("gRPC shutdown error", zap.Error(err))
		}
	}
	a.watcher.Stop()
	a.closeStores()

	select {
	case <-ctx.Done():
		a.logger.Warn("shutdown completed but deadline exceeded")
	default:
		a.logger.Info("graceful shutdown completed successfully")
	}
	_ = a.logger.Sync()
}

// abort releases what NewApp acquired before it failed.
func (a *App) abort() {
	if a.grpcServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.grpcServer.Shutdown(ctx); err != nil {
			a.logger.Error("gRPC shutdown error", zap.Error(err))
		}
	}
	a.closeStores()
}

func (a *App) closeStores() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Error("broadcast shutdown error", zap.Error(err))
		}
	}
	if a.dbPool != nil {
		if err := a.dbPool.Close(); err != nil {
			a.logger.Error("database shutdown error", zap.Error(err))
		}
	}
}

// State exposes the shared state, mainly for tests.
func (a *App) State() *state.State {
	return a.state
}

// HTTPAddr returns the dashboard address, nil when HTTP is disabled or not
// started.
func (a *App) HTTPAddr() net.Addr {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Addr()
}

// GRPCAddr returns the gRPC address, nil when gRPC is disabled.
func (a *App) GRPCAddr() net.Addr {
	if a.grpcServer == nil {
		return nil
	}
	return a.grpcServer.Addr()
}
