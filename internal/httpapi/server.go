// Package httpapi serves the dashboard page, chart images and a JSON API
// over HTTP.
package httpapi

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPollInterval   = 5 * time.Second
	defaultHistoryLimit   = 10
)

type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	lis     net.Listener
	page    *template.Template
	logger  *zap.Logger

	reports ReportBuilder
	state   StateStore
	watch   WatchStatus
	history LoadHistory

	requestTimeout time.Duration
	pollInterval   time.Duration
	historyLimit   int
}

type Options struct {
	Port           int
	Listener       net.Listener
	Logger         *zap.Logger
	Watch          WatchStatus
	History        LoadHistory
	RequestTimeout time.Duration
	PollInterval   time.Duration
	HistoryLimit   int
	DebugMode      bool
}

type Option func(*Options)

func WithPort(port int) Option {
	return func(o *Options) {
		o.Port = port
	}
}

// WithListener serves on an existing listener instead of opening a port.
func WithListener(lis net.Listener) Option {
	return func(o *Options) {
		o.Listener = lis
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithWatchStatus adds watcher activity to /api/status.
func WithWatchStatus(w WatchStatus) Option {
	return func(o *Options) {
		o.Watch = w
	}
}

// WithLoadHistory adds recent loads to /api/status.
func WithLoadHistory(h LoadHistory) Option {
	return func(o *Options) {
		o.History = h
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = d
	}
}

// WithPollInterval sets how often the page asks whether the data changed.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PollInterval = d
	}
}

func WithDebugMode(enabled bool) Option {
	return func(o *Options) {
		o.DebugMode = enabled
	}
}

// New builds the HTTP server. Nothing listens until Start.
func New(reports ReportBuilder, st StateStore, opts ...Option) (*Server, error) {
	if reports == nil {
		panic("nil ReportBuilder provided to httpapi.New")
	}
	if st == nil {
		panic("nil StateStore provided to httpapi.New")
	}

	options := &Options{
		Port:           8080,
		RequestTimeout: defaultRequestTimeout,
		PollInterval:   defaultPollInterval,
		HistoryLimit:   defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		var err error
		options.Logger, err = zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	if options.Listener == nil && (options.Port <= 0 || options.Port > 65535) {
		return nil, fmt.Errorf("invalid port: %d", options.Port)
	}

	page, err := template.New("index.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}

	if !options.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:         gin.New(),
		lis:            options.Listener,
		page:           page,
		logger:         options.Logger.Named("http"),
		reports:        reports,
		state:          st,
		watch:          options.Watch,
		history:        options.History,
		requestTimeout: options.RequestTimeout,
		pollInterval:   options.PollInterval,
		historyLimit:   options.HistoryLimit,
	}
	s.router.Use(requestID(), s.accessLog(), gin.Recovery())
	s.routes()

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", options.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/", s.index)
	s.router.GET("/charts/:file", s.chart)

	api := s.router.Group("/api")
	{
		api.GET("/report", s.report)
		api.GET("/facets", s.facets)
		api.GET("/status", s.status)
		api.POST("/reload", s.reload)
		api.GET("/export.xlsx", s.export)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves in a goroutine and returns immediately.
func (s *Server) Start() error {
	if s.lis == nil {
		lis, err := net.Listen("tcp", s.httpSrv.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.httpSrv.Addr, err)
		}
		s.lis = lis
	}
	s.logger.Info("HTTP server starting", zap.String("addr", s.lis.Addr().String()))

	go func() {
		if err := s.httpSrv.Serve(s.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

// Addr returns the listening address once started.
func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}
