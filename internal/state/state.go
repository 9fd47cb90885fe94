// Package state holds the application's current respondent table and the
// flag that says it is out of date.
package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/godilite/surveydash/internal/loader"
	"github.com/godilite/surveydash/internal/survey"
)

const (
	reloadKey            = "reload"
	defaultReloadTimeout = 2 * time.Minute
)

// LoadFunc produces a fresh load result.
type LoadFunc func(ctx context.Context) (loader.Result, error)

// Snapshot is one immutable load of the export directory.
type Snapshot struct {
	Generation uint64
	Result     loader.Result
}

// Table returns the snapshot's combined table; nil-safe.
func (s *Snapshot) Table() *survey.Table {
	if s == nil {
		return nil
	}
	return s.Result.Table
}

// State replaces a global refresh counter. The watcher only flips
// needsReload; readers reload synchronously when they see it set, and
// concurrent readers share a single reload.
type State struct {
	needsReload atomic.Bool
	generation  atomic.Uint64
	current     atomic.Pointer[Snapshot]
	group       singleflight.Group
	load        LoadFunc
	timeout     time.Duration
	logger      *zap.Logger

	mu    sync.RWMutex
	hooks []func(*Snapshot)
}

type Option func(*State)

func WithLogger(logger *zap.Logger) Option {
	return func(s *State) {
		s.logger = logger
	}
}

// WithReloadTimeout bounds a single reload. Reloads are detached from the
// caller's context so a cancelled request cannot abort a shared reload.
func WithReloadTimeout(d time.Duration) Option {
	return func(s *State) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a state that needs a reload before its first read.
func New(load LoadFunc, opts ...Option) *State {
	if load == nil {
		panic("load must not be nil")
	}
	s := &State{
		load:    load,
		timeout: defaultReloadTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("state")
	s.needsReload.Store(true)
	return s
}

// MarkStale records that the export directory changed.
func (s *State) MarkStale() {
	if !s.needsReload.Swap(true) {
		s.logger.Debug("marked stale")
	}
}

// NeedsReload reports whether the next read will reload.
func (s *State) NeedsReload() bool {
	return s.needsReload.Load()
}

// Generation counts successful reloads.
func (s *State) Generation() uint64 {
	return s.generation.Load()
}

// Peek returns the current snapshot without reloading. It is nil before the
// first load.
func (s *State) Peek() *Snapshot {
	return s.current.Load()
}

// OnReload registers fn to run after every successful reload.
func (s *State) OnReload(fn func(*Snapshot)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Current returns the current snapshot, reloading first if needed. When a
// reload fails and an older snapshot exists, the older one is returned along
// with the error.
func (s *State) Current(ctx context.Context) (*Snapshot, error) {
	if !s.needsReload.Load() {
		if snap := s.current.Load(); snap != nil {
			return snap, nil
		}
	}
	return s.Reload(ctx)
}

// Reload loads the export directory now. Concurrent callers share one load.
func (s *State) Reload(ctx context.Context) (*Snapshot, error) {
	ch := s.group.DoChan(reloadKey, func() (any, error) {
		// cleared before loading so changes during the load trigger another
		s.needsReload.Store(false)

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		res, err := s.load(loadCtx)
		if err != nil {
			s.needsReload.Store(true)
			return nil, err
		}
		snap := &Snapshot{Generation: s.generation.Add(1), Result: res}
		s.current.Store(snap)
		s.logger.Info("reloaded",
			zap.Uint64("generation", snap.Generation),
			zap.Int("rows", res.Table.Len()),
			zap.Int("files", len(res.Files)))

		s.mu.RLock()
		hooks := append([]func(*Snapshot){}, s.hooks...)
		s.mu.RUnlock()
		for _, h := range hooks {
			h(snap)
		}
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return s.current.Load(), ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			s.logger.Warn("reload failed", zap.Error(r.Err))
			return s.current.Load(), fmt.Errorf("reload: %w", r.Err)
		}
		if r.Shared {
			s.logger.Debug("shared reload")
		}
		return r.Val.(*Snapshot), nil
	}
}
