// Package watcher notifies when survey exports appear or change in a
// directory.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 250 * time.Millisecond
	minTick         = 10 * time.Millisecond
)

// Stats tracks watcher activity for the status endpoint.
type Stats struct {
	Created       int       `json:"created"`
	Modified      int       `json:"modified"`
	Ignored       int       `json:"ignored"`
	Errors        int       `json:"errors"`
	Notifications int       `json:"notifications"`
	LastEventTime time.Time `json:"last_event_time"`
	LastEventPath string    `json:"last_event_path"`
	LastEventType string    `json:"last_event_type"`
}

// Watcher calls onChange whenever a file with a qualifying extension is
// created or written in dir. Changes to the same file within the debounce
// window are coalesced into one call; no change is ever dropped.
type Watcher struct {
	mu         sync.RWMutex
	dir        string
	extensions []string
	onChange   func()
	debounce   time.Duration
	pending    map[string]time.Time
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    bool
	stats      Stats
	logger     *zap.Logger
}

type Option func(*Watcher)

// WithExtensions sets the qualifying extensions. Matching ignores case.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = nil
		for _, e := range exts {
			e = strings.ToLower(e)
			if e != "" && !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			if e != "" {
				w.extensions = append(w.extensions, e)
			}
		}
	}
}

// WithDebounce sets how long a file must be quiet before onChange fires.
// Zero notifies on every event.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

func New(dir string, onChange func(), opts ...Option) *Watcher {
	w := &Watcher{
		dir:        dir,
		extensions: []string{".sav"},
		onChange:   onChange,
		debounce:   defaultDebounce,
		pending:    make(map[string]time.Time),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named("watcher")
	return w
}

// Start begins watching. It does not block. A directory that cannot be
// watched is reported here and nowhere else.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if w.doneCh != nil {
		// previous loop ended with its context
		<-w.doneCh
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	w.logger.Info("watching directory",
		zap.String("dir", w.dir),
		zap.Strings("extensions", w.extensions),
		zap.Duration("debounce", w.debounce))

	go w.run(ctx, fw, w.stopCh, w.doneCh)
	return nil
}

// Watch creates a watcher for dir and starts it. The watcher stops when ctx
// is done.
func Watch(ctx context.Context, dir string, onChange func(), opts ...Option) (*Watcher, error) {
	w := New(dir, onChange, opts...)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Stop stops the watcher and waits for its goroutine to exit. It is safe to
// call more than once, and after the start context is done.
func (w *Watcher) Stop() {
	w.mu.Lock()
	stopCh, doneCh := w.stopCh, w.doneCh
	if stopCh == nil {
		w.mu.Unlock()
		return
	}
	w.stopCh, w.doneCh = nil, nil
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	w.logger.Info("stopped")
}

// Running reports whether the event loop is active.
func (w *Watcher) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Stats returns a copy of the current counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Error("closing watcher", zap.Error(err))
		}
	}()

	tick := w.debounce / 2
	if tick < minTick {
		tick = minTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(true)
			w.markStopped()
			return

		case <-stopCh:
			w.flush(true)
			return

		case event, ok := <-fw.Events:
			if !ok {
				w.markStopped()
				return
			}
			w.handle(event)

		case err, ok := <-fw.Errors:
			if !ok {
				w.markStopped()
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush(false)
		}
	}
}

func (w *Watcher) markStopped() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *Watcher) qualifies(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (w *Watcher) handle(event fsnotify.Event) {
	var kind string
	switch {
	case event.Op.Has(fsnotify.Create):
		kind = "create"
	case event.Op.Has(fsnotify.Write):
		kind = "modify"
	default:
		return
	}

	w.mu.Lock()
	if !w.qualifies(event.Name) {
		w.stats.Ignored++
		w.mu.Unlock()
		return
	}
	now := time.Now()
	w.stats.LastEventTime = now
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = kind
	if kind == "create" {
		w.stats.Created++
	} else {
		w.stats.Modified++
	}
	w.pending[event.Name] = now
	w.mu.Unlock()

	w.logger.Debug("export changed", zap.String("path", event.Name), zap.String("op", kind))
	if w.debounce == 0 {
		w.flush(true)
	}
}

// flush notifies once for every path that has settled, or for everything
// pending when all is set.
func (w *Watcher) flush(all bool) {
	w.mu.Lock()
	now := time.Now()
	settled := 0
	for path, at := range w.pending {
		if all || now.Sub(at) >= w.debounce {
			delete(w.pending, path)
			settled++
		}
	}
	if settled > 0 {
		w.stats.Notifications++
	}
	w.mu.Unlock()

	if settled > 0 && w.onChange != nil {
		w.onChange()
	}
}
