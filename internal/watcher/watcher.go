// Package watcher ingests documents dropped into the uploads directory and removes the
// sources of deleted files, using fsnotify with debouncing.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/fileid"
)

const defaultDebounce = 400 * time.Millisecond

// Handler receives the ingestion and removal work produced by file events.
type Handler interface {
	IngestFile(ctx context.Context, path string) (int, error)
	RemoveSource(ctx context.Context, source string) (int, error)
}

// Watcher watches one directory, non-recursively. A file's source name is its base name,
// so nested directories are ignored.
type Watcher struct {
	dir        string
	extensions []string
	handler    Handler
	debounce   time.Duration
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	timers     map[string]*time.Timer
	ctx        context.Context
	done       chan struct{}
	started    bool
	stopOnce   sync.Once
	logger     *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watch events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over dir. extensions filter which files are handled
// (empty = all).
func NewWatcher(dir string, extensions []string, handler Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:        filepath.Clean(dir),
		extensions: extensions,
		handler:    handler,
		debounce:   defaultDebounce,
		timers:     make(map[string]*time.Timer),
		done:       make(chan struct{}),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start creates the directory if needed and starts watching. It runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.logger.Debug("watcher starting", zap.String("dir", w.dir), zap.Strings("extensions", w.extensions))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if filepath.Dir(path) != w.dir || !matchExtension(path, w.extensions) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		w.remove(path)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			w.debounceIngest(path)
		}
	}
}

func (w *Watcher) ingest(path string) {
	if w.handler == nil {
		return
	}
	n, err := w.handler.IngestFile(w.context(), path)
	if err != nil {
		w.logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("watch ingested file", zap.String("path", path), zap.Int("chunks", n))
}

func (w *Watcher) remove(path string) {
	if w.handler == nil {
		return
	}
	source := fileid.SourceName(path)
	n, err := w.handler.RemoveSource(w.context(), source)
	if err != nil {
		w.logger.Warn("watch remove failed", zap.String("source", source), zap.Error(err))
		return
	}
	w.logger.Debug("watch removed source", zap.String("source", source), zap.Int("chunks", n))
}

func (w *Watcher) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

func matchExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	if len(extensions) == 0 {
		return true
	}
	for _, e := range extensions {
		eNorm := strings.TrimPrefix(strings.ToLower(e), ".")
		extNorm := strings.TrimPrefix(strings.ToLower(ext), ".")
		if eNorm == extNorm {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingest(path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

// SyncExistingFiles ingests every matching file already in the directory and returns how
// many were ingested. Call it after Start to pick up files added while stopped.
func (w *Watcher) SyncExistingFiles() int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("watcher sync failed", zap.String("dir", w.dir), zap.Error(err))
		return 0
	}
	w.logger.Debug("watcher syncing existing files", zap.String("dir", w.dir))
	n := 0
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if !e.Type().IsRegular() || !matchExtension(path, w.extensions) {
			continue
		}
		w.ingest(path)
		n++
	}
	return n
}

// Stop stops the watcher and releases resources. Pending debounced ingests are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	_ = w.watcher.Close()
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
