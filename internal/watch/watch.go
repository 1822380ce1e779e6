// Package watch kicks an early sync when an operator edits one of the state
// files on disk, so a mapping fix does not wait for the next cron tick.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 2 * time.Second

// Kicker triggers one sync cycle. A run already in flight is the kicked
// side's problem; the watcher fires and forgets.
type Kicker interface {
	Kick(ctx context.Context, trigger string)
}

// Config names the files whose edits should trigger a cycle. Service-written
// files (memory, pending queue) must not be listed or every cycle would kick
// the next one.
type Config struct {
	Paths    []string
	Debounce time.Duration
}

// Watcher debounces file events into sync kicks.
type Watcher struct {
	kicker Kicker
	cfg    Config
	logger *slog.Logger

	fs   *fsnotify.Watcher
	done chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	started bool
}

// New builds a watcher. A nil logger falls back to slog.Default.
func New(kicker Kicker, cfg Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	return &Watcher{
		kicker: kicker,
		cfg:    cfg,
		logger: logger.With("component", "watch"),
	}
}

// Start registers the parent directories of the configured files and begins
// dispatching events. Watching directories instead of the files themselves
// survives the rename step of an atomic write.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return fmt.Errorf("watcher is nil")
	}
	if len(w.cfg.Paths) == 0 {
		return fmt.Errorf("no files to watch")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}

	watched := make(map[string]struct{}, len(w.cfg.Paths))
	dirs := make(map[string]struct{})
	for _, path := range w.cfg.Paths {
		clean := filepath.Clean(path)
		watched[clean] = struct{}{}
		dirs[filepath.Dir(clean)] = struct{}{}
	}
	for dir := range dirs {
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.fs = fs
	w.done = make(chan struct{})
	w.started = true
	w.logger.Info("operator file watcher started", "files", len(watched), "directories", len(dirs), "debounce", w.cfg.Debounce)

	go w.loop(ctx, watched)
	return nil
}

func (w *Watcher) loop(ctx context.Context, watched map[string]struct{}) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				w.stopTimer()
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if _, hit := watched[filepath.Clean(event.Name)]; !hit {
				continue
			}
			w.logger.Info("operator file changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			w.arm(ctx)
		case err, ok := <-w.fs.Errors:
			if !ok {
				w.stopTimer()
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// arm resets the debounce timer so a burst of writes produces one kick.
func (w *Watcher) arm(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.kicker.Kick(ctx, "files-changed")
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Stop closes the underlying watcher and waits for the dispatch loop.
func (w *Watcher) Stop() {
	if w == nil || !w.started {
		return
	}
	w.fs.Close()
	<-w.done
	w.started = false
	w.logger.Info("operator file watcher stopped")
}
