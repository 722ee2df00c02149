package library

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler receives every book found by a scan.
type Handler func(ctx context.Context, books []Book) error

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Reader *Reader
	Handle Handler
	// Enabled is consulted before each scan. Nil means always.
	Enabled func() bool
	// Interval between full rescans. Zero relies on filesystem events only.
	Interval time.Duration
	// Settle is how long the folder must be quiet after an event before
	// it is scanned, so half-copied files are not picked up.
	Settle time.Duration
	Logger *slog.Logger
}

// Watcher rescans the library when files change and on an interval.
type Watcher struct {
	cfg    WatcherConfig
	logger *slog.Logger
}

// NewWatcher validates cfg and returns a Watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Reader == nil {
		return nil, errors.New("watcher requires a reader")
	}
	if cfg.Handle == nil {
		return nil, errors.New("watcher requires a handler")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{cfg: cfg, logger: cfg.Logger.With("component", "library_watcher")}, nil
}

// Run scans once, then on every settled change and every Interval, until
// ctx is done. It returns nil on cancellation. If the folder cannot be
// watched it falls back to the interval alone.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("filesystem events unavailable, using interval scans", "error", err)
	} else {
		defer fsw.Close()
		w.addTree(fsw, w.cfg.Reader.Root())
		events, errs = fsw.Events, fsw.Errors
	}

	var tick <-chan time.Time
	if w.cfg.Interval > 0 {
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	settle := time.NewTimer(w.cfg.Settle)
	defer settle.Stop()
	pending := true // initial scan

	w.logger.Info("watching library", "path", w.cfg.Reader.Root(), "interval", w.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			w.Scan(ctx)
		case <-settle.C:
			if pending {
				pending = false
				w.Scan(ctx)
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addTree(fsw, ev.Name)
				}
			}
			if relevant(ev) {
				pending = true
				settle.Reset(w.cfg.Settle)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Scan rescans the folder and hands the result to the handler. It does
// nothing while the watcher is disabled.
func (w *Watcher) Scan(ctx context.Context) {
	if w.cfg.Enabled != nil && !w.cfg.Enabled() {
		return
	}
	books, err := w.cfg.Reader.Rescan()
	if err != nil {
		w.logger.Warn("library scan failed", "error", err)
		return
	}
	w.logger.Debug("library scanned", "books", len(books))
	if err := w.cfg.Handle(ctx, books); err != nil && ctx.Err() == nil {
		w.logger.Warn("library scan handler failed", "error", err)
	}
}

// addTree watches dir and every directory below it. fsnotify is not
// recursive.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(p); err != nil {
				w.logger.Debug("cannot watch directory", "path", p, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("failed to walk library", "path", dir, "error", err)
	}
}

func relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	if IsEbook(ev.Name) {
		return true
	}
	// A directory moved or created in may carry books.
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
