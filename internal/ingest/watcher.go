package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-imports a CSV file whenever it changes on disk. It watches the
// parent directory so that editors replacing the file by rename are seen.
type Watcher struct {
	importer *Importer
	path     string
	debounce time.Duration
	onImport func(Report, error)
}

// NewWatcher creates a Watcher for path. A non-positive debounce takes
// DefaultDebounce.
func NewWatcher(importer *Importer, path string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{importer: importer, path: filepath.Clean(path), debounce: debounce}
}

// OnImport registers a callback run after every triggered import.
func (w *Watcher) OnImport(fn func(Report, error)) {
	w.onImport = fn
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.importer.log.InfoContext(ctx, "watching dataset file", slog.String("path", w.path))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.importer.log.WarnContext(ctx, "file watcher error", slog.Any("error", err))
		case <-timer.C:
			report, err := w.importer.ImportFile(ctx, w.path)
			if err != nil {
				w.importer.log.ErrorContext(ctx, "re-import failed", slog.String("path", w.path), slog.Any("error", err))
			}
			if w.onImport != nil {
				w.onImport(report, err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}
