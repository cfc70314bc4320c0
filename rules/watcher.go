package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a rule document file and invokes a reload callback when
// it changes. Edits are debounced so editors that write in several steps
// trigger one reload, not a storm.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for a single rule document file.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	// Watch the directory, not the file: editors that rename-and-replace
	// would otherwise drop the watch on first save.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	return &Watcher{
		path:     path,
		debounce: 100 * time.Millisecond,
		logger:   logger,
		watcher:  fw,
	}, nil
}

// Run blocks until the context is cancelled, calling onReload with the file
// contents after each settled change. Reload failures are logged and the
// previous rules stay in effect.
func (w *Watcher) Run(ctx context.Context, onReload func(doc []byte) error) error {
	defer w.watcher.Close()

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			select {
			case pending <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("rule document watch error", "path", w.path, "error", err)

		case <-pending:
			doc, err := os.ReadFile(w.path)
			if err != nil {
				w.logger.Error("read rule document", "path", w.path, "error", err)
				continue
			}
			if err := onReload(doc); err != nil {
				w.logger.Error("reload rule document rejected, keeping previous rules",
					"path", w.path, "error", err)
				continue
			}
			w.logger.Info("rule document reloaded", "path", w.path)
		}
	}
}
