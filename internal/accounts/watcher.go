package accounts

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-reads the accounts file when it changes on disk and hands
// the fresh list to a callback.
type Watcher struct {
	log      *zap.Logger
	watcher  *fsnotify.Watcher
	path     string
	fn       func([]Account)
	debounce time.Duration
}

// NewWatcher creates a watcher for path. fn runs after each settled
// change with the reloaded accounts.
func NewWatcher(log *zap.Logger, path string, fn func([]Account)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		log:      log.With(zap.String("component", "accounts")),
		watcher:  watcher,
		path:     filepath.Clean(path),
		fn:       fn,
		debounce: 250 * time.Millisecond,
	}, nil
}

// Start begins watching. The containing directory is watched, not the
// file itself, so editors that replace the file via rename still
// trigger a reload.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.log.Info("watching accounts file", zap.String("path", w.path))

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C

	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if w.shouldProcessEvent(event) {
					w.log.Debug("accounts file changed", zap.String("op", event.Op.String()))
					debounceTimer.Reset(w.debounce)
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Error("watcher error", zap.Error(err))

			case <-debounceTimer.C:
				w.reload()

			case <-ctx.Done():
				w.log.Debug("stopping accounts watcher")
				return
			}
		}
	}()
	return nil
}

// Stop closes the underlying watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Create == 0 &&
		event.Op&fsnotify.Write == 0 &&
		event.Op&fsnotify.Rename == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

func (w *Watcher) reload() {
	accounts, err := Load(w.path)
	if err != nil {
		w.log.Warn("accounts reload failed, keeping previous list", zap.Error(err))
		return
	}
	w.log.Info("accounts reloaded", zap.Int("count", len(accounts)))
	w.fn(accounts)
}
