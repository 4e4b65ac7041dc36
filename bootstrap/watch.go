package bootstrap

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RequirementsWatcher monitors the requirements manifest and invokes a
// callback when it changes. It watches the manifest's parent directory, since
// editors commonly replace the file rather than writing it in place.
type RequirementsWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	manifest string
	onChange func()
	logger   *slog.Logger

	debounce  time.Duration
	lastEvent time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewRequirementsWatcher creates a watcher for the given manifest path.
func NewRequirementsWatcher(manifest string, onChange func(), logger *slog.Logger) (*RequirementsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RequirementsWatcher{
		watcher:  watcher,
		manifest: manifest,
		onChange: onChange,
		logger:   logger.With("component", "RequirementsWatcher"),
		debounce: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *RequirementsWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.manifest)); err != nil {
		return err
	}
	w.logger.Info("Watching requirements manifest", "manifest", w.manifest)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit. Calling Stop
// on a watcher that never started still releases the underlying watch.
func (w *RequirementsWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *RequirementsWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *RequirementsWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.manifest) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	if time.Since(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.lastEvent = time.Now()
	w.mu.Unlock()

	w.logger.Info("Requirements manifest changed", "op", event.Op.String())
	if w.onChange != nil {
		w.onChange()
	}
}
