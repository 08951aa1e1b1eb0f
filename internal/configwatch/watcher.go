// Package configwatch watches vault configuration directories (sync
// pipelines, secrets) for externally-dropped files and triggers a
// debounced callback, so a hot-dropped pipeline or secret file is picked
// up without restarting the daemon.
package configwatch

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/memory-loop/daemon/internal/logging"
)

// defaultDebounce batches rapid successive writes (editors that save in
// multiple steps) into a single callback invocation.
const defaultDebounce = 500 * time.Millisecond

// Watcher watches a fixed set of directories for YAML config changes.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dirs        []string
	onChange    func(path string)
	debounceDur time.Duration
	pending     map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// New constructs a Watcher over dirs. onChange is invoked, once per
// settled path, after a create/write/rename event on a .yaml or .yml
// file within one of dirs.
func New(dirs []string, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fsw,
		dirs:        dirs,
		onChange:    onChange,
		debounceDur: defaultDebounce,
		pending:     make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine. It is non-blocking.
// Directories that do not yet exist are created; a directory that still
// cannot be watched is logged and skipped rather than failing the call.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.SchedulerWarn("configwatch: failed to create %s: %v", dir, err)
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			logging.SchedulerWarn("configwatch: failed to watch %s: %v", dir, err)
		}
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isYAML(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if w.onChange != nil {
			w.onChange(path)
		}
	}
}

func isYAML(name string) bool {
	for _, ext := range []string{".yaml", ".yml"} {
		if len(name) >= len(ext) && name[len(name)-len(ext):] == ext {
			return true
		}
	}
	return false
}
