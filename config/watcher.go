package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileEvent represents a change to a watched file.
type FileEvent struct {
	// Path is the file that changed.
	Path string `json:"path"`

	// Op is the kind of change.
	Op FileOp `json:"op"`

	// Timestamp is when the change was detected.
	Timestamp time.Time `json:"timestamp"`
}

// FileOp represents file operation types.
type FileOp int

const (
	// FileOpCreate indicates the file appeared.
	FileOpCreate FileOp = iota
	// FileOpWrite indicates the file was modified.
	FileOpWrite
	// FileOpRemove indicates the file was deleted.
	FileOpRemove
)

// String returns the string representation of FileOp.
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// DirWatcher watches a directory of YAML workflow definitions by polling
// modification times. Polling keeps the watcher dependency-free and behaves
// identically across platforms and network filesystems.
type DirWatcher struct {
	mu sync.RWMutex

	dir           string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running   bool
	stopChan  chan struct{}
	eventChan chan FileEvent

	callbacks []func(event FileEvent)

	logger *zap.Logger

	lastModTimes map[string]time.Time
}

// WatcherOption configures the DirWatcher.
type WatcherOption func(*DirWatcher)

// WithPollInterval sets how often the directory is scanned.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *DirWatcher) {
		w.pollInterval = d
	}
}

// WithDebounceDelay sets the debounce delay for change events.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *DirWatcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *DirWatcher) {
		w.logger = logger
	}
}

// NewDirWatcher creates a watcher over the YAML files in dir.
func NewDirWatcher(dir string, opts ...WatcherOption) (*DirWatcher, error) {
	w := &DirWatcher{
		dir:           dir,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		stopChan:      make(chan struct{}),
		eventChan:     make(chan FileEvent, 100),
		callbacks:     make([]func(FileEvent), 0),
		lastModTimes:  make(map[string]time.Time),
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			w.logger.Warn("Watched directory does not exist, will watch for creation",
				zap.String("dir", dir))
		} else {
			return nil, fmt.Errorf("failed to stat directory %s: %w", dir, err)
		}
	}

	return w, nil
}

// OnChange registers a callback for file change events.
func (w *DirWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching. It returns an error if already running.
func (w *DirWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	// Seed mod times so existing files do not fire CREATE on startup.
	for _, path := range w.listFiles() {
		if info, err := os.Stat(path); err == nil {
			w.lastModTimes[path] = info.ModTime()
		}
	}

	go w.pollLoop(ctx)
	go w.dispatchLoop(ctx)

	w.logger.Info("Definition watcher started",
		zap.String("dir", w.dir),
		zap.Duration("poll_interval", w.pollInterval))

	return nil
}

// Stop stops the watcher.
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	close(w.stopChan)
	w.running = false

	w.logger.Info("Definition watcher stopped")
	return nil
}

// IsRunning reports whether the watcher is active.
func (w *DirWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *DirWatcher) listFiles() []string {
	var out []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(w.dir, pattern))
		if err != nil {
			continue
		}
		out = append(out, matches...)
	}
	return out
}

func (w *DirWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkFiles()
		}
	}
}

// checkFiles diffs the directory against the recorded mod times.
func (w *DirWatcher) checkFiles() {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]bool)
	for _, path := range w.listFiles() {
		seen[path] = true

		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		lastMod, existed := w.lastModTimes[path]
		if !existed {
			w.lastModTimes[path] = info.ModTime()
			w.eventChan <- FileEvent{Path: path, Op: FileOpCreate, Timestamp: time.Now()}
		} else if info.ModTime().After(lastMod) {
			w.lastModTimes[path] = info.ModTime()
			w.eventChan <- FileEvent{Path: path, Op: FileOpWrite, Timestamp: time.Now()}
		}
	}

	for path := range w.lastModTimes {
		if !seen[path] {
			delete(w.lastModTimes, path)
			w.eventChan <- FileEvent{Path: path, Op: FileOpRemove, Timestamp: time.Now()}
		}
	}
}

// dispatchLoop dispatches events to callbacks with debouncing, collapsing
// bursts of writes to the same file into one event.
func (w *DirWatcher) dispatchLoop(ctx context.Context) {
	var (
		pendingEvents = make(map[string]FileEvent)
		debounceTimer *time.Timer
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event := <-w.eventChan:
			pendingEvents[event.Path] = event

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounceDelay, func() {
				w.mu.RLock()
				callbacks := make([]func(FileEvent), len(w.callbacks))
				copy(callbacks, w.callbacks)
				w.mu.RUnlock()

				for path, evt := range pendingEvents {
					w.logger.Debug("Dispatching file event",
						zap.String("path", path),
						zap.String("op", evt.Op.String()))

					for _, cb := range callbacks {
						cb(evt)
					}
				}

				pendingEvents = make(map[string]FileEvent)
			})
		}
	}
}
