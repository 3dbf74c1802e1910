package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"labelflow/internal/logging"
	"labelflow/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow is how long the watcher waits after the last event
// before firing the change callback, so bursts of writes coalesce into
// one rescan.
const debounceWindow = 2 * time.Second

// Watcher monitors the working directory for changes and invokes a
// callback when the tree has settled after a burst of events.
type Watcher struct {
	dir      string
	onChange func()

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	stopChan chan struct{}
	started  bool
}

// NewWatcher creates a watcher for dir. onChange runs on the watcher's
// goroutine; callers that need to touch the catalog should dispatch.
func NewWatcher(dir string, onChange func()) *Watcher {
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		stopChan: make(chan struct{}),
	}
}

// Start begins watching the directory tree.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.ScannerWatcherErrors.Inc()
		return err
	}
	w.watcher = watcher
	w.started = true

	watchCount := w.addDirectories()
	logging.Debug("directory watcher started, watching %d directories", watchCount)

	go w.processEvents()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	w.started = false
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		logging.Error("failed to close directory watcher: %v", err)
	}
}

// addDirectories adds every directory in the tree to the watcher.
func (w *Watcher) addDirectories() int {
	watchCount := 0
	err := filepath.Walk(w.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && !strings.HasPrefix(info.Name(), ".") {
			if addErr := w.watcher.Add(path); addErr != nil {
				logging.Warn("failed to watch %s: %v", path, addErr)
				metrics.ScannerWatcherErrors.Inc()
			} else {
				watchCount++
			}
		}
		return nil
	})
	if err != nil {
		logging.Error("failed to walk %s for watcher setup: %v", w.dir, err)
		metrics.ScannerWatcherErrors.Inc()
	}
	return watchCount
}

// processEvents handles filesystem events until the watcher is stopped.
func (w *Watcher) processEvents() {
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
			logging.Error("watcher error: %v", err)
			metrics.ScannerWatcherErrors.Inc()

		case <-w.stopChan:
			return
		}
	}
}

// handleEvent processes one filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)

	// Hidden files include our own atomic-write temp files.
	if strings.HasPrefix(name, ".") || strings.Contains(event.Name, "/.") {
		return
	}

	metrics.ScannerWatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if addErr := w.watcher.Add(event.Name); addErr != nil {
				logging.Warn("failed to watch new directory %s: %v", event.Name, addErr)
				metrics.ScannerWatcherErrors.Inc()
			} else {
				logging.Debug("watching new directory: %s", event.Name)
			}
		}
	}

	w.scheduleCallback()
}

// scheduleCallback arms (or re-arms) the debounce timer.
func (w *Watcher) scheduleCallback() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceWindow, w.onChange)
}

func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
