// Package watcher raises the local "record changed" signal by watching
// the database directory for writes. Another process editing the store
// (or this one, via a CLI invocation) lands as a debounced sync trigger
// in the daemon.
package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a SQLite database file (and its WAL sidecar) and calls
// onChange for every write.
type Watcher struct {
	dbPath   string
	onChange func()
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a watcher for the given database file.
func New(dbPath string, onChange func(), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dbPath: dbPath, onChange: onChange, logger: logger}
}

// Start begins watching. Idempotent.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: SQLite swaps files around during checkpoints,
	// and the WAL may not exist yet.
	if err := fsw.Add(filepath.Dir(w.dbPath)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.dbPath), err)
	}

	w.fsw = fsw
	w.running = true
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.loop(fsw, w.done)
	return nil
}

// Stop halts watching. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.done)
	w.fsw.Close()
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}) {
	defer w.wg.Done()

	base := filepath.Base(w.dbPath)
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if name != base && !strings.HasPrefix(name, base+"-") {
				continue
			}
			w.logger.Debug("database changed", "file", name)
			w.onChange()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-done:
			return
		}
	}
}
