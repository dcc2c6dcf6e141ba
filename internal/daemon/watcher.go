package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/nightlock/internal/logfields"
	"git.home.luguber.info/inful/nightlock/internal/state"
)

// StateWatcher monitors the state file for out-of-band modification
// (deletion or tampering by another process) and triggers a verify/repair
// through the store. The store's own atomic rewrites also surface here;
// VerifyOnDisk recognizes those as intact and does nothing.
type StateWatcher struct {
	store        *state.Store
	watcher      *fsnotify.Watcher
	stopChan     chan struct{}
	checkChan    chan struct{}
	debounceTime time.Duration
}

// NewStateWatcher creates a watcher for the store's on-disk file.
func NewStateWatcher(store *state.Store) (*StateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &StateWatcher{
		store:        store,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		checkChan:    make(chan struct{}, 1),
		debounceTime: 2 * time.Second, // collapse rapid change bursts
	}, nil
}

// Start begins monitoring. Watching the parent directory survives the
// remove/rename cycle of atomic rewrites, which watching the file itself
// would not.
func (w *StateWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch state directory %s: %w", dir, err)
	}

	slog.Info("Starting state file watcher", logfields.Path(w.store.Path()))
	go w.watchLoop(ctx)
	go w.checkLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *StateWatcher) Stop() {
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing state file watcher", logfields.Error(err))
	}
}

func (w *StateWatcher) watchLoop(ctx context.Context) {
	stateFile := filepath.Base(w.store.Path())

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != stateFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("State file change detected", "op", event.Op.String())
				w.triggerCheck()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("State watcher error", logfields.Error(err))
		}
	}
}

func (w *StateWatcher) checkLoop(ctx context.Context) {
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.checkChan:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounceTime, w.verify)
		}
	}
}

func (w *StateWatcher) triggerCheck() {
	select {
	case w.checkChan <- struct{}{}:
	default:
		// check already pending
	}
}

func (w *StateWatcher) verify() {
	repaired, err := w.store.VerifyOnDisk()
	if err != nil {
		slog.Error("State file verification failed", logfields.Error(err))
		return
	}
	if repaired {
		slog.Warn("State file was tampered with, rewrote from cache", logfields.Path(w.store.Path()))
	}
}
