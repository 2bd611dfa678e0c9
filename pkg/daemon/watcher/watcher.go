// Package watcher follows frame changes in the archive level directories.
//
// Frames are created by the sync engine but renamed and deleted by consumers
// that may live in another process, so the watcher re-reads the on-disk
// state of every frame an event touches and keeps the index in step.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/radarsync/pkg/daemon/store"
	"github.com/jamesainslie/radarsync/pkg/radar/archive"
	"github.com/jamesainslie/radarsync/pkg/radar/logging"
)

// Event is a change to one frame.
type Event struct {
	Level string
	// Name is the logical frame name.
	Name string
	// State is the frame's state after the change; Present is false when
	// the frame no longer exists in either state.
	State   archive.State
	Present bool
	Op      fsnotify.Op
}

// Watcher watches level directories for frame changes.
type Watcher struct {
	archive *archive.Archive
	store   *store.Store
	watcher *fsnotify.Watcher
	dirs    map[string]string // directory -> level
	mu      sync.RWMutex
	closed  bool
}

// New creates a new Watcher. s may be nil when no index is kept.
func New(a *archive.Archive, s *store.Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		archive: a,
		store:   s,
		watcher: fsw,
		dirs:    make(map[string]string),
	}, nil
}

// Watch adds a watch on every level directory.
func (w *Watcher) Watch() error {
	for _, level := range w.archive.Levels() {
		dir, err := w.archive.LevelDir(level)
		if err != nil {
			return err
		}
		if err := w.addWatch(filepath.Clean(dir), level); err != nil {
			return err
		}
	}
	return nil
}

// addWatch adds a single directory to the watch list.
func (w *Watcher) addWatch(dir, level string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if _, ok := w.dirs[dir]; ok {
		return nil
	}

	if err := w.watcher.Add(dir); err != nil {
		logging.Get("watcher").Warn("failed to add watch", "path", dir, "error", err)
		return err
	}

	w.dirs[dir] = level
	return nil
}

// Run starts the event loop. It blocks until the context is cancelled or the
// watcher is closed. onChange, when set, is called for each frame event.
func (w *Watcher) Run(ctx context.Context, onChange func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := w.handleEvent(event); ok && onChange != nil {
				onChange(ev)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get("watcher").Error("watcher error", "error", err)
		}
	}
}

// handleEvent resolves a filesystem event to a frame event and updates the
// index. Events for temporaries and unwatched directories are dropped.
func (w *Watcher) handleEvent(event fsnotify.Event) (Event, bool) {
	if event.Op == fsnotify.Chmod {
		return Event{}, false
	}

	w.mu.RLock()
	level, ok := w.dirs[filepath.Dir(event.Name)]
	w.mu.RUnlock()
	if !ok {
		return Event{}, false
	}

	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return Event{}, false
	}

	name, _ := w.archive.Logical(base)
	state, present, err := w.archive.Lookup(level, name)
	if err != nil {
		// Both forms exist mid-rename; the next event settles it.
		if !errors.Is(err, archive.ErrStateConflict) {
			logging.Get("watcher").Warn("lookup failed", "level", level, "name", name, "error", err)
		}
		return Event{}, false
	}

	ev := Event{Level: level, Name: name, State: state, Present: present, Op: event.Op}
	w.sync(ev)
	return ev, true
}

// sync mirrors a frame event into the index.
func (w *Watcher) sync(ev Event) {
	if w.store == nil {
		return
	}

	if !ev.Present {
		_ = w.store.Delete(ev.Level, ev.Name)
		return
	}

	dir, _ := w.archive.LevelDir(ev.Level)
	disk := ev.Name
	if ev.State == archive.StateNew {
		disk = w.archive.Marker() + ev.Name
	}
	var size int64
	if info, err := os.Stat(filepath.Join(dir, disk)); err == nil {
		size = info.Size()
	}
	_ = w.store.Put(&store.Entry{Level: ev.Level, Name: ev.Name, State: ev.State, Size: size})
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	w.dirs = make(map[string]string)
	return w.watcher.Close()
}
