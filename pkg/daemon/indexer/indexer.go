// Package indexer rebuilds the frame index from the archive directory tree
// using fastwalk.
package indexer

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/radarsync/pkg/daemon/store"
	"github.com/jamesainslie/radarsync/pkg/radar/archive"
)

// Result contains the rebuild results.
type Result struct {
	Frames    int64
	New       int64
	TotalSize int64
	Skipped   int64 // temporaries and files outside level directories
	Duration  time.Duration
}

// Indexer indexes an archive into the store.
type Indexer struct {
	store   *store.Store
	archive *archive.Archive
}

// New creates a new indexer.
func New(s *store.Store, a *archive.Archive) *Indexer {
	return &Indexer{store: s, archive: a}
}

// indexState holds the state during a walk.
type indexState struct {
	frames    atomic.Int64
	fresh     atomic.Int64
	totalSize atomic.Int64
	skipped   atomic.Int64

	entriesMu sync.Mutex
	entries   map[string][]*store.Entry
}

// Rebuild walks the archive root and replaces every level's index entries
// with what is on disk. Reference images at the root are not indexed.
func (idx *Indexer) Rebuild(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	state := &indexState{entries: make(map[string][]*store.Entry)}
	levels := make(map[string]bool)
	for _, level := range idx.archive.Levels() {
		levels[level] = true
	}

	root := filepath.Clean(idx.archive.Root())
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return nil //nolint:nilerr // skip unreadable entries and keep walking
		}
		if d.IsDir() {
			if path != root && !levels[filepath.Base(path)] {
				return filepath.SkipDir
			}
			return nil
		}
		idx.processEntry(path, root, d, levels, state)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for level := range levels {
		if err := idx.store.Replace(level, state.entries[level]); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Frames:    state.frames.Load(),
		New:       state.fresh.Load(),
		TotalSize: state.totalSize.Load(),
		Skipped:   state.skipped.Load(),
		Duration:  time.Since(startTime),
	}

	_ = idx.store.SetRebuildInfo(&store.RebuildInfo{
		Frames:   int(result.Frames),
		Duration: result.Duration,
		At:       time.Now(),
	})

	return result, nil
}

// processEntry records a single file found by the walk.
func (idx *Indexer) processEntry(path, root string, d fs.DirEntry, levels map[string]bool, state *indexState) {
	level := filepath.Base(filepath.Dir(path))
	if filepath.Dir(filepath.Dir(path)) != root || !levels[level] {
		return // reference images and anything else at the root
	}
	if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
		state.skipped.Add(1)
		return
	}

	info, err := d.Info()
	if err != nil {
		state.skipped.Add(1)
		return
	}

	name, frameState := idx.archive.Logical(d.Name())
	entry := &store.Entry{
		Level: level,
		Name:  name,
		State: frameState,
		Size:  info.Size(),
	}

	state.entriesMu.Lock()
	state.entries[level] = append(state.entries[level], entry)
	state.entriesMu.Unlock()

	state.frames.Add(1)
	state.totalSize.Add(info.Size())
	if frameState == archive.StateNew {
		state.fresh.Add(1)
	}
}
