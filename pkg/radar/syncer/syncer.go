// Package syncer brings the local archive up to date with the remote catalog.
//
// One pass lists the shared remote frames directory once, filters the
// listing per zoom level by product code, and downloads every frame that is
// not already held locally in either state. Downloads are written marked New.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/radarsync/pkg/radar/archive"
	"github.com/jamesainslie/radarsync/pkg/radar/logging"
	"github.com/jamesainslie/radarsync/pkg/radar/remote"
)

var (
	// ErrRemote marks transient remote failures. The pass is aborted and may be retried.
	ErrRemote = errors.New("remote failure")

	// ErrLocal marks local archive failures, which are not expected to heal on retry.
	ErrLocal = errors.New("local archive failure")
)

// Reference image suffixes published per level in the references directory.
const (
	BackgroundSuffix = ".background.png"
	LocationsSuffix  = ".locations.png"
)

// Config configures an Engine.
type Config struct {
	// FramesDir is the remote directory listing frames for every level.
	FramesDir string
	// ReferencesDir is the remote directory holding reference images.
	ReferencesDir string
	// Exclude drops listing entries containing this substring. Empty keeps all.
	Exclude string
	// MinFree is the free-space floor checked before each write. Zero disables it.
	MinFree uint64
}

// Progress is reported after each frame is written.
type Progress struct {
	Level string
	Name  string
	Bytes int64
	// Done counts frames written so far in this pass.
	Done int
}

// Result summarises a sync pass.
type Result struct {
	// ID correlates log lines of one pass.
	ID         string
	Started    time.Time
	Finished   time.Time
	Downloaded map[string][]string
	Bytes      int64
}

// Changed reports whether the pass wrote at least one frame across all levels.
func (r Result) Changed() bool {
	return r.Count() > 0
}

// Count returns the number of frames written by the pass.
func (r Result) Count() int {
	n := 0
	for _, names := range r.Downloaded {
		n += len(names)
	}
	return n
}

// Engine runs sync passes against a catalog and an archive.
type Engine struct {
	catalog    remote.Catalog
	archive    *archive.Archive
	cfg        Config
	onProgress func(Progress)
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgress registers a callback invoked after each frame is written.
func WithProgress(fn func(Progress)) Option {
	return func(e *Engine) { e.onProgress = fn }
}

// New creates an Engine.
func New(catalog remote.Catalog, a *archive.Archive, cfg Config, opts ...Option) *Engine {
	e := &Engine{catalog: catalog, archive: a, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Candidates filters a listing down to one level's frames, preserving order.
func (e *Engine) Candidates(listing []string, level string) []string {
	var out []string
	for _, name := range listing {
		if !strings.Contains(name, level) {
			continue
		}
		if e.cfg.Exclude != "" && strings.Contains(name, e.cfg.Exclude) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// SyncAll runs one pass over every level.
//
// Any remote failure aborts the rest of the pass and is returned wrapped in
// ErrRemote; any archive failure is returned wrapped in ErrLocal. Frames
// written before a failure stay written, and the returned Result describes
// them. The session is closed before returning in every case.
func (e *Engine) SyncAll(ctx context.Context) (res Result, err error) {
	res = Result{
		ID:         uuid.NewString(),
		Started:    time.Now(),
		Downloaded: make(map[string][]string),
	}
	log := logging.Get("sync").With("pass", res.ID[:8])
	defer func() { res.Finished = time.Now() }()

	session, err := e.catalog.Connect(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrRemote, err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Debug("closing session", "error", closeErr)
		}
	}()

	listing, err := session.List(e.cfg.FramesDir)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrRemote, err)
	}
	log.Debug("listed remote frames", "dir", e.cfg.FramesDir, "entries", len(listing))

	for _, level := range e.archive.Levels() {
		if err := e.syncLevel(ctx, session, listing, level, &res); err != nil {
			return res, err
		}
	}

	if res.Changed() {
		log.Info("pass complete", "downloaded", res.Count(), "bytes", res.Bytes)
	} else {
		log.Debug("pass complete, nothing new")
	}
	return res, nil
}

func (e *Engine) syncLevel(ctx context.Context, session remote.Session, listing []string, level string, res *Result) error {
	for _, name := range e.Candidates(listing, level) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrRemote, err)
		}

		// The existence check is also what deduplicates repeated listing entries.
		_, found, err := e.archive.Lookup(level, name)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLocal, err)
		}
		if found {
			continue
		}

		data, err := session.Fetch(remote.Join(e.cfg.FramesDir, name))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRemote, err)
		}

		if err := e.archive.CheckSpace(e.cfg.MinFree); err != nil {
			return fmt.Errorf("%w: %w", ErrLocal, err)
		}
		if _, err := e.archive.WriteNew(level, name, data); err != nil {
			return fmt.Errorf("%w: %w", ErrLocal, err)
		}

		res.Downloaded[level] = append(res.Downloaded[level], name)
		res.Bytes += int64(len(data))
		if e.onProgress != nil {
			e.onProgress(Progress{Level: level, Name: name, Bytes: int64(len(data)), Done: res.Count()})
		}
	}
	return nil
}

// ReferenceNames returns the reference image names for a level.
func ReferenceNames(level string) []string {
	return []string{level + BackgroundSuffix, level + LocationsSuffix}
}

// FetchReferences downloads any missing reference images for every level
// into the archive root and returns the names it fetched.
func (e *Engine) FetchReferences(ctx context.Context) ([]string, error) {
	var missing []string
	for _, level := range e.archive.Levels() {
		for _, name := range ReferenceNames(level) {
			has, err := e.archive.HasReference(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrLocal, err)
			}
			if !has {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	session, err := e.catalog.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemote, err)
	}
	defer func() { _ = session.Close() }()

	var fetched []string
	for _, name := range missing {
		data, err := session.Fetch(remote.Join(e.cfg.ReferencesDir, name))
		if err != nil {
			return fetched, fmt.Errorf("%w: %w", ErrRemote, err)
		}
		if err := e.archive.WriteReference(name, data); err != nil {
			return fetched, fmt.Errorf("%w: %w", ErrLocal, err)
		}
		fetched = append(fetched, name)
	}

	logging.Get("sync").Info("fetched reference images", "count", len(fetched))
	return fetched, nil
}
