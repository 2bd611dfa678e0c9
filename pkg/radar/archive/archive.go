// Package archive manages the on-disk radar frame archive.
//
// The archive root holds one subdirectory per zoom level plus the static
// reference images for each level. Every frame is in exactly one of two
// states, encoded in its filename: a leading marker character means New
// (downloaded, not yet seen by a consumer), no marker means Confirmed.
// The marker on disk is the persisted source of truth for frame state.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jamesainslie/radarsync/pkg/radar/trash"
)

// DefaultMarker is the filename prefix that marks a frame as New.
const DefaultMarker = "_"

// tempPrefix marks partially written files. Listings skip dot-files.
const tempPrefix = "."

var (
	// ErrUnknownLevel is returned for a product code the archive was not configured with.
	ErrUnknownLevel = errors.New("unknown zoom level")

	// ErrFrameNotFound is returned when neither state of a frame exists on disk.
	ErrFrameNotFound = errors.New("frame not found")

	// ErrStateConflict is returned when a frame exists both marked and unmarked.
	ErrStateConflict = errors.New("frame exists in both states")
)

// State is the consumption state of a frame.
type State int

const (
	// Confirmed frames have been consumed and carry no marker.
	StateConfirmed State = iota
	// New frames carry the marker prefix.
	StateNew
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConfirmed:
		return "confirmed"
	case StateNew:
		return "new"
	default:
		return "unknown"
	}
}

// Frame is a single file in a level directory.
type Frame struct {
	Level string
	// Name is the logical name, without the marker.
	Name  string
	State State
	Path  string
	Size  int64
}

// Recorder is notified of every frame state change the archive performs.
type Recorder interface {
	Recorded(level, name string, state State, size int64) error
	Forgotten(level, name string) error
}

// Archive is the local frame archive rooted at a directory.
type Archive struct {
	root     string
	levels   []string
	marker   string
	remove   trash.Remover
	recorder Recorder
}

// Option configures an Archive.
type Option func(*Archive)

// WithMarker overrides the New marker prefix.
func WithMarker(marker string) Option {
	return func(a *Archive) {
		if marker != "" {
			a.marker = marker
		}
	}
}

// WithRemover sets the strategy used to dispose of removed frames.
func WithRemover(r trash.Remover) Option {
	return func(a *Archive) {
		if r != nil {
			a.remove = r
		}
	}
}

// WithRecorder registers a Recorder for state changes.
func WithRecorder(r Recorder) Option {
	return func(a *Archive) {
		a.recorder = r
	}
}

// New creates an Archive for the given root and zoom levels.
// It does not touch the filesystem; call Reset or Ensure first.
func New(root string, levels []string, opts ...Option) *Archive {
	a := &Archive{
		root:   root,
		levels: append([]string(nil), levels...),
		marker: DefaultMarker,
		remove: trash.Delete,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Root returns the archive root directory.
func (a *Archive) Root() string {
	return a.root
}

// Levels returns the configured zoom levels.
func (a *Archive) Levels() []string {
	return append([]string(nil), a.levels...)
}

// Marker returns the New marker prefix.
func (a *Archive) Marker() string {
	return a.marker
}

// Reset clears the archive root and recreates every level directory.
func (a *Archive) Reset() error {
	if err := os.RemoveAll(a.root); err != nil {
		return fmt.Errorf("clearing archive root: %w", err)
	}
	return a.Ensure()
}

// Ensure creates the archive root and level directories if they are missing.
func (a *Archive) Ensure() error {
	for _, level := range a.levels {
		if err := os.MkdirAll(filepath.Join(a.root, level), 0o755); err != nil {
			return fmt.Errorf("creating level directory %s: %w", level, err)
		}
	}
	return nil
}

// LevelDir returns the directory holding a level's frames.
func (a *Archive) LevelDir(level string) (string, error) {
	for _, l := range a.levels {
		if l == level {
			return filepath.Join(a.root, level), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownLevel, level)
}

// Logical strips the marker from an on-disk name and reports its state.
func (a *Archive) Logical(diskName string) (string, State) {
	if strings.HasPrefix(diskName, a.marker) {
		return strings.TrimPrefix(diskName, a.marker), StateNew
	}
	return diskName, StateConfirmed
}

// diskName returns the on-disk name of a logical frame in the given state.
func (a *Archive) diskName(name string, state State) string {
	if state == StateNew {
		return a.marker + name
	}
	return name
}

// Lookup reports the state of a frame, or found=false when it is absent in both states.
func (a *Archive) Lookup(level, name string) (State, bool, error) {
	dir, err := a.LevelDir(level)
	if err != nil {
		return 0, false, err
	}

	hasNew, err := exists(filepath.Join(dir, a.diskName(name, StateNew)))
	if err != nil {
		return 0, false, err
	}
	hasConfirmed, err := exists(filepath.Join(dir, a.diskName(name, StateConfirmed)))
	if err != nil {
		return 0, false, err
	}

	switch {
	case hasNew && hasConfirmed:
		return 0, false, fmt.Errorf("%w: %s/%s", ErrStateConflict, level, name)
	case hasNew:
		return StateNew, true, nil
	case hasConfirmed:
		return StateConfirmed, true, nil
	default:
		return 0, false, nil
	}
}

// WriteNew stores a downloaded frame in the New state.
// The data is written to a hidden temporary file first and renamed into
// place, so an interrupted write never leaves a frame-named partial file.
func (a *Archive) WriteNew(level, name string, data []byte) (Frame, error) {
	dir, err := a.LevelDir(level)
	if err != nil {
		return Frame{}, err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+name+".*")
	if err != nil {
		return Frame{}, fmt.Errorf("creating temporary file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return Frame{}, fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Frame{}, fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return Frame{}, fmt.Errorf("setting permissions on %s: %w", name, err)
	}

	path := filepath.Join(dir, a.diskName(name, StateNew))
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return Frame{}, fmt.Errorf("placing %s: %w", name, err)
	}

	frame := Frame{Level: level, Name: name, State: StateNew, Path: path, Size: int64(len(data))}
	if err := a.record(frame); err != nil {
		return frame, err
	}
	return frame, nil
}

// Confirm transitions a frame from New to Confirmed by stripping its marker.
// Confirming an already confirmed frame is a no-op.
func (a *Archive) Confirm(level, name string) error {
	return a.transition(level, name, StateConfirmed)
}

// MarkNew transitions a frame from Confirmed to New by adding the marker.
// Marking an already New frame is a no-op.
func (a *Archive) MarkNew(level, name string) error {
	return a.transition(level, name, StateNew)
}

func (a *Archive) transition(level, name string, to State) error {
	state, found, err := a.Lookup(level, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s/%s", ErrFrameNotFound, level, name)
	}
	if state == to {
		return nil
	}

	dir, _ := a.LevelDir(level)
	from := filepath.Join(dir, a.diskName(name, state))
	dest := filepath.Join(dir, a.diskName(name, to))
	if err := os.Rename(from, dest); err != nil {
		return fmt.Errorf("marking %s/%s %s: %w", level, name, to, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dest, err)
	}
	return a.record(Frame{Level: level, Name: name, State: to, Path: dest, Size: info.Size()})
}

// MarkAllNew marks every Confirmed frame of every level as New.
// It returns the number of frames that changed state.
func (a *Archive) MarkAllNew() (int, error) {
	marked := 0
	for _, level := range a.levels {
		frames, err := a.Frames(level)
		if err != nil {
			return marked, err
		}
		for _, f := range frames {
			if f.State == StateNew {
				continue
			}
			if err := a.MarkNew(level, f.Name); err != nil {
				return marked, err
			}
			marked++
		}
	}
	return marked, nil
}

// Frames lists a level's frames sorted by logical name, which is also
// chronological order because names embed a zero-padded timestamp.
func (a *Archive) Frames(level string) ([]Frame, error) {
	dir, err := a.LevelDir(level)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading level directory %s: %w", level, err)
	}

	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // renamed or pruned concurrently
			}
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		name, state := a.Logical(entry.Name())
		frames = append(frames, Frame{
			Level: level,
			Name:  name,
			State: state,
			Path:  filepath.Join(dir, entry.Name()),
			Size:  info.Size(),
		})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Name < frames[j].Name
	})
	return frames, nil
}

// Remove disposes of a frame using the configured removal strategy.
func (a *Archive) Remove(f Frame) error {
	if err := a.remove(f.Path); err != nil {
		return err
	}
	if a.recorder != nil {
		if err := a.recorder.Forgotten(f.Level, f.Name); err != nil {
			return fmt.Errorf("forgetting %s/%s: %w", f.Level, f.Name, err)
		}
	}
	return nil
}

// ReferencePath returns the path of a reference image at the archive root.
func (a *Archive) ReferencePath(name string) string {
	return filepath.Join(a.root, filepath.Base(name))
}

// HasReference reports whether a reference image is present.
func (a *Archive) HasReference(name string) (bool, error) {
	return exists(a.ReferencePath(name))
}

// WriteReference stores a reference image at the archive root, replacing any existing copy.
func (a *Archive) WriteReference(name string, data []byte) error {
	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return fmt.Errorf("creating archive root: %w", err)
	}
	if err := os.WriteFile(a.ReferencePath(name), data, 0o644); err != nil {
		return fmt.Errorf("writing reference %s: %w", name, err)
	}
	return nil
}

func (a *Archive) record(f Frame) error {
	if a.recorder == nil {
		return nil
	}
	if err := a.recorder.Recorded(f.Level, f.Name, f.State, f.Size); err != nil {
		return fmt.Errorf("recording %s/%s: %w", f.Level, f.Name, err)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
