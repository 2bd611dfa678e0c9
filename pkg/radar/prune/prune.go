// Package prune enforces the retention policy on the frame archive: each
// level keeps only the newest unbroken run of consecutive frames.
package prune

import (
	"errors"
	"fmt"

	"github.com/jamesainslie/radarsync/pkg/radar/archive"
	"github.com/jamesainslie/radarsync/pkg/radar/logging"
	"github.com/jamesainslie/radarsync/pkg/radar/timecode"
)

// Pruner deletes frames that precede the newest gap in each level.
type Pruner struct {
	archive *archive.Archive
}

// New creates a Pruner for the archive.
func New(a *archive.Archive) *Pruner {
	return &Pruner{archive: a}
}

// Report summarises a prune over every level.
type Report struct {
	Removed map[string][]archive.Frame
	Bytes   int64
}

// Count returns the number of frames removed.
func (r Report) Count() int {
	n := 0
	for _, frames := range r.Removed {
		n += len(frames)
	}
	return n
}

// Stale returns the frames of a sorted slice that fall outside the newest
// consecutive run. Scanning backward from the newest frame, the first pair
// that is not consecutive marks the cut: the older frame of that pair and
// everything before it is stale, whatever their own adjacency.
func Stale(frames []archive.Frame) ([]archive.Frame, error) {
	if len(frames) < 2 {
		return nil, nil
	}

	next, err := timecode.Parse(frames[len(frames)-1].Name)
	if err != nil {
		return nil, err
	}
	for i := len(frames) - 2; i >= 0; i-- {
		prev, err := timecode.Parse(frames[i].Name)
		if err != nil {
			return nil, err
		}
		if !timecode.Consecutive(prev, next) {
			return frames[:i+1], nil
		}
		next = prev
	}
	return nil, nil
}

// PruneLevel applies the retention policy to one level and returns the
// frames it removed. A malformed frame name aborts the level before
// anything is deleted. A deletion failure aborts it part way; frames
// already removed stay removed.
func (p *Pruner) PruneLevel(level string) ([]archive.Frame, error) {
	frames, err := p.archive.Frames(level)
	if err != nil {
		return nil, err
	}

	stale, err := Stale(frames)
	if err != nil {
		return nil, fmt.Errorf("pruning %s: %w", level, err)
	}

	removed := make([]archive.Frame, 0, len(stale))
	for _, f := range stale {
		if err := p.archive.Remove(f); err != nil {
			return removed, fmt.Errorf("pruning %s: removing %s: %w", level, f.Name, err)
		}
		removed = append(removed, f)
	}

	if len(removed) > 0 {
		logging.Get("prune").Info("pruned level",
			"level", level,
			"removed", len(removed),
			"kept", len(frames)-len(removed))
	}
	return removed, nil
}

// PruneAll prunes every level. A failing level does not stop the others;
// the failures are joined into the returned error.
func (p *Pruner) PruneAll() (Report, error) {
	report := Report{Removed: make(map[string][]archive.Frame)}
	var errs []error

	for _, level := range p.archive.Levels() {
		removed, err := p.PruneLevel(level)
		if len(removed) > 0 {
			report.Removed[level] = removed
			for _, f := range removed {
				report.Bytes += f.Size
			}
		}
		if err != nil {
			logging.Get("prune").Error("prune failed", "level", level, "error", err)
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}
