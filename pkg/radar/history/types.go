// Package history keeps a per-pass record of frames downloaded and pruned.
package history

import "time"

// Operation is the kind of pass an entry records.
type Operation string

const (
	// OpSync records frames written by a sync pass.
	OpSync Operation = "sync"
	// OpPrune records frames removed by retention.
	OpPrune Operation = "prune"
)

// Entry is one recorded pass.
type Entry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Operation Operation     `json:"operation"`
	Frames    []FrameRecord `json:"frames"`
	Summary   Summary       `json:"summary"`
	// Error is set when the pass ended early; Frames still lists what it did.
	Error string `json:"error,omitempty"`
}

// FrameRecord is a frame touched by a pass.
type FrameRecord struct {
	Level string `json:"level"`
	Name  string `json:"name"`
	Size  int64  `json:"size,omitempty"`
}

// Summary totals an entry.
type Summary struct {
	TotalFrames int64 `json:"total_frames"`
	TotalBytes  int64 `json:"total_bytes"`
}
