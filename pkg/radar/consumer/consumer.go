// Package consumer is the reading side of the archive: it is told when new
// frames arrive, hands each level's frames to a Handler and optionally
// confirms the frames it was shown.
package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/radarsync/pkg/radar/archive"
	"github.com/jamesainslie/radarsync/pkg/radar/logging"
)

// Snapshot is the archive content delivered to a Handler.
type Snapshot struct {
	// Frames holds each level's frames in chronological order.
	Frames map[string][]archive.Frame
}

// Fresh returns the frames still marked New.
func (s Snapshot) Fresh() []archive.Frame {
	var out []archive.Frame
	for _, frames := range s.Frames {
		for _, f := range frames {
			if f.State == archive.StateNew {
				out = append(out, f)
			}
		}
	}
	return out
}

// Handler receives a snapshot each time the archive is updated.
// Returning an error stops the consumer.
type Handler interface {
	Handle(ctx context.Context, snap Snapshot) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, snap Snapshot) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, snap Snapshot) error {
	return f(ctx, snap)
}

// Consumer reacts to archive updates.
type Consumer struct {
	archive     *archive.Archive
	handler     Handler
	autoConfirm bool
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithAutoConfirm confirms every New frame after the handler has seen it.
func WithAutoConfirm(enabled bool) Option {
	return func(c *Consumer) { c.autoConfirm = enabled }
}

// New creates a Consumer.
func New(a *archive.Archive, h Handler, opts ...Option) *Consumer {
	c := &Consumer{archive: a, handler: h}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run delivers a snapshot immediately and again for every receive on
// updates, until ctx is cancelled or the handler fails.
func (c *Consumer) Run(ctx context.Context, updates <-chan struct{}) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			if err := c.Refresh(ctx); err != nil {
				return err
			}
		}
	}
}

// Refresh delivers one snapshot and applies auto-confirm.
func (c *Consumer) Refresh(ctx context.Context) error {
	snap := Snapshot{Frames: make(map[string][]archive.Frame)}
	for _, level := range c.archive.Levels() {
		frames, err := c.archive.Frames(level)
		if err != nil {
			return fmt.Errorf("reading %s: %w", level, err)
		}
		snap.Frames[level] = frames
	}

	if err := c.handler.Handle(ctx, snap); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}

	if !c.autoConfirm {
		return nil
	}
	confirmed := 0
	for _, f := range snap.Fresh() {
		// A frame may have been pruned since the snapshot was taken.
		if err := c.archive.Confirm(f.Level, f.Name); err != nil {
			if errors.Is(err, archive.ErrFrameNotFound) {
				continue
			}
			return fmt.Errorf("confirming %s/%s: %w", f.Level, f.Name, err)
		}
		confirmed++
	}
	if confirmed > 0 {
		logging.Get("consumer").Debug("confirmed frames", "count", confirmed)
	}
	return nil
}

// LogHandler logs a one-line summary per level. It is the default handler
// when no viewer is attached.
func LogHandler() Handler {
	return HandlerFunc(func(_ context.Context, snap Snapshot) error {
		log := logging.Get("consumer")
		for level, frames := range snap.Frames {
			fresh := 0
			for _, f := range frames {
				if f.State == archive.StateNew {
					fresh++
				}
			}
			latest := ""
			if len(frames) > 0 {
				latest = frames[len(frames)-1].Name
			}
			log.Info("frames available", "level", level, "total", len(frames), "new", fresh, "latest", latest)
		}
		return nil
	})
}
