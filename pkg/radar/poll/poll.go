// Package poll drives repeated sync passes with an adaptive wait.
//
// The loop waits the long interval, runs a pass, and while passes keep
// finding nothing it retries on the short interval. A pass that obtains at
// least one frame raises the update signal, triggers retention and returns
// the loop to the long wait.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/radarsync/pkg/radar/logging"
	"github.com/jamesainslie/radarsync/pkg/radar/prune"
	"github.com/jamesainslie/radarsync/pkg/radar/syncer"
)

// Wait blocks for d, reporting progress every tick. onTick, when set,
// receives the time remaining after each tick. It returns true when ctx was
// cancelled before d elapsed.
func Wait(ctx context.Context, d, tick time.Duration, onTick func(remaining time.Duration)) bool {
	if ctx.Err() != nil {
		return true
	}
	if d <= 0 {
		return false
	}
	if tick <= 0 || tick > d {
		tick = d
	}

	deadline := time.Now().Add(d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-timer.C:
			return false
		case <-ticker.C:
			if ctx.Err() != nil {
				return true
			}
			if onTick != nil {
				onTick(max(time.Until(deadline), 0))
			}
		}
	}
}

// Signal is a coalescing notification with a single slot: any number of
// raises before the receiver drains it are delivered once.
type Signal struct {
	ch chan struct{}
}

// NewSignal creates a Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Raise marks the signal. It never blocks.
func (s *Signal) Raise() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the receiver selects on.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// Phase identifies what the loop is doing, for status reporting.
type Phase int

const (
	PhaseWaitingLong Phase = iota
	PhaseWaitingShort
	PhaseSyncing
	PhasePruning
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseWaitingLong:
		return "waiting"
	case PhaseWaitingShort:
		return "retrying"
	case PhaseSyncing:
		return "syncing"
	case PhasePruning:
		return "pruning"
	default:
		return "unknown"
	}
}

// Pass describes one completed sync pass and the prune that followed it.
type Pass struct {
	Result   syncer.Result
	SyncErr  error
	Report   prune.Report
	PruneErr error
	// Pruned is set when the retention step ran after this pass.
	Pruned bool
}

// SyncFunc runs one sync pass.
type SyncFunc func(ctx context.Context) (syncer.Result, error)

// PruneFunc applies retention to every level.
type PruneFunc func() (prune.Report, error)

// WaitFunc waits like Wait.
type WaitFunc func(ctx context.Context, d, tick time.Duration, onTick func(time.Duration)) bool

// Config holds the loop intervals.
type Config struct {
	LongWait  time.Duration
	ShortWait time.Duration
	Tick      time.Duration
}

// Loop is the poll state machine.
type Loop struct {
	cfg     Config
	sync    SyncFunc
	prune   PruneFunc
	wait    WaitFunc
	updates *Signal
	initial Phase

	onPass  func(Pass)
	onPhase func(Phase, time.Duration)
}

// Option configures a Loop.
type Option func(*Loop)

// WithPrune sets the retention step run after every pass that obtained frames.
func WithPrune(fn PruneFunc) Option {
	return func(l *Loop) { l.prune = fn }
}

// WithWait replaces the wait function.
func WithWait(fn WaitFunc) Option {
	return func(l *Loop) { l.wait = fn }
}

// WithInitialPhase sets the wait the loop starts with. Only
// PhaseWaitingLong and PhaseWaitingShort are meaningful.
func WithInitialPhase(p Phase) Option {
	return func(l *Loop) {
		if p == PhaseWaitingLong || p == PhaseWaitingShort {
			l.initial = p
		}
	}
}

// WithOnPass registers a callback invoked after every pass.
func WithOnPass(fn func(Pass)) Option {
	return func(l *Loop) { l.onPass = fn }
}

// WithOnPhase registers a callback invoked on phase changes and on every
// wait tick with the time remaining.
func WithOnPhase(fn func(Phase, time.Duration)) Option {
	return func(l *Loop) { l.onPhase = fn }
}

// NewLoop creates a Loop. updates may be nil.
func NewLoop(cfg Config, sync SyncFunc, updates *Signal, opts ...Option) *Loop {
	l := &Loop{
		cfg:     cfg,
		sync:    sync,
		wait:    Wait,
		updates: updates,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes the loop until ctx is cancelled, in which case it returns nil,
// or until a pass fails with a local archive error, which is returned.
// Cancellation is only observed while waiting: a pass in flight runs to
// completion, or to its own remote failure, before the loop notices.
func (l *Loop) Run(ctx context.Context) error {
	log := logging.Get("poll")
	phase := l.initial

	for {
		d := l.cfg.LongWait
		if phase == PhaseWaitingShort {
			d = l.cfg.ShortWait
		}
		l.phase(phase, d)
		if l.wait(ctx, d, l.cfg.Tick, func(remaining time.Duration) { l.phase(phase, remaining) }) {
			log.Info("poll loop stopped")
			return nil
		}

		l.phase(PhaseSyncing, 0)
		res, err := l.sync(context.WithoutCancel(ctx))
		pass := Pass{Result: res, SyncErr: err}

		switch {
		case err != nil && errors.Is(err, syncer.ErrLocal):
			log.Error("sync pass failed on local archive", "error", err)
			l.report(pass)
			return fmt.Errorf("sync pass: %w", err)

		case err != nil:
			log.Warn("sync pass failed, retrying", "error", err, "retry_in", l.cfg.ShortWait)
			if res.Changed() && l.updates != nil {
				l.updates.Raise()
			}
			l.report(pass)
			phase = PhaseWaitingShort

		case !res.Changed():
			log.Debug("no new frames, retrying", "retry_in", l.cfg.ShortWait)
			l.report(pass)
			phase = PhaseWaitingShort

		default:
			if l.updates != nil {
				l.updates.Raise()
			}
			if l.prune != nil {
				l.phase(PhasePruning, 0)
				pass.Report, pass.PruneErr = l.prune()
				pass.Pruned = true
			}
			l.report(pass)
			phase = PhaseWaitingLong
		}
	}
}

func (l *Loop) phase(p Phase, remaining time.Duration) {
	if l.onPhase != nil {
		l.onPhase(p, remaining)
	}
}

func (l *Loop) report(p Pass) {
	if l.onPass != nil {
		l.onPass(p)
	}
}
