// Package daemon runs the radarsync poll loop as a long-lived process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/radarsync/pkg/daemon/broadcaster"
	"github.com/jamesainslie/radarsync/pkg/daemon/indexer"
	"github.com/jamesainslie/radarsync/pkg/daemon/store"
	"github.com/jamesainslie/radarsync/pkg/daemon/watcher"
	"github.com/jamesainslie/radarsync/pkg/radar/archive"
	"github.com/jamesainslie/radarsync/pkg/radar/config"
	"github.com/jamesainslie/radarsync/pkg/radar/consumer"
	"github.com/jamesainslie/radarsync/pkg/radar/history"
	"github.com/jamesainslie/radarsync/pkg/radar/logging"
	"github.com/jamesainslie/radarsync/pkg/radar/metrics"
	"github.com/jamesainslie/radarsync/pkg/radar/poll"
	"github.com/jamesainslie/radarsync/pkg/radar/prune"
	"github.com/jamesainslie/radarsync/pkg/radar/remote"
	"github.com/jamesainslie/radarsync/pkg/radar/status"
	"github.com/jamesainslie/radarsync/pkg/radar/syncer"
	"github.com/jamesainslie/radarsync/pkg/radar/timecode"
	"github.com/jamesainslie/radarsync/pkg/radar/trash"
)

// shutdownTimeout bounds how long the metrics listener drains on exit.
const shutdownTimeout = 5 * time.Second

// Daemon wires the archive, sync engine, poll loop and consumer together.
type Daemon struct {
	cfg     *config.Config
	catalog remote.Catalog
	handler consumer.Handler
	line    *status.Line
	wait    poll.WaitFunc
	history *history.History

	mu     sync.Mutex
	status *StatusFile
	phase  poll.Phase
	// refsPending is set while reference images could not be fetched.
	refsPending bool
	// firstWait is the poll phase the loop starts in.
	firstWait poll.Phase
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithCatalog replaces the FTP catalog built from the config.
func WithCatalog(c remote.Catalog) Option {
	return func(d *Daemon) { d.catalog = c }
}

// WithHandler replaces the logging consumer handler.
func WithHandler(h consumer.Handler) Option {
	return func(d *Daemon) { d.handler = h }
}

// WithStatusLine shows loop progress on a terminal line.
func WithStatusLine(l *status.Line) Option {
	return func(d *Daemon) { d.line = l }
}

// WithWait replaces poll.Wait.
func WithWait(fn poll.WaitFunc) Option {
	return func(d *Daemon) { d.wait = fn }
}

// New creates a Daemon for cfg.
func New(cfg *config.Config, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:     cfg,
		handler: consumer.LogHandler(),
		line:    status.NewLine(io.Discard, false),
		phase:   -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.catalog == nil {
		d.catalog = NewCatalog(cfg)
	}
	return d
}

// NewCatalog builds the FTP catalog described by cfg.
func NewCatalog(cfg *config.Config) remote.Catalog {
	return remote.NewFTP(remote.FTPConfig{
		Address:  cfg.Remote.Address,
		User:     cfg.Remote.User,
		Password: cfg.Remote.Password,
		Timeout:  cfg.Remote.Timeout,
	})
}

// NewArchive builds the archive described by cfg. r may be nil.
func NewArchive(cfg *config.Config, r archive.Recorder) *archive.Archive {
	opts := []archive.Option{
		archive.WithMarker(cfg.Archive.Marker),
		archive.WithRemover(trash.For(cfg.Retention.Trash)),
	}
	if r != nil {
		opts = append(opts, archive.WithRecorder(r))
	}
	return archive.New(cfg.Archive.Root, cfg.Levels, opts...)
}

// NewEngine builds a sync engine for cfg.
func NewEngine(cfg *config.Config, catalog remote.Catalog, a *archive.Archive, opts ...syncer.Option) (*syncer.Engine, error) {
	minFree, err := cfg.MinFreeBytes()
	if err != nil {
		return nil, err
	}
	return syncer.New(catalog, a, syncer.Config{
		FramesDir:     cfg.Remote.FramesDir,
		ReferencesDir: cfg.Remote.ReferencesDir,
		Exclude:       cfg.Remote.Exclude,
		MinFree:       minFree,
	}, opts...), nil
}

// Run starts the daemon and blocks until ctx is cancelled, the archive
// fails, or the consumer asks to shut down. Cancellation returns nil.
func (d *Daemon) Run(ctx context.Context) (err error) {
	log := logging.Get("daemon")
	if err := d.cfg.Validate(); err != nil {
		return err
	}

	pidPath := d.cfg.PIDPath()
	statusPath := d.cfg.StatusPath()
	indexPath := d.cfg.IndexPath()

	if err := RecoverFromStaleDaemon(pidPath, statusPath, indexPath); err != nil {
		return err
	}
	if err := WritePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer func() { _ = RemovePIDFile(pidPath) }()

	d.status = &StatusFile{
		Status:    StateStarting,
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		Root:      d.cfg.Archive.Root,
	}
	d.publish()
	defer func() {
		d.mu.Lock()
		d.status.Phase = ""
		if err != nil {
			d.status.Status = StateError
			d.status.Error = err.Error()
		} else {
			d.status.Status = StateStopped
		}
		d.mu.Unlock()
		d.publish()
		d.line.Clear()
	}()

	s, err := store.Open(indexPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() { _ = s.Close() }()

	if d.cfg.History.Enabled {
		if d.history, err = openHistory(d.cfg); err != nil {
			return err
		}
	}

	a := NewArchive(d.cfg, s)
	engine, err := NewEngine(d.cfg, d.catalog, a, syncer.WithProgress(func(p syncer.Progress) {
		d.line.Downloaded(p.Name, p.Done, p.Bytes)
	}))
	if err != nil {
		return err
	}

	if err := d.initialize(ctx, a, s, engine); err != nil {
		return err
	}

	d.mu.Lock()
	d.status.Status = StateReady
	d.mu.Unlock()
	d.publishCounts(s)
	log.Info("daemon ready", "root", a.Root(), "levels", a.Levels())

	return d.serve(ctx, a, s, engine)
}

// initialize applies the startup contract: prepare the archive, fetch
// reference images, run one pass, mark every frame New and rebuild the index.
func (d *Daemon) initialize(ctx context.Context, a *archive.Archive, s *store.Store, engine *syncer.Engine) error {
	log := logging.Get("daemon")

	if d.cfg.Archive.ClearOnStart {
		log.Info("clearing archive", "root", a.Root())
		if err := a.Reset(); err != nil {
			return fmt.Errorf("resetting archive: %w", err)
		}
	} else if err := a.Ensure(); err != nil {
		return fmt.Errorf("preparing archive: %w", err)
	}

	if err := d.fetchReferences(ctx, engine); err != nil {
		return err
	}

	d.line.Syncing()
	res, err := engine.SyncAll(ctx)
	metrics.RecordSyncPass(res, err)
	d.recordPass(poll.Pass{Result: res, SyncErr: err})
	switch {
	case errors.Is(err, syncer.ErrLocal):
		return fmt.Errorf("initial sync: %w", err)
	case err != nil:
		log.Warn("initial sync failed, retrying soon", "error", err, "retry_in", d.cfg.Poll.ShortWait)
		d.firstWait = poll.PhaseWaitingShort
	}

	marked, err := a.MarkAllNew()
	if err != nil {
		return fmt.Errorf("marking frames new: %w", err)
	}
	log.Debug("marked frames new", "count", marked)

	result, err := indexer.New(s, a).Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	log.Info("index rebuilt", "frames", result.Frames, "new", result.New, "duration", result.Duration)
	return nil
}

// openHistory opens the history directory and drops expired entries.
func openHistory(cfg *config.Config) (*history.History, error) {
	h, err := history.New(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	if cfg.History.RetentionDays > 0 {
		if removed, err := h.Cleanup(cfg.History.RetentionDays); err != nil {
			logging.Get("daemon").Warn("cleaning history", "error", err)
		} else if removed > 0 {
			logging.Get("daemon").Debug("removed expired history entries", "count", removed)
		}
	}
	return h, nil
}

// fetchReferences downloads missing reference images. A remote failure is
// remembered and retried after the next successful pass.
func (d *Daemon) fetchReferences(ctx context.Context, engine *syncer.Engine) error {
	fetched, err := engine.FetchReferences(ctx)
	switch {
	case errors.Is(err, syncer.ErrLocal):
		return fmt.Errorf("fetching references: %w", err)
	case err != nil:
		logging.Get("daemon").Warn("reference images unavailable", "error", err)
		d.refsPending = true
	default:
		d.refsPending = false
		if len(fetched) > 0 {
			logging.Get("daemon").Info("fetched reference images", "count", len(fetched))
		}
	}
	return nil
}

// serve runs the long-lived units until one of them stops the group.
func (d *Daemon) serve(ctx context.Context, a *archive.Archive, s *store.Store, engine *syncer.Engine) error {
	log := logging.Get("daemon")
	updates := poll.NewSignal()

	w, err := watcher.New(a, s)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Watch(); err != nil {
		return fmt.Errorf("watching archive: %w", err)
	}

	events := broadcaster.New(0)
	defer events.Close()
	countsSub := events.Subscribe()

	opts := []poll.Option{
		poll.WithOnPass(func(p poll.Pass) {
			d.recordPass(p)
			d.publishCounts(s)
		}),
		poll.WithOnPhase(d.onPhase),
		poll.WithInitialPhase(d.firstWait),
	}
	if d.cfg.Retention.Enabled {
		pruner := prune.New(a)
		opts = append(opts, poll.WithPrune(func() (prune.Report, error) {
			report, err := pruner.PruneAll()
			metrics.RecordPrune(report, err)
			return report, err
		}))
	}
	if d.wait != nil {
		opts = append(opts, poll.WithWait(d.wait))
	}

	syncPass := func(ctx context.Context) (syncer.Result, error) {
		res, err := engine.SyncAll(ctx)
		metrics.RecordSyncPass(res, err)
		if err == nil && d.refsPending {
			if refErr := d.fetchReferences(ctx, engine); refErr != nil {
				return res, refErr
			}
		}
		return res, err
	}
	loop := poll.NewLoop(poll.Config{
		LongWait:  d.cfg.Poll.LongWait,
		ShortWait: d.cfg.Poll.ShortWait,
		Tick:      d.cfg.Poll.Tick,
	}, syncPass, updates, opts...)

	var srv *Server
	if d.cfg.Metrics.Listen != "" {
		srv, err = NewServer(ctx, d.cfg.Metrics.Listen, d.cfg.StatusPath())
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		log.Info("metrics listening", "addr", srv.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return loop.Run(gctx) })

	if d.cfg.Consumer.Enabled {
		c := consumer.New(a, d.handler, consumer.WithAutoConfirm(d.cfg.Consumer.AutoConfirm))
		g.Go(func() error { return c.Run(gctx, updates.C()) })
	}

	g.Go(func() error {
		w.Run(gctx, func(ev watcher.Event) { events.Notify(frameEvent(ev)) })
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case _, ok := <-countsSub.Events:
				if !ok {
					return nil
				}
				d.refreshGauges(s)
			}
		}
	})

	if srv != nil {
		g.Go(srv.Serve)
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close(shutdownTimeout)
		})
	}

	err = g.Wait()
	if err != nil {
		log.Error("daemon stopped", "error", err)
	} else {
		log.Info("daemon stopped")
	}
	return err
}

// frameEvent converts a watcher event for the broadcaster.
func frameEvent(ev watcher.Event) broadcaster.FrameEvent {
	fe := broadcaster.FrameEvent{Level: ev.Level, Name: ev.Name, Type: broadcaster.EventConfirmed}
	switch {
	case !ev.Present:
		fe.Type = broadcaster.EventRemoved
	case ev.State == archive.StateNew:
		fe.Type = broadcaster.EventNew
	}
	return fe
}

// onPhase mirrors loop phases to the status line and, on change, the status file.
func (d *Daemon) onPhase(p poll.Phase, remaining time.Duration) {
	switch p {
	case poll.PhaseWaitingLong:
		d.line.Waiting(remaining, false)
	case poll.PhaseWaitingShort:
		d.line.Waiting(remaining, true)
	case poll.PhaseSyncing:
		d.line.Syncing()
	case poll.PhasePruning:
		d.line.Set(status.LabelStyle.Render("pruning..."))
	}

	d.mu.Lock()
	changed := d.phase != p
	d.phase = p
	d.status.Phase = p.String()
	d.mu.Unlock()
	if changed {
		d.publish()
	}
}

// recordPass folds a completed pass into the status file and status line.
func (d *Daemon) recordPass(p poll.Pass) {
	d.logHistory(p)

	res := p.Result
	pass := &PassStatus{
		ID:         res.ID,
		At:         res.Finished,
		Downloaded: res.Count(),
		Bytes:      res.Bytes,
	}
	if p.SyncErr != nil {
		pass.Error = p.SyncErr.Error()
		d.line.Failed(p.SyncErr)
	} else if res.Changed() {
		d.line.Completed(res.Count(), res.Bytes, p.Report.Count())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.LastPass = pass
	if t, ok := newestFrame(res); ok {
		if d.status.LastFrame == nil || t.After(*d.status.LastFrame) {
			d.status.LastFrame = &t
		}
	}
	if p.Pruned {
		ps := &PruneStatus{At: time.Now(), Removed: p.Report.Count()}
		if p.PruneErr != nil {
			ps.Error = p.PruneErr.Error()
		}
		d.status.LastPrune = ps
	}
}

// logHistory appends a pass and its prune to the history.
func (d *Daemon) logHistory(p poll.Pass) {
	if d.history == nil {
		return
	}
	if _, err := d.history.LogSync(p.Result, p.SyncErr); err != nil {
		logging.Get("daemon").Warn("recording sync history", "error", err)
	}
	if !p.Pruned {
		return
	}
	if _, err := d.history.LogPrune(p.Report, p.PruneErr); err != nil {
		logging.Get("daemon").Warn("recording prune history", "error", err)
	}
}

// newestFrame returns the timestamp of the latest frame a pass wrote.
func newestFrame(res syncer.Result) (time.Time, bool) {
	var newest time.Time
	for _, names := range res.Downloaded {
		for _, name := range names {
			tc, err := timecode.Parse(name)
			if err != nil {
				continue
			}
			if t := tc.Time(); t.After(newest) {
				newest = t
			}
		}
	}
	return newest, !newest.IsZero()
}

// publishCounts refreshes per-level counts from the index and publishes them.
func (d *Daemon) publishCounts(s *store.Store) {
	counts := d.refreshGauges(s)
	d.mu.Lock()
	if counts != nil {
		d.status.Levels = counts
	}
	d.mu.Unlock()
	d.publish()
}

// refreshGauges updates the archive gauges from the index.
func (d *Daemon) refreshGauges(s *store.Store) map[string]store.Counts {
	counts, err := s.Counts()
	if err != nil {
		logging.Get("daemon").Warn("reading index counts", "error", err)
		return nil
	}
	for _, level := range d.cfg.Levels {
		c := counts[level]
		metrics.SetArchiveFrames(level, archive.StateNew.String(), c.New)
		metrics.SetArchiveFrames(level, archive.StateConfirmed.String(), c.Confirmed)
	}
	return counts
}

// publish writes the current status file.
func (d *Daemon) publish() {
	d.mu.Lock()
	snapshot := *d.status
	d.mu.Unlock()
	if err := WriteStatus(d.cfg.StatusPath(), &snapshot); err != nil {
		logging.Get("daemon").Warn("writing status file", "error", err)
	}
}
