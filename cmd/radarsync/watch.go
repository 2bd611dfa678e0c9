package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/radarsync/pkg/daemon"
	"github.com/jamesainslie/radarsync/pkg/daemon/watcher"
	"github.com/jamesainslie/radarsync/pkg/radar/archive"
	"github.com/jamesainslie/radarsync/pkg/radar/consumer"
	"github.com/jamesainslie/radarsync/pkg/radar/poll"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Consume frames written by a running daemon",
	Long: `Follow the archive from another process and print each level's frames
whenever new frames arrive or old ones are pruned.

With --confirm every frame shown as new is confirmed afterwards, which is
what a viewer does once it has displayed a frame.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("confirm", false, "confirm frames after printing them")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, "warn"); err != nil {
		return err
	}

	a := daemon.NewArchive(cfg, nil)
	if err := a.Ensure(); err != nil {
		return err
	}

	w, err := watcher.New(a, nil)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	if err := w.Watch(); err != nil {
		return err
	}

	confirm, _ := cmd.Flags().GetBool("confirm")
	c := consumer.New(a, printHandler(cmd.OutOrStdout()), consumer.WithAutoConfirm(confirm))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Confirm renames are our own; only arrivals and removals need a refresh.
	updates := poll.NewSignal()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.Run(gctx, func(ev watcher.Event) {
			if !ev.Present || ev.State == archive.StateNew {
				updates.Raise()
			}
		})
		return nil
	})
	g.Go(func() error {
		return c.Run(gctx, updates.C())
	})
	return g.Wait()
}

// printHandler writes one line per level with the frames it holds.
func printHandler(w io.Writer) consumer.Handler {
	return consumer.HandlerFunc(func(_ context.Context, snap consumer.Snapshot) error {
		if quiet {
			return nil
		}
		for _, level := range slices.Sorted(maps.Keys(snap.Frames)) {
			frames := snap.Frames[level]
			fresh := 0
			for _, f := range frames {
				if f.State == archive.StateNew {
					fresh++
				}
			}
			latest := "-"
			if len(frames) > 0 {
				latest = frames[len(frames)-1].Name
			}
			fmt.Fprintf(w, "%-8s %3d frames, %3d new, latest %s\n", level, len(frames), fresh, latest)
		}
		return nil
	})
}
