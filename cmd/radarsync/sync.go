package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/radarsync/pkg/daemon"
	"github.com/jamesainslie/radarsync/pkg/radar/status"
	"github.com/jamesainslie/radarsync/pkg/radar/syncer"
)

// newCatalog builds the remote catalog. Tests replace it.
var newCatalog = daemon.NewCatalog

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new frames once and exit",
	Long: `Run a single sync pass against the remote catalog.

The archive is not cleared and frames are not pruned. Finding no new frames
is not an error; any remote or archive failure exits non-zero.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("references", true, "also fetch missing reference images")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
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

	out := cmd.OutOrStdout()
	line := status.NewLine(out, isTerminal(out) && !quiet)
	engine, err := daemon.NewEngine(cfg, newCatalog(cfg), a, syncer.WithProgress(func(p syncer.Progress) {
		line.Downloaded(p.Name, p.Done, p.Bytes)
	}))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if refs, _ := cmd.Flags().GetBool("references"); refs {
		fetched, err := engine.FetchReferences(ctx)
		if err != nil {
			return err
		}
		for _, name := range fetched {
			printVerbose(cmd.ErrOrStderr(), "fetched reference %s", name)
		}
	}

	res, err := engine.SyncAll(ctx)
	line.Clear()
	if res.Changed() {
		for _, level := range a.Levels() {
			if n := len(res.Downloaded[level]); n > 0 {
				printInfo(out, "%-8s %d new", level, n)
			}
		}
	}
	if err != nil {
		return err
	}

	if !res.Changed() {
		printInfo(out, "No new frames")
		return nil
	}
	printInfo(out, "Downloaded %d frames (%s) in %s",
		res.Count(), status.Bytes(res.Bytes), res.Finished.Sub(res.Started).Round(time.Millisecond))
	return nil
}
