package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/radarsync/pkg/daemon"
	"github.com/jamesainslie/radarsync/pkg/radar/status"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Run the radarsync daemon in the foreground.

On start the daemon clears (or, with --clear-on-start=false, keeps) the
archive, fetches reference images, runs one sync pass and marks every frame
new. It then polls the remote catalog, prunes after every pass that found new
frames and keeps a status file that 'radarsync status' reads.

The daemon stops on SIGINT or SIGTERM ('radarsync stop').`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	addDaemonFlags(rootCmd)
	addDaemonFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("clear-on-start", true, "clear the archive before the first pass")
	cmd.Flags().String("metrics-listen", "", "serve Prometheus metrics on this address")
	cmd.Flags().Bool("auto-confirm", false, "confirm new frames as soon as the consumer sees them")
	cmd.Flags().Bool("trash", false, "move pruned frames to the trash instead of deleting them")
}

// runDaemon runs the daemon until it is signalled or fails.
func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	interactive := isTerminal(cmd.OutOrStdout()) && !quiet && !verbose
	console := "info"
	if interactive {
		console = "warn"
	}
	if err := initLogging(cfg, console); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	line := status.NewLine(cmd.OutOrStdout(), interactive)
	err = daemon.New(cfg, daemon.WithStatusLine(line)).Run(ctx)
	if errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
		pid, _ := daemon.ReadPIDFile(cfg.PIDPath())
		return fmt.Errorf("%w (pid %d), stop it with: radarsync stop", err, pid)
	}
	return err
}
