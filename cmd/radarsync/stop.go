package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/radarsync/pkg/daemon"
)

// stopTimeout bounds how long stop waits for the daemon to exit.
var stopTimeout = 10 * time.Second

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	Long:  `Send SIGTERM to the running daemon and wait for it to exit.`,
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	pid, err := daemon.StopDaemon(cfg.PIDPath())
	if errors.Is(err, daemon.ErrDaemonNotRunning) {
		printInfo(out, "radarsync is not running")
		return nil
	}
	if err != nil {
		return err
	}
	printVerbose(cmd.ErrOrStderr(), "sent SIGTERM to pid %d, waiting for it to exit", pid)

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			printInfo(out, "Daemon stopped")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return errors.New("daemon did not stop in time")
}
