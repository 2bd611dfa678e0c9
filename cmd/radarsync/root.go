package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/radarsync/pkg/radar/config"
	"github.com/jamesainslie/radarsync/pkg/radar/logging"
)

var (
	cfgFile string
	verbose bool
	quiet   bool

	rootCmd = &cobra.Command{
		Use:   "radarsync",
		Short: "Keep a local archive of weather radar frames in sync",
		Long: `radarsync mirrors the latest radar frames for three zoom levels from a
remote catalog into a local archive, marks frames that have not been
consumed yet and prunes everything older than the newest unbroken run.

Running radarsync without a subcommand starts the daemon in the foreground.

Examples:
  radarsync                        # Run the daemon
  radarsync sync                   # Fetch new frames once and exit
  radarsync prune --dry-run        # Show which frames retention would remove
  radarsync watch --confirm        # Consume frames written by a running daemon
  radarsync status                 # Show what the daemon is doing
  radarsync config show            # Show configuration`,
		Args:          cobra.NoArgs,
		RunE:          runDaemon,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/radarsync/config.yaml)")
	rootCmd.PersistentFlags().String("root", "", "archive root directory")
	rootCmd.PersistentFlags().StringSlice("levels", nil, "radar product codes, one per zoom level")
	rootCmd.PersistentFlags().String("marker", "", "filename prefix marking unconsumed frames")
	rootCmd.PersistentFlags().String("log-level", "", "log file level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output")
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), "%v", err)
	}
	_ = logging.Close()
	return err
}

// loadConfig loads configuration with this command's flags bound over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	opts := []config.LoadOption{
		config.WithFlag("archive.root", flags.Lookup("root")),
		config.WithFlag("levels", flags.Lookup("levels")),
		config.WithFlag("archive.marker", flags.Lookup("marker")),
		config.WithFlag("logging.level", flags.Lookup("log-level")),
		config.WithFlag("archive.clear_on_start", flags.Lookup("clear-on-start")),
		config.WithFlag("metrics.listen", flags.Lookup("metrics-listen")),
		config.WithFlag("consumer.auto_confirm", flags.Lookup("auto-confirm")),
		config.WithFlag("retention.trash", flags.Lookup("trash")),
	}
	if cfgFile != "" {
		opts = append(opts, config.WithFile(cfgFile))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		printVerbose(cmd.ErrOrStderr(), "using config file %s", cfg.File)
	}
	return cfg, nil
}

// initLogging starts file logging and mirrors records at or above console
// to stderr. An empty console level keeps stderr quiet.
func initLogging(cfg *config.Config, console string) error {
	lc, err := cfg.LogConfig()
	if err != nil {
		return err
	}
	switch {
	case verbose:
		lc.Level = "debug"
		console = "debug"
	case quiet:
		console = ""
	}
	lc.ConsoleLevel = console
	return logging.Init(lc)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(w io.Writer, format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(w, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(w io.Writer, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(w, format+"\n", args...)
	}
}

// printError prints an error message.
func printError(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "Error: "+format+"\n", args...)
}
