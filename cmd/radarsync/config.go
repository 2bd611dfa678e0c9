package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/radarsync/pkg/radar/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage radarsync configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/radarsync/config.yaml (if set)
  2. ~/.config/radarsync/config.yaml

Environment variables override config file settings using the RADARSYNC_ prefix:
  RADARSYNC_ARCHIVE_ROOT=/srv/radar
  RADARSYNC_REMOTE_ADDRESS=ftp.example.com:21
  RADARSYNC_POLL_LONG_WAIT=90s`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from all sources.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the effective configuration.
func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if cfg.File != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", cfg.File)
	} else {
		fmt.Fprintf(out, "Config file: (using defaults, no file found)\n\n")
	}

	password := cfg.Remote.Password
	if password != "" {
		password = "********"
	}

	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "----------------------")
	fmt.Fprintf(out, "levels:                  %s\n", strings.Join(cfg.Levels, ", "))
	fmt.Fprintf(out, "archive.root:            %s\n", cfg.Archive.Root)
	fmt.Fprintf(out, "archive.clear_on_start:  %t\n", cfg.Archive.ClearOnStart)
	fmt.Fprintf(out, "archive.marker:          %q\n", cfg.Archive.Marker)
	fmt.Fprintf(out, "archive.min_free:        %s\n", cfg.Archive.MinFree)
	fmt.Fprintf(out, "remote.address:          %s\n", cfg.Remote.Address)
	fmt.Fprintf(out, "remote.user:             %s\n", cfg.Remote.User)
	fmt.Fprintf(out, "remote.password:         %s\n", password)
	fmt.Fprintf(out, "remote.frames_dir:       %s\n", cfg.Remote.FramesDir)
	fmt.Fprintf(out, "remote.references_dir:   %s\n", cfg.Remote.ReferencesDir)
	fmt.Fprintf(out, "remote.timeout:          %s\n", cfg.Remote.Timeout)
	fmt.Fprintf(out, "remote.exclude:          %q\n", cfg.Remote.Exclude)
	fmt.Fprintf(out, "poll.long_wait:          %s\n", cfg.Poll.LongWait)
	fmt.Fprintf(out, "poll.short_wait:         %s\n", cfg.Poll.ShortWait)
	fmt.Fprintf(out, "poll.tick:               %s\n", cfg.Poll.Tick)
	fmt.Fprintf(out, "retention.enabled:       %t\n", cfg.Retention.Enabled)
	fmt.Fprintf(out, "retention.trash:         %t\n", cfg.Retention.Trash)
	fmt.Fprintf(out, "consumer.enabled:        %t\n", cfg.Consumer.Enabled)
	fmt.Fprintf(out, "consumer.auto_confirm:   %t\n", cfg.Consumer.AutoConfirm)
	fmt.Fprintf(out, "metrics.listen:          %s\n", cfg.Metrics.Listen)
	fmt.Fprintf(out, "history.enabled:         %t\n", cfg.History.Enabled)
	fmt.Fprintf(out, "history.path:            %s\n", cfg.HistoryPath())
	fmt.Fprintf(out, "history.retention:       %d days\n", cfg.History.RetentionDays)
	fmt.Fprintf(out, "logging.level:           %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "daemon.pid_path:         %s\n", cfg.PIDPath())
	fmt.Fprintf(out, "daemon.status_path:      %s\n", cfg.StatusPath())
	fmt.Fprintf(out, "daemon.index_path:       %s\n", cfg.IndexPath())

	fmt.Fprintln(out, "\nEnvironment Overrides:")
	fmt.Fprintln(out, "----------------------")
	anyOverrides := false
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, config.EnvPrefix+"_") {
			continue
		}
		if strings.HasPrefix(kv, config.EnvPrefix+"_REMOTE_PASSWORD=") {
			kv = config.EnvPrefix + "_REMOTE_PASSWORD=********"
		}
		fmt.Fprintln(out, kv)
		anyOverrides = true
	}
	if !anyOverrides {
		fmt.Fprintln(out, "(none)")
	}
	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if _, err := os.Stat(path); err == nil {
		printInfo(out, "Config file already exists: %s", path)
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo(out, "Created default config file: %s", path)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, _ []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		printVerbose(cmd.ErrOrStderr(), "file does not exist (defaults apply)")
	}
	return nil
}

func configPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}
