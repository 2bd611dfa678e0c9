package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/radarsync/pkg/radar/config"
	"github.com/jamesainslie/radarsync/pkg/radar/history"
	"github.com/jamesainslie/radarsync/pkg/radar/status"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync and prune history",
	Long: `View the history of sync and prune passes.

The daemon records every pass that downloaded or removed frames, including
which frames it touched.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a pass",
	Long:  `Display the frames of one recorded pass. A unique ID prefix is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old history entries",
	Long:  `Remove history entries older than the retention period.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory returns the configured history store.
func openHistory(cmd *cobra.Command) (*history.History, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	h, err := history.New(cfg.HistoryPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	return h, cfg, nil
}

// runHistory lists recent passes.
func runHistory(cmd *cobra.Command, _ []string) error {
	h, _, err := openHistory(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	entries, err := h.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if len(entries) == 0 {
		printInfo(out, "No history entries found.")
		return nil
	}

	fmt.Fprintf(out, "\n%-36s  %-6s  %-7s  %-10s  %s\n", "ID", "TYPE", "FRAMES", "SIZE", "WHEN")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, e := range entries {
		op := string(e.Operation)
		if e.Error != "" {
			op += "!"
		}
		fmt.Fprintf(out, "%-36s  %-6s  %-7d  %-10s  %s\n",
			truncateString(e.ID, 36),
			op,
			e.Summary.TotalFrames,
			status.Bytes(e.Summary.TotalBytes),
			status.Ago(e.Timestamp),
		)
	}
	fmt.Fprintln(out, strings.Repeat("-", 80))
	fmt.Fprintln(out, "Use 'radarsync history show <id>' for the frames of a pass.")
	return nil
}

// runHistoryShow displays one pass.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	h, _, err := openHistory(cmd)
	if err != nil {
		return err
	}
	entry, err := h.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "\nPass Details")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "ID:         %s\n", entry.ID)
	fmt.Fprintf(out, "Timestamp:  %s\n", entry.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Operation:  %s\n", entry.Operation)
	fmt.Fprintf(out, "Frames:     %d\n", entry.Summary.TotalFrames)
	fmt.Fprintf(out, "Total Size: %s\n", status.Bytes(entry.Summary.TotalBytes))
	if entry.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", entry.Error)
	}

	if len(entry.Frames) == 0 {
		return nil
	}
	fmt.Fprintln(out, "\nFrames:")
	fmt.Fprintln(out, strings.Repeat("-", 60))
	limit := min(len(entry.Frames), 50)
	for _, f := range entry.Frames[:limit] {
		fmt.Fprintf(out, "%-8s  %-10s  %s\n", f.Level, status.Bytes(f.Size), f.Name)
	}
	if len(entry.Frames) > limit {
		fmt.Fprintf(out, "\n... and %d more frames\n", len(entry.Frames)-limit)
	}
	return nil
}

// runHistoryClean removes entries past retention.
func runHistoryClean(cmd *cobra.Command, _ []string) error {
	h, cfg, err := openHistory(cmd)
	if err != nil {
		return err
	}
	days := cfg.History.RetentionDays
	if days <= 0 {
		days = config.DefaultHistoryRetentionDays
	}

	removed, err := h.Cleanup(days)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo(cmd.OutOrStdout(), "Removed %d entries older than %d days", removed, days)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
