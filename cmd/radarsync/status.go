package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/radarsync/pkg/daemon"
	"github.com/jamesainslie/radarsync/pkg/radar/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show what the radarsync daemon is doing, read from its status file.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolP("json", "j", false, "print the raw status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	st, err := daemon.ReadStatus(cfg.StatusPath())
	if os.IsNotExist(err) {
		fmt.Fprintln(out, "radarsync is not running")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading status file: %w", err)
	}

	_, running := daemon.IsDaemonRunning(cfg.PIDPath())
	if !running && (st.Status == daemon.StateReady || st.Status == daemon.StateStarting) {
		st.Status = "stale"
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintln(out, status.Report("radarsync", statusFields(st)))
	return nil
}

// statusFields lays out a status file for the report.
func statusFields(st *daemon.StatusFile) []status.Field {
	stateStyle := status.SuccessStyle
	switch st.Status {
	case daemon.StateError, "stale":
		stateStyle = status.ErrorStyle
	case daemon.StateStarting, daemon.StateStopped:
		stateStyle = status.WarningStyle
	}

	fields := []status.Field{
		{Label: "Status", Value: st.Status, Style: &stateStyle},
		{Label: "PID", Value: fmt.Sprint(st.PID)},
		{Label: "Started", Value: status.Ago(st.StartedAt)},
		{Label: "Archive", Value: st.Root},
	}
	if st.Phase != "" {
		fields = append(fields, status.Field{Label: "Phase", Value: st.Phase})
	}
	if p := st.LastPass; p != nil {
		value := fmt.Sprintf("%s, %d frames (%s)", status.Ago(p.At), p.Downloaded, status.Bytes(p.Bytes))
		field := status.Field{Label: "Last pass", Value: value}
		if p.Error != "" {
			field.Value = fmt.Sprintf("%s, failed: %s", status.Ago(p.At), p.Error)
			field.Style = &status.WarningStyle
		}
		fields = append(fields, field)
	}
	if st.LastFrame != nil {
		fields = append(fields, status.Field{
			Label: "Newest frame",
			Value: st.LastFrame.UTC().Format(time.DateTime) + " UTC",
		})
	}
	if p := st.LastPrune; p != nil {
		field := status.Field{Label: "Last prune", Value: fmt.Sprintf("%s, %d removed", status.Ago(p.At), p.Removed)}
		if p.Error != "" {
			field.Value += ", failed: " + p.Error
			field.Style = &status.WarningStyle
		}
		fields = append(fields, field)
	}

	levels := make([]string, 0, len(st.Levels))
	for level := range st.Levels {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		c := st.Levels[level]
		fields = append(fields, status.Field{
			Label: level,
			Value: fmt.Sprintf("%d new, %d confirmed (%s)", c.New, c.Confirmed, status.Bytes(c.Bytes)),
			Style: &status.SizeStyle,
		})
	}

	if st.Error != "" {
		fields = append(fields, status.Field{Label: "Error", Value: st.Error, Style: &status.ErrorStyle})
	}
	return fields
}
