package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/radarsync/pkg/daemon"
	"github.com/jamesainslie/radarsync/pkg/radar/archive"
	"github.com/jamesainslie/radarsync/pkg/radar/prune"
	"github.com/jamesainslie/radarsync/pkg/radar/status"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove frames older than the newest unbroken run",
	Long: `Apply retention to every level once.

For each level the newest frame and every frame directly preceding it at the
six-minute cadence are kept; everything at or before the first gap is
removed, whether or not it has been consumed.`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().BoolP("dry-run", "d", false, "list frames that would be removed without removing them")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, _ []string) error {
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

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		total := 0
		for _, level := range a.Levels() {
			frames, err := a.Frames(level)
			if err != nil {
				return err
			}
			stale, err := prune.Stale(frames)
			if err != nil {
				return err
			}
			for _, f := range stale {
				printInfo(out, "would remove %s/%s", level, f.Name)
			}
			total += len(stale)
		}
		printInfo(out, "%d frames would be removed", total)
		return nil
	}

	report, err := prune.New(a).PruneAll()
	for _, level := range a.Levels() {
		if removed := report.Removed[level]; len(removed) > 0 {
			printInfo(out, "%-8s removed %d (%s)", level, len(removed), status.Bytes(frameBytes(removed)))
		}
	}
	if err != nil {
		return err
	}
	printInfo(out, "Removed %d frames (%s)", report.Count(), status.Bytes(report.Bytes))
	return nil
}

func frameBytes(frames []archive.Frame) int64 {
	var n int64
	for _, f := range frames {
		n += f.Size
	}
	return n
}
