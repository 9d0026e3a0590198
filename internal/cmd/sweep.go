package cmd

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dendrascience/verfs/config"
	"github.com/dendrascience/verfs/sweep"
)

// NewSweepCmd creates and returns the sweep subcommand for the verfs CLI.
// It runs one retention pass over a backend without mounting it.
func NewSweepCmd() *cobra.Command {
	var (
		dryRun  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "sweep BACKEND",
		Short: "Apply the retention policy to every snapshot in a backend",
		Long: `Apply the retention policy once to every snapshot collection in BACKEND.

This is the same pass the mount runs in the background. It is safe to run
while BACKEND is mounted. With --dry-run nothing is deleted and the snapshots
that would go are listed instead.`,
		Args: argsNamed("BACKEND"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSweep(cmd.OutOrStdout(), cfg, args[0], dryRun, verbose)
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Report what would be deleted without deleting")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every deleted snapshot")
	addConfigFlags(cmd)

	return cmd
}

func runSweep(w io.Writer, cfg config.Config, backendArg string, dryRun, verbose bool) error {
	backend, err := resolveBackend(backendArg)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sweeper := sweep.New(cfg.Layout(), cfg.Policy(),
		sweep.WithLogger(logger.Named("sweep")),
		sweep.WithWorkers(cfg.SweepWorkers),
		sweep.WithDryRun(dryRun))
	report, sweepErr := sweeper.Sweep(backend)

	if dryRun || verbose {
		slices.Sort(report.Reclaimed)
		for _, p := range report.Reclaimed {
			fmt.Fprintln(w, p)
		}
	}

	verb := "Deleted"
	if dryRun {
		verb = "Would delete"
	}
	fmt.Fprintf(w, "\nSweep complete in %s:\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Collections: %s\n", humanize.Comma(int64(report.Collections)))
	fmt.Fprintf(w, "  Snapshots:   %s\n", humanize.Comma(int64(report.Snapshots)))
	fmt.Fprintf(w, "  Kept:        %s\n", humanize.Comma(int64(report.Kept)))
	fmt.Fprintf(w, "  %s: %s\n", verb, humanize.Comma(int64(report.Deleted)))
	if report.Corrupt > 0 {
		fmt.Fprintf(w, "  Unparseable: %s (left alone)\n", humanize.Comma(int64(report.Corrupt)))
	}
	return sweepErr
}
