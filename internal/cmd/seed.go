package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dendrascience/verfs/config"
	"github.com/dendrascience/verfs/snapshot"
	"github.com/dendrascience/verfs/util"
)

// NewSeedCmd creates and returns the seed subcommand for the verfs CLI.
// It fabricates a snapshot history for one file, which is handy for trying
// out a retention policy with sweep --dry-run.
func NewSeedCmd() *cobra.Command {
	var (
		count   int
		spacing time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "seed BACKEND PATH",
		Short: "Generate a test snapshot history for a file",
		Long: `Generate a snapshot history for PATH in BACKEND.

PATH is created if needed and rewritten --count times, each time with a
fresh UUID line. Before every rewrite the file is snapshotted as though the
change had happened --spacing after the previous one, with the last
snapshot landing one --spacing before now.`,
		Args: argsNamed("BACKEND", "PATH"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("%w: --count must be at least 1", ErrUsage)
			}
			if spacing <= 0 {
				return fmt.Errorf("%w: --spacing must be positive", ErrUsage)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSeed(cmd.OutOrStdout(), cfg, args[0], args[1], count, spacing, verbose, time.Now())
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of snapshots to generate")
	cmd.Flags().DurationVar(&spacing, "spacing", time.Minute, "Time between generated snapshots")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	addConfigFlags(cmd)

	return cmd
}

func runSeed(w io.Writer, cfg config.Config, backendArg, pathArg string, count int, spacing time.Duration, verbose bool, now time.Time) error {
	backend, err := resolveBackend(backendArg)
	if err != nil {
		return err
	}
	filePath, err := resolveFile(util.NewTranslator(backend), pathArg)
	if err != nil {
		return err
	}
	if cfg.Layout().Within(filePath) {
		return fmt.Errorf("%w: %s is inside a snapshot directory", ErrUsage, pathArg)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	at := now.Add(-time.Duration(count) * spacing)
	store := snapshot.NewStore(cfg.Layout(), snapshot.WithClock(func() time.Time { return at }))

	if verbose {
		fmt.Fprintf(w, "Generating %d snapshots of %s\n", count, filePath)
	}
	if err := os.WriteFile(filePath, []byte(uuid.NewString()+"\n"), 0o644); err != nil {
		return err
	}
	for i := range count {
		p, err := store.Snapshot(filePath)
		if err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(w, "  %s\n", filepath.Base(p))
		}
		if err := os.WriteFile(filePath, []byte(uuid.NewString()+"\n"), 0o644); err != nil {
			return err
		}
		at = at.Add(spacing)
		if verbose && (i+1)%1000 == 0 {
			fmt.Fprintf(w, "Created %d/%d snapshots...\n", i+1, count)
		}
	}

	fmt.Fprintf(w, "Created %d snapshots of %s\n", count, pathArg)
	return nil
}
