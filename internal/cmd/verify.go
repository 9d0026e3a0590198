package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dendrascience/verfs/config"
	"github.com/dendrascience/verfs/snapshot"
	"github.com/dendrascience/verfs/sweep"
)

// NewVerifyCmd creates and returns the verify subcommand for the verfs CLI.
// It checks every snapshot directory for entries a sweep would skip.
func NewVerifyCmd() *cobra.Command {
	var (
		staleAfter time.Duration
		clean      bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "verify BACKEND",
		Short: "Check snapshot directories for leftovers and unparseable names",
		Long: `Check every snapshot directory in BACKEND for problems.

Two things are reported:
  - collection entries whose names do not parse as <timestamp>_<seq>;
    sweeps leave these alone, so they are never reclaimed
  - staging files older than --stale, left behind by an interrupted snapshot

With --clean the stale staging files are removed. Unparseable entries are
never touched. The command exits with status 1 when anything is found.`,
		Args: argsNamed("BACKEND"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runVerify(cmd.OutOrStdout(), cfg, args[0], staleAfter, clean, verbose, time.Now())
		},
	}

	cmd.Flags().DurationVar(&staleAfter, "stale", time.Hour, "Age after which a staging file counts as abandoned")
	cmd.Flags().BoolVarP(&clean, "clean", "r", false, "Remove stale staging files")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	addConfigFlags(cmd)

	return cmd
}

type verifyResult struct {
	snapDirs    int
	collections int
	corrupt     []string
	stale       []string
	removed     int
}

func runVerify(w io.Writer, cfg config.Config, backendArg string, staleAfter time.Duration, clean, verbose bool, now time.Time) error {
	backend, err := resolveBackend(backendArg)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(w, "Verifying snapshots in %s\n", backend)
	}

	var res verifyResult
	var errs error
	walkErr := sweep.WalkSnapshotDirs(backend, cfg.Layout(), func(snapDir string) {
		res.snapDirs++
		errs = multierr.Append(errs, verifySnapshotDir(w, snapDir, staleAfter, clean, verbose, now, &res))
	})
	errs = multierr.Append(walkErr, errs)

	fmt.Fprintf(w, "\nVerification complete:\n")
	fmt.Fprintf(w, "  Snapshot directories: %s\n", humanize.Comma(int64(res.snapDirs)))
	fmt.Fprintf(w, "  Collections checked:  %s\n", humanize.Comma(int64(res.collections)))
	fmt.Fprintf(w, "  Unparseable entries:  %d\n", len(res.corrupt))
	fmt.Fprintf(w, "  Stale staging files:  %d\n", len(res.stale))
	if clean {
		fmt.Fprintf(w, "  Removed:              %d\n", res.removed)
	}

	if errs != nil {
		return errs
	}
	if len(res.corrupt) > 0 || len(res.stale) > res.removed {
		return ErrIssuesFound
	}
	return nil
}

func verifySnapshotDir(w io.Writer, snapDir string, staleAfter time.Duration, clean, verbose bool, now time.Time, res *verifyResult) error {
	dirents, err := os.ReadDir(snapDir)
	if err != nil {
		return fmt.Errorf("readdir %s: %w", snapDir, err)
	}

	var errs error
	for _, d := range dirents {
		p := filepath.Join(snapDir, d.Name())
		if strings.HasPrefix(d.Name(), snapshot.StagingPrefix) {
			info, err := d.Info()
			if err != nil {
				continue
			}
			age := now.Sub(info.ModTime())
			if age < staleAfter {
				continue
			}
			res.stale = append(res.stale, p)
			fmt.Fprintf(w, "stale staging file %s (%s)\n", p, humanize.RelTime(info.ModTime(), now, "old", "ahead"))
			if clean {
				if err := os.Remove(p); err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				res.removed++
			}
			continue
		}
		if !d.IsDir() {
			continue
		}

		res.collections++
		entries, corrupt, err := snapshot.ReadCollection(p)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("readdir %s: %w", p, err))
			continue
		}
		for _, c := range corrupt {
			cp := filepath.Join(p, c.Name)
			res.corrupt = append(res.corrupt, cp)
			fmt.Fprintf(w, "unparseable entry %s: %v\n", cp, c.Err)
		}
		if verbose {
			fmt.Fprintf(w, "%s: %d snapshots\n", p, len(entries))
		}
	}
	return errs
}
