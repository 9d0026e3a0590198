package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dendrascience/verfs/config"
	"github.com/dendrascience/verfs/snapshot"
	"github.com/dendrascience/verfs/sweep"
)

// NewStatsCmd creates and returns the stats subcommand for the verfs CLI.
// It counts live files and snapshots in a backend.
func NewStatsCmd() *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "stats BACKEND",
		Short: "Count files and snapshots in a backend",
		Long: `Count the live files in BACKEND and the snapshots kept for them.

Live files are everything outside snapshot directories. Snapshot totals
include the space they take up and the oldest and newest snapshot times.`,
		Args: argsNamed("BACKEND"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runStats(cmd.OutOrStdout(), cfg, args[0], showProgress)
		},
	}

	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show progress every 10,000 files")
	addConfigFlags(cmd)

	return cmd
}

type backendStats struct {
	files          int
	liveBytes      uint64
	collections    int
	snapshots      int
	snapshotBytes  uint64
	corrupt        int
	oldest, newest time.Time
}

func runStats(w io.Writer, cfg config.Config, backendArg string, showProgress bool) error {
	backend, err := resolveBackend(backendArg)
	if err != nil {
		return err
	}
	layout := cfg.Layout()

	var st backendStats
	walkErr := filepath.WalkDir(backend, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if layout.IsSnapshotDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		st.files++
		if info, err := d.Info(); err == nil {
			st.liveBytes += uint64(info.Size())
		}
		if showProgress && st.files%10000 == 0 {
			fmt.Fprintf(w, "Progress: %d files counted\n", st.files)
		}
		return nil
	})

	var errs error
	walkErr = multierr.Append(walkErr, sweep.WalkCollections(backend, layout, func(collection string) {
		st.collections++
		entries, corrupt, err := snapshot.ReadCollection(collection)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("readdir %s: %w", collection, err))
			return
		}
		st.corrupt += len(corrupt)
		st.snapshots += len(entries)
		for _, e := range entries {
			if info, err := os.Lstat(e.Path(collection)); err == nil {
				st.snapshotBytes += uint64(info.Size())
			}
			ts := e.ID.Timestamp
			if st.oldest.IsZero() || ts.Before(st.oldest) {
				st.oldest = ts
			}
			if ts.After(st.newest) {
				st.newest = ts
			}
		}
	}))

	fmt.Fprintf(w, "Live files:   %s (%s)\n", humanize.Comma(int64(st.files)), humanize.IBytes(st.liveBytes))
	fmt.Fprintf(w, "Collections:  %s\n", humanize.Comma(int64(st.collections)))
	fmt.Fprintf(w, "Snapshots:    %s (%s)\n", humanize.Comma(int64(st.snapshots)), humanize.IBytes(st.snapshotBytes))
	if st.snapshots > 0 {
		fmt.Fprintf(w, "Oldest:       %s (%s)\n", st.oldest.Format(snapshot.TimestampLayout), humanize.Time(st.oldest))
		fmt.Fprintf(w, "Newest:       %s (%s)\n", st.newest.Format(snapshot.TimestampLayout), humanize.Time(st.newest))
	}
	if st.corrupt > 0 {
		fmt.Fprintf(w, "Unparseable:  %d\n", st.corrupt)
	}
	return multierr.Append(walkErr, errs)
}
