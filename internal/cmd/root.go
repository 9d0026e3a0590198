package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/dendrascience/verfs/version"
)

// NewRootCmd creates and returns the root cobra command for the verfs CLI.
// It sets up all subcommands, command groups, and basic configuration.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "verfs",
		Short: "verfs - A versioning passthrough FUSE filesystem",
		Long: `verfs is a passthrough FUSE filesystem that keeps old versions of your files.

Mount a backend directory and use the mount like the backend itself. Whenever
a file is about to be overwritten, truncated or deleted through the mount, its
current content is first copied into a hidden snapshot directory next to it.
A background sweep keeps recent snapshots and thins out older ones.

Use subcommands to perform different operations:
  - mount: Mount a backend directory with versioning
  - history: List the snapshots of a file
  - restore: Put a snapshot back in place
  - sweep: Apply the retention policy once
  - verify: Check snapshot directories for leftovers
  - stats: Count files and snapshots
  - seed: Generate a test history for a file`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	})

	groupUtilities := "utilities"
	groupFilesystem := "filesystem"
	groupSnapshots := "snapshots"

	// Add command groups for better organization
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupFilesystem,
		Title: "Filesystem Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupSnapshots,
		Title: "Snapshot Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	mountCmd := NewMountCmd()
	historyCmd := NewHistoryCmd()
	restoreCmd := NewRestoreCmd()
	sweepCmd := NewSweepCmd()
	verifyCmd := NewVerifyCmd()
	statsCmd := NewStatsCmd()
	seedCmd := NewSeedCmd()

	mountCmd.GroupID = groupFilesystem
	historyCmd.GroupID = groupSnapshots
	restoreCmd.GroupID = groupSnapshots
	sweepCmd.GroupID = groupSnapshots
	verifyCmd.GroupID = groupUtilities
	statsCmd.GroupID = groupUtilities
	seedCmd.GroupID = groupUtilities

	// Add subcommands
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(seedCmd)

	return rootCmd
}

// Execute runs the verfs command line.
func Execute(ctx context.Context) error {
	return execute(ctx, NewRootCmd())
}

// fang replaces root.Version with its own build lookup unless it is told
// the version explicitly.
func execute(ctx context.Context, root *cobra.Command) error {
	return fang.Execute(ctx, root, fang.WithVersion(version.Get().String()))
}
