package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dendrascience/verfs/config"
	"github.com/dendrascience/verfs/snapshot"
	"github.com/dendrascience/verfs/util"
)

// NewRestoreCmd creates and returns the restore subcommand for the verfs CLI.
func NewRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore BACKEND PATH SNAPSHOT",
		Short: "Put a snapshot back in place of a file",
		Long: `Replace PATH with the snapshot named SNAPSHOT (as listed by history).

The current content of PATH is snapshotted before it is replaced, so a
restore can be undone like any other change. Restoring a file that has
since been deleted recreates it.`,
		Args: argsNamed("BACKEND", "PATH", "SNAPSHOT"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runRestore(cmd.OutOrStdout(), cfg, args[0], args[1], args[2])
		},
	}

	addConfigFlags(cmd)
	return cmd
}

func runRestore(w io.Writer, cfg config.Config, backendArg, pathArg, name string) error {
	backend, err := resolveBackend(backendArg)
	if err != nil {
		return err
	}
	filePath, err := resolveFile(util.NewTranslator(backend), pathArg)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := snapshot.NewStore(cfg.Layout(), snapshot.WithLogger(logger.Named("snapshot")))
	if err := store.Restore(filePath, name); err != nil {
		if errors.Is(err, util.ErrCorruptSnapshotName) {
			return fmt.Errorf("%w: %w", ErrUsage, err)
		}
		return err
	}
	fmt.Fprintf(w, "Restored %s from %s\n", pathArg, name)
	return nil
}
