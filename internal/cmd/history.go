package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dendrascience/verfs/config"
	"github.com/dendrascience/verfs/retention"
	"github.com/dendrascience/verfs/snapshot"
	"github.com/dendrascience/verfs/util"
)

// NewHistoryCmd creates and returns the history subcommand for the verfs CLI.
// It lists the snapshots of one file together with what the next sweep
// would do to each of them.
func NewHistoryCmd() *cobra.Command {
	var showHash bool

	cmd := &cobra.Command{
		Use:   "history BACKEND PATH",
		Short: "List the snapshots of a file",
		Long: `List the snapshots of PATH, oldest first.

PATH is the file's path inside the mount (or, equivalently, relative to
BACKEND). The file itself need not exist any more; snapshots of deleted
files are listed all the same. Each snapshot is shown with its size, its
age and the verdict the current retention policy gives it.`,
		Args: argsNamed("BACKEND", "PATH"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runHistory(cmd.OutOrStdout(), cfg, args[0], args[1], showHash, time.Now())
		},
	}

	cmd.Flags().BoolVar(&showHash, "hash", false, "Show the SHA-256 of every snapshot")
	addConfigFlags(cmd)

	return cmd
}

func runHistory(w io.Writer, cfg config.Config, backendArg, pathArg string, showHash bool, now time.Time) error {
	backend, err := resolveBackend(backendArg)
	if err != nil {
		return err
	}
	filePath, err := resolveFile(util.NewTranslator(backend), pathArg)
	if err != nil {
		return err
	}

	store := snapshot.NewStore(cfg.Layout())
	collection, entries, corrupt, err := store.History(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(w, "No snapshots of %s\n", pathArg)
			return nil
		}
		return err
	}

	verdicts := retention.Verdicts(snapshot.IDs(entries), now, cfg.Policy())

	tbl := tablewriter.NewWriter(w)
	tbl.SetAutoFormatHeaders(false)
	tbl.SetBorder(false)
	tbl.SetAutoWrapText(false)
	header := []string{"SNAPSHOT", "SIZE", "AGE", "RETENTION"}
	if showHash {
		header = append(header, "SHA256")
	}
	tbl.SetHeader(header)

	for i, e := range entries {
		p := e.Path(collection)
		size := "-"
		if fi, err := os.Lstat(p); err == nil {
			size = humanize.IBytes(uint64(fi.Size()))
		}
		row := []string{e.Name, size, humanize.RelTime(e.ID.Timestamp, now, "ago", "from now"), verdicts[i].String()}
		if showHash {
			hash, err := util.GetFileHash(p)
			if err != nil {
				hash = "error: " + err.Error()
			}
			row = append(row, hash)
		}
		tbl.Append(row)
	}
	tbl.Render()

	for _, c := range corrupt {
		fmt.Fprintf(w, "unparseable entry %q ignored: %v\n", c.Name, c.Err)
	}
	fmt.Fprintf(w, "\n%d snapshots in %s\n", len(entries), collection)
	return nil
}
