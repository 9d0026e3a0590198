package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dendrascience/verfs/config"
	"github.com/dendrascience/verfs/metrics"
	"github.com/dendrascience/verfs/scheduler"
	"github.com/dendrascience/verfs/snapshot"
	"github.com/dendrascience/verfs/sweep"
	"github.com/dendrascience/verfs/util"
	"github.com/dendrascience/verfs/verfs"
	"github.com/dendrascience/verfs/version"
)

// NewMountCmd creates and returns the mount subcommand for the verfs CLI.
func NewMountCmd() *cobra.Command {
	var options []string

	cmd := &cobra.Command{
		Use:   "mount BACKEND MOUNTPOINT",
		Short: "Mount a versioning view of a directory",
		Long: `Mount a versioning view of BACKEND at MOUNTPOINT.

Everything under MOUNTPOINT is BACKEND, one to one. Before a file is written,
truncated or deleted through the mount, its current content is saved as a
snapshot in a hidden directory next to it (.versions by default). A
background sweep thins old snapshots out according to the retention policy.

Mount options (-o, comma separated):
  allow_other           let other users access the mount
  ro                    mount read-only
  default_permissions   let the kernel enforce permission bits
  fsname=NAME           filesystem name shown by mount(8)
  subtype=NAME          filesystem subtype shown by mount(8)`,
		Args: argsNamed("BACKEND", "MOUNTPOINT"),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseMountOptions(options)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runMount(cmd.Context(), cfg, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringSliceVarP(&options, "options", "o", nil, "Mount options, comma separated")
	addConfigFlags(cmd)
	return cmd
}

type mountOptions struct {
	allowOther         bool
	readOnly           bool
	defaultPermissions bool
	fsName             string
	subtype            string
}

func parseMountOptions(opts []string) (mountOptions, error) {
	mo := mountOptions{fsName: "verfs", subtype: "verfs"}
	for _, opt := range opts {
		key, value, hasValue := strings.Cut(strings.TrimSpace(opt), "=")
		switch {
		case key == "":
		case key == "allow_other" && !hasValue:
			mo.allowOther = true
		case key == "ro" && !hasValue:
			mo.readOnly = true
		case key == "rw" && !hasValue:
			mo.readOnly = false
		case key == "default_permissions" && !hasValue:
			mo.defaultPermissions = true
		case key == "fsname" && value != "":
			mo.fsName = value
		case key == "subtype" && value != "":
			mo.subtype = value
		default:
			return mountOptions{}, fmt.Errorf("%w: unsupported mount option %q", ErrUsage, opt)
		}
	}
	return mo, nil
}

func (mo mountOptions) fuseOptions() []fuse.MountOption {
	opts := []fuse.MountOption{
		fuse.FSName(mo.fsName),
		fuse.Subtype(mo.subtype),
	}
	if mo.allowOther {
		opts = append(opts, fuse.AllowOther())
	}
	if mo.readOnly {
		opts = append(opts, fuse.ReadOnly())
	}
	if mo.defaultPermissions {
		opts = append(opts, fuse.DefaultPermissions())
	}
	return opts
}

// pathsOverlap reports whether one path is the other or lies inside it.
// Mounting over (or inside) the backend would make the filesystem serve
// itself.
func pathsOverlap(path1, path2 string) bool {
	abs1, err1 := filepath.Abs(path1)
	abs2, err2 := filepath.Abs(path2)
	if err1 != nil || err2 != nil {
		abs1, abs2 = filepath.Clean(path1), filepath.Clean(path2)
	}
	return within(abs1, abs2) || within(abs2, abs1)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func runMount(ctx context.Context, cfg config.Config, mo mountOptions, backendArg, mountpoint string) error {
	backend, err := resolveBackend(backendArg)
	if err != nil {
		return err
	}
	if pathsOverlap(backend, mountpoint) {
		return fmt.Errorf("%w: backend %s and mountpoint %s overlap", ErrUsage, backend, mountpoint)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("verfs starting",
		zap.Stringer("version", version.Get()),
		zap.String("backend", backend),
		zap.String("mountpoint", mountpoint))

	if cfg.MetricsAddr != "" {
		go metrics.Serve(cfg.MetricsAddr, logger)
	}

	layout := cfg.Layout()
	store := snapshot.NewStore(layout, snapshot.WithLogger(logger.Named("snapshot")))
	filesystem := verfs.NewFS(util.NewTranslator(backend), store, logger.Named("fs"),
		verfs.SnapshotPerHandle(cfg.SnapshotPerHandle))

	sweeper := sweep.New(layout, cfg.Policy(),
		sweep.WithLogger(logger.Named("sweep")),
		sweep.WithWorkers(cfg.SweepWorkers))
	sched := scheduler.New(cfg.Interval(), func() error {
		_, err := sweeper.Sweep(backend)
		return err
	}, logger.Named("scheduler"))

	c, err := fuse.Mount(mountpoint, mo.fuseOptions()...)
	if err != nil {
		return fmt.Errorf("mount %s: %w", mountpoint, err)
	}
	defer c.Close()

	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	watchCtx, stopWatching := context.WithCancelCause(ctx)
	defer stopWatching(errServed)
	go watchShutdown(watchCtx, sigChan, func() error { return fuse.Unmount(mountpoint) }, logger)

	logger.Info("mounted", zap.String("mountpoint", mountpoint), zap.Duration("sweep_interval", cfg.Interval()))
	if err := fs.Serve(c, filesystem); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("unmounted", zap.String("mountpoint", mountpoint))
	return nil
}

// errServed cancels the shutdown watcher once fs.Serve has returned on its
// own, e.g. after an external fusermount -u.
var errServed = errors.New("serve returned")

// watchShutdown unmounts on the first signal or when ctx is canceled by the
// caller. It returns without unmounting when ctx is canceled with errServed.
func watchShutdown(ctx context.Context, sigs <-chan os.Signal, unmount func() error, logger *zap.Logger) {
	select {
	case sig := <-sigs:
		logger.Info("received signal, unmounting", zap.Stringer("signal", sig))
	case <-ctx.Done():
		if errors.Is(context.Cause(ctx), errServed) {
			return
		}
		logger.Info("context canceled, unmounting", zap.Error(context.Cause(ctx)))
	}
	if err := unmount(); err != nil {
		logger.Error("unmount failed", zap.Error(err))
	}
}
