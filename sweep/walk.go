package sweep

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/dendrascience/verfs/snapshot"
	"github.com/dendrascience/verfs/util"
)

// WalkCollections calls fn for every snapshot collection below root.
//
// Entries are inspected with lstat, so symlinked directories are never
// followed. A directory named like the snapshot directory is not descended
// into as an ordinary directory; each directory directly inside it is one
// collection. A directory that cannot be read is skipped together with its
// subtree, the walk carries on with its siblings and the error is returned
// at the end, combined with any others.
func WalkCollections(root string, layout snapshot.Layout, fn func(collection string)) error {
	var errs error
	walkErr := WalkSnapshotDirs(root, layout, func(snapDir string) {
		errs = multierr.Append(errs, walkSnapshotDir(snapDir, fn))
	})
	return multierr.Append(walkErr, errs)
}

// WalkSnapshotDirs calls fn for every snapshot directory below root, with
// the same traversal rules as WalkCollections.
func WalkSnapshotDirs(root string, layout snapshot.Layout, fn func(snapDir string)) error {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return util.HostError("readdir", root, err)
	}

	var errs error
	for _, d := range dirents {
		p := filepath.Join(root, d.Name())
		fi, err := os.Lstat(p)
		if err != nil {
			// Removed while we were looking; nothing to sweep there.
			if !os.IsNotExist(err) {
				errs = multierr.Append(errs, util.HostError("lstat", p, err))
			}
			continue
		}
		if !fi.IsDir() {
			continue
		}

		if layout.IsSnapshotDir(d.Name()) {
			fn(p)
			continue
		}
		errs = multierr.Append(errs, WalkSnapshotDirs(p, layout, fn))
	}
	return errs
}

func walkSnapshotDir(dir string, fn func(collection string)) error {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return util.HostError("readdir", dir, err)
	}

	var errs error
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), snapshot.StagingPrefix) {
			continue
		}
		p := filepath.Join(dir, d.Name())
		fi, err := os.Lstat(p)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = multierr.Append(errs, util.HostError("lstat", p, err))
			}
			continue
		}
		if fi.IsDir() {
			fn(p)
		}
	}
	return errs
}
