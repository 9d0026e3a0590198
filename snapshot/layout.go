package snapshot

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/dendrascience/verfs/util"
)

// DefaultDirName is the name of the hidden per-directory snapshot directory.
const DefaultDirName = ".versions"

// StagingPrefix marks in-progress copies. They live directly in the snapshot
// directory, never inside a collection, so a sweep cannot mistake one for a
// finished snapshot.
const StagingPrefix = ".staging-"

var errBadDirName = errors.New("snapshot directory name must be a single path component")

// Layout knows where snapshots live relative to the file they preserve:
//
//	<dir>/<DirName>/<file>/<timestamp>_<seq>
type Layout struct {
	DirName string
}

// NewLayout returns a validated Layout.
func NewLayout(dirName string) (Layout, error) {
	l := Layout{DirName: dirName}
	return l, l.Validate()
}

// Validate rejects names that would escape the parent directory.
func (l Layout) Validate() error {
	switch {
	case l.DirName == "", l.DirName == ".", l.DirName == "..":
		return errBadDirName
	case strings.ContainsRune(l.DirName, '/'), strings.HasPrefix(l.DirName, StagingPrefix):
		return errBadDirName
	}
	return nil
}

// CollectionFor returns the snapshot directory and collection directory of a
// concrete file path. A path with no separator, or one naming a directory
// rather than an entry in it, is rejected with util.ErrInvalidPath.
func (l Layout) CollectionFor(filePath string) (snapDir, collection string, err error) {
	i := strings.LastIndexByte(filePath, filepath.Separator)
	if i < 0 {
		return "", "", util.ErrInvalidPath
	}
	name := filePath[i+1:]
	if name == "" || name == "." || name == ".." {
		return "", "", util.ErrInvalidPath
	}
	dir := filePath[:i]
	if dir == "" {
		dir = string(filepath.Separator)
	}
	snapDir = filepath.Join(dir, l.DirName)
	return snapDir, filepath.Join(snapDir, name), nil
}

// IsSnapshotDir reports whether a directory entry name is a snapshot directory.
func (l Layout) IsSnapshotDir(name string) bool {
	return name == l.DirName
}

// Within reports whether any component of p is a snapshot directory, i.e.
// whether p names a snapshot directory or something inside one.
func (l Layout) Within(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == l.DirName {
			return true
		}
	}
	return false
}
