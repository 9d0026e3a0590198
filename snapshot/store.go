package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/dendrascience/verfs/metrics"
	"github.com/dendrascience/verfs/util"
)

// maxPublishAttempts bounds the sequence bumps a publish makes when another
// writer claims the same name first.
const maxPublishAttempts = 16

// Store creates snapshots of mirror files.
type Store struct {
	layout Layout
	clock  func() time.Time
	logger *zap.Logger
	locks  *keyedMutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now as the source of snapshot timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore returns a Store that lays snapshots out according to layout.
func NewStore(layout Layout, opts ...Option) *Store {
	s := &Store{
		layout: layout,
		clock:  time.Now,
		logger: zap.NewNop(),
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layout returns the layout the store writes.
func (s *Store) Layout() Layout {
	return s.layout
}

// Snapshot preserves the current content and attributes of filePath, a
// concrete path in the mirror, and returns the path of the new snapshot.
// Every failure wraps util.ErrSnapshotFailed.
func (s *Store) Snapshot(filePath string) (string, error) {
	p, err := s.snapshot(filePath)
	metrics.RecordSnapshot(err)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", util.ErrSnapshotFailed, filePath, err)
	}
	s.logger.Debug("snapshot created", zap.String("path", p))
	return p, nil
}

func (s *Store) snapshot(filePath string) (string, error) {
	snapDir, collection, err := s.layout.CollectionFor(filePath)
	if err != nil {
		return "", err
	}
	if err := mkdirIfAbsent(snapDir); err != nil {
		return "", err
	}
	if err := mkdirIfAbsent(collection); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(collection)
	defer unlock()

	staging := filepath.Join(snapDir, StagingPrefix+uuid.NewString())
	if err := copyEntry(filePath, staging); err != nil {
		os.Remove(staging)
		return "", err
	}

	final, err := s.publish(staging, collection)
	if err != nil {
		os.Remove(staging)
		return "", err
	}
	return final, nil
}

// publish moves a finished staging copy into collection under the next free
// name. The name is computed after the copy so that it reflects anything
// published while the copy ran.
func (s *Store) publish(staging, collection string) (string, error) {
	entries, _, err := ReadCollection(collection)
	if err != nil {
		return "", util.HostError("readdir", collection, err)
	}
	id := NewID(s.clock(), nextSequence(entries))
	// Timestamp order must agree with sequence order, even if the clock
	// has stepped back since the last snapshot.
	if n := len(entries); n > 0 && entries[n-1].ID.Timestamp.After(id.Timestamp) {
		s.logger.Warn("clock is behind the newest snapshot, reusing its timestamp",
			zap.String("collection", collection),
			zap.Time("clock", id.Timestamp),
			zap.Time("newest", entries[n-1].ID.Timestamp))
		id.Timestamp = entries[n-1].ID.Timestamp
	}

	for range maxPublishAttempts {
		final := filepath.Join(collection, id.String())
		err := renameNoReplace(staging, final)
		if err == nil {
			return final, nil
		}
		if !errors.Is(err, syscall.EEXIST) {
			return "", err
		}
		id.Sequence++
	}
	return "", fmt.Errorf("publish %s: no free name after %d attempts", collection, maxPublishAttempts)
}

// renameNoReplace renames without clobbering an existing target. Filesystems
// lacking RENAME_NOREPLACE get link followed by unlink, which has the same
// visible outcome.
func renameNoReplace(from, to string) error {
	err := unix.Renameat2(unix.AT_FDCWD, from, unix.AT_FDCWD, to, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.EINVAL), errors.Is(err, syscall.ENOSYS):
	default:
		return util.HostError("rename", to, err)
	}

	if err := os.Link(from, to); err != nil {
		return util.HostError("link", to, err)
	}
	return util.HostError("unlink", from, os.Remove(from))
}

func mkdirIfAbsent(dir string) error {
	err := os.Mkdir(dir, 0o755)
	if err == nil || errors.Is(err, os.ErrExist) {
		return nil
	}
	return util.HostError("mkdir", dir, err)
}

// Restore replaces filePath with the snapshot called name from its
// collection. The current content is snapshotted first, so a restore can
// itself be undone.
func (s *Store) Restore(filePath, name string) error {
	if _, err := ParseID(name); err != nil {
		return err
	}
	snapDir, collection, err := s.layout.CollectionFor(filePath)
	if err != nil {
		return err
	}
	src := filepath.Join(collection, name)
	if _, err := os.Lstat(src); err != nil {
		return util.HostError("lstat", src, err)
	}

	if _, err := os.Lstat(filePath); err == nil {
		if _, err := s.Snapshot(filePath); err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return util.HostError("lstat", filePath, err)
	}

	staging := filepath.Join(snapDir, StagingPrefix+uuid.NewString())
	if err := copyEntry(src, staging); err != nil {
		os.Remove(staging)
		return err
	}
	if err := os.Rename(staging, filePath); err != nil {
		os.Remove(staging)
		return util.HostError("rename", filePath, err)
	}
	s.logger.Info("snapshot restored", zap.String("path", filePath), zap.String("snapshot", name))
	return nil
}

// History lists the parsed snapshots of filePath, oldest first, with the
// collection directory they live in.
func (s *Store) History(filePath string) (string, []Entry, []CorruptEntry, error) {
	_, collection, err := s.layout.CollectionFor(filePath)
	if err != nil {
		return "", nil, nil, err
	}
	entries, corrupt, err := ReadCollection(collection)
	if err != nil {
		return collection, nil, nil, util.HostError("readdir", collection, err)
	}
	return collection, entries, corrupt, nil
}
