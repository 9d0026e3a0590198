package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/dendrascience/verfs/util"
)

var testNow = time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewStore(Layout{DirName: DefaultDirName}, WithClock(func() time.Time { return testNow }))
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func collectionNames(t *testing.T, dir string) []string {
	t.Helper()
	dirents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range dirents {
		names = append(names, d.Name())
	}
	return names
}

// A first snapshot creates both directories and one entry with sequence 1.
func TestSnapshotCreatesCollection(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a", "b.txt")
	writeFile(t, file, "version one")

	got, err := newTestStore().Snapshot(file)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	collection := filepath.Join(root, "a", ".versions", "b.txt")
	want := filepath.Join(collection, "2024-03-10T14:30:00Z_1")
	if got != want {
		t.Errorf("Snapshot returned %q, want %q", got, want)
	}
	if names := collectionNames(t, collection); len(names) != 1 || names[0] != "2024-03-10T14:30:00Z_1" {
		t.Errorf("collection contains %v", names)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "version one" {
		t.Errorf("snapshot content = %q", data)
	}
}

func TestSnapshotSequenceIncreases(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "data.json")
	store := newTestStore()

	for i := range 5 {
		writeFile(t, file, strings.Repeat("x", i))
		if _, err := store.Snapshot(file); err != nil {
			t.Fatalf("Snapshot %d: %v", i, err)
		}
	}

	entries, corrupt, err := ReadCollection(filepath.Join(root, ".versions", "data.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(corrupt) != 0 {
		t.Errorf("unexpected corrupt entries: %v", corrupt)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d snapshots, want 5", len(entries))
	}
	for i, e := range entries {
		if e.ID.Sequence != uint64(i+1) {
			t.Errorf("entry %d has sequence %d", i, e.ID.Sequence)
		}
		data, err := os.ReadFile(e.Path(filepath.Join(root, ".versions", "data.json")))
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != i {
			t.Errorf("snapshot %d holds %d bytes, want %d", i, len(data), i)
		}
	}
}

// A clock that steps backwards must not produce a snapshot that sorts
// before the one taken earlier.
func TestSnapshotClockSteppedBack(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	writeFile(t, file, "x")

	clock := testNow
	store := NewStore(Layout{DirName: DefaultDirName}, WithClock(func() time.Time { return clock }))
	first, err := store.Snapshot(file)
	if err != nil {
		t.Fatal(err)
	}
	clock = testNow.Add(-20 * time.Minute)
	second, err := store.Snapshot(file)
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Base(first) != "2024-03-10T14:30:00Z_1" {
		t.Errorf("first snapshot = %q", filepath.Base(first))
	}
	if filepath.Base(second) != "2024-03-10T14:30:00Z_2" {
		t.Errorf("second snapshot = %q, want the newest timestamp with sequence 2", filepath.Base(second))
	}
	entries, _, err := ReadCollection(filepath.Join(root, ".versions", "f"))
	if err != nil {
		t.Fatal(err)
	}
	if last := entries[len(entries)-1]; last.ID.Sequence != 2 {
		t.Errorf("collection sorts %s last, want sequence 2", last.Name)
	}
}

func TestSnapshotIgnoresCorruptNamesForNumbering(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	writeFile(t, file, "x")
	collection := filepath.Join(root, ".versions", "f")
	writeFile(t, filepath.Join(collection, "garbage_99"), "")
	writeFile(t, filepath.Join(collection, "2024-01-01T00:00:00Z_4"), "")

	got, err := newTestStore().Snapshot(file)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "2024-03-10T14:30:00Z_5" {
		t.Errorf("Snapshot returned %q, want sequence 5", got)
	}
}

func TestSnapshotErrors(t *testing.T) {
	root := t.TempDir()
	fifo := filepath.Join(root, "pipe")
	if err := syscall.Mkfifo(fifo, 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(root, "dir")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		path  string
		cause error
	}{
		{"no separator", "relative.txt", util.ErrInvalidPath},
		{"missing file", filepath.Join(root, "missing"), os.ErrNotExist},
		{"fifo", fifo, util.ErrUnsupportedType},
		{"directory", dir, util.ErrUnsupportedType},
	}

	store := newTestStore()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Snapshot(tt.path)
			if !errors.Is(err, util.ErrSnapshotFailed) {
				t.Fatalf("error = %v, want ErrSnapshotFailed", err)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("error = %v, want cause %v", err, tt.cause)
			}
		})
	}

	// Failed attempts leave no staging files behind.
	dirents, err := os.ReadDir(filepath.Join(root, ".versions"))
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), StagingPrefix) {
			t.Errorf("staging file %s left behind", d.Name())
		}
	}
}

func TestSnapshotSymlink(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "link")
	if err := os.Symlink("target/does/not/exist", link); err != nil {
		t.Fatal(err)
	}

	got, err := newTestStore().Snapshot(link)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	target, err := os.Readlink(got)
	if err != nil {
		t.Fatalf("snapshot is not a symlink: %v", err)
	}
	if target != "target/does/not/exist" {
		t.Errorf("snapshot target = %q", target)
	}
}

func TestSnapshotPreservesAttributes(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "script.sh")
	writeFile(t, file, "#!/bin/sh\n")
	if err := os.Chmod(file, 0o751); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := os.Chtimes(file, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	got, err := newTestStore().Snapshot(file)
	if err != nil {
		t.Fatal(err)
	}
	fi, err := os.Lstat(got)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o751 {
		t.Errorf("mode = %v, want 0751", fi.Mode().Perm())
	}
	if !fi.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", fi.ModTime(), mtime)
	}
}

func TestSnapshotConcurrent(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "busy")
	writeFile(t, file, "contended")
	store := newTestStore()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Snapshot(file); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Snapshot: %v", err)
	}

	entries, _, err := ReadCollection(filepath.Join(root, ".versions", "busy"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != n {
		t.Fatalf("got %d snapshots, want %d", len(entries), n)
	}
	for i, e := range entries {
		if e.ID.Sequence != uint64(i+1) {
			t.Errorf("entry %d has sequence %d", i, e.ID.Sequence)
		}
	}
	if size := store.locks.size(); size != 0 {
		t.Errorf("lock table holds %d keys after all snapshots finished", size)
	}
}

func TestRestore(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "notes.txt")
	store := newTestStore()

	writeFile(t, file, "first draft")
	first, err := store.Snapshot(file)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, file, "second draft")

	if err := store.Restore(file, filepath.Base(first)); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first draft" {
		t.Errorf("restored content = %q", data)
	}

	// The overwritten content was preserved as snapshot 2.
	_, entries, _, err := store.History(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("history has %d entries, want 2", len(entries))
	}
	data, err = os.ReadFile(filepath.Join(root, ".versions", "notes.txt", entries[1].Name))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second draft" {
		t.Errorf("pre-restore snapshot holds %q", data)
	}
}

func TestRestoreDeletedFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "gone.txt")
	store := newTestStore()

	writeFile(t, file, "keep me")
	snap, err := store.Snapshot(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}

	if err := store.Restore(file, filepath.Base(snap)); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "keep me" {
		t.Errorf("restored content = %q", data)
	}
}

func TestRestoreRejectsBadNames(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	writeFile(t, file, "x")
	store := newTestStore()

	if err := store.Restore(file, "../../etc/passwd"); !errors.Is(err, util.ErrCorruptSnapshotName) {
		t.Errorf("Restore with traversal name: error = %v", err)
	}
	if err := store.Restore(file, "2024-01-01T00:00:00Z_1"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Restore of missing snapshot: error = %v", err)
	}
}
