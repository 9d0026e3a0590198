package snapshot

import (
	"os"
	"path/filepath"
	"slices"
)

// Entry is one parsed snapshot in a collection.
type Entry struct {
	ID   ID
	Name string
}

// CorruptEntry is a collection entry whose name does not parse.
type CorruptEntry struct {
	Name string
	Err  error
}

// ReadCollection lists a collection directory. Parsed entries come back in
// ascending ID order; entries that do not parse are reported separately and
// never mixed into the ordered list.
func ReadCollection(dir string) ([]Entry, []CorruptEntry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]Entry, 0, len(dirents))
	var corrupt []CorruptEntry
	for _, d := range dirents {
		id, err := ParseID(d.Name())
		if err != nil {
			corrupt = append(corrupt, CorruptEntry{Name: d.Name(), Err: err})
			continue
		}
		entries = append(entries, Entry{ID: id, Name: d.Name()})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return Compare(a.ID, b.ID)
	})
	return entries, corrupt, nil
}

// IDs projects entries onto their IDs.
func IDs(entries []Entry) []ID {
	ids := make([]ID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// Path returns the on-disk location of an entry.
func (e Entry) Path(collection string) string {
	return filepath.Join(collection, e.Name)
}

func nextSequence(entries []Entry) uint64 {
	var highest uint64
	for _, e := range entries {
		highest = max(highest, e.ID.Sequence)
	}
	return highest + 1
}
