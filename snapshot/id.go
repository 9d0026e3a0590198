package snapshot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dendrascience/verfs/util"
)

// TimestampLayout is the on-disk timestamp format of snapshot names. It sorts
// lexically, is UTC, and contains no path separators.
const TimestampLayout = "2006-01-02T15:04:05Z"

// nameSeparator joins timestamp and sequence number in a snapshot name.
const nameSeparator = "_"

// ID identifies one snapshot inside a collection.
type ID struct {
	Timestamp time.Time
	Sequence  uint64
}

// NewID truncates ts to the granularity of TimestampLayout so that an ID
// survives a trip through its name unchanged.
func NewID(ts time.Time, seq uint64) ID {
	return ID{Timestamp: ts.UTC().Truncate(time.Second), Sequence: seq}
}

// String returns the entry name, e.g. "2024-01-02T03:04:05Z_7".
func (id ID) String() string {
	return id.Timestamp.UTC().Format(TimestampLayout) + nameSeparator + strconv.FormatUint(id.Sequence, 10)
}

// Compare orders IDs by timestamp, then sequence number.
func Compare(a, b ID) int {
	switch {
	case a.Timestamp.Before(b.Timestamp):
		return -1
	case a.Timestamp.After(b.Timestamp):
		return 1
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	}
	return 0
}

// ParseID parses a snapshot entry name. Only canonical names are accepted:
// anything String would not have produced wraps util.ErrCorruptSnapshotName.
func ParseID(name string) (ID, error) {
	i := strings.LastIndex(name, nameSeparator)
	if i <= 0 || i == len(name)-1 {
		return ID{}, fmt.Errorf("%w: %q", util.ErrCorruptSnapshotName, name)
	}
	ts, err := time.Parse(TimestampLayout, name[:i])
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", util.ErrCorruptSnapshotName, name, err)
	}
	seq, err := strconv.ParseUint(name[i+1:], 10, 64)
	if err != nil || seq == 0 {
		return ID{}, fmt.Errorf("%w: %q: bad sequence number", util.ErrCorruptSnapshotName, name)
	}
	id := NewID(ts, seq)
	if id.String() != name {
		return ID{}, fmt.Errorf("%w: %q: not canonical", util.ErrCorruptSnapshotName, name)
	}
	return id, nil
}
