// Package retention decides which snapshots of a collection are kept.
//
// Everything recent is kept: snapshots at most MaxCount sequence numbers
// behind the newest and no older than MaxAge. Beyond that window a snapshot
// survives only when at least MinGap sequence numbers separate it from the
// previously kept one, which thins history out the further back it goes.
// The newest snapshot, the one with the highest sequence number, is always
// kept.
package retention

import (
	"cmp"
	"slices"
	"time"

	"github.com/dendrascience/verfs/snapshot"
)

// Policy holds the retention thresholds.
type Policy struct {
	MaxAge   time.Duration // max_age_for_full_retention
	MaxCount uint64        // max_count_for_full_retention
	MinGap   uint64        // minimum_gap_between_kept_snapshots
}

// Verdict is the outcome for a single snapshot.
type Verdict int

const (
	Keep Verdict = iota
	KeepRecent
	KeepSpaced
	Delete
)

func (v Verdict) String() string {
	switch v {
	case Keep:
		return "keep (newest)"
	case KeepRecent:
		return "keep (recent)"
	case KeepSpaced:
		return "keep (spaced)"
	case Delete:
		return "delete"
	}
	return "unknown"
}

// Kept reports whether the snapshot survives.
func (v Verdict) Kept() bool {
	return v != Delete
}

// Verdicts returns one verdict per input ID, index for index. The input may
// be in any order.
func Verdicts(ids []snapshot.ID, now time.Time, p Policy) []Verdict {
	out := make([]Verdict, len(ids))
	if len(ids) == 0 {
		return out
	}

	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	// Sequence numbers record creation order; timestamps can disagree with
	// it after a clock step.
	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(ids[a].Sequence, ids[b].Sequence); c != 0 {
			return c
		}
		return snapshot.Compare(ids[a], ids[b])
	})

	newest := ids[order[len(order)-1]]
	out[order[len(order)-1]] = Keep
	lastKept := newest.Sequence

	for k := len(order) - 2; k >= 0; k-- {
		i := order[k]
		s := ids[i]
		ageGap := gap(newest.Sequence, s.Sequence)
		timeGap := now.Sub(s.Timestamp)

		if ageGap <= p.MaxCount && timeGap <= p.MaxAge {
			out[i] = KeepRecent
			lastKept = s.Sequence
			continue
		}
		if gap(lastKept, s.Sequence) >= p.MinGap {
			out[i] = KeepSpaced
			lastKept = s.Sequence
			continue
		}
		out[i] = Delete
	}
	return out
}

// Decide returns the indices of ids to delete, ascending.
func Decide(ids []snapshot.ID, now time.Time, p Policy) []int {
	var del []int
	for i, v := range Verdicts(ids, now, p) {
		if v == Delete {
			del = append(del, i)
		}
	}
	return del
}

// gap is a-b, clamped at zero. Sequence numbers only grow with time, but a
// hand-edited collection can still hold an older timestamp with a larger
// sequence number.
func gap(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
