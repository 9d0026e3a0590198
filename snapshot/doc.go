// Package snapshot creates and names the immutable copies verfs keeps of
// every file it is about to change.
//
// Snapshots of a file live in a collection directory next to it:
//
//	<dir>/.versions/<file>/<timestamp>_<seq>
//
// The timestamp is UTC with one second granularity; the sequence number
// strictly increases within a collection so that several snapshots taken in
// the same second stay ordered. Names are parsed strictly: anything that
// would not round-trip through ID.String is reported as corrupt and left
// alone.
//
// A snapshot is first written to a staging file in the snapshot directory
// and then published into its collection with a rename that refuses to
// replace an existing entry, so a concurrent sweep never sees a partial copy
// under a final name.
package snapshot
