// Package util provides the small shared pieces of the verfs filesystem.
//
// Key Components:
//
// Path Translation:
//   - Translator maps virtual paths ("/a/b.txt") to their location under the
//     mirror root and back again
//   - Dotdot components are rejected rather than resolved
//
// Error Taxonomy:
//   - ErrInvalidPath for malformed virtual or snapshot paths
//   - HostIOError carrying the untouched host errno
//   - ErrSnapshotFailed, ErrUnsupportedType and ErrCorruptSnapshotName for
//     the versioning side, which never surface to filesystem clients
//
// Content Hashing:
//   - SHA-256 helpers used when listing snapshots
package util
