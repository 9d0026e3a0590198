// Package main provides the verfs command-line interface.
//
// verfs is a passthrough FUSE filesystem that snapshots a file before every
// write, truncate or unlink made through the mount. Snapshots live in a hidden
// directory beside the file and are thinned out by a periodic retention
// sweep.
//
// The main binary supports multiple subcommands:
//   - mount: Mount a backend directory at a specified mountpoint
//   - history: List the snapshots of a file
//   - restore: Put a snapshot back in place of a file
//   - sweep: Apply the retention policy once
//   - verify: Check snapshot directories for leftovers
//   - stats: Count files and snapshots
//   - seed: Generate a test snapshot history
package main
