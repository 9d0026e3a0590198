// Package verfs implements a versioning passthrough filesystem on top of
// bazil.org/fuse.
//
// Every path seen through the mount maps 1:1 onto a mirror directory. Reads
// and metadata calls are forwarded untouched and host errors come back to
// the client with the same errno. The three calls that destroy content
// snapshot the file first:
//   - write (every write, or the first write per open handle)
//   - truncate, including an O_TRUNC open of a non-empty file
//   - unlink
//
// A failed snapshot is logged and the call goes ahead anyway. Snapshot
// directories are visible through the mount but read-only: anything that
// would change them fails with EROFS.
//
// The main entry point is NewFS(), whose result can be served with
// fs.Serve.
package verfs
