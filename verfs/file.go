package verfs

import (
	"context"
	"os"
	"sync"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// File is any non-directory entry in the mirror: regular files, symlinks,
// fifos and device nodes.
type File struct {
	Node
}

var _ fs.Node = (*File)(nil)
var _ fs.NodeOpener = (*File)(nil)
var _ fs.NodeReadlinker = (*File)(nil)

// Open opens the mirror file. Write access to snapshots is refused, and
// O_TRUNC on a non-empty file is snapshotted like a truncate.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	p, err := f.real()
	if err != nil {
		return nil, err
	}
	if !req.Flags.IsReadOnly() || req.Flags&fuse.OpenTruncate != 0 {
		if err := f.fs.readOnly(f.path); err != nil {
			return nil, err
		}
	}

	preserved := false
	if req.Flags&fuse.OpenTruncate != 0 {
		if fi, err := os.Lstat(p); err == nil && fi.Mode().IsRegular() && fi.Size() > 0 {
			f.fs.preserve("truncate", f.path, p)
			preserved = true
		}
	}

	file, err := os.OpenFile(p, int(req.Flags), 0)
	if err != nil {
		return nil, errno("open", p, err)
	}
	f.trace("open", zap.Stringer("flags", req.Flags))
	return newHandle(f, file, preserved), nil
}

// Readlink returns the target of a symlink
func (f *File) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	p, err := f.real()
	if err != nil {
		return "", err
	}
	target, err := os.Readlink(p)
	if err != nil {
		return "", errno("readlink", p, err)
	}
	return target, nil
}

// Handle is an open mirror file.
type Handle struct {
	node *File
	file *os.File

	mu        sync.Mutex
	preserved bool // a snapshot was taken through this handle
}

var _ fs.Handle = (*Handle)(nil)
var _ fs.HandleReader = (*Handle)(nil)
var _ fs.HandleWriter = (*Handle)(nil)
var _ fs.HandleFlusher = (*Handle)(nil)
var _ fs.HandleReleaser = (*Handle)(nil)

func newHandle(node *File, file *os.File, preserved bool) *Handle {
	return &Handle{node: node, file: file, preserved: preserved}
}

// Read reads from the given offset
func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := unix.Pread(int(h.file.Fd()), buf, req.Offset)
	if err != nil {
		return errno("pread", h.file.Name(), err)
	}
	resp.Data = buf[:n]
	return nil
}

// Write snapshots the file and then writes at the given offset. With
// SnapshotPerHandle only the first write through a handle snapshots.
func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if h.shouldPreserve() {
		h.node.fs.preserve("write", h.node.path, h.file.Name())
	}
	n, err := unix.Pwrite(int(h.file.Fd()), req.Data, req.Offset)
	if err != nil {
		return errno("pwrite", h.file.Name(), err)
	}
	resp.Size = n
	return nil
}

func (h *Handle) shouldPreserve() bool {
	if !h.node.fs.perHandle {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.preserved {
		return false
	}
	h.preserved = true
	return true
}

// Flush is called on every close of a file descriptor. Data goes straight
// to the mirror on write, so there is nothing to flush.
func (h *Handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return nil
}

// Release closes the mirror file.
func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return errno("close", h.file.Name(), h.file.Close())
}
