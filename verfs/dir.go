package verfs

import (
	"context"
	"io/fs"
	"os"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Dir is a directory in the mirror.
type Dir struct {
	Node
}

var _ fusefs.Node = (*Dir)(nil)
var _ fusefs.NodeStringLookuper = (*Dir)(nil)
var _ fusefs.HandleReadDirAller = (*Dir)(nil)
var _ fusefs.NodeCreater = (*Dir)(nil)
var _ fusefs.NodeMkdirer = (*Dir)(nil)
var _ fusefs.NodeMknoder = (*Dir)(nil)
var _ fusefs.NodeRemover = (*Dir)(nil)
var _ fusefs.NodeRenamer = (*Dir)(nil)
var _ fusefs.NodeSymlinker = (*Dir)(nil)
var _ fusefs.NodeLinker = (*Dir)(nil)

// child resolves name inside d, returning its virtual and concrete paths.
func (d *Dir) child(name string) (string, string, error) {
	concrete, err := d.fs.tr.Join(d.path, name)
	if err != nil {
		return "", "", fuse.Errno(syscall.EINVAL)
	}
	return childPath(d.path, name), concrete, nil
}

// node wraps a mirror entry in the matching node type.
func (d *Dir) node(virtual string, mode os.FileMode) fusefs.Node {
	if mode.IsDir() {
		return &Dir{Node{fs: d.fs, path: virtual}}
	}
	return &File{Node{fs: d.fs, path: virtual}}
}

// Lookup resolves a name to a node
func (d *Dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	virtual, concrete, err := d.child(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Lstat(concrete)
	if err != nil {
		return nil, errno("lstat", concrete, err)
	}
	return d.node(virtual, fi.Mode()), nil
}

// ReadDirAll lists directory contents with inode numbers and types.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	p, err := d.real()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, errno("readdir", p, err)
	}

	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		de := fuse.Dirent{
			Name: e.Name(),
			Type: direntType(e.Type()),
		}
		// The entry may vanish between readdir and lstat; list it anyway and
		// let the kernel find out on lookup.
		if info, err := e.Info(); err == nil {
			if st, ok := info.Sys().(*syscall.Stat_t); ok {
				de.Inode = st.Ino
			}
		}
		dirents = append(dirents, de)
	}
	return dirents, nil
}

func direntType(t fs.FileMode) fuse.DirentType {
	switch {
	case t.IsDir():
		return fuse.DT_Dir
	case t&fs.ModeSymlink != 0:
		return fuse.DT_Link
	case t&fs.ModeNamedPipe != 0:
		return fuse.DT_FIFO
	case t&fs.ModeSocket != 0:
		return fuse.DT_Socket
	case t&fs.ModeCharDevice != 0:
		return fuse.DT_Char
	case t&fs.ModeDevice != 0:
		return fuse.DT_Block
	case t.IsRegular():
		return fuse.DT_File
	}
	return fuse.DT_Unknown
}

// Create creates and opens a file. Opening an existing non-empty file with
// O_TRUNC destroys its content, so that case is snapshotted like a truncate.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	virtual, concrete, err := d.child(req.Name)
	if err != nil {
		return nil, nil, err
	}
	if err := d.fs.readOnly(virtual); err != nil {
		return nil, nil, err
	}

	fi, statErr := os.Lstat(concrete)
	existed := statErr == nil

	preserved := false
	if existed && fi.Mode().IsRegular() && fi.Size() > 0 &&
		req.Flags&fuse.OpenTruncate != 0 && req.Flags&fuse.OpenExclusive == 0 {
		d.fs.preserve("truncate", virtual, concrete)
		preserved = true
	}

	flags := int(req.Flags) | os.O_CREATE
	f, err := os.OpenFile(concrete, flags, req.Mode.Perm()&^req.Umask)
	if err != nil {
		return nil, nil, errno("create", concrete, err)
	}
	if !existed {
		d.fs.chown(concrete, req.Header)
	}

	fi, err = f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errno("fstat", concrete, err)
	}
	fillAttr(&resp.Attr, fi)
	d.trace("create", zap.String("name", req.Name))

	node := &File{Node{fs: d.fs, path: virtual}}
	return node, newHandle(node, f, preserved), nil
}

// Mkdir creates a directory
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	virtual, concrete, err := d.child(req.Name)
	if err != nil {
		return nil, err
	}
	if err := d.fs.readOnly(virtual); err != nil {
		return nil, err
	}
	if err := unix.Mkdir(concrete, uint32(req.Mode.Perm()&^req.Umask)); err != nil {
		return nil, errno("mkdir", concrete, err)
	}
	d.fs.chown(concrete, req.Header)
	return &Dir{Node{fs: d.fs, path: virtual}}, nil
}

// Mknod creates device nodes, fifos and sockets.
func (d *Dir) Mknod(ctx context.Context, req *fuse.MknodRequest) (fusefs.Node, error) {
	virtual, concrete, err := d.child(req.Name)
	if err != nil {
		return nil, err
	}
	if err := d.fs.readOnly(virtual); err != nil {
		return nil, err
	}
	if err := unix.Mknod(concrete, unixMode(req.Mode&^req.Umask), int(req.Rdev)); err != nil {
		return nil, errno("mknod", concrete, err)
	}
	d.fs.chown(concrete, req.Header)
	return &File{Node{fs: d.fs, path: virtual}}, nil
}

func unixMode(m os.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		mode |= unix.S_ISUID
	}
	if m&os.ModeSetgid != 0 {
		mode |= unix.S_ISGID
	}
	if m&os.ModeSticky != 0 {
		mode |= unix.S_ISVTX
	}
	switch {
	case m&os.ModeNamedPipe != 0:
		return mode | unix.S_IFIFO
	case m&os.ModeCharDevice != 0:
		return mode | unix.S_IFCHR
	case m&os.ModeDevice != 0:
		return mode | unix.S_IFBLK
	case m&os.ModeSocket != 0:
		return mode | unix.S_IFSOCK
	}
	return mode | unix.S_IFREG
}

// Remove unlinks a file or removes an empty directory. A file is
// snapshotted before it goes, so deleting it can be undone.
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	virtual, concrete, err := d.child(req.Name)
	if err != nil {
		return err
	}
	if err := d.fs.readOnly(virtual); err != nil {
		return err
	}

	if req.Dir {
		return errno("rmdir", concrete, unix.Rmdir(concrete))
	}
	d.fs.preserve("unlink", virtual, concrete)
	return errno("unlink", concrete, unix.Unlink(concrete))
}

// Rename moves an entry, possibly into another directory.
func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	nd, ok := newDir.(*Dir)
	if !ok {
		return fuse.Errno(syscall.EXDEV)
	}
	oldVirtual, oldPath, err := d.child(req.OldName)
	if err != nil {
		return err
	}
	newVirtual, newPath, err := nd.child(req.NewName)
	if err != nil {
		return err
	}
	if err := d.fs.readOnly(oldVirtual); err != nil {
		return err
	}
	if err := d.fs.readOnly(newVirtual); err != nil {
		return err
	}
	return errno("rename", oldPath, os.Rename(oldPath, newPath))
}

// Symlink creates a symbolic link
func (d *Dir) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (fusefs.Node, error) {
	virtual, concrete, err := d.child(req.NewName)
	if err != nil {
		return nil, err
	}
	if err := d.fs.readOnly(virtual); err != nil {
		return nil, err
	}
	if err := os.Symlink(req.Target, concrete); err != nil {
		return nil, errno("symlink", concrete, err)
	}
	d.fs.chown(concrete, req.Header)
	return &File{Node{fs: d.fs, path: virtual}}, nil
}

// Link creates a hard link to old inside d.
func (d *Dir) Link(ctx context.Context, req *fuse.LinkRequest, old fusefs.Node) (fusefs.Node, error) {
	target, ok := old.(*File)
	if !ok {
		return nil, fuse.Errno(syscall.EPERM)
	}
	virtual, concrete, err := d.child(req.NewName)
	if err != nil {
		return nil, err
	}
	if err := d.fs.readOnly(virtual); err != nil {
		return nil, err
	}
	oldPath, err := target.real()
	if err != nil {
		return nil, err
	}
	if err := os.Link(oldPath, concrete); err != nil {
		return nil, errno("link", concrete, err)
	}
	return &File{Node{fs: d.fs, path: virtual}}, nil
}
