package verfs

import (
	"context"
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/pkg/xattr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Node holds what files and directories have in common: a virtual path and
// the attribute calls that work the same on both.
type Node struct {
	fs   *FS
	path string // virtual, e.g. "/a/b.txt"
}

var _ fs.Node = (*Node)(nil)
var _ fs.NodeSetattrer = (*Node)(nil)
var _ fs.NodeAccesser = (*Node)(nil)
var _ fs.NodeFsyncer = (*Node)(nil)
var _ fs.NodeGetxattrer = (*Node)(nil)
var _ fs.NodeListxattrer = (*Node)(nil)
var _ fs.NodeSetxattrer = (*Node)(nil)
var _ fs.NodeRemovexattrer = (*Node)(nil)

func (n *Node) real() (string, error) {
	p, err := n.fs.tr.Translate(n.path)
	if err != nil {
		return "", fuse.Errno(syscall.EINVAL)
	}
	return p, nil
}

// Attr returns the attributes of the mirror entry without following
// symlinks.
func (n *Node) Attr(ctx context.Context, a *fuse.Attr) error {
	p, err := n.real()
	if err != nil {
		return err
	}
	fi, err := os.Lstat(p)
	if err != nil {
		return errno("lstat", p, err)
	}
	fillAttr(a, fi)
	return nil
}

func fillAttr(a *fuse.Attr, fi os.FileInfo) {
	a.Valid = attrValid
	a.Mode = fi.Mode()
	a.Size = uint64(fi.Size())
	a.Mtime = fi.ModTime()
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		a.Inode = st.Ino
		a.Nlink = uint32(st.Nlink)
		a.Uid = st.Uid
		a.Gid = st.Gid
		a.Rdev = uint32(st.Rdev)
		a.Blocks = uint64(st.Blocks)
		a.BlockSize = uint32(st.Blksize)
		a.Atime = timespec(st.Atim)
		a.Ctime = timespec(st.Ctim)
	}
}

// Setattr applies size, mode, owner and time changes. A size change is a
// truncate and snapshots the file first.
func (n *Node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if err := n.fs.readOnly(n.path); err != nil {
		return err
	}
	p, err := n.real()
	if err != nil {
		return err
	}

	if req.Valid.Size() {
		n.fs.preserve("truncate", n.path, p)
		if err := os.Truncate(p, int64(req.Size)); err != nil {
			return errno("truncate", p, err)
		}
	}

	if req.Valid.Mode() {
		if err := os.Chmod(p, req.Mode); err != nil {
			return errno("chmod", p, err)
		}
	}

	if req.Valid.Uid() || req.Valid.Gid() {
		uid, gid := -1, -1
		if req.Valid.Uid() {
			uid = int(req.Uid)
		}
		if req.Valid.Gid() {
			gid = int(req.Gid)
		}
		if err := os.Lchown(p, uid, gid); err != nil {
			return errno("lchown", p, err)
		}
	}

	if req.Valid.Atime() || req.Valid.Mtime() || req.Valid.AtimeNow() || req.Valid.MtimeNow() {
		ts := []unix.Timespec{omit(), omit()}
		switch {
		case req.Valid.AtimeNow():
			ts[0] = now()
		case req.Valid.Atime():
			ts[0] = unix.NsecToTimespec(req.Atime.UnixNano())
		}
		switch {
		case req.Valid.MtimeNow():
			ts[1] = now()
		case req.Valid.Mtime():
			ts[1] = unix.NsecToTimespec(req.Mtime.UnixNano())
		}
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, p, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return errno("utimes", p, err)
		}
	}

	fi, err := os.Lstat(p)
	if err != nil {
		return errno("lstat", p, err)
	}
	fillAttr(&resp.Attr, fi)
	return nil
}

// Access checks permissions against the mirror entry.
func (n *Node) Access(ctx context.Context, req *fuse.AccessRequest) error {
	p, err := n.real()
	if err != nil {
		return err
	}
	if req.Mask&unix.W_OK != 0 && n.fs.layout.Within(n.path) {
		return fuse.Errno(syscall.EROFS)
	}
	return errno("access", p, unix.Access(p, req.Mask))
}

// Fsync flushes the mirror entry to stable storage.
func (n *Node) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	p, err := n.real()
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return errno("open", p, err)
	}
	defer f.Close()
	return errno("fsync", p, f.Sync())
}

func (n *Node) Getxattr(ctx context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	p, err := n.real()
	if err != nil {
		return err
	}
	value, err := xattr.LGet(p, req.Name)
	if err != nil {
		return errno("getxattr", p, err)
	}
	resp.Xattr = value
	return nil
}

func (n *Node) Listxattr(ctx context.Context, req *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	p, err := n.real()
	if err != nil {
		return err
	}
	names, err := xattr.LList(p)
	if err != nil {
		return errno("listxattr", p, err)
	}
	resp.Append(names...)
	return nil
}

func (n *Node) Setxattr(ctx context.Context, req *fuse.SetxattrRequest) error {
	if err := n.fs.readOnly(n.path); err != nil {
		return err
	}
	p, err := n.real()
	if err != nil {
		return err
	}
	return errno("setxattr", p, xattr.LSetWithFlags(p, req.Name, req.Xattr, int(req.Flags)))
}

func (n *Node) Removexattr(ctx context.Context, req *fuse.RemovexattrRequest) error {
	if err := n.fs.readOnly(n.path); err != nil {
		return err
	}
	p, err := n.real()
	if err != nil {
		return err
	}
	return errno("removexattr", p, xattr.LRemove(p, req.Name))
}

func (n *Node) trace(op string, fields ...zap.Field) {
	if ce := n.fs.logger.Check(zap.DebugLevel, op); ce != nil {
		ce.Write(append(fields, zap.String("path", n.path))...)
	}
}

func timespec(ts syscall.Timespec) time.Time {
	return time.Unix(ts.Unix())
}

func omit() unix.Timespec { return unix.Timespec{Nsec: unix.UTIME_OMIT} }
func now() unix.Timespec  { return unix.Timespec{Nsec: unix.UTIME_NOW} }
