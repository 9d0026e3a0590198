package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/djherbis/times"
	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"

	"github.com/dendrascience/verfs/util"
)

// copyEntry duplicates src at dst, which must not exist yet. Regular files are
// cloned when the host filesystem supports it and streamed otherwise;
// symlinks are recreated with the same target. Mode, ownership, extended
// attributes and timestamps follow the content.
func copyEntry(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return util.HostError("lstat", src, err)
	}

	switch {
	case fi.Mode().IsRegular():
		if err := copyRegular(src, dst, fi); err != nil {
			return err
		}
	case fi.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return util.HostError("readlink", src, err)
		}
		if err := os.Symlink(target, dst); err != nil {
			return util.HostError("symlink", dst, err)
		}
	default:
		return fmt.Errorf("%w: %s is %v", util.ErrUnsupportedType, src, fi.Mode().Type())
	}

	return copyMetadata(src, dst, fi)
}

func copyRegular(src, dst string, fi os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return util.HostError("open", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return util.HostError("create", dst, err)
	}

	// FICLONE gives a point-in-time copy that a concurrent writer cannot tear.
	if err := unix.IoctlFileClone(int(out.Fd()), int(in.Fd())); err != nil {
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return util.HostError("copy", dst, err)
		}
	}

	// Permissions are applied while the handle is still open so the copy is
	// never briefly world-readable.
	if err := out.Chmod(fi.Mode().Perm() | setBits(fi.Mode())); err != nil {
		out.Close()
		return util.HostError("chmod", dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return util.HostError("fsync", dst, err)
	}
	return util.HostError("close", dst, out.Close())
}

func setBits(m os.FileMode) os.FileMode {
	return m & (os.ModeSetuid | os.ModeSetgid | os.ModeSticky)
}

func copyMetadata(src, dst string, fi os.FileInfo) error {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		err := os.Lchown(dst, int(st.Uid), int(st.Gid))
		// Unprivileged mounts cannot give files away; the copy keeps our uid.
		if err != nil && !errors.Is(err, syscall.EPERM) {
			return util.HostError("lchown", dst, err)
		}
		// chown clears setuid/setgid, so restore them afterwards.
		if fi.Mode().IsRegular() && setBits(fi.Mode()) != 0 {
			if err := os.Chmod(dst, fi.Mode().Perm()|setBits(fi.Mode())); err != nil {
				return util.HostError("chmod", dst, err)
			}
		}
	}

	copyXattrs(src, dst)

	atime := times.Get(fi).AccessTime()
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(fi.ModTime().UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, dst, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return util.HostError("utimes", dst, err)
	}
	return nil
}

// copyXattrs is best effort: many filesystems (and all symlinks on Linux)
// refuse user attributes, and a snapshot without them is still useful.
func copyXattrs(src, dst string) {
	names, err := xattr.LList(src)
	if err != nil {
		return
	}
	for _, name := range names {
		value, err := xattr.LGet(src, name)
		if err != nil {
			continue
		}
		_ = xattr.LSet(dst, name, value)
	}
}
