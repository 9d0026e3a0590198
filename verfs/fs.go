package verfs

import (
	"context"
	"os"
	"path"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/dendrascience/verfs/metrics"
	"github.com/dendrascience/verfs/snapshot"
	"github.com/dendrascience/verfs/util"
)

// attrValid is how long the kernel may cache attributes. The mirror can
// change underneath the mount (the sweeper prunes snapshot directories), so
// keep it short.
const attrValid = time.Second

// FS implements the verfs FUSE filesystem
type FS struct {
	tr        util.Translator
	store     *snapshot.Store
	layout    snapshot.Layout
	logger    *zap.Logger
	perHandle bool
	owner     bool // running as root: hand new entries to the calling user
}

var _ fs.FS = (*FS)(nil)
var _ fs.FSStatfser = (*FS)(nil)

// Option configures an FS.
type Option func(*FS)

// SnapshotPerHandle makes writes snapshot only on the first write through
// each open handle instead of on every write.
func SnapshotPerHandle(enabled bool) Option {
	return func(f *FS) { f.perHandle = enabled }
}

// NewFS creates a new verfs filesystem instance serving the mirror behind tr.
func NewFS(tr util.Translator, store *snapshot.Store, logger *zap.Logger, opts ...Option) *FS {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &FS{
		tr:     tr,
		store:  store,
		layout: store.Layout(),
		logger: logger,
		owner:  os.Geteuid() == 0,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Root returns the root directory node
func (f *FS) Root() (fs.Node, error) {
	return &Dir{Node{fs: f, path: "/"}}, nil
}

// Statfs reports the statistics of the filesystem holding the mirror.
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	var st unix.Statfs_t
	if err := unix.Statfs(f.tr.Root(), &st); err != nil {
		return errno("statfs", f.tr.Root(), err)
	}
	resp.Blocks = st.Blocks
	resp.Bfree = st.Bfree
	resp.Bavail = st.Bavail
	resp.Files = st.Files
	resp.Ffree = st.Ffree
	resp.Bsize = uint32(st.Bsize)
	resp.Namelen = uint32(st.Namelen)
	resp.Frsize = uint32(st.Frsize)
	return nil
}

// preserve snapshots a file that op is about to change. Failure is logged
// and otherwise ignored: the operation goes ahead without a snapshot.
func (f *FS) preserve(op, virtual, concrete string) {
	metrics.RecordIntercept(op)
	if _, err := f.store.Snapshot(concrete); err != nil {
		f.logger.Warn("snapshot failed, continuing without one",
			zap.String("op", op),
			zap.String("path", virtual),
			zap.Error(err))
	}
}

// readOnly refuses changes to anything in a snapshot directory.
func (f *FS) readOnly(virtual string) error {
	if f.layout.Within(virtual) {
		return fuse.Errno(syscall.EROFS)
	}
	return nil
}

// chown gives a newly created entry to the user that created it. Only
// possible, and only needed, when serving other users as root.
func (f *FS) chown(concrete string, hdr fuse.Header) {
	if !f.owner {
		return
	}
	if err := os.Lchown(concrete, int(hdr.Uid), int(hdr.Gid)); err != nil {
		f.logger.Debug("chown of new entry failed", zap.String("path", concrete), zap.Error(err))
	}
}

// errno converts a host error into the errno the kernel hands the client.
func errno(op, p string, err error) error {
	if err == nil {
		return nil
	}
	return fuse.Errno(util.Errno(util.HostError(op, p, err)))
}

func childPath(dir, name string) string {
	return path.Join(dir, name)
}
