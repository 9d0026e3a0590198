// Package util provides utility functions for the verfs filesystem.
package util

import (
	"errors"
	"fmt"
	"syscall"
)

// Sentinel errors for package util.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// Path errors
	ErrInvalidPath = errors.New("invalid virtual path")

	// Snapshot errors
	ErrSnapshotFailed      = errors.New("snapshot failed")
	ErrUnsupportedType     = errors.New("unsupported file type for snapshot")
	ErrCorruptSnapshotName = errors.New("corrupt snapshot name")
)

// HostIOError is a failed call into the host filesystem. Errno is the
// untouched host error code, which the FUSE layer hands back to the client.
type HostIOError struct {
	Op    string
	Path  string
	Errno syscall.Errno
}

func (e *HostIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Errno)
}

func (e *HostIOError) Unwrap() error {
	return e.Errno
}

// HostError wraps err as a *HostIOError when it carries an errno.
// Errors without one (or nil) are returned as they are.
func HostError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var hostErr *HostIOError
	if errors.As(err, &hostErr) {
		return hostErr
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &HostIOError{Op: op, Path: path, Errno: errno}
	}
	return err
}

// Errno extracts the host error code from err, falling back to EIO.
func Errno(err error) syscall.Errno {
	var hostErr *HostIOError
	if errors.As(err, &hostErr) {
		return hostErr.Errno
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if errors.Is(err, ErrInvalidPath) {
		return syscall.EINVAL
	}
	return syscall.EIO
}
