//go:build linux

package ioplatform

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate uses fallocate(2) to eagerly reserve disk space, falling back
// to sparse preallocation when the filesystem doesn't support it (tmpfs,
// some network filesystems, older ext variants).
func preallocate(f *os.File, size int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)
	if err == nil {
		return nil
	}
	if err == unix.ENOTSUP || err == unix.EINTR || err == unix.EOPNOTSUPP {
		return preallocateByTruncate(f, size)
	}
	return err
}

func fullSync(f *os.File) error {
	return f.Sync()
}

// dataSync uses fdatasync(2), which skips flushing metadata (mtime, size if
// unchanged) that read-back doesn't depend on.
func dataSync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
