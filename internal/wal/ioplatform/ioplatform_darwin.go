//go:build darwin

package ioplatform

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate asks HFS+/APFS for a contiguous extent via F_PREALLOCATE,
// retrying with a non-contiguous request if the contiguous one can't be
// satisfied, then truncates to the exact requested size (F_PREALLOCATE only
// reserves extents; it doesn't change the file's apparent length).
func preallocate(f *os.File, size int64) error {
	fstore := &unix.Fstore_t{
		Flags:   unix.F_ALLOCATECONTIG,
		Posmode: unix.F_PEOFPOSMODE,
		Length:  size,
	}
	if err := unix.FcntlFstore(f.Fd(), unix.F_PREALLOCATE, fstore); err != nil {
		fstore.Flags = unix.F_ALLOCATEALL
		if err := unix.FcntlFstore(f.Fd(), unix.F_PREALLOCATE, fstore); err != nil {
			return preallocateByTruncate(f, size)
		}
	}
	return f.Truncate(size)
}

func fullSync(f *os.File) error {
	// Plain fsync(2) on Darwin only flushes to the drive's own write cache;
	// F_FULLFSYNC additionally forces the drive to flush that cache to the
	// physical media.
	if _, err := unix.FcntlInt(f.Fd(), unix.F_FULLFSYNC, 0); err != nil {
		return f.Sync()
	}
	return nil
}

// dataSync has no cheaper equivalent on Darwin than FullSync, so it falls
// back to the same F_FULLFSYNC call.
func dataSync(f *os.File) error {
	return fullSync(f)
}
