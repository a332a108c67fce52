// Package ioplatform isolates the platform-specific file operations the WAL
// engine depends on — eager vs. sparse preallocation and full vs. data-only
// sync — behind a small capability surface, the way the engine's design
// keeps per-OS primitives out of the core write and recovery paths.
package ioplatform

import (
	"io"
	"os"
)

// Preallocate ensures f is at least size bytes long, using whatever fast
// preallocation the host offers. Sparse preallocation (seek+truncate) is an
// acceptable fallback when the host has no eager variant; the contract is
// that f is at least size bytes long after this call returns nil, and
// exactly size bytes when it was shorter before the call.
func Preallocate(f *os.File, size int64) error {
	return preallocate(f, size)
}

// FullSync blocks until f's data and metadata are durable on stable storage.
func FullSync(f *os.File) error {
	return fullSync(f)
}

// DataSync blocks until f's data is durable on stable storage. It may skip
// syncing metadata that doesn't affect read-back (e.g. mtime) when the host
// provides a cheaper primitive for that; callers that need the stronger
// guarantee should use FullSync.
func DataSync(f *os.File) error {
	return dataSync(f)
}

// preallocateByTruncate is the portable sparse-preallocation fallback shared
// by every platform implementation: seek to the target size and truncate,
// which leaves a sparse file of the right length without writing zeroes.
func preallocateByTruncate(f *os.File, size int64) error {
	cur, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	defer func() { _, _ = f.Seek(cur, io.SeekStart) }()

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if end >= size {
		return nil
	}
	return f.Truncate(size)
}
