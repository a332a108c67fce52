//go:build !linux && !darwin

package ioplatform

import "os"

// preallocate falls back to sparse preallocation on platforms without a
// known eager primitive wired up.
func preallocate(f *os.File, size int64) error {
	return preallocateByTruncate(f, size)
}

func fullSync(f *os.File) error {
	return f.Sync()
}

func dataSync(f *os.File) error {
	return f.Sync()
}
