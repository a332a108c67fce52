package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hollowledger/waldb/internal/wal/ioplatform"
)

// SegmentState is the lifecycle state of a segment file.
type SegmentState int

const (
	SegmentEmpty SegmentState = iota
	SegmentActive
	SegmentFull
	SegmentArchived
)

func (s SegmentState) String() string {
	switch s {
	case SegmentEmpty:
		return "Empty"
	case SegmentActive:
		return "Active"
	case SegmentFull:
		return "Full"
	case SegmentArchived:
		return "Archived"
	default:
		return "Unknown"
	}
}

// activeSegment is the one segment a SegmentManager may have open for
// writing at a time.
type activeSegment struct {
	num    uint32
	file   *os.File
	offset uint32
	state  SegmentState
}

// SegmentManager owns the on-disk segment files backing a WAL directory: it
// allocates and preallocates them, enforces that exactly one segment is
// active at a time, and hands back read-only handles for recovery.
type SegmentManager struct {
	dir         string
	segmentSize uint32
	current     *activeSegment
}

// NewSegmentManager ensures dir exists and returns a manager with no active
// segment; callers must AllocateSegment or RolloverIfNeeded before writing.
func NewSegmentManager(dir string, segmentSize uint32) (*SegmentManager, error) {
	if err := OpenOrCreateDirectory(dir); err != nil {
		return nil, err
	}
	return &SegmentManager{dir: dir, segmentSize: segmentSize}, nil
}

// OpenOrCreateDirectory ensures path exists and is a directory.
func OpenOrCreateDirectory(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return newErr(KindIoError, "OpenOrCreateDirectory", fmt.Errorf("%s exists and is not a directory", path))
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return newErr(KindIoError, "OpenOrCreateDirectory", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return newErr(KindIoError, "OpenOrCreateDirectory", err)
	}
	return nil
}

// segmentFilename derives the three-field hex filename for segment number n.
// The split is computed with 64-bit shifts per the fixed-width encoding
// design decision (DESIGN.md): hi = n>>32, mid = (n>>16)&0xFFFF, lo =
// n&0xFFFF. WalLocation carries a 32-bit segment number, so hi is always
// zero today; the shift-based derivation still holds if that width is ever
// widened, unlike the division-based scheme it replaces.
func segmentFilename(n uint32) string {
	n64 := uint64(n)
	hi := uint32(n64 >> 32)
	mid := uint32((n64 >> 16) & 0xFFFF)
	lo := uint32(n64 & 0xFFFF)
	return fmt.Sprintf("%08X_%08X_%08X", hi, mid, lo)
}

// parseSegmentFilename parses name as three 8-hex-digit fields and returns
// the segment number encoded in the low field. Any filename shape other
// than "three hex fields joined by a separator" is rejected, but the
// separator and letter case are not otherwise significant, per spec: a
// recovered WAL directory may contain filenames written by a slightly
// different encoding than the one this process writes.
func parseSegmentFilename(name string) (uint32, bool) {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	if len(parts) < 3 {
		return 0, false
	}
	// The low field is always the third hex group encountered.
	lo, err := strconv.ParseUint(parts[2], 16, 32)
	if err != nil {
		return 0, false
	}
	for _, p := range parts[:3] {
		if _, err := strconv.ParseUint(p, 16, 32); err != nil {
			return 0, false
		}
	}
	return uint32(lo), true
}

func (m *SegmentManager) segmentPath(n uint32) string {
	return filepath.Join(m.dir, segmentFilename(n))
}

// AllocateSegment creates segment n, preallocates exactly segmentSize bytes,
// and makes it the active segment starting at offset 0. Preallocation
// happens in a uuid-suffixed scratch file that is renamed into place only
// once it is the right size and durable, so a crash mid-preallocation never
// leaves a half-sized file at the segment's real name.
func (m *SegmentManager) AllocateSegment(n uint32) error {
	if m.current != nil {
		if err := m.closeCurrent(); err != nil {
			return err
		}
	}

	final := m.segmentPath(n)
	scratch := filepath.Join(m.dir, fmt.Sprintf(".alloc-%s-%s", segmentFilename(n), uuid.NewString()))

	f, err := os.OpenFile(scratch, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o644)
	if err != nil {
		return newErr(KindIoError, "AllocateSegment", err)
	}
	if err := ioplatform.Preallocate(f, int64(m.segmentSize)); err != nil {
		_ = f.Close()
		_ = os.Remove(scratch)
		return newErr(KindIoError, "AllocateSegment", err)
	}
	if err := ioplatform.FullSync(f); err != nil {
		_ = f.Close()
		_ = os.Remove(scratch)
		return newErr(KindIoError, "AllocateSegment", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(scratch)
		return newErr(KindIoError, "AllocateSegment", err)
	}
	if err := os.Rename(scratch, final); err != nil {
		_ = os.Remove(scratch)
		return newErr(KindIoError, "AllocateSegment", err)
	}

	file, err := os.OpenFile(final, os.O_RDWR, 0o644)
	if err != nil {
		return newErr(KindIoError, "AllocateSegment", err)
	}

	m.current = &activeSegment{num: n, file: file, offset: 0, state: SegmentActive}
	return nil
}

// ResumeSegment reopens an already-allocated segment n as the active segment,
// positioned at offset for further appends. Unlike AllocateSegment it never
// preallocates or creates a file — it is how a SegmentManager attaches to the
// tail of a log that already exists on disk.
func (m *SegmentManager) ResumeSegment(n uint32, offset uint32) error {
	if m.current != nil {
		if err := m.closeCurrent(); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(m.segmentPath(n), os.O_RDWR, 0o644)
	if err != nil {
		return newErr(KindIoError, "ResumeSegment", err)
	}
	m.current = &activeSegment{num: n, file: file, offset: offset, state: SegmentActive}
	return nil
}

func (m *SegmentManager) closeCurrent() error {
	if m.current == nil {
		return nil
	}
	err := m.current.file.Close()
	m.current = nil
	if err != nil {
		return newErr(KindIoError, "closeCurrent", err)
	}
	return nil
}

// RolloverIfNeeded seals the active segment and allocates the next one when
// recordSize would not fit in the remaining space. If there is no active
// segment yet, it allocates segment 1.
func (m *SegmentManager) RolloverIfNeeded(recordSize uint32) error {
	if m.current == nil {
		return m.AllocateSegment(1)
	}
	if uint64(m.current.offset)+uint64(recordSize) <= uint64(m.segmentSize) {
		return nil
	}
	next := m.current.num + 1
	m.current.state = SegmentFull
	if err := m.closeCurrent(); err != nil {
		return err
	}
	return m.AllocateSegment(next)
}

// Append writes data at the active segment's current offset with a single
// contiguous write and, on success, advances the offset. It returns the
// location the data was written at (the offset before the advance) — callers
// must have already called RolloverIfNeeded to guarantee data fits.
func (m *SegmentManager) Append(data []byte) (WalLocation, error) {
	if m.current == nil {
		return WalLocation{}, newErr(KindNotInitialized, "Append", fmt.Errorf("no active segment"))
	}
	loc := WalLocation{Segment: m.current.num, Offset: m.current.offset}

	n, err := m.current.file.WriteAt(data, int64(m.current.offset))
	if err != nil {
		return WalLocation{}, newErr(KindIoError, "Append", err)
	}
	if n != len(data) {
		return WalLocation{}, newErr(KindIoError, "Append", fmt.Errorf("short write: %d < %d", n, len(data)))
	}

	m.current.offset += uint32(n)
	return loc, nil
}

// Sync flushes the active segment's file to stable storage. When wait is
// true it blocks for a full sync; otherwise it uses the platform's
// data-only sync when available.
func (m *SegmentManager) Sync(wait bool) error {
	if m.current == nil {
		return nil
	}
	var err error
	if wait {
		err = ioplatform.FullSync(m.current.file)
	} else {
		err = ioplatform.DataSync(m.current.file)
	}
	if err != nil {
		return newErr(KindIoError, "Sync", err)
	}
	return nil
}

// OpenForRead returns a read-only handle to segment n. The caller owns the
// returned file and must close it.
func (m *SegmentManager) OpenForRead(n uint32) (*os.File, error) {
	path := m.segmentPath(n)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(KindIoError, "OpenForRead", fmt.Errorf("segment %d not found: %w", n, err))
		}
		return nil, newErr(KindIoError, "OpenForRead", err)
	}
	return f, nil
}

// CurrentLocation returns the active segment's number and current offset.
func (m *SegmentManager) CurrentLocation() WalLocation {
	if m.current == nil {
		return WalLocation{}
	}
	return WalLocation{Segment: m.current.num, Offset: m.current.offset}
}

// CurrentSegment returns the active segment number, or 0 if none.
func (m *SegmentManager) CurrentSegment() uint32 {
	if m.current == nil {
		return 0
	}
	return m.current.num
}

// Close syncs and closes the active segment, if any.
func (m *SegmentManager) Close() error {
	if m.current == nil {
		return nil
	}
	if err := ioplatform.FullSync(m.current.file); err != nil {
		_ = m.current.file.Close()
		m.current = nil
		return newErr(KindIoError, "Close", err)
	}
	return m.closeCurrent()
}

// ListSegmentNumbers enumerates the WAL directory and returns every segment
// number it can parse from a filename, sorted ascending. It never errors on
// an empty or missing directory — both simply yield no segments.
func ListSegmentNumbers(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newErr(KindIoError, "ListSegmentNumbers", err)
	}

	var nums []uint32
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if n, ok := parseSegmentFilename(e.Name()); ok {
			nums = append(nums, n)
		}
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}

// MaxSegmentNumber returns the highest segment number present in dir, or 0
// if the directory has no segment files.
func MaxSegmentNumber(dir string) (uint32, error) {
	nums, err := ListSegmentNumbers(dir)
	if err != nil {
		return 0, err
	}
	if len(nums) == 0 {
		return 0, nil
	}
	return nums[len(nums)-1], nil
}
