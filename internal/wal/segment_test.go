package wal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSegmentFilenameRoundTrip(t *testing.T) {
	for _, n := range []uint32{0, 1, 2, 65535, 65536, 0xFFFFFFFF} {
		name := segmentFilename(n)
		got, ok := parseSegmentFilename(name)
		if !ok {
			t.Fatalf("parseSegmentFilename(%q) failed to parse", name)
		}
		if got != n {
			t.Errorf("round trip for %d produced %q -> %d", n, name, got)
		}
	}
}

func TestParseSegmentFilenameRejectsGarbage(t *testing.T) {
	for _, name := range []string{"", "not-a-segment", "0001_0002", ".DS_Store"} {
		if _, ok := parseSegmentFilename(name); ok {
			t.Errorf("expected parseSegmentFilename(%q) to fail", name)
		}
	}
}

func TestNewSegmentManagerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "wal")
	if _, err := NewSegmentManager(dir, 4096); err != nil {
		t.Fatalf("NewSegmentManager() error: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected %s to be created as a directory", dir)
	}
}

func TestAllocateSegmentPreallocatesExactSize(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSegmentManager(dir, 4096)
	if err != nil {
		t.Fatalf("NewSegmentManager() error: %v", err)
	}
	if err := mgr.AllocateSegment(1); err != nil {
		t.Fatalf("AllocateSegment() error: %v", err)
	}

	info, err := os.Stat(mgr.segmentPath(1))
	if err != nil {
		t.Fatalf("stat segment file: %v", err)
	}
	if info.Size() != 4096 {
		t.Errorf("expected segment file to be 4096 bytes, got %d", info.Size())
	}
	if mgr.CurrentSegment() != 1 {
		t.Errorf("expected current segment 1, got %d", mgr.CurrentSegment())
	}
}

func TestRolloverIfNeededAllocatesNextSegment(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSegmentManager(dir, 128)
	if err != nil {
		t.Fatalf("NewSegmentManager() error: %v", err)
	}
	if err := mgr.RolloverIfNeeded(64); err != nil {
		t.Fatalf("RolloverIfNeeded() error: %v", err)
	}
	if mgr.CurrentSegment() != 1 {
		t.Fatalf("expected segment 1 to be allocated lazily, got %d", mgr.CurrentSegment())
	}

	if _, err := mgr.Append(make([]byte, 100)); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := mgr.RolloverIfNeeded(64); err != nil {
		t.Fatalf("RolloverIfNeeded() error: %v", err)
	}
	if mgr.CurrentSegment() != 2 {
		t.Errorf("expected rollover to segment 2, got %d", mgr.CurrentSegment())
	}
	if mgr.CurrentLocation().Offset != 0 {
		t.Errorf("expected fresh segment to start at offset 0, got %d", mgr.CurrentLocation().Offset)
	}
}

func TestAppendAdvancesOffset(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSegmentManager(dir, 4096)
	if err != nil {
		t.Fatalf("NewSegmentManager() error: %v", err)
	}
	if err := mgr.AllocateSegment(1); err != nil {
		t.Fatalf("AllocateSegment() error: %v", err)
	}

	loc1, err := mgr.Append([]byte("hello"))
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if loc1 != (WalLocation{Segment: 1, Offset: 0}) {
		t.Errorf("unexpected first append location: %v", loc1)
	}

	loc2, err := mgr.Append([]byte("world!"))
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if loc2 != (WalLocation{Segment: 1, Offset: 5}) {
		t.Errorf("unexpected second append location: %v", loc2)
	}
}

func TestListAndMaxSegmentNumbers(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSegmentManager(dir, 64)
	if err != nil {
		t.Fatalf("NewSegmentManager() error: %v", err)
	}
	for _, n := range []uint32{1, 2, 3} {
		if err := mgr.AllocateSegment(n); err != nil {
			t.Fatalf("AllocateSegment(%d) error: %v", n, err)
		}
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	nums, err := ListSegmentNumbers(dir)
	if err != nil {
		t.Fatalf("ListSegmentNumbers() error: %v", err)
	}
	if len(nums) != 3 || nums[0] != 1 || nums[2] != 3 {
		t.Errorf("unexpected segment list: %v", nums)
	}

	max, err := MaxSegmentNumber(dir)
	if err != nil {
		t.Fatalf("MaxSegmentNumber() error: %v", err)
	}
	if max != 3 {
		t.Errorf("MaxSegmentNumber() = %d, want 3", max)
	}
}

func TestMaxSegmentNumberEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	max, err := MaxSegmentNumber(dir)
	if err != nil {
		t.Fatalf("MaxSegmentNumber() error: %v", err)
	}
	if max != 0 {
		t.Errorf("MaxSegmentNumber() on empty dir = %d, want 0", max)
	}
}

func TestResumeSegmentReopensAtOffset(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewSegmentManager(dir, 4096)
	if err != nil {
		t.Fatalf("NewSegmentManager() error: %v", err)
	}
	if err := mgr.AllocateSegment(1); err != nil {
		t.Fatalf("AllocateSegment() error: %v", err)
	}
	if _, err := mgr.Append([]byte("payload")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	mgr2, err := NewSegmentManager(dir, 4096)
	if err != nil {
		t.Fatalf("NewSegmentManager() error: %v", err)
	}
	if err := mgr2.ResumeSegment(1, 7); err != nil {
		t.Fatalf("ResumeSegment() error: %v", err)
	}
	if mgr2.CurrentLocation() != (WalLocation{Segment: 1, Offset: 7}) {
		t.Errorf("unexpected location after resume: %v", mgr2.CurrentLocation())
	}
}
