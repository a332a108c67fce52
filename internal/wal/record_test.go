package wal

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestRecordWriter(t *testing.T, segmentSize uint32) (*RecordWriter, *SegmentManager) {
	t.Helper()
	dir := t.TempDir()
	segments, err := NewSegmentManager(dir, segmentSize)
	if err != nil {
		t.Fatalf("NewSegmentManager() error: %v", err)
	}
	writer := NewRecordWriter(segments, segmentSize, ZeroLocation, zerolog.Nop())
	return writer, segments
}

func TestBeginEndRecordRoundTrip(t *testing.T) {
	w, segments := newTestRecordWriter(t, 4096)
	defer func() { _ = segments.Close() }()

	payload := []byte("TELL users TO ADD RECORD WITH id = 1")
	slot, err := w.BeginRecord(RecordTypeInsert, 1001, len(payload))
	if err != nil {
		t.Fatalf("BeginRecord() error: %v", err)
	}
	copy(slot, payload)

	loc, err := w.EndRecord()
	if err != nil {
		t.Fatalf("EndRecord() error: %v", err)
	}
	if loc != (WalLocation{Segment: 1, Offset: 0}) {
		t.Errorf("unexpected record location: %v", loc)
	}
	if w.LastWriteLocation() != loc {
		t.Errorf("LastWriteLocation() = %v, want %v", w.LastWriteLocation(), loc)
	}
}

func TestEndRecordWithoutBeginFails(t *testing.T) {
	w, segments := newTestRecordWriter(t, 4096)
	defer func() { _ = segments.Close() }()

	_, err := w.EndRecord()
	if !Is(err, KindNoRecordInFlight) {
		t.Errorf("expected KindNoRecordInFlight, got %v", err)
	}
}

func TestBeginRecordRejectsInvalidType(t *testing.T) {
	w, segments := newTestRecordWriter(t, 4096)
	defer func() { _ = segments.Close() }()

	_, err := w.BeginRecord(RecordType(recordTypeCount), 1, 0)
	if !Is(err, KindInvalidArgument) {
		t.Errorf("expected KindInvalidArgument, got %v", err)
	}
}

func TestBeginRecordRejectsOversizedPayload(t *testing.T) {
	w, segments := newTestRecordWriter(t, 4096)
	defer func() { _ = segments.Close() }()

	_, err := w.BeginRecord(RecordTypeInsert, 1, MaxPayloadSize+1)
	if !Is(err, KindPayloadTooLarge) {
		t.Errorf("expected KindPayloadTooLarge, got %v", err)
	}
}

func TestBeginRecordRejectsRecordLargerThanSegment(t *testing.T) {
	w, segments := newTestRecordWriter(t, 64)
	defer func() { _ = segments.Close() }()

	_, err := w.BeginRecord(RecordTypeInsert, 1, 100)
	if !Is(err, KindPayloadTooLarge) {
		t.Errorf("expected KindPayloadTooLarge, got %v", err)
	}
}

func TestBeginRecordDiscardsAbandonedInFlight(t *testing.T) {
	w, segments := newTestRecordWriter(t, 4096)
	defer func() { _ = segments.Close() }()

	if _, err := w.BeginRecord(RecordTypeInsert, 1, 10); err != nil {
		t.Fatalf("first BeginRecord() error: %v", err)
	}
	// Abandon it without EndRecord and begin a second one.
	slot, err := w.BeginRecord(RecordTypeInsert, 2, 5)
	if err != nil {
		t.Fatalf("second BeginRecord() error: %v", err)
	}
	copy(slot, "hello")

	loc, err := w.EndRecord()
	if err != nil {
		t.Fatalf("EndRecord() error: %v", err)
	}
	if loc.Offset != 0 {
		t.Errorf("expected the abandoned record to leave no trace on disk, got offset %d", loc.Offset)
	}
}

func TestOrderingChainLinksConsecutiveRecords(t *testing.T) {
	w, segments := newTestRecordWriter(t, 4096)
	defer func() { _ = segments.Close() }()

	write := func(xid uint32, payload string) WalLocation {
		slot, err := w.BeginRecord(RecordTypeInsert, xid, len(payload))
		if err != nil {
			t.Fatalf("BeginRecord() error: %v", err)
		}
		copy(slot, payload)
		loc, err := w.EndRecord()
		if err != nil {
			t.Fatalf("EndRecord() error: %v", err)
		}
		return loc
	}

	loc1 := write(1, "first")
	loc2 := write(2, "second")

	f, err := segments.OpenForRead(loc2.Segment)
	if err != nil {
		t.Fatalf("OpenForRead() error: %v", err)
	}
	defer func() { _ = f.Close() }()

	header, ok, err := readHeaderAt(f, loc2.Offset)
	if err != nil || !ok {
		t.Fatalf("readHeaderAt() = (%v, %v, %v)", header, ok, err)
	}
	if header.PrevRecord() != loc1 {
		t.Errorf("expected record at %v to chain back to %v, got %v", loc2, loc1, header.PrevRecord())
	}
}

func TestCheckpointWritesZeroPayloadRecord(t *testing.T) {
	w, segments := newTestRecordWriter(t, 4096)
	defer func() { _ = segments.Close() }()

	loc, err := w.Checkpoint()
	if err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}

	f, err := segments.OpenForRead(loc.Segment)
	if err != nil {
		t.Fatalf("OpenForRead() error: %v", err)
	}
	defer func() { _ = f.Close() }()

	header, ok, err := readHeaderAt(f, loc.Offset)
	if err != nil || !ok {
		t.Fatalf("readHeaderAt() = (%v, %v, %v)", header, ok, err)
	}
	if header.Type != RecordTypeCheckpoint || header.Xid != 0 || header.DataLen != 0 {
		t.Errorf("unexpected checkpoint header: %+v", header)
	}
}
