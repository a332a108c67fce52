package wal

import "testing"

func TestRecordTypeValid(t *testing.T) {
	for rt := RecordTypeNull; rt <= RecordTypeSchema; rt++ {
		if !rt.Valid() {
			t.Errorf("expected %v to be valid", rt)
		}
	}
	if RecordType(recordTypeCount).Valid() {
		t.Error("expected one past the last type to be invalid")
	}
}

func TestRecordTypeIsControl(t *testing.T) {
	control := []RecordType{RecordTypeNull, RecordTypeCheckpoint, RecordTypeXactCommit, RecordTypeXactAbort}
	for _, rt := range control {
		if !rt.IsControl() {
			t.Errorf("expected %v to be a control type", rt)
		}
	}
	dataBearing := []RecordType{RecordTypeInsert, RecordTypeUpdate, RecordTypeDelete, RecordTypeNewPage, RecordTypeSchema}
	for _, rt := range dataBearing {
		if rt.IsControl() {
			t.Errorf("expected %v not to be a control type", rt)
		}
	}
}

func TestWalLocationOrdering(t *testing.T) {
	a := WalLocation{Segment: 1, Offset: 100}
	b := WalLocation{Segment: 1, Offset: 200}
	c := WalLocation{Segment: 2, Offset: 0}

	if !a.Less(b) {
		t.Error("expected (1,100) < (1,200)")
	}
	if !b.Less(c) {
		t.Error("expected (1,200) < (2,0)")
	}
	if c.Less(a) {
		t.Error("expected (2,0) not < (1,100)")
	}
	if !ZeroLocation.IsZero() {
		t.Error("expected ZeroLocation.IsZero()")
	}
	if a.IsZero() {
		t.Error("expected (1,100) not to be zero")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := RecordHeader{
		TotalLen:    recordTotalLen(10),
		Type:        RecordTypeInsert,
		Xid:         42,
		PrevSegment: 3,
		PrevOffset:  99,
		DataLen:     10,
	}
	buf := make([]byte, HeaderSize)
	encodeHeader(buf, h)
	got := decodeHeader(buf)

	if got.TotalLen != h.TotalLen || got.Type != h.Type || got.Xid != h.Xid ||
		got.PrevSegment != h.PrevSegment || got.PrevOffset != h.PrevOffset || got.DataLen != h.DataLen {
		t.Errorf("header round-trip mismatch: got %+v, want %+v", got, h)
	}
	if got.PrevRecord() != (WalLocation{Segment: 3, Offset: 99}) {
		t.Errorf("unexpected PrevRecord(): %v", got.PrevRecord())
	}
}

func TestRecordTotalLen(t *testing.T) {
	if got := recordTotalLen(0); got != HeaderSize+CRCSize {
		t.Errorf("recordTotalLen(0) = %d, want %d", got, HeaderSize+CRCSize)
	}
	if got := recordTotalLen(100); got != HeaderSize+100+CRCSize {
		t.Errorf("recordTotalLen(100) = %d, want %d", got, HeaderSize+100+CRCSize)
	}
}
