// Package wal implements a single-writer write-ahead log with fixed-size
// preallocated segments, CRC32-checksummed records, and crash recovery by
// forward scan from the last checkpoint.
package wal

import (
	"encoding/binary"
	"fmt"
)

// RecordType identifies the kind of a WAL record. Values are part of the
// on-disk format and must never be renumbered.
type RecordType uint32

const (
	RecordTypeNull        RecordType = 0
	RecordTypeCheckpoint  RecordType = 1
	RecordTypeXactCommit  RecordType = 2
	RecordTypeXactAbort   RecordType = 3
	RecordTypeInsert      RecordType = 4
	RecordTypeUpdate      RecordType = 5
	RecordTypeDelete      RecordType = 6
	RecordTypeNewPage     RecordType = 7
	RecordTypeSchema      RecordType = 8
	recordTypeCount                  = 9
)

// IsControl reports whether t is a control record type handled internally by
// the recovery engine rather than dispatched to a caller-registered handler.
func (t RecordType) IsControl() bool {
	switch t {
	case RecordTypeNull, RecordTypeCheckpoint, RecordTypeXactCommit, RecordTypeXactAbort:
		return true
	default:
		return false
	}
}

// Valid reports whether t is one of the closed set of known record types.
func (t RecordType) Valid() bool {
	return t < recordTypeCount
}

func (t RecordType) String() string {
	switch t {
	case RecordTypeNull:
		return "NULL"
	case RecordTypeCheckpoint:
		return "CHECKPOINT"
	case RecordTypeXactCommit:
		return "XACT_COMMIT"
	case RecordTypeXactAbort:
		return "XACT_ABORT"
	case RecordTypeInsert:
		return "INSERT"
	case RecordTypeUpdate:
		return "UPDATE"
	case RecordTypeDelete:
		return "DELETE"
	case RecordTypeNewPage:
		return "NEW_PAGE"
	case RecordTypeSchema:
		return "SCHEMA"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
	}
}

// WalLocation addresses the first byte of a record: a segment number paired
// with a byte offset within that segment. The zero value (0, 0) is the
// sentinel meaning "unset / beginning of log".
type WalLocation struct {
	Segment uint32
	Offset  uint32
}

// ZeroLocation is the sentinel location meaning "unset / beginning of log".
var ZeroLocation = WalLocation{}

// IsZero reports whether l is the unset sentinel.
func (l WalLocation) IsZero() bool {
	return l.Segment == 0 && l.Offset == 0
}

// Less reports whether l sorts before other under the lexicographic total
// order on (segment, offset).
func (l WalLocation) Less(other WalLocation) bool {
	if l.Segment != other.Segment {
		return l.Segment < other.Segment
	}
	return l.Offset < other.Offset
}

func (l WalLocation) String() string {
	return fmt.Sprintf("(%d,%d)", l.Segment, l.Offset)
}

// HeaderSize is the fixed on-disk size of RecordHeader, in bytes.
const HeaderSize = 24

// CRCSize is the size of the trailing checksum that follows every record's
// payload.
const CRCSize = 4

// MaxPayloadSize is the largest payload a single record may carry; data_len
// is stored as a uint16 on disk.
const MaxPayloadSize = 65535

// RecordHeader is the fixed-layout, native little-endian prefix of every
// on-disk record. The wire layout is:
//
//	total_len(4) | type(4) | xid(4) | prev_segment(4) | prev_offset(4) | data_len(2) | reserved(2)
type RecordHeader struct {
	TotalLen     uint32
	Type         RecordType
	Xid          uint32
	PrevSegment  uint32
	PrevOffset   uint32
	DataLen      uint16
	reserved     uint16
}

// PrevRecord returns the write-order back-pointer embedded in the header.
// This chain links every record this writer ever appended in the order
// EndRecord returned success, regardless of transaction — not a
// per-transaction chain, despite the field's name in the wire format.
func (h RecordHeader) PrevRecord() WalLocation {
	return WalLocation{Segment: h.PrevSegment, Offset: h.PrevOffset}
}

func encodeHeader(buf []byte, h RecordHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.TotalLen)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Type))
	binary.LittleEndian.PutUint32(buf[8:12], h.Xid)
	binary.LittleEndian.PutUint32(buf[12:16], h.PrevSegment)
	binary.LittleEndian.PutUint32(buf[16:20], h.PrevOffset)
	binary.LittleEndian.PutUint16(buf[20:22], h.DataLen)
	binary.LittleEndian.PutUint16(buf[22:24], 0)
}

func decodeHeader(buf []byte) RecordHeader {
	return RecordHeader{
		TotalLen:    binary.LittleEndian.Uint32(buf[0:4]),
		Type:        RecordType(binary.LittleEndian.Uint32(buf[4:8])),
		Xid:         binary.LittleEndian.Uint32(buf[8:12]),
		PrevSegment: binary.LittleEndian.Uint32(buf[12:16]),
		PrevOffset:  binary.LittleEndian.Uint32(buf[16:20]),
		DataLen:     binary.LittleEndian.Uint16(buf[20:22]),
		reserved:    binary.LittleEndian.Uint16(buf[22:24]),
	}
}

// recordTotalLen computes the on-disk size of a record carrying dataLen
// bytes of payload: header + payload + trailing CRC.
func recordTotalLen(dataLen int) uint32 {
	return uint32(HeaderSize + dataLen + CRCSize)
}
