package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"
)

// PayloadSlot is the mutable buffer a caller fills in between BeginRecord and
// EndRecord. It aliases the writer's internal record buffer directly — Go has
// no borrow checker to enforce the loan, so callers must not retain a slot
// past the matching EndRecord call.
type PayloadSlot []byte

// inFlightRecord is the record buffer reserved by BeginRecord, awaiting
// EndRecord to stamp its checksum and hand it to the segment manager.
type inFlightRecord struct {
	buf     []byte
	dataLen int
}

// RecordWriter implements the two-phase BeginRecord/EndRecord append API on
// top of a SegmentManager. It is not safe for concurrent use — the WAL model
// is single-writer, single-threaded, and a RecordWriter enforces no locking
// of its own.
type RecordWriter struct {
	segments    *SegmentManager
	lastWrite   WalLocation
	inFlight    *inFlightRecord
	segmentSize uint32
	logger      zerolog.Logger
}

// NewRecordWriter builds a RecordWriter bound to segments, resuming the
// write-order chain at lastWrite (the location of the last durable record,
// or the zero location for an empty log).
func NewRecordWriter(segments *SegmentManager, segmentSize uint32, lastWrite WalLocation, logger zerolog.Logger) *RecordWriter {
	return &RecordWriter{
		segments:    segments,
		lastWrite:   lastWrite,
		segmentSize: segmentSize,
		logger:      logger,
	}
}

// BeginRecord reserves space for a new record and returns a payload slot of
// exactly dataLen bytes for the caller to fill. A record already in flight
// from a prior BeginRecord that was never closed with EndRecord is silently
// abandoned — the previous reservation is lost. That is a caller bug, not a
// WAL error, but it's worth a warning since it usually means a handler path
// forgot to call EndRecord.
func (w *RecordWriter) BeginRecord(recType RecordType, xid uint32, dataLen int) (PayloadSlot, error) {
	if !recType.Valid() {
		return nil, newErr(KindInvalidArgument, "BeginRecord", fmt.Errorf("invalid record type %d", recType))
	}
	if dataLen < 0 || dataLen > MaxPayloadSize {
		return nil, newErr(KindPayloadTooLarge, "BeginRecord", fmt.Errorf("data_len %d exceeds max %d", dataLen, MaxPayloadSize))
	}
	total := recordTotalLen(dataLen)
	if total > w.segmentSize {
		return nil, newErr(KindPayloadTooLarge, "BeginRecord", fmt.Errorf("record of %d bytes cannot fit in a %d byte segment", total, w.segmentSize))
	}

	if w.inFlight != nil {
		w.logger.Warn().
			Uint32("xid", xid).
			Msg("BeginRecord called with a record already in flight; discarding the abandoned reservation")
	}

	buf := make([]byte, total)
	header := RecordHeader{
		TotalLen:    total,
		Type:        recType,
		Xid:         xid,
		PrevSegment: w.lastWrite.Segment,
		PrevOffset:  w.lastWrite.Offset,
		DataLen:     uint16(dataLen),
	}
	encodeHeader(buf[:HeaderSize], header)

	w.inFlight = &inFlightRecord{buf: buf, dataLen: dataLen}
	return PayloadSlot(buf[HeaderSize : HeaderSize+dataLen]), nil
}

// EndRecord finalizes the in-flight record — stamping its CRC and appending
// it to the active segment — and returns the location it was written at. The
// payload slot returned by BeginRecord is invalid once EndRecord returns,
// whether or not it succeeded.
func (w *RecordWriter) EndRecord() (WalLocation, error) {
	if w.inFlight == nil {
		return WalLocation{}, newErr(KindNoRecordInFlight, "EndRecord", fmt.Errorf("no record in flight"))
	}
	rec := w.inFlight
	w.inFlight = nil

	buf := rec.buf
	crcSpan := HeaderSize + rec.dataLen
	crc := checksum(buf[:crcSpan])
	binary.LittleEndian.PutUint32(buf[crcSpan:crcSpan+CRCSize], crc)

	if err := w.segments.RolloverIfNeeded(uint32(len(buf))); err != nil {
		return WalLocation{}, err
	}
	loc, err := w.segments.Append(buf)
	if err != nil {
		return WalLocation{}, err
	}

	w.lastWrite = loc
	return loc, nil
}

// Flush syncs the active segment. When wait is true it blocks for a full
// sync of data and metadata; when false it uses the cheaper data-only sync
// where the platform supports one. Both block until their sync completes.
func (w *RecordWriter) Flush(wait bool) error {
	return w.segments.Sync(wait)
}

// Checkpoint appends a zero-payload Checkpoint record and durably flushes it.
// It is the only record type with no associated transaction.
func (w *RecordWriter) Checkpoint() (WalLocation, error) {
	if _, err := w.BeginRecord(RecordTypeCheckpoint, 0, 0); err != nil {
		return WalLocation{}, err
	}
	loc, err := w.EndRecord()
	if err != nil {
		return WalLocation{}, err
	}
	if err := w.Flush(true); err != nil {
		return WalLocation{}, err
	}
	return loc, nil
}

// LastWriteLocation returns the location of the most recently appended
// record (not necessarily synced yet), used to seed the prev_record chain
// for the next BeginRecord.
func (w *RecordWriter) LastWriteLocation() WalLocation {
	return w.lastWrite
}
