package wal

import (
	"fmt"
	"io"
)

// recordVisit is one successfully parsed, checksum-verified record
// encountered while walking a segment.
type recordVisit struct {
	Loc     WalLocation
	Header  RecordHeader
	Payload []byte
}

// readHeaderAt reads and decodes the 24-byte header at offset in f. ok is
// false (with a nil error) when offset sits at or past the clean end of
// written data — either a true end-of-file or a short read, both of which a
// preallocated, zero-filled segment produces identically.
func readHeaderAt(f io.ReaderAt, offset uint32) (header RecordHeader, ok bool, err error) {
	buf := make([]byte, HeaderSize)
	n, rerr := f.ReadAt(buf, int64(offset))
	if rerr != nil && rerr != io.EOF {
		return RecordHeader{}, false, rerr
	}
	if n < HeaderSize {
		return RecordHeader{}, false, nil
	}
	return decodeHeader(buf), true, nil
}

// segmentWalkResult summarizes one forward walk across segments, whether it
// is SegmentManager's tail discovery on Init or RecoveryEngine's scan.
type segmentWalkResult struct {
	LastRecordLoc     WalLocation
	ResumeLoc         WalLocation
	SegmentsProcessed int
	RecordsProcessed  int
	BytesProcessed    int64
	Corrupted         bool
	CorruptionAt      WalLocation
}

// walkForward scans segments [startSeg, maxSeg] in order, starting at
// startOffset within startSeg and at offset 0 in every later segment,
// invoking visit for every checksum-valid record it encounters.
//
// A zero total_len or a short read at a header boundary marks the clean end
// of one segment's written data; the walk simply advances to the next
// segment. Any other malformed header, a short read mid-record, or a CRC
// mismatch is corruption: the walk stops immediately, at that exact record,
// for the whole scan — not just the current segment — since forward progress
// through the log cannot be trusted past a corrupt record. A segment file
// that cannot be opened at all (including the one right after the last
// successfully opened one) ends the walk cleanly: the end of the log has
// been reached.
func walkForward(open func(segNum uint32) (io.ReaderAt, func() error, error), segmentSize uint32, startSeg, startOffset, maxSeg uint32, visit func(recordVisit) error) (segmentWalkResult, error) {
	var result segmentWalkResult
	if maxSeg < startSeg {
		return result, nil
	}

	offset := startOffset
	for seg := startSeg; seg <= maxSeg; seg++ {
		f, closeFn, err := open(seg)
		if err != nil {
			break // no such segment: end of the log
		}

		o := offset
		for {
			if uint64(o)+HeaderSize > uint64(segmentSize) {
				break
			}
			header, ok, err := readHeaderAt(f, o)
			if err != nil {
				_ = closeFn()
				return result, newErr(KindIoError, "walkForward", err)
			}
			if !ok {
				break
			}
			if header.TotalLen == 0 {
				break
			}
			if header.TotalLen < HeaderSize+CRCSize || uint64(o)+uint64(header.TotalLen) > uint64(segmentSize) ||
				header.TotalLen != recordTotalLen(int(header.DataLen)) {
				result.Corrupted = true
				result.CorruptionAt = WalLocation{Segment: seg, Offset: o}
				_ = closeFn()
				result.ResumeLoc = WalLocation{Segment: seg, Offset: o}
				return result, newErr(KindCorruption, "walkForward", fmt.Errorf("invalid total_len %d at %d:%d", header.TotalLen, seg, o))
			}

			dataLen := int(header.DataLen)
			body := make([]byte, header.TotalLen-HeaderSize)
			n, rerr := f.ReadAt(body, int64(o)+HeaderSize)
			if rerr != nil && rerr != io.EOF {
				_ = closeFn()
				return result, newErr(KindIoError, "walkForward", rerr)
			}
			if n < len(body) {
				result.Corrupted = true
				result.CorruptionAt = WalLocation{Segment: seg, Offset: o}
				_ = closeFn()
				result.ResumeLoc = WalLocation{Segment: seg, Offset: o}
				return result, newErr(KindCorruption, "walkForward", fmt.Errorf("short read mid-record at %d:%d", seg, o))
			}

			payload := body[:dataLen]
			trailerCRC := body[len(body)-CRCSize:]
			got := decodeCRC(trailerCRC)
			want := checksum(headerBytes(header), payload)
			if got != want {
				result.Corrupted = true
				result.CorruptionAt = WalLocation{Segment: seg, Offset: o}
				_ = closeFn()
				result.ResumeLoc = WalLocation{Segment: seg, Offset: o}
				return result, newErr(KindCorruption, "walkForward", fmt.Errorf("checksum mismatch at %d:%d", seg, o))
			}

			loc := WalLocation{Segment: seg, Offset: o}
			if err := visit(recordVisit{Loc: loc, Header: header, Payload: payload}); err != nil {
				_ = closeFn()
				result.ResumeLoc = loc
				return result, err
			}

			result.LastRecordLoc = loc
			result.RecordsProcessed++
			result.BytesProcessed += int64(header.TotalLen)
			o += header.TotalLen
		}

		_ = closeFn()
		result.SegmentsProcessed++
		result.ResumeLoc = WalLocation{Segment: seg, Offset: o}
		offset = 0
	}

	return result, nil
}

func headerBytes(h RecordHeader) []byte {
	buf := make([]byte, HeaderSize)
	encodeHeader(buf, h)
	return buf
}
