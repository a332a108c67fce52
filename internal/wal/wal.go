package wal

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Config configures a WalContext.
type Config struct {
	// Dir is the directory holding segment files. It is created if absent.
	Dir string
	// SegmentSize is the fixed size, in bytes, every segment is preallocated
	// to. It must be large enough to hold at least one header, one byte of
	// payload, and a trailing checksum.
	SegmentSize uint32
	// Catalog, if non-nil, accelerates segment discovery and checkpoint
	// lookup. It is never required for correctness.
	Catalog SegmentCatalog
	Logger  zerolog.Logger
}

// WalContext is the live handle to one WAL directory: the single active
// writer plus whatever state Recover needs to replay it. The WAL model is
// single-writer, single-threaded — a WalContext holds no internal lock, and
// concurrent calls from multiple goroutines are undefined behavior by
// design, not an oversight.
type WalContext struct {
	cfg      Config
	segments *SegmentManager
	writer   *RecordWriter
	closed   bool
}

// Init opens or creates the WAL directory described by cfg, resumes the
// active segment at its true tail (discovering and skipping any trailing
// garbage left by a crash mid-write), and returns a ready-to-use context.
func Init(cfg Config) (*WalContext, error) {
	if cfg.Dir == "" {
		return nil, newErr(KindInvalidArgument, "Init", fmt.Errorf("wal dir is required"))
	}
	if cfg.SegmentSize < HeaderSize+CRCSize+1 {
		return nil, newErr(KindInvalidArgument, "Init", fmt.Errorf("segment_size %d too small", cfg.SegmentSize))
	}

	segments, err := NewSegmentManager(cfg.Dir, cfg.SegmentSize)
	if err != nil {
		return nil, err
	}

	maxSeg, err := MaxSegmentNumber(cfg.Dir)
	if err != nil {
		return nil, err
	}

	if maxSeg == 0 {
		if err := segments.AllocateSegment(1); err != nil {
			return nil, err
		}
		writer := NewRecordWriter(segments, cfg.SegmentSize, ZeroLocation, cfg.Logger)
		return &WalContext{cfg: cfg, segments: segments, writer: writer}, nil
	}

	open := openerFor(cfg.Dir)
	result, err := walkForward(open, cfg.SegmentSize, 1, 0, maxSeg, func(recordVisit) error { return nil })
	if err != nil && !Is(err, KindCorruption) {
		return nil, err
	}
	// A corruption at the tail is expected after a crash mid-write: ResumeLoc
	// points exactly at the torn record, which is where the writer should
	// overwrite from. Anything earlier than that is a real problem for a
	// log that is supposed to have a clean, checksum-verified prefix, but
	// this layer doesn't second-guess it — it resumes where the scan says to.

	if err := segments.ResumeSegment(result.ResumeLoc.Segment, result.ResumeLoc.Offset); err != nil {
		return nil, err
	}
	writer := NewRecordWriter(segments, cfg.SegmentSize, result.LastRecordLoc, cfg.Logger)
	return &WalContext{cfg: cfg, segments: segments, writer: writer}, nil
}

func openerFor(dir string) func(uint32) (io.ReaderAt, func() error, error) {
	return func(n uint32) (io.ReaderAt, func() error, error) {
		m := &SegmentManager{dir: dir}
		f, err := m.OpenForRead(n)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}

// BeginRecord reserves a payload slot for a new record. See RecordWriter.
func (ctx *WalContext) BeginRecord(recType RecordType, xid uint32, dataLen int) (PayloadSlot, error) {
	if ctx.closed {
		return nil, newErr(KindNotInitialized, "BeginRecord", fmt.Errorf("context closed"))
	}
	return ctx.writer.BeginRecord(recType, xid, dataLen)
}

// EndRecord finalizes and appends the in-flight record. See RecordWriter.
func (ctx *WalContext) EndRecord() (WalLocation, error) {
	if ctx.closed {
		return WalLocation{}, newErr(KindNotInitialized, "EndRecord", fmt.Errorf("context closed"))
	}
	return ctx.writer.EndRecord()
}

// Flush syncs the active segment to stable storage.
func (ctx *WalContext) Flush(wait bool) error {
	if ctx.closed {
		return newErr(KindNotInitialized, "Flush", fmt.Errorf("context closed"))
	}
	return ctx.writer.Flush(wait)
}

// Checkpoint appends and durably flushes a checkpoint record. It does not
// update the catalog's checkpoint anchor — only Recover's own post-recovery
// checkpoint does that, since that is the one checkpoint that actually
// guarantees every committed transaction up to it already had its handlers
// invoked. A checkpoint taken here promises only that the log is durable up
// to this point.
func (ctx *WalContext) Checkpoint() (WalLocation, error) {
	if ctx.closed {
		return WalLocation{}, newErr(KindNotInitialized, "Checkpoint", fmt.Errorf("context closed"))
	}
	return ctx.writer.Checkpoint()
}

// ReadRecord reads back the record at loc, verifying its checksum. It opens
// the target segment read-only for the call and does not disturb the active
// writer.
func (ctx *WalContext) ReadRecord(loc WalLocation) (RecordHeader, []byte, error) {
	if ctx.closed {
		return RecordHeader{}, nil, newErr(KindNotInitialized, "ReadRecord", fmt.Errorf("context closed"))
	}

	f, err := ctx.segments.OpenForRead(loc.Segment)
	if err != nil {
		return RecordHeader{}, nil, err
	}
	defer func() { _ = f.Close() }()

	header, ok, err := readHeaderAt(f, loc.Offset)
	if err != nil {
		return RecordHeader{}, nil, newErr(KindIoError, "ReadRecord", err)
	}
	if !ok || header.TotalLen == 0 {
		return RecordHeader{}, nil, newErr(KindCorruption, "ReadRecord", fmt.Errorf("no record at %s", loc))
	}
	if header.TotalLen < HeaderSize+CRCSize {
		return RecordHeader{}, nil, newErr(KindCorruption, "ReadRecord", fmt.Errorf("invalid total_len %d at %s", header.TotalLen, loc))
	}

	body := make([]byte, header.TotalLen-HeaderSize)
	n, err := f.ReadAt(body, int64(loc.Offset)+HeaderSize)
	if err != nil && err != io.EOF {
		return RecordHeader{}, nil, newErr(KindIoError, "ReadRecord", err)
	}
	if n < len(body) {
		return RecordHeader{}, nil, newErr(KindCorruption, "ReadRecord", fmt.Errorf("short read at %s", loc))
	}

	payload := body[:header.DataLen]
	trailerCRC := decodeCRC(body[len(body)-CRCSize:])
	if checksum(headerBytes(header), payload) != trailerCRC {
		return RecordHeader{}, nil, newErr(KindCorruption, "ReadRecord", fmt.Errorf("checksum mismatch at %s", loc))
	}

	return header, payload, nil
}

// Recover runs the full recovery sequence (phases R1-R5) against the WAL
// directory this context was opened on, dispatching handlers for every
// record belonging to a committed transaction, then appends a fresh
// post-recovery checkpoint through this context's own writer.
func (ctx *WalContext) Recover(handlers HandlerTable, dbInstance any) (*RecoveryStats, error) {
	if ctx.closed {
		return nil, newErr(KindNotInitialized, "Recover", fmt.Errorf("context closed"))
	}

	engine := newRecoveryEngine(ctx.cfg.Dir, ctx.cfg.SegmentSize, ctx.cfg.Catalog, ctx.cfg.Logger)

	maxSeg, err := engine.discoverSegments()
	if err != nil {
		return nil, err
	}
	anchor, trusted := engine.locateCheckpointAnchor(maxSeg)

	stats, err := engine.Recover(maxSeg, anchor, trusted, handlers, dbInstance)
	if err != nil {
		return stats, err
	}

	// This is the one checkpoint whose location is recorded as the catalog's
	// anchor: having just finished a full recovery pass, it is the one
	// checkpoint that actually guarantees every committed transaction up to
	// it already had its handlers invoked, which is what makes it safe for a
	// future Recover to resume from instead of rescanning the whole log.
	loc, err := ctx.writer.Checkpoint()
	if err != nil {
		return stats, newErr(KindRecoveryFailed, "Recover", fmt.Errorf("post-recovery checkpoint failed: %w", err))
	}
	if ctx.cfg.Catalog != nil {
		_ = ctx.cfg.Catalog.SetCheckpointAnchor(context.Background(), loc)
	}
	return stats, nil
}

// Close syncs and closes the active segment. It is safe to call more than
// once.
func (ctx *WalContext) Close() error {
	if ctx.closed {
		return nil
	}
	ctx.closed = true
	return ctx.segments.Close()
}
