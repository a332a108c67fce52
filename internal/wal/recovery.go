package wal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// RecoveryStats summarizes one recovery run end to end.
type RecoveryStats struct {
	SegmentsProcessed      int
	RecordsProcessed       int
	RecordsApplied         int
	RecordsSkipped         int
	CommittedTransactions  int
	AbortedTransactions    int
	IncompleteTransactions int
	BytesProcessed         int64
	RecoveryTimeMs         int64
}

// Handler applies one non-control record to whatever external store dbInstance
// represents. It returns false to signal the application failed, which aborts
// recovery with a KindRecoveryFailed error wrapping a KindHandlerFailed one.
type Handler func(dbInstance any, header RecordHeader, payload []byte) bool

// HandlerTable maps a record type to the handler invoked for it during
// recovery. Control types (Null, Checkpoint, XactCommit, XactAbort) are
// handled internally and any entry registered for them is ignored.
type HandlerTable map[RecordType]Handler

// recoveryEngine holds the pieces Recover needs: where the log lives, how big
// its segments are, and an optional catalog used purely as a fast-path hint
// for locating the checkpoint anchor.
type recoveryEngine struct {
	dir         string
	segmentSize uint32
	catalog     SegmentCatalog
	logger      zerolog.Logger
}

func newRecoveryEngine(dir string, segmentSize uint32, catalog SegmentCatalog, logger zerolog.Logger) *recoveryEngine {
	return &recoveryEngine{dir: dir, segmentSize: segmentSize, catalog: catalog, logger: logger}
}

func (e *recoveryEngine) openSegment(n uint32) (segReaderCloser, error) {
	f, err := os.Open(segmentFilenamePath(e.dir, n))
	if err != nil {
		return segReaderCloser{}, err
	}
	return segReaderCloser{f}, nil
}

type segReaderCloser struct{ f *os.File }

func (s segReaderCloser) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s segReaderCloser) Close() error                            { return s.f.Close() }

func segmentFilenamePath(dir string, n uint32) string {
	m := &SegmentManager{dir: dir}
	return m.segmentPath(n)
}

// Phase R1: discover every segment present on disk, optionally cross-checked
// against the catalog. The catalog is never required — pure filesystem
// enumeration is always sufficient and is what a bare-checkout recovery uses.
func (e *recoveryEngine) discoverSegments() (uint32, error) {
	maxSeg, err := MaxSegmentNumber(e.dir)
	if err != nil {
		return 0, err
	}
	if e.catalog != nil {
		if infos, cerr := e.catalog.ListSegments(context.Background()); cerr == nil {
			for _, info := range infos {
				if info.Number > maxSeg {
					maxSeg = info.Number
				}
			}
		}
	}
	return maxSeg, nil
}

// Phase R2: locate the most recent checkpoint to anchor the forward scan.
// trusted reports whether loc is safe to resume scanning from rather than
// merely worth logging: the catalog's stored anchor can only have been
// written by this engine's own post-recovery checkpoint (Phase R5, see
// Recover below) — WalContext.Checkpoint never writes it — so a validated
// catalog anchor is the one checkpoint that actually guarantees every
// committed transaction up to it already had its handlers invoked. A
// checkpoint found by scanning the raw log promises only "the log was
// durable up to here," never that a handler ran for what precedes it, so
// it is never trusted for bounding. No checkpoint anywhere in the log is
// not an error: recovery simply starts at (1, 0), untrusted.
func (e *recoveryEngine) locateCheckpointAnchor(maxSeg uint32) (loc WalLocation, trusted bool) {
	if e.catalog != nil {
		if anchor, err := e.catalog.GetCheckpointAnchor(context.Background()); err == nil && !anchor.IsZero() {
			if e.validateCheckpointAt(anchor) {
				return anchor, true
			}
		}
	}

	for seg := maxSeg; seg >= 1; seg-- {
		if loc, found := e.findLastCheckpointInSegment(seg); found {
			return loc, false
		}
		if seg == 1 {
			break
		}
	}
	return WalLocation{Segment: 1, Offset: 0}, false
}

func (e *recoveryEngine) validateCheckpointAt(loc WalLocation) bool {
	f, err := e.openSegment(loc.Segment)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()
	header, ok, err := readHeaderAt(f, loc.Offset)
	if err != nil || !ok {
		return false
	}
	return header.Type == RecordTypeCheckpoint
}

func (e *recoveryEngine) findLastCheckpointInSegment(seg uint32) (WalLocation, bool) {
	var last WalLocation
	found := false
	_, _ = walkForward(func(n uint32) (io.ReaderAt, func() error, error) {
		f, err := e.openSegment(n)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}, e.segmentSize, seg, 0, seg, func(v recordVisit) error {
		if v.Header.Type == RecordTypeCheckpoint {
			last = v.Loc
			found = true
		}
		return nil
	})
	return last, found
}

// Recover runs phases R3 and R4 against segments [1, maxSeg] (R1's output);
// WalContext.Recover runs R1, R2 and the R5 checkpoint around it. It performs two full forward passes over the candidate range: the
// first builds the transaction map (which xids committed, aborted, or never
// resolved) and the second dispatches handlers, applying only records whose
// xid resolved to Committed, plus every control record. Two clean passes
// avoid the single-pass "commit record must appear before I need it" ordering
// trap entirely, at the cost of reading the recovered range twice.
//
// anchor is the checkpoint Phase R2 located and anchorTrusted reports
// whether it came from the catalog's post-recovery record (see
// locateCheckpointAnchor). When trusted, both passes resume from anchor
// instead of (1, 0): everything before it was already applied by a prior
// Recover call, so rescanning it would only repeat handler dispatch for
// no reason. When untrusted — no catalog, or only a checkpoint found by
// scanning the raw log — both passes walk the full range from (1, 0),
// since that checkpoint promises nothing about whether a handler already
// ran for what precedes it.
func (e *recoveryEngine) Recover(maxSeg uint32, anchor WalLocation, anchorTrusted bool, handlers HandlerTable, dbInstance any) (*RecoveryStats, error) {
	start := time.Now()
	stats := &RecoveryStats{}

	if maxSeg == 0 {
		stats.RecoveryTimeMs = time.Since(start).Milliseconds()
		return stats, nil
	}

	scanStartSeg, scanStartOffset := uint32(1), uint32(0)
	if anchorTrusted && !anchor.IsZero() {
		scanStartSeg, scanStartOffset = anchor.Segment, anchor.Offset
		e.logger.Debug().Stringer("checkpoint_anchor", anchor).Msg("resuming scan from trusted post-recovery checkpoint")
	} else if !anchor.IsZero() {
		e.logger.Debug().Stringer("checkpoint_anchor", anchor).Msg("checkpoint found but not trusted for bounding; scanning full range")
	}

	open := func(n uint32) (io.ReaderAt, func() error, error) {
		f, err := e.openSegment(n)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}

	txs := newTxMap()
	lastProgressLog := time.Now()
	seen := 0

	_, err := walkForward(open, e.segmentSize, scanStartSeg, scanStartOffset, maxSeg, func(v recordVisit) error {
		seen++
		switch v.Header.Type {
		case RecordTypeXactCommit:
			if e := txs.findOrInsert(v.Header.Xid, v.Loc); e != nil {
				e.state = TxCommitted
				e.lastRecord = v.Loc
			}
		case RecordTypeXactAbort:
			if e := txs.findOrInsert(v.Header.Xid, v.Loc); e != nil {
				e.state = TxAborted
				e.lastRecord = v.Loc
			}
		case RecordTypeCheckpoint, RecordTypeNull:
			// no transaction state to track
		default:
			if e := txs.findOrInsert(v.Header.Xid, v.Loc); e != nil {
				e.lastRecord = v.Loc
			}
		}
		if time.Since(lastProgressLog) > 5*time.Second {
			e.logger.Info().Int("records_seen", seen).Msg("recovery pass 1 in progress")
			lastProgressLog = time.Now()
		}
		return nil
	})
	if err != nil && !Is(err, KindCorruption) {
		return stats, newErr(KindRecoveryFailed, "Recover", err)
	}
	if Is(err, KindCorruption) {
		e.logger.Warn().Err(err).Msg("recovery pass 1 stopped at corrupt record")
	}

	committed, aborted, incomplete := txs.counts()
	stats.CommittedTransactions = committed
	stats.AbortedTransactions = aborted
	stats.IncompleteTransactions = incomplete

	lastProgressLog = time.Now()
	result, err := walkForward(open, e.segmentSize, scanStartSeg, scanStartOffset, maxSeg, func(v recordVisit) error {
		stats.RecordsProcessed++
		stats.BytesProcessed += int64(v.Header.TotalLen)

		if v.Header.Type.IsControl() {
			return nil
		}

		applied := false
		if entry, ok := txs.get(v.Header.Xid); ok && entry.state == TxCommitted {
			if h, ok := handlers[v.Header.Type]; ok {
				if !h(dbInstance, v.Header, v.Payload) {
					return newErr(KindHandlerFailed, "Recover", fmt.Errorf("handler failed for type %s at %s", v.Header.Type, v.Loc))
				}
				applied = true
			}
		}
		if applied {
			stats.RecordsApplied++
		} else {
			stats.RecordsSkipped++
		}

		if time.Since(lastProgressLog) > 5*time.Second {
			e.logger.Info().Int("records_processed", stats.RecordsProcessed).Msg("recovery pass 2 in progress")
			lastProgressLog = time.Now()
		}
		return nil
	})
	stats.SegmentsProcessed = result.SegmentsProcessed
	stats.RecoveryTimeMs = time.Since(start).Milliseconds()

	if err != nil {
		return stats, newErr(KindRecoveryFailed, "Recover", err)
	}
	return stats, nil
}
