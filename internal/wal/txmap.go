package wal

// TxState is the lifecycle state of a transaction as observed during
// recovery.
type TxState int

const (
	TxInProgress TxState = iota
	TxCommitted
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxInProgress:
		return "InProgress"
	case TxCommitted:
		return "Committed"
	case TxAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// txEntry is the ephemeral, recovery-only record of one transaction's
// observed state and the span of WAL locations it touched.
type txEntry struct {
	xid         uint32
	state       TxState
	firstRecord WalLocation
	lastRecord  WalLocation
}

// txMap tracks transaction state during a single recovery pass. A Go map
// keyed by xid gives O(1)-amortized find-or-insert directly, which is the
// production-grade structure the design calls for — there's no reason to
// first build the naive linear-array version the spec describes as merely
// "acceptable for small workloads" before replacing it.
type txMap struct {
	entries map[uint32]*txEntry
}

func newTxMap() *txMap {
	return &txMap{entries: make(map[uint32]*txEntry)}
}

// findOrInsert returns the entry for xid, creating it in InProgress state
// anchored at loc if this is the first time xid has been seen. xid == 0
// (the checkpoint "no transaction" sentinel) is never tracked.
func (m *txMap) findOrInsert(xid uint32, loc WalLocation) *txEntry {
	if xid == 0 {
		return nil
	}
	if e, ok := m.entries[xid]; ok {
		return e
	}
	e := &txEntry{xid: xid, state: TxInProgress, firstRecord: loc, lastRecord: loc}
	m.entries[xid] = e
	return e
}

func (m *txMap) get(xid uint32) (*txEntry, bool) {
	e, ok := m.entries[xid]
	return e, ok
}

// counts tallies terminal states across every tracked transaction.
func (m *txMap) counts() (committed, aborted, incomplete int) {
	for _, e := range m.entries {
		switch e.state {
		case TxCommitted:
			committed++
		case TxAborted:
			aborted++
		default:
			incomplete++
		}
	}
	return
}
