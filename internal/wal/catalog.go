package wal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SegmentCatalogInfo is one segment's catalog-tracked metadata.
type SegmentCatalogInfo struct {
	Number    uint32
	Filename  string
	SizeBytes int64
	State     SegmentState
	Checksum  string
	CreatedAt time.Time
	SealedAt  *time.Time
}

// SegmentCatalog persists segment metadata and the checkpoint anchor outside
// the WAL directory itself. It is an accelerant for segment discovery and
// checkpoint-anchor lookup, never a replacement for the on-disk format or
// the scan semantics Recover falls back to when no catalog is configured or
// the catalog disagrees with what's actually on disk.
type SegmentCatalog interface {
	RegisterSegment(ctx context.Context, number uint32, filename string) error
	SealSegment(ctx context.Context, number uint32, checksum string, sizeBytes int64) error
	MarkArchived(ctx context.Context, numbers []uint32) error
	ListSegments(ctx context.Context) ([]SegmentCatalogInfo, error)
	GetCheckpointAnchor(ctx context.Context) (WalLocation, error)
	SetCheckpointAnchor(ctx context.Context, loc WalLocation) error
}

// PostgresCatalog implements SegmentCatalog on top of PostgreSQL, following
// the same QueryRow/Exec/pgx.ErrNoRows idiom used throughout this package's
// ancestry. Expected schema:
//
//	CREATE TABLE wal_segments (
//	    number     BIGINT PRIMARY KEY,
//	    filename   TEXT NOT NULL,
//	    size_bytes BIGINT NOT NULL DEFAULT 0,
//	    state      TEXT NOT NULL DEFAULT 'active',
//	    checksum   TEXT,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    sealed_at  TIMESTAMPTZ
//	);
//	CREATE TABLE wal_checkpoint (
//	    id             SMALLINT PRIMARY KEY DEFAULT 1,
//	    anchor_segment BIGINT NOT NULL,
//	    anchor_offset  BIGINT NOT NULL
//	);
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog wraps an already-connected pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

func (c *PostgresCatalog) RegisterSegment(ctx context.Context, number uint32, filename string) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO wal_segments (number, filename, state, created_at)
		VALUES ($1, $2, 'active', NOW())
		ON CONFLICT (number) DO NOTHING
	`, number, filename)
	if err != nil {
		return fmt.Errorf("register segment %d: %w", number, err)
	}
	return nil
}

func (c *PostgresCatalog) SealSegment(ctx context.Context, number uint32, checksum string, sizeBytes int64) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE wal_segments
		SET state = 'full', checksum = $2, size_bytes = $3, sealed_at = NOW()
		WHERE number = $1
	`, number, checksum, sizeBytes)
	if err != nil {
		return fmt.Errorf("seal segment %d: %w", number, err)
	}
	return nil
}

func (c *PostgresCatalog) MarkArchived(ctx context.Context, numbers []uint32) error {
	if len(numbers) == 0 {
		return nil
	}
	ids := make([]int64, len(numbers))
	for i, n := range numbers {
		ids[i] = int64(n)
	}
	_, err := c.pool.Exec(ctx, `UPDATE wal_segments SET state = 'archived' WHERE number = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) ListSegments(ctx context.Context) ([]SegmentCatalogInfo, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT number, filename, size_bytes, state, checksum, created_at, sealed_at
		FROM wal_segments
		ORDER BY number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var out []SegmentCatalogInfo
	for rows.Next() {
		var info SegmentCatalogInfo
		var state string
		var checksum *string
		var sealedAt *time.Time
		var number int64
		if err := rows.Scan(&number, &info.Filename, &info.SizeBytes, &state, &checksum, &info.CreatedAt, &sealedAt); err != nil {
			return nil, fmt.Errorf("scan segment row: %w", err)
		}
		info.Number = uint32(number)
		info.State = parseSegmentState(state)
		if checksum != nil {
			info.Checksum = *checksum
		}
		info.SealedAt = sealedAt
		out = append(out, info)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) GetCheckpointAnchor(ctx context.Context) (WalLocation, error) {
	var seg, off int64
	err := c.pool.QueryRow(ctx, `SELECT anchor_segment, anchor_offset FROM wal_checkpoint WHERE id = 1`).Scan(&seg, &off)
	if err == pgx.ErrNoRows {
		return ZeroLocation, nil
	}
	if err != nil {
		return ZeroLocation, fmt.Errorf("get checkpoint anchor: %w", err)
	}
	return WalLocation{Segment: uint32(seg), Offset: uint32(off)}, nil
}

func (c *PostgresCatalog) SetCheckpointAnchor(ctx context.Context, loc WalLocation) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO wal_checkpoint (id, anchor_segment, anchor_offset)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET anchor_segment = $1, anchor_offset = $2
	`, loc.Segment, loc.Offset)
	if err != nil {
		return fmt.Errorf("set checkpoint anchor: %w", err)
	}
	return nil
}

func parseSegmentState(s string) SegmentState {
	switch s {
	case "active":
		return SegmentActive
	case "full":
		return SegmentFull
	case "archived":
		return SegmentArchived
	default:
		return SegmentEmpty
	}
}

// InMemoryCatalog implements SegmentCatalog without any external dependency.
// Its contents live only in process memory. It is not substituted
// automatically when no catalog DSN is configured (walctl then runs with no
// catalog at all); the tests use it.
type InMemoryCatalog struct {
	mu       sync.Mutex
	segments map[uint32]*SegmentCatalogInfo
	anchor   WalLocation
}

func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{segments: make(map[uint32]*SegmentCatalogInfo)}
}

func (c *InMemoryCatalog) RegisterSegment(_ context.Context, number uint32, filename string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.segments[number]; ok {
		return nil
	}
	c.segments[number] = &SegmentCatalogInfo{Number: number, Filename: filename, State: SegmentActive, CreatedAt: time.Now()}
	return nil
}

func (c *InMemoryCatalog) SealSegment(_ context.Context, number uint32, checksum string, sizeBytes int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.segments[number]
	if !ok {
		return fmt.Errorf("segment %d not registered", number)
	}
	now := time.Now()
	info.State = SegmentFull
	info.Checksum = checksum
	info.SizeBytes = sizeBytes
	info.SealedAt = &now
	return nil
}

func (c *InMemoryCatalog) MarkArchived(_ context.Context, numbers []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range numbers {
		if info, ok := c.segments[n]; ok {
			info.State = SegmentArchived
		}
	}
	return nil
}

func (c *InMemoryCatalog) ListSegments(_ context.Context) ([]SegmentCatalogInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SegmentCatalogInfo, 0, len(c.segments))
	for _, info := range c.segments {
		out = append(out, *info)
	}
	return out, nil
}

func (c *InMemoryCatalog) GetCheckpointAnchor(_ context.Context) (WalLocation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anchor, nil
}

func (c *InMemoryCatalog) SetCheckpointAnchor(_ context.Context, loc WalLocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = loc
	return nil
}
