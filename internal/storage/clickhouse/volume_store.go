package clickhouse

import (
	"context"
	"fmt"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/storage"
)

// VolumeStore implements storage.VolumeStore using ClickHouse. Increments
// are append-only; per-side aggregates are a SUM at query time, which is
// what MergeTree is good at.
type VolumeStore struct {
	conn *Conn
}

// NewVolumeStore creates a new VolumeStore.
func NewVolumeStore(conn *Conn) *VolumeStore {
	return &VolumeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.VolumeStore = (*VolumeStore)(nil)

// Increment appends one volume delta.
func (s *VolumeStore) Increment(ctx context.Context, inc *domain.VolumeIncrement) error {
	if inc == nil {
		return storage.ErrInvalidInput
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO volume_increments (side, amount, shares, timestamp_ms)
		VALUES (?, ?, ?, ?)
	`, inc.Side.String(), inc.Amount, inc.Shares, uint64(inc.Timestamp))
	if err != nil {
		return fmt.Errorf("insert volume increment: %w", err)
	}
	return nil
}
