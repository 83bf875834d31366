// Package memory provides in-memory storage implementations for tests
// and --use-memory runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/storage"
)

// TradeHistoryStore implements storage.TradeHistoryStore in memory.
type TradeHistoryStore struct {
	mu     sync.RWMutex
	rows   []*domain.TradeRow
	nextID int64
}

// NewTradeHistoryStore creates an empty in-memory trade history store.
func NewTradeHistoryStore() *TradeHistoryStore {
	return &TradeHistoryStore{nextID: 1}
}

// Compile-time interface check.
var _ storage.TradeHistoryStore = (*TradeHistoryStore)(nil)

// Insert adds a new trade row.
func (s *TradeHistoryStore) Insert(_ context.Context, row *domain.TradeRow) error {
	if row == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *row
	stored.ID = s.nextID
	s.nextID++
	if stored.CreatedAt == 0 {
		stored.CreatedAt = time.Now().UnixMilli()
	}
	s.rows = append(s.rows, &stored)
	return nil
}

// GetByUserCycle retrieves a user's rows for one cycle, timestamp ASC.
func (s *TradeHistoryStore) GetByUserCycle(_ context.Context, user string, cycleID int64) ([]*domain.TradeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeRow
	for _, row := range s.rows {
		if row.User == user && row.CycleID == cycleID {
			copied := *row
			out = append(out, &copied)
		}
	}

	// Stable sort keeps insertion order for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

// LatestCycleID returns the most recent cycle id the user traded in.
func (s *TradeHistoryStore) LatestCycleID(_ context.Context, user string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	found := false
	for _, row := range s.rows {
		if row.User == user && (!found || row.CycleID > latest) {
			latest = row.CycleID
			found = true
		}
	}
	if !found {
		return 0, storage.ErrNotFound
	}
	return latest, nil
}

// Len returns the number of stored rows.
func (s *TradeHistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
