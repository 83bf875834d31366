package memory

import (
	"context"
	"sync"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/event"
	"updown-monitor/internal/storage"
)

// VolumeStore implements storage.VolumeStore in memory.
type VolumeStore struct {
	mu         sync.Mutex
	increments []*domain.VolumeIncrement
}

// NewVolumeStore creates an empty in-memory volume store.
func NewVolumeStore() *VolumeStore {
	return &VolumeStore{}
}

// Compile-time interface check.
var _ storage.VolumeStore = (*VolumeStore)(nil)

// Increment appends one volume delta.
func (s *VolumeStore) Increment(_ context.Context, inc *domain.VolumeIncrement) error {
	if inc == nil {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *inc
	s.increments = append(s.increments, &copied)
	return nil
}

// TotalShares returns the accumulated share volume for one side.
func (s *VolumeStore) TotalShares(side event.Side) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, inc := range s.increments {
		if inc.Side == side {
			total += inc.Shares
		}
	}
	return total
}

// Len returns the number of recorded increments.
func (s *VolumeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.increments)
}
