package memory

import (
	"context"
	"sync"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/event"
	"updown-monitor/internal/storage"
)

// PointsStore implements storage.PointsStore in memory. The signature map
// plays the role of the external store's unique constraint: check and
// insert happen under one lock, so duplicate signatures credit exactly
// once.
type PointsStore struct {
	mu         sync.Mutex
	signatures map[string]int64  // sig -> points awarded
	totals     map[string]int64  // master identity -> cumulative points
	masters    map[string]string // session identity -> master identity
}

// NewPointsStore creates an empty in-memory points store.
func NewPointsStore() *PointsStore {
	return &PointsStore{
		signatures: make(map[string]int64),
		totals:     make(map[string]int64),
		masters:    make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.PointsStore = (*PointsStore)(nil)

// SignatureExists reports whether the signature was already applied.
func (s *PointsStore) SignatureExists(_ context.Context, sig string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.signatures[sig]
	return ok, nil
}

// RecordTrade credits trade points once per signature.
func (s *PointsStore) RecordTrade(_ context.Context, identity string, shares int64, _ event.Side, action event.Action, sig string) (int64, error) {
	return s.apply(identity, sig, domain.TradePoints(shares, action))
}

// RecordDeposit credits deposit points once per signature.
func (s *PointsStore) RecordDeposit(_ context.Context, identity string, amount int64, sig string) (int64, error) {
	return s.apply(identity, sig, domain.DepositPoints(amount))
}

// RecordWin credits win points once per signature.
func (s *PointsStore) RecordWin(_ context.Context, identity string, profit int64, sig string) (int64, error) {
	return s.apply(identity, sig, domain.WinPoints(profit))
}

// MasterIdentity resolves a session identity to its master identity.
func (s *PointsStore) MasterIdentity(_ context.Context, session string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	master, ok := s.masters[session]
	if !ok {
		return "", storage.ErrNotFound
	}
	return master, nil
}

// SetMasterIdentity registers a session -> master mapping (test/dev).
func (s *PointsStore) SetMasterIdentity(session, master string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masters[session] = master
}

// Points returns the cumulative points credited to an identity.
func (s *PointsStore) Points(identity string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[identity]
}

// apply inserts the signature and increments points atomically.
func (s *PointsStore) apply(identity, sig string, points int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signatures[sig]; ok {
		// Duplicate signature: no-op, not an error.
		return 0, nil
	}
	s.signatures[sig] = points
	s.totals[identity] += points
	return points, nil
}
