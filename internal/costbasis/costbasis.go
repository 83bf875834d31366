// Package costbasis recomputes a user's current-cycle cost basis by
// replaying durable trade-history rows. Used only by reward accrual.
package costbasis

import (
	"context"
	"errors"
	"fmt"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/event"
	"updown-monitor/internal/ledger"
	"updown-monitor/internal/storage"
)

// Service answers cost-basis queries against the trade-history store.
// Stateless: every query replays fresh rows, no caching.
type Service struct {
	history storage.TradeHistoryStore
}

// NewService creates a new cost-basis query service.
func NewService(history storage.TradeHistoryStore) *Service {
	return &Service{history: history}
}

// Snapshot replays the user's most recent cycle and returns the derived
// cost basis plus the cycle id it covers. A user with no history gets an
// empty snapshot and cycle 0.
func (s *Service) Snapshot(ctx context.Context, user string) (*domain.CostBasisSnapshot, int64, error) {
	cycleID, err := s.history.LatestCycleID(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &domain.CostBasisSnapshot{}, 0, nil
		}
		return nil, 0, fmt.Errorf("latest cycle for %s: %w", user, err)
	}

	rows, err := s.history.GetByUserCycle(ctx, user, cycleID)
	if err != nil {
		return nil, 0, fmt.Errorf("history rows for %s cycle %d: %w", user, cycleID, err)
	}

	return Replay(rows), cycleID, nil
}

// Replay folds BUY/SELL rows in chronological order into a cost-basis
// snapshot, applying the identical proportional-reduction rule as the
// position ledger: a sell removes cost in proportion to the fraction of
// held shares sold, clamped at holdings, floored at zero.
func Replay(rows []*domain.TradeRow) *domain.CostBasisSnapshot {
	snap := &domain.CostBasisSnapshot{}

	for _, row := range rows {
		shares, cost := snap.UpShares, snap.UpCost
		if row.Side == event.SideDown {
			shares, cost = snap.DownShares, snap.DownCost
		}

		switch row.Action {
		case event.ActionBuy:
			shares += row.Shares
			cost += row.Cost
		case event.ActionSell:
			sold := row.Shares
			if sold > shares {
				sold = shares
			}
			removed := ledger.ProportionalCost(cost, sold, shares)
			shares -= sold
			cost -= removed
			if shares < 0 {
				shares = 0
			}
			if cost < 0 {
				cost = 0
			}
		}

		if row.Side == event.SideDown {
			snap.DownShares, snap.DownCost = shares, cost
		} else {
			snap.UpShares, snap.UpCost = shares, cost
		}
	}

	return snap
}
