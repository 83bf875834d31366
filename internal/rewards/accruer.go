// Package rewards credits trade, deposit and win points against the
// points store, at most once per transaction signature.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"log"

	"updown-monitor/internal/costbasis"
	"updown-monitor/internal/event"
	"updown-monitor/internal/storage"
)

// Accruer evaluates decoded events for reward eligibility. The
// SignatureExists pre-check is a guard that saves a store round trip on
// the common duplicate path; the Record* insert itself is what makes
// crediting at-most-once under concurrent redelivery.
type Accruer struct {
	points storage.PointsStore
	basis  *costbasis.Service
	logger *log.Logger

	// masters memoizes session -> master identity for process lifetime.
	// Unbounded and never evicted: the mapping is immutable once
	// established, and cardinality is the active-user count.
	masters map[string]string
}

// NewAccruer creates a new reward accruer.
func NewAccruer(points storage.PointsStore, basis *costbasis.Service, logger *log.Logger) *Accruer {
	if logger == nil {
		logger = log.Default()
	}
	return &Accruer{
		points:  points,
		basis:   basis,
		logger:  logger,
		masters: make(map[string]string),
	}
}

// AccrueTrade credits trade points: a function of share size and
// direction, independent of profit. The duplicate return reports a
// signature that has already been credited, as opposed to a fresh event
// that simply earned zero points.
func (a *Accruer) AccrueTrade(ctx context.Context, ev *event.TradeEvent) (points int64, duplicate bool, err error) {
	seen, err := a.points.SignatureExists(ctx, ev.Signature)
	if err != nil {
		return 0, false, fmt.Errorf("signature guard: %w", err)
	}
	if seen {
		return 0, true, nil
	}

	master, err := a.resolveMaster(ctx, ev.User)
	if err != nil {
		return 0, false, err
	}

	shares := ev.ShareDelta
	if shares < 0 {
		shares = -shares
	}
	points, err = a.points.RecordTrade(ctx, master, shares, ev.Side, ev.Action, ev.Signature)
	return points, false, err
}

// AccrueDeposit credits deposit points as a function of the amount.
// Sub-unit deposits earn zero points but are not duplicates.
func (a *Accruer) AccrueDeposit(ctx context.Context, ev *event.DepositEvent) (points int64, duplicate bool, err error) {
	seen, err := a.points.SignatureExists(ctx, ev.Signature)
	if err != nil {
		return 0, false, fmt.Errorf("signature guard: %w", err)
	}
	if seen {
		return 0, true, nil
	}

	master, err := a.resolveMaster(ctx, ev.User)
	if err != nil {
		return 0, false, err
	}
	points, err = a.points.RecordDeposit(ctx, master, ev.Amount, ev.Signature)
	return points, false, err
}

// AccrueWin credits win points when the payout exceeds the cost basis of
// the winning side. The winning side is taken to be the side with the
// larger current-cycle share count, an approximation that picks the
// bigger leg for users holding both sides.
func (a *Accruer) AccrueWin(ctx context.Context, ev *event.RedeemEvent) (points int64, duplicate bool, err error) {
	seen, err := a.points.SignatureExists(ctx, ev.Signature)
	if err != nil {
		return 0, false, fmt.Errorf("signature guard: %w", err)
	}
	if seen {
		return 0, true, nil
	}

	snap, cycleID, err := a.basis.Snapshot(ctx, ev.User)
	if err != nil {
		return 0, false, fmt.Errorf("cost basis for %s: %w", ev.User, err)
	}

	winningCost := snap.UpCost
	winningSide := event.SideUp
	if snap.DownShares > snap.UpShares {
		winningCost = snap.DownCost
		winningSide = event.SideDown
	}
	if snap.UpShares > 0 && snap.DownShares > 0 {
		a.logger.Printf("[rewards] user %s holds both sides in cycle %d, using %s basis",
			ev.User, cycleID, winningSide)
	}

	profit := ev.Payout - winningCost
	if profit <= 0 {
		return 0, false, nil
	}

	master, err := a.resolveMaster(ctx, ev.User)
	if err != nil {
		return 0, false, err
	}
	points, err = a.points.RecordWin(ctx, master, profit, ev.Signature)
	return points, false, err
}

// resolveMaster maps a session identity to its durable master identity,
// memoized for process lifetime. A session with no link is its own
// master.
func (a *Accruer) resolveMaster(ctx context.Context, session string) (string, error) {
	if master, ok := a.masters[session]; ok {
		return master, nil
	}

	master, err := a.points.MasterIdentity(ctx, session)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			master = session
		} else {
			return "", fmt.Errorf("resolve master for %s: %w", session, err)
		}
	}

	a.masters[session] = master
	return master, nil
}
