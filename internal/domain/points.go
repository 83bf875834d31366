package domain

import "updown-monitor/internal/event"

// Reward point formulas. Pure functions shared by every points-store
// implementation so the amounts credited are identical regardless of
// backend.

// WinPointsPerUnit scales win points per whole currency unit of profit.
const WinPointsPerUnit = 10

// TradePoints is a function of share size and direction, independent of
// profit: one point per whole share, doubled for buys (new risk taken),
// with a floor of one point for any nonzero trade.
func TradePoints(shares int64, action event.Action) int64 {
	if shares <= 0 {
		return 0
	}
	points := shares / event.ShareScale
	if action == event.ActionBuy {
		points *= 2
	}
	if points == 0 {
		points = 1
	}
	return points
}

// DepositPoints is one point per whole currency unit deposited.
func DepositPoints(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount / event.CashScale
}

// WinPoints scales with realized profit; zero when profit <= 0.
func WinPoints(profit int64) int64 {
	if profit <= 0 {
		return 0
	}
	return profit / event.CashScale * WinPointsPerUnit
}
