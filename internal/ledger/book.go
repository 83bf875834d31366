// Package ledger maintains per-(user, side) weighted-average cost-basis
// positions and emits realized P&L on sells.
package ledger

import (
	"log"
	"math/big"

	"updown-monitor/internal/event"
)

// Key identifies one position entry.
type Key struct {
	User string
	Side event.Side
}

// Position is the mutable per-(user, side) state. Invariant: Shares >= 0
// and TotalCost >= 0 after every applied event; TotalCost/Shares is the
// weighted average entry price.
type Position struct {
	Shares    int64 // share minor units (event.ShareScale)
	TotalCost int64 // currency minor units (event.CashScale)
}

// Result describes the effect of one applied trade.
type Result struct {
	SharesApplied int64 // shares actually applied after oversell clamping
	RemovedCost   int64 // cost removed on sell, 0 on buy
	RealizedPnL   int64 // proceeds - removed cost, 0 on buy
	Clamped       bool  // sell exceeded holdings and was clamped
}

// Book holds every position for the current cycle. Entries are created
// lazily and never deleted; durable truth lives in the trade-history
// store. Mutated only from the single event loop, so no locking.
type Book struct {
	positions map[Key]Position
	logger    *log.Logger
}

// NewBook creates an empty position book.
func NewBook(logger *log.Logger) *Book {
	if logger == nil {
		logger = log.Default()
	}
	return &Book{
		positions: make(map[Key]Position),
		logger:    logger,
	}
}

// Apply routes a trade event to Buy or Sell. Amounts are taken as
// magnitudes: the producer's sign convention for sell deltas is not
// load-bearing here.
func (b *Book) Apply(ev *event.TradeEvent) Result {
	shares := abs(ev.ShareDelta)
	amount := abs(ev.NetAmount)

	if ev.Action == event.ActionBuy {
		return b.Buy(ev.User, ev.Side, shares, amount)
	}
	return b.Sell(ev.User, ev.Side, shares, amount)
}

// Buy adds shares at cost to the (user, side) position.
func (b *Book) Buy(user string, side event.Side, shares, cost int64) Result {
	key := Key{User: user, Side: side}
	pos := b.positions[key]
	pos.Shares += shares
	pos.TotalCost += cost
	b.positions[key] = pos

	return Result{SharesApplied: shares}
}

// Sell removes shares, taking cost out proportionally to the fraction of
// holdings sold. A sell exceeding current holdings is clamped to them and
// logged as an inconsistency; shares and cost are floored at zero, never
// driven negative. Realized P&L is proceeds minus the removed cost.
func (b *Book) Sell(user string, side event.Side, shares, proceeds int64) Result {
	key := Key{User: user, Side: side}
	pos := b.positions[key]

	sold := shares
	clamped := false
	if sold > pos.Shares {
		b.logger.Printf("[ledger] oversell clamped: user=%s side=%s requested=%d held=%d",
			user, side, sold, pos.Shares)
		sold = pos.Shares
		clamped = true
	}

	removed := proportionalCost(pos.TotalCost, sold, pos.Shares)

	pos.Shares -= sold
	pos.TotalCost -= removed
	if pos.Shares < 0 {
		pos.Shares = 0
	}
	if pos.TotalCost < 0 {
		pos.TotalCost = 0
	}
	b.positions[key] = pos

	return Result{
		SharesApplied: sold,
		RemovedCost:   removed,
		RealizedPnL:   proceeds - removed,
		Clamped:       clamped,
	}
}

// Position returns the current (user, side) position.
func (b *Book) Position(user string, side event.Side) Position {
	return b.positions[Key{User: user, Side: side}]
}

// Len returns the number of tracked position entries.
func (b *Book) Len() int {
	return len(b.positions)
}

// Reset clears all positions at cycle rollover.
func (b *Book) Reset() {
	b.positions = make(map[Key]Position)
}

// ProportionalCost returns floor(totalCost * sold / held): the share of
// cost basis removed when sold of held shares leave the position. A full
// sell removes the entire cost exactly. The cost-basis query service must
// apply this identical rule when replaying history rows.
func ProportionalCost(totalCost, sold, held int64) int64 {
	return proportionalCost(totalCost, sold, held)
}

// proportionalCost goes through big.Int so totalCost*sold cannot overflow
// int64 at minor-unit magnitudes.
func proportionalCost(totalCost, sold, held int64) int64 {
	if held == 0 || sold == 0 {
		return 0
	}
	if sold >= held {
		return totalCost
	}
	num := new(big.Int).Mul(big.NewInt(totalCost), big.NewInt(sold))
	return num.Div(num, big.NewInt(held)).Int64()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
