package ledger

import (
	"io"
	"log"
	"testing"

	"updown-monitor/internal/event"
)

func testBook() *Book {
	return NewBook(log.New(io.Discard, "", 0))
}

func TestBook_FullRoundTrip(t *testing.T) {
	b := testBook()

	// BUY 10 shares at cost 5.00, SELL all 10 for proceeds 7.00.
	b.Buy("alice", event.SideUp, 10*event.ShareScale, 5*event.CashScale)
	res := b.Sell("alice", event.SideUp, 10*event.ShareScale, 7*event.CashScale)

	if res.RealizedPnL != 2*event.CashScale {
		t.Errorf("realized PnL = %d, want %d", res.RealizedPnL, 2*event.CashScale)
	}
	pos := b.Position("alice", event.SideUp)
	if pos.Shares != 0 || pos.TotalCost != 0 {
		t.Errorf("position not flat after full sell: %+v", pos)
	}
}

func TestBook_PartialSellProportionality(t *testing.T) {
	b := testBook()

	// BUY 10 @ 5.00 (avg 0.50/share), SELL 4.
	b.Buy("alice", event.SideDown, 10*event.ShareScale, 5*event.CashScale)
	res := b.Sell("alice", event.SideDown, 4*event.ShareScale, 3*event.CashScale)

	if res.RemovedCost != 2*event.CashScale {
		t.Errorf("removed cost = %d, want %d", res.RemovedCost, 2*event.CashScale)
	}
	pos := b.Position("alice", event.SideDown)
	if pos.Shares != 6*event.ShareScale {
		t.Errorf("remaining shares = %d, want %d", pos.Shares, 6*event.ShareScale)
	}
	if pos.TotalCost != 3*event.CashScale {
		t.Errorf("remaining cost = %d, want %d", pos.TotalCost, 3*event.CashScale)
	}
}

func TestBook_OversellClampsNeverNegative(t *testing.T) {
	b := testBook()

	b.Buy("bob", event.SideUp, 3*event.ShareScale, 2*event.CashScale)
	res := b.Sell("bob", event.SideUp, 5*event.ShareScale, 4*event.CashScale)

	if !res.Clamped {
		t.Error("expected oversell to be clamped")
	}
	if res.SharesApplied != 3*event.ShareScale {
		t.Errorf("shares applied = %d, want clamp to %d", res.SharesApplied, 3*event.ShareScale)
	}
	// Clamped full sell removes the entire cost.
	if res.RemovedCost != 2*event.CashScale {
		t.Errorf("removed cost = %d, want %d", res.RemovedCost, 2*event.CashScale)
	}
	pos := b.Position("bob", event.SideUp)
	if pos.Shares != 0 || pos.TotalCost != 0 {
		t.Errorf("position driven past zero: %+v", pos)
	}
}

func TestBook_SellFromEmptyIsNoOp(t *testing.T) {
	b := testBook()

	res := b.Sell("carol", event.SideDown, event.ShareScale, event.CashScale)
	if res.SharesApplied != 0 || res.RemovedCost != 0 {
		t.Errorf("sell from empty applied something: %+v", res)
	}
	if !res.Clamped {
		t.Error("sell from empty should report clamp")
	}
	// Proceeds with zero basis still count as realized gain.
	if res.RealizedPnL != event.CashScale {
		t.Errorf("realized PnL = %d, want %d", res.RealizedPnL, event.CashScale)
	}
}

func TestBook_InvariantsUnderSequence(t *testing.T) {
	b := testBook()

	steps := []struct {
		action event.Action
		shares int64
		amount int64
	}{
		{event.ActionBuy, 10 * event.ShareScale, 5 * event.CashScale},
		{event.ActionSell, 4 * event.ShareScale, 3 * event.CashScale},
		{event.ActionBuy, 1 * event.ShareScale, 2 * event.CashScale},
		{event.ActionSell, 20 * event.ShareScale, 1 * event.CashScale}, // oversell
		{event.ActionBuy, 2 * event.ShareScale, 1 * event.CashScale},
		{event.ActionSell, 2 * event.ShareScale, 2 * event.CashScale},
	}

	for i, s := range steps {
		if s.action == event.ActionBuy {
			b.Buy("dave", event.SideUp, s.shares, s.amount)
		} else {
			b.Sell("dave", event.SideUp, s.shares, s.amount)
		}
		pos := b.Position("dave", event.SideUp)
		if pos.Shares < 0 || pos.TotalCost < 0 {
			t.Fatalf("step %d violated non-negativity: %+v", i, pos)
		}
	}
}

func TestBook_ApplyUsesMagnitudes(t *testing.T) {
	b := testBook()

	b.Apply(&event.TradeEvent{
		Side: event.SideUp, Action: event.ActionBuy, User: "erin",
		ShareDelta: 10 * event.ShareScale, NetAmount: 5 * event.CashScale,
	})
	// Producer reports sells with negative deltas.
	res := b.Apply(&event.TradeEvent{
		Side: event.SideUp, Action: event.ActionSell, User: "erin",
		ShareDelta: -10 * event.ShareScale, NetAmount: -7 * event.CashScale,
	})

	if res.RealizedPnL != 2*event.CashScale {
		t.Errorf("realized PnL = %d, want %d", res.RealizedPnL, 2*event.CashScale)
	}
}

func TestBook_SidesIndependent(t *testing.T) {
	b := testBook()

	b.Buy("frank", event.SideUp, 5*event.ShareScale, 5*event.CashScale)
	b.Buy("frank", event.SideDown, 7*event.ShareScale, 3*event.CashScale)
	b.Sell("frank", event.SideUp, 5*event.ShareScale, 6*event.CashScale)

	down := b.Position("frank", event.SideDown)
	if down.Shares != 7*event.ShareScale || down.TotalCost != 3*event.CashScale {
		t.Errorf("down side disturbed by up-side sell: %+v", down)
	}
}

func TestBook_Reset(t *testing.T) {
	b := testBook()
	b.Buy("gina", event.SideUp, event.ShareScale, event.CashScale)
	b.Reset()
	if b.Len() != 0 {
		t.Errorf("expected empty book after reset, got %d entries", b.Len())
	}
}
