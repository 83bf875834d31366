package costbasis

import (
	"context"
	"testing"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/event"
	"updown-monitor/internal/storage/memory"
)

func TestReplay_Empty(t *testing.T) {
	snap := Replay(nil)
	if *snap != (domain.CostBasisSnapshot{}) {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestReplay_MatchesLedgerRule(t *testing.T) {
	rows := []*domain.TradeRow{
		{Side: event.SideUp, Action: event.ActionBuy, Shares: 10 * event.ShareScale, Cost: 5 * event.CashScale},
		{Side: event.SideUp, Action: event.ActionSell, Shares: 4 * event.ShareScale},
		{Side: event.SideDown, Action: event.ActionBuy, Shares: 2 * event.ShareScale, Cost: 1 * event.CashScale},
	}

	snap := Replay(rows)

	// Partial sell of 4/10 removes 2.00 of the 5.00 basis.
	if snap.UpShares != 6*event.ShareScale {
		t.Errorf("up shares = %d, want %d", snap.UpShares, 6*event.ShareScale)
	}
	if snap.UpCost != 3*event.CashScale {
		t.Errorf("up cost = %d, want %d", snap.UpCost, 3*event.CashScale)
	}
	if snap.DownShares != 2*event.ShareScale || snap.DownCost != 1*event.CashScale {
		t.Errorf("down leg wrong: %+v", snap)
	}
}

func TestReplay_OversellClampsAtZero(t *testing.T) {
	rows := []*domain.TradeRow{
		{Side: event.SideUp, Action: event.ActionBuy, Shares: 3 * event.ShareScale, Cost: 2 * event.CashScale},
		{Side: event.SideUp, Action: event.ActionSell, Shares: 9 * event.ShareScale},
	}

	snap := Replay(rows)
	if snap.UpShares != 0 || snap.UpCost != 0 {
		t.Errorf("expected flat up leg after oversell, got %+v", snap)
	}
}

func TestService_SnapshotUsesLatestCycle(t *testing.T) {
	history := memory.NewTradeHistoryStore()
	ctx := context.Background()

	// Old cycle should be invisible to the snapshot.
	history.Insert(ctx, &domain.TradeRow{
		User: "alice", CycleID: 1, Side: event.SideUp, Action: event.ActionBuy,
		Shares: 100 * event.ShareScale, Cost: 100 * event.CashScale, Timestamp: 1,
	})
	history.Insert(ctx, &domain.TradeRow{
		User: "alice", CycleID: 2, Side: event.SideDown, Action: event.ActionBuy,
		Shares: 5 * event.ShareScale, Cost: 4 * event.CashScale, Timestamp: 2,
	})

	svc := NewService(history)
	snap, cycleID, err := svc.Snapshot(ctx, "alice")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if cycleID != 2 {
		t.Errorf("cycle id = %d, want 2", cycleID)
	}
	if snap.UpShares != 0 || snap.UpCost != 0 {
		t.Errorf("old cycle leaked into snapshot: %+v", snap)
	}
	if snap.DownShares != 5*event.ShareScale || snap.DownCost != 4*event.CashScale {
		t.Errorf("down leg wrong: %+v", snap)
	}
}

func TestService_SnapshotNoHistory(t *testing.T) {
	svc := NewService(memory.NewTradeHistoryStore())

	snap, cycleID, err := svc.Snapshot(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if cycleID != 0 || *snap != (domain.CostBasisSnapshot{}) {
		t.Errorf("expected empty snapshot for unknown user, got cycle=%d snap=%+v", cycleID, snap)
	}
}
