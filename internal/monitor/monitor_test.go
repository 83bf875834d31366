package monitor

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"updown-monitor/internal/costbasis"
	"updown-monitor/internal/event"
	"updown-monitor/internal/hub"
	"updown-monitor/internal/ledger"
	"updown-monitor/internal/observability"
	"updown-monitor/internal/rewards"
	"updown-monitor/internal/sink"
	"updown-monitor/internal/solana"
	"updown-monitor/internal/solana/stub"
	"updown-monitor/internal/storage/memory"
)

// One registry-backed metrics instance per test binary.
var testMetrics = observability.NewMetrics("updown_monitor_test")

// onCurveUser is the system program address: a valid curve point that
// also serves as a plausible wallet key in fixtures.
const onCurveUser = "11111111111111111111111111111111"

const testUser = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

type fakeWS struct {
	ch           chan solana.LogNotification
	unsubscribed bool
	mu           sync.Mutex
}

func newFakeWS() *fakeWS {
	return &fakeWS{ch: make(chan solana.LogNotification, 64)}
}

func (f *fakeWS) SubscribeLogs(context.Context, solana.LogsFilter) (int64, <-chan solana.LogNotification, error) {
	return 1, f.ch, nil
}

func (f *fakeWS) UnsubscribeLogs(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = true
	return nil
}

func (f *fakeWS) Close() error { return nil }

// collector records hub deliveries.
type collector struct {
	mu       sync.Mutex
	received []*hub.Envelope
}

func (c *collector) Send(msg *hub.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, msg)
	return true
}

func (c *collector) Close() {}

func (c *collector) byType(t string) []*hub.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*hub.Envelope
	for _, msg := range c.received {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

type harness struct {
	ws      *fakeWS
	rpc     *stub.RPCClient
	book    *ledger.Book
	points  *memory.PointsStore
	history *memory.TradeHistoryStore
	volume  *memory.VolumeStore
	hub     *hub.Hub
	sub     *collector
	monitor *Monitor
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		ws:      newFakeWS(),
		rpc:     stub.NewRPCClient(),
		book:    ledger.NewBook(log.Default()),
		points:  memory.NewPointsStore(),
		history: memory.NewTradeHistoryStore(),
		volume:  memory.NewVolumeStore(),
		hub:     hub.New(log.Default()),
		sub:     &collector{},
	}
	h.hub.Register(h.sub)

	queue := sink.NewQueue(128, log.Default(), nil)
	queue.Start(context.Background(), 1)

	accruer := rewards.NewAccruer(h.points, costbasis.NewService(h.history), log.Default())

	if opts.ProgramID == "" {
		opts.ProgramID = "program"
	}
	if opts.LookupAttempts == 0 {
		opts.LookupAttempts = 2
	}
	if opts.LookupBaseDelay == 0 {
		opts.LookupBaseDelay = time.Millisecond
	}

	h.monitor = New(Deps{
		WS:      h.ws,
		RPC:     h.rpc,
		Book:    h.book,
		Accruer: accruer,
		History: h.history,
		Volume:  h.volume,
		Queue:   queue,
		Hub:     h.hub,
		Metrics: testMetrics,
		Logger:  log.Default(),
	}, opts)
	return h
}

// run feeds the notifications through a full Run cycle: the channel is
// closed after the batch, so Run drains, tears down and returns.
func (h *harness) run(t *testing.T, notifications ...solana.LogNotification) {
	t.Helper()
	for _, n := range notifications {
		h.ws.ch <- n
	}
	close(h.ws.ch)

	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func tradeLog(t *testing.T, user string, side event.Side, action event.Action, shares, amount, price int64) string {
	t.Helper()
	return event.LogLine(event.EncodeTrade(&event.TradeEvent{
		Side:       side,
		Action:     action,
		NetAmount:  amount,
		ShareDelta: shares,
		AvgPrice:   price,
		User:       user,
	}))
}

func TestMonitor_MultiEventBatch(t *testing.T) {
	h := newHarness(t, Options{})

	// One signature closing both legs: two ledger updates, two broadcasts.
	h.book.Buy(testUser, event.SideUp, 10*event.ShareScale, 5*event.CashScale)
	h.book.Buy(testUser, event.SideDown, 4*event.ShareScale, 2*event.CashScale)

	h.run(t, solana.LogNotification{
		Signature: "sig-batch",
		Logs: []string{
			"Program log: instruction Trade",
			tradeLog(t, testUser, event.SideUp, event.ActionSell, 10*event.ShareScale, 7*event.CashScale, 700_000),
			tradeLog(t, testUser, event.SideDown, event.ActionSell, 4*event.ShareScale, 1*event.CashScale, 250_000),
		},
	})

	assert.Zero(t, h.book.Position(testUser, event.SideUp).Shares)
	assert.Zero(t, h.book.Position(testUser, event.SideDown).Shares)

	trades := h.sub.byType(hub.TypeTrade)
	require.Len(t, trades, 2)
	assert.Equal(t, "SELL", trades[0].Trade.Action)
	require.NotNil(t, trades[0].Trade.RealizedPnL)
	assert.Equal(t, int64(2*event.CashScale), *trades[0].Trade.RealizedPnL)

	rows, err := h.history.GetByUserCycle(context.Background(), testUser, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, h.volume.Len())
}

func TestMonitor_FailedTxSkipsEverything(t *testing.T) {
	h := newHarness(t, Options{})

	h.run(t, solana.LogNotification{
		Signature: "sig-failed",
		Err:       map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
		Logs: []string{
			tradeLog(t, testUser, event.SideUp, event.ActionBuy, event.ShareScale, event.CashScale, 1_000_000),
		},
	})

	assert.Zero(t, h.book.Len())
	assert.Empty(t, h.sub.byType(hub.TypeTrade))
	assert.Zero(t, h.points.Points(testUser))
}

func TestMonitor_UnknownIdentityMutatesNothing(t *testing.T) {
	// Empty user in payload and no transaction in the stub: lookup
	// exhausts its budget and the event is skipped wholesale.
	h := newHarness(t, Options{LookupAttempts: 2, LookupBaseDelay: time.Millisecond})

	h.run(t, solana.LogNotification{
		Signature: "sig-unknown",
		Logs: []string{
			tradeLog(t, "", event.SideUp, event.ActionBuy, event.ShareScale, event.CashScale, 1_000_000),
		},
	})

	assert.Zero(t, h.book.Len())
	assert.Empty(t, h.sub.byType(hub.TypeTrade))
	_, err := h.history.LatestCycleID(context.Background(), UnknownIdentity)
	assert.Error(t, err)
	assert.Zero(t, h.volume.Len())
}

func TestMonitor_FeePayerResolution(t *testing.T) {
	h := newHarness(t, Options{})
	h.rpc.AddTransaction(&solana.Transaction{
		Signature: "sig-lookup",
		Slot:      10,
		Message:   &solana.TransactionMessage{AccountKeys: []string{onCurveUser, "other"}},
	})

	h.run(t, solana.LogNotification{
		Signature: "sig-lookup",
		Logs: []string{
			tradeLog(t, "", event.SideUp, event.ActionBuy, 3*event.ShareScale, 2*event.CashScale, 666_666),
		},
	})

	pos := h.book.Position(onCurveUser, event.SideUp)
	assert.Equal(t, int64(3*event.ShareScale), pos.Shares)

	trades := h.sub.byType(hub.TypeTrade)
	require.Len(t, trades, 1)
	assert.Equal(t, "11111", trades[0].Trade.UserPrefix)
	assert.Equal(t, 1, h.rpc.Calls("sig-lookup"))
}

func TestMonitor_DuplicateSignatureCreditsOnce(t *testing.T) {
	h := newHarness(t, Options{})
	line := tradeLog(t, testUser, event.SideUp, event.ActionBuy, 5*event.ShareScale, 3*event.CashScale, 600_000)

	h.run(t,
		solana.LogNotification{Signature: "sig-dup", Logs: []string{line}},
		solana.LogNotification{Signature: "sig-dup", Logs: []string{line}},
	)

	// Reward points are at-most-once per signature; the ledger is
	// at-least-once by design.
	assert.Equal(t, int64(10), h.points.Points(testUser))
	assert.Equal(t, int64(10*event.ShareScale), h.book.Position(testUser, event.SideUp).Shares)
}

func TestMonitor_FreshZeroAwardIsNotADuplicate(t *testing.T) {
	h := newHarness(t, Options{})
	before := testutil.ToFloat64(testMetrics.DuplicateSignatures)

	deposit := event.LogLine(event.EncodeDeposit(&event.DepositEvent{
		Amount: event.CashScale / 2,
		User:   testUser,
	}))
	line := tradeLog(t, testUser, event.SideUp, event.ActionBuy, 5*event.ShareScale, 3*event.CashScale, 600_000)

	h.run(t,
		solana.LogNotification{Signature: "sig-small-dep", Logs: []string{deposit}},
		solana.LogNotification{Signature: "sig-replayed", Logs: []string{line}},
		solana.LogNotification{Signature: "sig-replayed", Logs: []string{line}},
	)

	// The sub-unit deposit earns zero points on a fresh signature; only
	// the replayed trade is an already-credited duplicate.
	assert.Equal(t, before+1, testutil.ToFloat64(testMetrics.DuplicateSignatures))
}

func TestMonitor_RedeemAdvancesCycleAndResetsBook(t *testing.T) {
	h := newHarness(t, Options{InitialCycleID: 3})

	buy := tradeLog(t, testUser, event.SideUp, event.ActionBuy, 10*event.ShareScale, 6*event.CashScale, 600_000)
	redeem := event.LogLine(event.EncodeRedeem(&event.RedeemEvent{
		Payout:  20 * event.CashScale,
		CycleID: 3,
		User:    testUser,
	}))
	buyNext := tradeLog(t, testUser, event.SideDown, event.ActionBuy, 2*event.ShareScale, 1*event.CashScale, 500_000)

	h.run(t,
		solana.LogNotification{Signature: "sig-buy", Logs: []string{buy}},
		solana.LogNotification{Signature: "sig-redeem", Logs: []string{redeem}},
		solana.LogNotification{Signature: "sig-next", Logs: []string{buyNext}},
	)

	// Positions reset at settlement; only the post-redeem trade remains.
	assert.Zero(t, h.book.Position(testUser, event.SideUp).Shares)
	assert.Equal(t, int64(2*event.ShareScale), h.book.Position(testUser, event.SideDown).Shares)

	ctx := context.Background()
	cycle, err := h.history.LatestCycleID(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cycle)

	// Win points: payout 20 against a 6 cost basis = 14 profit = 140 pts,
	// plus 20 buy points for the first trade and 4 for the second.
	assert.Equal(t, int64(164), h.points.Points(testUser))

	h.ws.mu.Lock()
	defer h.ws.mu.Unlock()
	assert.True(t, h.ws.unsubscribed)
}

func TestMonitor_MalformedLinesNeverAbortBatch(t *testing.T) {
	h := newHarness(t, Options{})

	h.run(t, solana.LogNotification{
		Signature: "sig-mixed",
		Logs: []string{
			"Program log: ordinary text",
			event.DataMarker + "not-base64!!!",
			tradeLog(t, testUser, event.SideUp, event.ActionBuy, event.ShareScale, event.CashScale, 1_000_000),
		},
	})

	assert.Equal(t, int64(event.ShareScale), h.book.Position(testUser, event.SideUp).Shares)
}
