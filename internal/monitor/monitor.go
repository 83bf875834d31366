// Package monitor wires the log subscription, decoder, position ledger,
// reward accrual, sinks and broadcast hub into one event loop.
package monitor

import (
	"context"
	"log"
	"time"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/event"
	"updown-monitor/internal/hub"
	"updown-monitor/internal/ledger"
	"updown-monitor/internal/observability"
	"updown-monitor/internal/rewards"
	"updown-monitor/internal/sink"
	"updown-monitor/internal/solana"
	"updown-monitor/internal/storage"
)

// UnknownIdentity marks events whose paying identity could not be
// resolved. Such events skip the ledger, sinks and rewards wholesale.
const UnknownIdentity = "Unknown"

// Default identity-lookup retry budget.
const (
	DefaultLookupAttempts  = 5
	DefaultLookupBaseDelay = 500 * time.Millisecond
)

// HistoryForwarder posts trade rows to an external persistence API.
type HistoryForwarder interface {
	Send(ctx context.Context, row *domain.TradeRow) error
}

// VolumeForwarder posts volume increments to an external persistence API.
type VolumeForwarder interface {
	Send(ctx context.Context, inc *domain.VolumeIncrement) error
}

// Options configures monitor behavior.
type Options struct {
	// ProgramID is the monitored program identity; one subscription is
	// opened for it.
	ProgramID string

	// InitialCycleID seeds the market-cycle counter; redeems advance it.
	InitialCycleID int64

	// LookupAttempts bounds transaction lookups per signature.
	LookupAttempts int

	// LookupBaseDelay is the first backoff step between lookup attempts;
	// it doubles per attempt.
	LookupBaseDelay time.Duration
}

// Deps are the collaborators the monitor drives.
type Deps struct {
	WS      solana.WSClient
	RPC     solana.RPCClient
	Book    *ledger.Book
	Accruer *rewards.Accruer
	History storage.TradeHistoryStore
	Volume  storage.VolumeStore
	Queue   *sink.Queue
	Hub     *hub.Hub

	// Optional outbound forwarders; nil disables them.
	HistoryForwarder HistoryForwarder
	VolumeForwarder  VolumeForwarder

	Metrics *observability.Metrics
	Logger  *log.Logger
}

// Monitor consumes one log subscription and applies every decoded event.
// All mutation of the position book and cycle counter happens on the
// single Run loop.
type Monitor struct {
	deps Deps
	opts Options

	currentCycle int64
	subID        int64
}

// New creates a monitor. Metrics and Logger fall back to defaults.
func New(deps Deps, opts Options) *Monitor {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics("")
	}
	if opts.LookupAttempts <= 0 {
		opts.LookupAttempts = DefaultLookupAttempts
	}
	if opts.LookupBaseDelay <= 0 {
		opts.LookupBaseDelay = DefaultLookupBaseDelay
	}
	return &Monitor{
		deps:         deps,
		opts:         opts,
		currentCycle: opts.InitialCycleID,
	}
}

// Run subscribes and processes notifications until ctx is cancelled or
// the subscription channel closes. Teardown order on every exit path:
// unsubscribe, drain the sink queue, close the hub.
func (m *Monitor) Run(ctx context.Context) error {
	subID, notifications, err := m.deps.WS.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []string{m.opts.ProgramID},
	})
	if err != nil {
		return err
	}
	m.subID = subID
	m.deps.Logger.Printf("[monitor] subscribed to %s (sub %d)", m.opts.ProgramID, subID)

	defer m.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-notifications:
			if !ok {
				return nil
			}
			m.process(ctx, notif)
		}
	}
}

func (m *Monitor) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.deps.WS.UnsubscribeLogs(ctx, m.subID); err != nil {
		m.deps.Logger.Printf("[monitor] unsubscribe: %v", err)
	}
	m.deps.Queue.Close()
	m.deps.Hub.Close()
	m.deps.Logger.Printf("[monitor] stopped")
}

// process applies one delivered batch: all decoded events of a single
// transaction, in order.
func (m *Monitor) process(ctx context.Context, notif solana.LogNotification) {
	m.deps.Metrics.NotificationsReceived.Inc()

	if notif.Err != nil {
		// Failed transaction: no partial effects.
		m.deps.Metrics.FailedTxSkipped.Inc()
		return
	}

	now := time.Now()
	events := event.DecodeLogs(notif.Logs, notif.Signature, now.UnixMilli())
	if len(events) == 0 {
		return
	}
	m.deps.Metrics.LastEventUnixSeconds.Set(float64(now.Unix()))

	// Fee payer resolved at most once per signature, and only when some
	// event lacks an embedded user key.
	feePayer := ""
	feePayerResolved := false
	resolve := func(embedded string) string {
		if embedded != "" {
			return embedded
		}
		if !feePayerResolved {
			feePayer = m.lookupFeePayer(ctx, notif.Signature)
			feePayerResolved = true
		}
		if feePayer == "" {
			return UnknownIdentity
		}
		return feePayer
	}

	for _, ev := range events {
		switch e := ev.(type) {
		case *event.TradeEvent:
			m.deps.Metrics.EventsDecoded.WithLabelValues("trade").Inc()
			m.handleTrade(ctx, e, resolve(e.User))
		case *event.DepositEvent:
			m.deps.Metrics.EventsDecoded.WithLabelValues("deposit").Inc()
			m.handleDeposit(ctx, e, resolve(e.User))
		case *event.RedeemEvent:
			m.deps.Metrics.EventsDecoded.WithLabelValues("redeem").Inc()
			m.handleRedeem(ctx, e, resolve(e.User))
		}
	}
}

func (m *Monitor) handleTrade(ctx context.Context, ev *event.TradeEvent, user string) {
	if user == UnknownIdentity {
		m.skipUnknown(ev.Signature, "trade")
		return
	}
	ev.User = user

	result := m.deps.Book.Apply(ev)
	if result.Clamped {
		m.deps.Metrics.OversellClamps.Inc()
	}
	m.deps.Metrics.OpenPositions.Set(float64(m.deps.Book.Len()))

	shares := result.SharesApplied
	cost := absInt64(ev.NetAmount)

	row := &domain.TradeRow{
		User:        user,
		UserPrefix:  domain.IdentityPrefix(user),
		CycleID:     m.currentCycle,
		Side:        ev.Side,
		Action:      ev.Action,
		Shares:      shares,
		Cost:        cost,
		AvgPrice:    ev.AvgPrice,
		TxSignature: ev.Signature,
		Timestamp:   ev.Timestamp,
	}
	var pnl *int64
	if ev.Action == event.ActionSell {
		v := result.RealizedPnL
		pnl = &v
		row.RealizedPnL = &v
	}

	// The local history row is written synchronously: a win accrual later
	// in the same delivery replays these rows, so they cannot trail the
	// event that produced them. Only the outbound forwards are
	// fire-and-forget.
	if err := m.deps.History.Insert(ctx, row); err != nil {
		m.deps.Logger.Printf("[monitor] history insert for %s: %v", ev.Signature, err)
	}
	if m.deps.HistoryForwarder != nil {
		m.enqueue("history-forward", func(ctx context.Context) error {
			return m.deps.HistoryForwarder.Send(ctx, row)
		})
	}

	inc := &domain.VolumeIncrement{
		Side:      ev.Side,
		Amount:    cost,
		Shares:    shares,
		Timestamp: ev.Timestamp,
	}
	m.enqueue("volume-increment", func(ctx context.Context) error {
		return m.deps.Volume.Increment(ctx, inc)
	})
	if m.deps.VolumeForwarder != nil {
		m.enqueue("volume-forward", func(ctx context.Context) error {
			return m.deps.VolumeForwarder.Send(ctx, inc)
		})
	}

	points, duplicate, err := m.deps.Accruer.AccrueTrade(ctx, ev)
	m.recordPoints("trade", points, duplicate, err, ev.Signature)

	m.deps.Hub.BroadcastTrade(&hub.TradePayload{
		UserPrefix:  row.UserPrefix,
		Side:        ev.Side.String(),
		Action:      ev.Action.String(),
		Shares:      shares,
		Cost:        cost,
		AvgPrice:    ev.AvgPrice,
		RealizedPnL: pnl,
		Timestamp:   ev.Timestamp,
	})
	m.deps.Metrics.MessagesBroadcast.WithLabelValues(hub.TypeTrade).Inc()
}

func (m *Monitor) handleDeposit(ctx context.Context, ev *event.DepositEvent, user string) {
	if user == UnknownIdentity {
		m.skipUnknown(ev.Signature, "deposit")
		return
	}
	ev.User = user

	points, duplicate, err := m.deps.Accruer.AccrueDeposit(ctx, ev)
	m.recordPoints("deposit", points, duplicate, err, ev.Signature)
}

func (m *Monitor) handleRedeem(ctx context.Context, ev *event.RedeemEvent, user string) {
	if user != UnknownIdentity {
		ev.User = user
		points, duplicate, err := m.deps.Accruer.AccrueWin(ctx, ev)
		m.recordPoints("win", points, duplicate, err, ev.Signature)
	} else {
		m.skipUnknown(ev.Signature, "redeem")
	}

	// A redeem settles its cycle: positions reset and trades that follow
	// belong to the next cycle. Replayed redeems for old cycles do not
	// roll the counter back.
	if ev.CycleID >= m.currentCycle {
		m.currentCycle = ev.CycleID + 1
		m.deps.Book.Reset()
		m.deps.Metrics.OpenPositions.Set(0)
		m.deps.Logger.Printf("[monitor] cycle %d settled, now on cycle %d", ev.CycleID, m.currentCycle)
	}
}

// lookupFeePayer resolves the paying identity with a bounded retry
// budget. Off-curve payers are programs, not wallets, so they resolve to
// unknown without further retries.
func (m *Monitor) lookupFeePayer(ctx context.Context, signature string) string {
	start := time.Now()
	defer func() {
		m.deps.Metrics.LookupLatency.Observe(time.Since(start).Seconds())
	}()

	delay := m.opts.LookupBaseDelay
	for attempt := 0; attempt < m.opts.LookupAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ""
			case <-time.After(delay):
			}
			delay *= 2
		}

		m.deps.Metrics.IdentityLookups.Inc()
		tx, err := m.deps.RPC.GetTransaction(ctx, signature)
		if err != nil {
			m.deps.Logger.Printf("[monitor] lookup %s attempt %d: %v", signature, attempt+1, err)
			continue
		}
		if tx == nil {
			// Not indexed yet, retry after backoff.
			continue
		}

		payer := tx.FeePayer()
		if payer == "" || !solana.IsOnCurve(payer) {
			return ""
		}
		return payer
	}
	return ""
}

func (m *Monitor) skipUnknown(signature, kind string) {
	m.deps.Metrics.IdentityUnknown.Inc()
	m.deps.Logger.Printf("[monitor] unresolved identity for %s event, sig=%s: skipping", kind, signature)
}

// enqueue submits fire-and-forget work. Drop accounting lives in the
// queue's own hooks.
func (m *Monitor) enqueue(name string, task sink.Task) {
	m.deps.Queue.Enqueue(name, task)
}

// recordPoints tracks accrual outcomes. A fresh event that earns zero
// points (sub-unit deposit, unprofitable win) records nothing; only an
// already-credited signature counts as a duplicate.
func (m *Monitor) recordPoints(kind string, points int64, duplicate bool, err error, signature string) {
	if err != nil {
		m.deps.Logger.Printf("[monitor] %s accrual failed for %s: %v", kind, signature, err)
		return
	}
	if duplicate {
		m.deps.Metrics.DuplicateSignatures.Inc()
		return
	}
	if points > 0 {
		m.deps.Metrics.PointsAwarded.WithLabelValues(kind).Add(float64(points))
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
