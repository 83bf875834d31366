package domain

import "updown-monitor/internal/event"

// TradeRow is a durable trade-history record. Corresponds to the
// trade_history table; these rows are the replay source for cost-basis
// queries, so they must carry everything the proportional-reduction rule
// consumes.
type TradeRow struct {
	ID          int64  // BIGSERIAL primary key (0 until stored)
	User        string // full base58 identity
	UserPrefix  string // coarse display identity (first 5 chars)
	CycleID     int64  // market cycle the trade belongs to
	Side        event.Side
	Action      event.Action
	Shares      int64  // share minor units (magnitude)
	Cost        int64  // currency minor units (magnitude)
	AvgPrice    int64  // price minor units
	RealizedPnL *int64 // sells only, currency minor units
	TxSignature string
	Timestamp   int64 // Unix timestamp in milliseconds
	CreatedAt   int64 // record creation timestamp (ms)
}

// IdentityPrefix returns the coarse ≤5-character display form of an
// address, used in broadcast payloads and rate-limit keys.
func IdentityPrefix(addr string) string {
	if len(addr) <= 5 {
		return addr
	}
	return addr[:5]
}
