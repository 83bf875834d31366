package storage

import (
	"context"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/event"
)

// TradeHistoryStore provides access to durable trade_history rows. These
// rows are the replay source for cost-basis queries.
type TradeHistoryStore interface {
	// Insert adds a new trade row.
	Insert(ctx context.Context, row *domain.TradeRow) error

	// GetByUserCycle retrieves a user's rows for one cycle, ordered by
	// timestamp ASC (insertion order on ties).
	GetByUserCycle(ctx context.Context, user string, cycleID int64) ([]*domain.TradeRow, error)

	// LatestCycleID returns the most recent cycle id the user traded in.
	// Returns ErrNotFound when the user has no rows.
	LatestCycleID(ctx context.Context, user string) (int64, error)
}

// PointsStore credits reward points exactly once per transaction
// signature. Every Record* call must be safe under duplicate invocation
// with the same signature: the first call credits and returns the points
// awarded, every later call is a no-op returning 0 with no error. The
// signature insert and the point increment are one atomic write.
type PointsStore interface {
	// SignatureExists reports whether the signature was already applied.
	// A guard only: two in-flight deliveries can both observe false, so
	// correctness rests on the Record* insert itself.
	SignatureExists(ctx context.Context, sig string) (bool, error)

	// RecordTrade credits trade points for a buy or sell.
	RecordTrade(ctx context.Context, identity string, shares int64, side event.Side, action event.Action, sig string) (int64, error)

	// RecordDeposit credits deposit points.
	RecordDeposit(ctx context.Context, identity string, amount int64, sig string) (int64, error)

	// RecordWin credits win points for realized profit.
	RecordWin(ctx context.Context, identity string, profit int64, sig string) (int64, error)

	// MasterIdentity resolves a session identity to its durable master
	// identity. Returns ErrNotFound when no mapping exists; the session
	// identity is then its own master.
	MasterIdentity(ctx context.Context, session string) (string, error)
}

// VolumeStore persists aggregate volume increments.
type VolumeStore interface {
	// Increment appends one volume delta.
	Increment(ctx context.Context, inc *domain.VolumeIncrement) error
}
