package postgres

import (
	"context"
	"fmt"
	"time"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/event"
	"updown-monitor/internal/storage"
)

// PointsStore implements storage.PointsStore using PostgreSQL. The
// primary key on processed_signatures.tx_signature is the at-most-once
// guarantee: signature insert and point increment run in one
// transaction, so concurrent redelivery cannot double-credit even when
// both deliveries pass the SignatureExists guard.
type PointsStore struct {
	pool *Pool
}

// NewPointsStore creates a new PointsStore.
func NewPointsStore(pool *Pool) *PointsStore {
	return &PointsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PointsStore = (*PointsStore)(nil)

// SignatureExists reports whether the signature was already applied.
func (s *PointsStore) SignatureExists(ctx context.Context, sig string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_signatures WHERE tx_signature = $1)`,
		sig,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query signature: %w", err)
	}
	return exists, nil
}

// RecordTrade credits trade points once per signature.
func (s *PointsStore) RecordTrade(ctx context.Context, identity string, shares int64, _ event.Side, action event.Action, sig string) (int64, error) {
	return s.apply(ctx, identity, "trade", sig, domain.TradePoints(shares, action))
}

// RecordDeposit credits deposit points once per signature.
func (s *PointsStore) RecordDeposit(ctx context.Context, identity string, amount int64, sig string) (int64, error) {
	return s.apply(ctx, identity, "deposit", sig, domain.DepositPoints(amount))
}

// RecordWin credits win points once per signature.
func (s *PointsStore) RecordWin(ctx context.Context, identity string, profit int64, sig string) (int64, error) {
	return s.apply(ctx, identity, "win", sig, domain.WinPoints(profit))
}

// MasterIdentity resolves a session identity to its master identity.
func (s *PointsStore) MasterIdentity(ctx context.Context, session string) (string, error) {
	var master string
	err := s.pool.QueryRow(ctx,
		`SELECT master_identity FROM identity_links WHERE session_identity = $1`,
		session,
	).Scan(&master)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("query identity link: %w", err)
	}
	return master, nil
}

// apply inserts the signature and increments the balance in one
// transaction. A conflicting signature makes the whole call a no-op.
func (s *PointsStore) apply(ctx context.Context, identity, kind, sig string, points int64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_signatures (tx_signature, identity, kind, points, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tx_signature) DO NOTHING
	`, sig, identity, kind, points, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert signature: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Duplicate signature: no-op, not an error.
		return 0, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO point_balances (identity, points)
		VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE SET points = point_balances.points + EXCLUDED.points
	`, identity, points)
	if err != nil {
		return 0, fmt.Errorf("increment balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return points, nil
}
