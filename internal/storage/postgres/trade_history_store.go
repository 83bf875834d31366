package postgres

import (
	"context"
	"fmt"
	"time"

	"updown-monitor/internal/domain"
	"updown-monitor/internal/event"
	"updown-monitor/internal/storage"
)

// TradeHistoryStore implements storage.TradeHistoryStore using PostgreSQL.
type TradeHistoryStore struct {
	pool *Pool
}

// NewTradeHistoryStore creates a new TradeHistoryStore.
func NewTradeHistoryStore(pool *Pool) *TradeHistoryStore {
	return &TradeHistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeHistoryStore = (*TradeHistoryStore)(nil)

// Insert adds a new trade row.
func (s *TradeHistoryStore) Insert(ctx context.Context, row *domain.TradeRow) error {
	if row == nil {
		return storage.ErrInvalidInput
	}

	createdAt := row.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO trade_history (
			user_address, user_prefix, cycle_id, side, action,
			shares, cost, avg_price, realized_pnl, tx_signature, ts, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		row.User, row.UserPrefix, row.CycleID, row.Side.String(), row.Action.String(),
		row.Shares, row.Cost, row.AvgPrice, row.RealizedPnL, row.TxSignature, row.Timestamp, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade row: %w", err)
	}
	return nil
}

// GetByUserCycle retrieves a user's rows for one cycle, timestamp ASC
// with insertion order on ties.
func (s *TradeHistoryStore) GetByUserCycle(ctx context.Context, user string, cycleID int64) ([]*domain.TradeRow, error) {
	query := `
		SELECT id, user_address, user_prefix, cycle_id, side, action,
		       shares, cost, avg_price, realized_pnl, tx_signature, ts, created_at
		FROM trade_history
		WHERE user_address = $1 AND cycle_id = $2
		ORDER BY ts ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, user, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query trade rows: %w", err)
	}
	defer rows.Close()

	var out []*domain.TradeRow
	for rows.Next() {
		var row domain.TradeRow
		var side, action string

		err := rows.Scan(
			&row.ID, &row.User, &row.UserPrefix, &row.CycleID, &side, &action,
			&row.Shares, &row.Cost, &row.AvgPrice, &row.RealizedPnL, &row.TxSignature,
			&row.Timestamp, &row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		if row.Side, err = event.ParseSide(side); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		if row.Action, err = event.ParseAction(action); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return out, nil
}

// LatestCycleID returns the most recent cycle id the user traded in.
func (s *TradeHistoryStore) LatestCycleID(ctx context.Context, user string) (int64, error) {
	query := `
		SELECT cycle_id FROM trade_history
		WHERE user_address = $1
		ORDER BY cycle_id DESC
		LIMIT 1
	`

	var cycleID int64
	err := s.pool.QueryRow(ctx, query, user).Scan(&cycleID)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("query latest cycle: %w", err)
	}
	return cycleID, nil
}
