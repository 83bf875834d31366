package solana

import "context"

// WSClient defines the log-subscription interface the monitor consumes.
type WSClient interface {
	// SubscribeLogs subscribes to logs mentioning the filtered programs
	// and returns the subscription id plus the notification channel.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (int64, <-chan LogNotification, error)

	// UnsubscribeLogs tears down one subscription. Called before the rest
	// of the process shuts down so no notification arrives mid-teardown.
	UnsubscribeLogs(ctx context.Context, subID int64) error

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines the subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	Mentions []string
}

// LogNotification is one delivered batch: the ordered log lines of a
// single transaction. A non-nil Err means the transaction failed and the
// batch must be skipped entirely.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
