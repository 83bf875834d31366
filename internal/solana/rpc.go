package solana

import "context"

// RPCClient defines the HTTP JSON-RPC surface used for identity
// resolution.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature. Returns
	// (nil, nil) when the transaction is not yet indexed; the caller
	// retries.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction is the subset of a chain transaction the monitor needs.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// FeePayer returns the paying account: by convention the first account
// key. Empty when the message is absent.
func (t *Transaction) FeePayer() string {
	if t == nil || t.Message == nil || len(t.Message.AccountKeys) == 0 {
		return ""
	}
	return t.Message.AccountKeys[0]
}
