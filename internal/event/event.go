// Package event defines the market program's binary log events and the
// decoder that turns raw transaction log lines into typed records.
package event

import "fmt"

// Fixed-point scale constants shared with the on-chain event producer.
// These must match the program bit-for-bit: a mismatch decodes silently
// into wrong values, not an error.
const (
	// ShareScale converts share minor units to whole shares (1 share = 1e7).
	ShareScale int64 = 10_000_000
	// CashScale converts currency minor units to whole units (1 unit = 1e7).
	CashScale int64 = 10_000_000
	// PriceScale converts price minor units to whole price units (1 = 1e6).
	PriceScale int64 = 1_000_000
)

// Side is one of the two mutually exclusive outcome legs of the market.
type Side uint8

const (
	SideUp Side = iota
	SideDown
)

// String returns the string representation of Side.
func (s Side) String() string {
	switch s {
	case SideUp:
		return "UP"
	case SideDown:
		return "DOWN"
	default:
		return "INVALID"
	}
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideUp || s == SideDown
}

// ParseSide converts a stored string back to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "UP":
		return SideUp, nil
	case "DOWN":
		return SideDown, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

// Action is the direction of a trade.
type Action uint8

const (
	ActionBuy Action = iota
	ActionSell
)

// String returns the string representation of Action.
func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "INVALID"
	}
}

// IsValid checks if the action is a valid value.
func (a Action) IsValid() bool {
	return a == ActionBuy || a == ActionSell
}

// ParseAction converts a stored string back to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "BUY":
		return ActionBuy, nil
	case "SELL":
		return ActionSell, nil
	default:
		return 0, fmt.Errorf("invalid action %q", s)
	}
}

// Event is a decoded program log event. Exactly TradeEvent, DepositEvent
// and RedeemEvent implement it.
type Event interface {
	// Sig returns the transaction signature the event was delivered under.
	Sig() string
	// UserAddress returns the base58 user address, or "" when the payload
	// carried no attributable identity and the fee payer must be looked up.
	UserAddress() string

	isEvent()
}

// TradeEvent is a single buy or sell of one side. One signature may carry
// several trade events (e.g. closing both legs of a position).
type TradeEvent struct {
	Side       Side
	Action     Action
	NetAmount  int64 // currency minor units (CashScale)
	ShareDelta int64 // share minor units (ShareScale)
	AvgPrice   int64 // price minor units (PriceScale)
	User       string
	Signature  string
	Timestamp  int64 // Unix timestamp in milliseconds
}

func (e *TradeEvent) Sig() string         { return e.Signature }
func (e *TradeEvent) UserAddress() string { return e.User }
func (e *TradeEvent) isEvent()            {}

// DepositEvent is a collateral deposit into the market.
type DepositEvent struct {
	Amount    int64 // currency minor units (CashScale)
	User      string
	Signature string
	Timestamp int64
}

func (e *DepositEvent) Sig() string         { return e.Signature }
func (e *DepositEvent) UserAddress() string { return e.User }
func (e *DepositEvent) isEvent()            {}

// RedeemEvent is a payout claim at cycle settlement.
type RedeemEvent struct {
	Payout    int64 // currency minor units (CashScale)
	CycleID   int64
	User      string
	Signature string
	Timestamp int64
}

func (e *RedeemEvent) Sig() string         { return e.Signature }
func (e *RedeemEvent) UserAddress() string { return e.User }
func (e *RedeemEvent) isEvent()            {}
