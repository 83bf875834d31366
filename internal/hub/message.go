// Package hub fans trades and chat out to live websocket subscribers,
// replaying a bounded history to each new connection before it sees any
// live event.
package hub

import (
	"updown-monitor/internal/domain"
)

// Message types on the wire. Inbound traffic only carries TypeChat;
// everything else is outbound.
const (
	TypeHistory     = "history"
	TypeChatHistory = "chat_history"
	TypeTrade       = "trade"
	TypeChat        = "chat"
	TypeError       = "error"
)

// TradePayload is the public view of a processed trade. Only the coarse
// identity prefix leaves the process.
type TradePayload struct {
	UserPrefix  string `json:"user"`
	Side        string `json:"side"`
	Action      string `json:"action"`
	Shares      int64  `json:"shares"`
	Cost        int64  `json:"cost"`
	AvgPrice    int64  `json:"avg_price"`
	RealizedPnL *int64 `json:"realized_pnl,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// Envelope is the tagged wire message. Exactly one payload field is set
// for a given Type.
type Envelope struct {
	Type   string                `json:"type"`
	Trade  *TradePayload         `json:"trade,omitempty"`
	Trades []*TradePayload       `json:"trades,omitempty"`
	Chat   *domain.ChatMessage   `json:"chat,omitempty"`
	Chats  []*domain.ChatMessage `json:"chats,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// inbound is what clients may send: chat only.
type inbound struct {
	Type string              `json:"type"`
	Chat *domain.ChatMessage `json:"chat"`
}
