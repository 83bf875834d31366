package domain

import "fmt"

// Chat message bounds enforced before a message enters the hub.
const (
	MaxChatUserLen = 5
	MaxChatTextLen = 300
)

// ChatMessage is a user chat line replayed from the hub's ring buffer.
type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Validate checks inbound chat fields before processing.
func (m *ChatMessage) Validate() error {
	if m.User == "" {
		return fmt.Errorf("chat: missing user")
	}
	if len(m.User) > MaxChatUserLen {
		return fmt.Errorf("chat: user exceeds %d chars", MaxChatUserLen)
	}
	if m.Text == "" {
		return fmt.Errorf("chat: empty text")
	}
	if len(m.Text) > MaxChatTextLen {
		return fmt.Errorf("chat: text exceeds %d chars", MaxChatTextLen)
	}
	return nil
}
