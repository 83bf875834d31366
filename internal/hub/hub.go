package hub

import (
	"log"
	"sync"

	"updown-monitor/internal/domain"
)

// ringSize bounds both replay buffers.
const ringSize = 100

// Subscriber is one attached consumer. Send must not block: it returns
// false when the subscriber is closed or too slow, and the hub prunes it
// on the next delivery attempt.
type Subscriber interface {
	Send(msg *Envelope) bool
	Close()
}

// Hub owns the replay rings and the live subscriber set. All state is
// guarded by one mutex; client read pumps and the event loop both call
// into it.
type Hub struct {
	mu          sync.Mutex
	subscribers map[Subscriber]struct{}
	trades      []*TradePayload
	chats       []*domain.ChatMessage
	limiter     *SlidingWindow
	logger      *log.Logger
	closed      bool

	// Optional observation hooks, set before the hub is shared.
	onSubscriberChange func(count int)
	onRateLimited      func()
}

// New creates an empty hub with default chat rate limits.
func New(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		subscribers: make(map[Subscriber]struct{}),
		limiter:     NewSlidingWindow(DefaultChatLimit, DefaultChatWindow),
		logger:      logger,
	}
}

// OnSubscriberChange installs a hook invoked with the live subscriber
// count after every attach, detach and prune.
func (h *Hub) OnSubscriberChange(fn func(count int)) {
	h.onSubscriberChange = fn
}

// OnRateLimited installs a hook invoked per rate-limited chat message.
func (h *Hub) OnRateLimited(fn func()) {
	h.onRateLimited = fn
}

// Register replays history and chat_history to the subscriber and only
// then adds it to the live set. Both steps happen under the hub lock, so
// no live event can be delivered between replay and registration.
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.Close()
		return
	}

	sub.Send(&Envelope{Type: TypeHistory, Trades: append([]*TradePayload(nil), h.trades...)})
	sub.Send(&Envelope{Type: TypeChatHistory, Chats: append([]*domain.ChatMessage(nil), h.chats...)})
	h.subscribers[sub] = struct{}{}
	h.notifySubscriberChange()
}

// Unregister detaches a subscriber and closes it.
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		sub.Close()
		h.notifySubscriberChange()
	}
}

// BroadcastTrade appends the trade to the replay ring and fans it out.
func (h *Hub) BroadcastTrade(trade *TradePayload) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.trades = appendRing(h.trades, trade)
	h.fanOut(&Envelope{Type: TypeTrade, Trade: trade})
}

// HandleChat validates and rate-limits an inbound chat message. On
// rejection an error envelope goes to the sender only; accepted messages
// enter the replay ring and fan out to everyone.
func (h *Hub) HandleChat(sender Subscriber, msg *domain.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := msg.Validate(); err != nil {
		sender.Send(&Envelope{Type: TypeError, Error: err.Error()})
		return
	}
	if !h.limiter.Allow(msg.User) {
		if h.onRateLimited != nil {
			h.onRateLimited()
		}
		sender.Send(&Envelope{Type: TypeError, Error: "rate limit exceeded"})
		return
	}

	h.chats = appendRing(h.chats, msg)
	h.fanOut(&Envelope{Type: TypeChat, Chat: msg})
}

// SubscriberCount returns the current live subscriber count.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close detaches and closes every subscriber; further registrations are
// refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		sub.Close()
	}
	h.notifySubscriberChange()
}

// fanOut delivers to every live subscriber, pruning the ones whose Send
// fails. Caller holds h.mu.
func (h *Hub) fanOut(msg *Envelope) {
	for sub := range h.subscribers {
		if !sub.Send(msg) {
			delete(h.subscribers, sub)
			sub.Close()
			h.logger.Printf("[hub] pruned slow or closed subscriber, %d remain", len(h.subscribers))
			h.notifySubscriberChange()
		}
	}
}

// notifySubscriberChange reports the live count. Caller holds h.mu.
func (h *Hub) notifySubscriberChange() {
	if h.onSubscriberChange != nil {
		h.onSubscriberChange(len(h.subscribers))
	}
}

func appendRing[T any](ring []T, item T) []T {
	ring = append(ring, item)
	if len(ring) > ringSize {
		ring = ring[len(ring)-ringSize:]
	}
	return ring
}
