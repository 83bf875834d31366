package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// NotificationBuffer is the per-subscription channel capacity.
	NotificationBuffer int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		// Large buffer absorbs bursts; delivery into it blocks rather
		// than drops, so no notification is lost while the consumer
		// keeps up.
		NotificationBuffer: 10000,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket. It
// transparently reconnects and resubscribes active filters, so the
// consumer sees one long-lived notification channel per subscription.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to its delivery state
	subs   map[int64]*logSub
	subsMu sync.RWMutex

	// activeFilters stores filters for resubscription after reconnect
	activeFilters   map[int64]LogsFilter
	activeFiltersMu sync.RWMutex

	// pending maps request ID to channel waiting for an int64 result
	// (subscription id on subscribe, ignored on unsubscribe)
	pending   map[uint64]chan int64
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// logSub is one subscription's delivery state. The dispatcher is the
// only sender on ch; dead tells an in-flight (possibly blocked) send to
// abandon delivery, so the unsubscribe path never races a close against
// a send.
type logSub struct {
	ch   chan LogNotification
	dead chan struct{}
}

var _ WSClient = (*WSClientImpl)(nil)

// NewWSClient creates a WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, logger *log.Logger) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	c := &WSClientImpl{
		endpoint:      endpoint,
		config:        cfg,
		logger:        logger,
		subs:          make(map[int64]*logSub),
		activeFilters: make(map[int64]LogsFilter),
		pending:       make(map[uint64]chan int64),
		done:          make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes the WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeLogs subscribes to logs matching the filter and returns the
// subscription id plus its notification channel.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (int64, <-chan LogNotification, error) {
	subID, err := c.subscribe(ctx, filter)
	if err != nil {
		return 0, nil, err
	}

	buffer := c.config.NotificationBuffer
	if buffer <= 0 {
		buffer = DefaultWSConfig().NotificationBuffer
	}
	sub := &logSub{
		ch:   make(chan LogNotification, buffer),
		dead: make(chan struct{}),
	}
	c.subsMu.Lock()
	c.subs[subID] = sub
	c.subsMu.Unlock()

	c.activeFiltersMu.Lock()
	c.activeFilters[subID] = filter
	c.activeFiltersMu.Unlock()

	return subID, sub.ch, nil
}

// UnsubscribeLogs sends logsUnsubscribe and stops delivery. The
// notification channel is never closed here: the dispatcher may be
// mid-send, and only the sender of a channel may close it. Marking the
// subscription dead releases a blocked dispatcher; the channel itself is
// simply abandoned. After this returns no further notification is
// delivered for the subscription.
func (c *WSClientImpl) UnsubscribeLogs(ctx context.Context, subID int64) error {
	c.activeFiltersMu.Lock()
	delete(c.activeFilters, subID)
	c.activeFiltersMu.Unlock()

	c.subsMu.Lock()
	if sub, ok := c.subs[subID]; ok {
		delete(c.subs, subID)
		close(sub.dead)
	}
	c.subsMu.Unlock()

	_, err := c.roundTrip(ctx, "logsUnsubscribe", []interface{}{subID})
	if err != nil {
		return fmt.Errorf("logsUnsubscribe %d: %w", subID, err)
	}
	return nil
}

// subscribe issues logsSubscribe and waits for the subscription id.
func (c *WSClientImpl) subscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	mentionsFilter := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentionsFilter["mentions"] = filter.Mentions
	} else {
		mentionsFilter["all"] = nil
	}

	params := []interface{}{
		mentionsFilter,
		map[string]string{"commitment": "confirmed"},
	}

	subID, err := c.roundTrip(ctx, "logsSubscribe", params)
	if err != nil {
		return 0, fmt.Errorf("logsSubscribe: %w", err)
	}
	return subID, nil
}

// roundTrip sends one request and waits for its int64 result.
func (c *WSClientImpl) roundTrip(ctx context.Context, method string, params []interface{}) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	confirmCh := make(chan int64, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = confirmCh
	c.pendingMu.Unlock()

	abandon := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		abandon()
		return 0, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		abandon()
		return 0, fmt.Errorf("write %s: %w", method, err)
	}

	// 30s covers slow providers.
	select {
	case result := <-confirmCh:
		return result, nil
	case <-time.After(30 * time.Second):
		abandon()
		return 0, fmt.Errorf("%s timeout after 30s", method)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		abandon()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection and every open channel.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	// Notification channels close only after the read loop (the sole
	// sender) has exited, so a dispatch in flight can never hit a
	// closed channel.
	c.wg.Wait()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	return nil
}

// readLoop reads messages from the WebSocket and dispatches them.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				c.logger.Printf("[ws] read error, reconnecting in %s: %v", reconnectDelay, err)
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	c.resubscribeAll()
}

// resubscribeAll re-issues every active filter after a reconnect, moving
// the existing notification channel to the new subscription id.
func (c *WSClientImpl) resubscribeAll() {
	c.activeFiltersMu.RLock()
	filters := make(map[int64]LogsFilter)
	for id, f := range c.activeFilters {
		filters[id] = f
	}
	c.activeFiltersMu.RUnlock()

	c.subsMu.RLock()
	channels := make(map[int64]*logSub)
	for id, sub := range c.subs {
		channels[id] = sub
	}
	c.subsMu.RUnlock()

	for oldSubID, filter := range filters {
		sub := channels[oldSubID]
		if sub == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newSubID, err := c.subscribe(ctx, filter)
		cancel()

		if err != nil {
			c.logger.Printf("[ws] resubscribe failed for %d: %v", oldSubID, err)
			continue
		}

		c.subsMu.Lock()
		delete(c.subs, oldSubID)
		c.subs[newSubID] = sub
		c.subsMu.Unlock()

		c.activeFiltersMu.Lock()
		delete(c.activeFilters, oldSubID)
		c.activeFilters[newSubID] = filter
		c.activeFiltersMu.Unlock()
	}
}

// handleMessage processes one incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	// Int-result response to a pending subscribe/unsubscribe first
	var resp wsResultResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.ID > 0 && resp.Error == nil {
		c.handleResult(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "logsNotification" {
		c.handleLogsNotification(&notif)
		return
	}

	var errResp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// Pending request will time out; nothing to crash over.
		c.logger.Printf("[ws] error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
	}
}

// handleResult completes a pending subscribe/unsubscribe round trip.
func (c *WSClientImpl) handleResult(resp *wsResultResponse) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		var result int64
		json.Unmarshal(resp.Result, &result) // bool unsubscribe results stay 0
		select {
		case ch <- result:
		default:
		}
	}
}

// handleLogsNotification dispatches one log notification.
func (c *WSClientImpl) handleLogsNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	subID := notif.Params.Subscription
	value := notif.Params.Result.Value

	logNotif := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}

	if notif.Params.Result.Context != nil {
		logNotif.Slot = notif.Params.Result.Context.Slot
	}

	c.subsMu.RLock()
	sub, ok := c.subs[subID]
	c.subsMu.RUnlock()

	if ok {
		// Block until we can send - never drop events. An unsubscribe
		// or client close releases a blocked send.
		select {
		case sub.ch <- logNotif:
		case <-sub.dead:
			return
		case <-c.done:
			return
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A failed ping surfaces as a read error; the reader
				// handles reconnect.
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsResultResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
