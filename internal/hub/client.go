package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket subscriber. The buffered send channel keeps the
// hub loop from blocking on a slow peer; when it fills, Send fails and
// the hub prunes the client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *Envelope

	closeOnce sync.Once
}

var _ Subscriber = (*Client)(nil)

// Send queues a message for the write pump. Returns false when the
// buffer is full.
func (c *Client) Send(msg *Envelope) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close releases the send channel, terminating the write pump.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ServeWS upgrades an HTTP request and attaches the connection to the
// hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[hub] websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan *Envelope, sendBufferSize),
	}

	go client.writePump()
	h.Register(client)
	go client.readPump()
}

// readPump consumes inbound messages (chat only) and doubles as the
// connection watchdog via pong deadlines.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Printf("[hub] read error: %v", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != TypeChat || msg.Chat == nil {
			c.Send(&Envelope{Type: TypeError, Error: "malformed message"})
			continue
		}
		if msg.Chat.Timestamp == 0 {
			msg.Chat.Timestamp = time.Now().UnixMilli()
		}
		c.hub.HandleChat(c, msg.Chat)
	}
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
