package transport

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// WSChannel adapts a websocket connection to the Channel contract.
// Writes are serialized by a per-connection mutex; the read loop runs
// on the goroutine that owns the connection (the websocket handler).
type WSChannel struct {
	conn         *websocket.Conn
	remote       string
	writeTimeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	handler DataHandler
	closed  bool
}

// NewWSChannel wraps an upgraded connection. remote is the connection
// id attributed to frames read from this socket.
func NewWSChannel(conn *websocket.Conn, remote string, writeTimeout time.Duration) *WSChannel {
	return &WSChannel{conn: conn, remote: remote, writeTimeout: writeTimeout}
}

// Send writes one frame. The reliable hint is advisory: the websocket
// itself delivers in order or fails, so both hints share one write
// path; an unreliable send just swallows nothing extra here.
func (c *WSChannel) Send(ctx context.Context, payload []byte, reliable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *WSChannel) OnData(h DataHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// ReadLoop pumps inbound frames to the registered handler until the
// connection errors or closes. It must run on the handler goroutine
// that owns the connection, per the websocket library's contract.
func (c *WSChannel) ReadLoop() {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Transport] read loop ended for %s: %v", c.remote, err)
			}
			return
		}
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(c.remote, payload)
		}
	}
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handler = nil
	c.mu.Unlock()
	return c.conn.Close()
}
