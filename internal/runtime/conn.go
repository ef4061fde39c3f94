package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Conn is the host-owned side of one live WebSocket connection. The hub
// holds it only as an opaque handle; the runtime owns the socket, the send
// queue, and the pumps. A Conn outlives hub evictions.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool

	// hibernatable marks the connection as not pinning the in-memory hub
	// state. Guarded by the owning instance's mutex.
	hibernatable bool
}

func newConn(id string, ws *websocket.Conn, sendBuffer int) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}
}

// ID returns the host-assigned identity of the connection.
func (c *Conn) ID() string {
	return c.id
}

// enqueue queues a payload for the write pump. It fails rather than blocks
// when the connection is closed or its buffer is full.
func (c *Conn) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection %s is closed", c.id)
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", c.id)
	}
}

// close shuts the send queue. Safe to call more than once.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump pumps queued payloads to the WebSocket connection and keeps the
// transport alive with periodic protocol pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The host closed the queue.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
