package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/connection-hub/backend/internal/attachment"
	"github.com/connection-hub/backend/internal/hub"
	"github.com/connection-hub/backend/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// Instance is one hub instance as the host sees it: the durable plumbing
// around an evictable controller. The connections, the auto-response rule,
// and the attachment rows persist across evictions; the controller and its
// session table are rebuilt on demand.
//
// mu serializes Connect, message dispatch, close dispatch, and activation,
// which is the execution guarantee the controller is written against.
type Instance struct {
	id string
	rt *Runtime

	mu           sync.Mutex
	controller   *hub.Controller // nil while hibernated
	conns        map[string]*Conn
	lastActivity time.Time

	// The auto-response rule is answered on the read path without taking mu,
	// so the hub is never woken for it.
	autoMu       sync.RWMutex
	autoRequest  []byte
	autoResponse []byte
}

func newInstance(id string, rt *Runtime) *Instance {
	return &Instance{
		id:           id,
		rt:           rt,
		conns:        make(map[string]*Conn),
		lastActivity: time.Now(),
	}
}

// ID returns the instance id.
func (i *Instance) ID() string {
	return i.id
}

// Connect accepts an upgrade request on this instance, waking it first if
// necessary.
func (i *Instance) Connect(w http.ResponseWriter, r *http.Request) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.lastActivity = time.Now()
	i.ensureActive()

	_, err := i.controller.Accept(w, r)
	return err
}

// ensureActive rebuilds the controller after an eviction. Activation runs
// before the event that triggered it is dispatched. Caller holds mu.
func (i *Instance) ensureActive() {
	if i.controller != nil {
		return
	}
	i.controller = hub.NewController(i)
	i.controller.OnActivate()
}

// dispatchMessage hands an inbound payload to the controller.
func (i *Instance) dispatchMessage(c *Conn, payload []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.conns[c.id]; !ok {
		return
	}

	i.lastActivity = time.Now()
	i.ensureActive()
	i.controller.OnMessage(c, payload)
}

// dispatchClose hands a terminated connection to the controller. Already
// closed connections are ignored, keeping close idempotent.
func (i *Instance) dispatchClose(c *Conn, code int, reason string, wasClean bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.conns[c.id]; !ok {
		return
	}

	i.lastActivity = time.Now()
	i.ensureActive()
	i.controller.OnClose(c, code, reason, wasClean)
}

// readPump pumps frames from the socket into the instance. Frames matching
// the auto-response rule are answered here and never reach the controller.
func (i *Instance) readPump(c *Conn) {
	defer c.ws.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			code, reason, clean := closeDetails(err)
			i.dispatchClose(c, code, reason, clean)
			return
		}

		if i.autoRespond(c, payload) {
			continue
		}

		i.dispatchMessage(c, payload)
	}
}

// autoRespond answers a frame matching the registered request pattern. The
// reply comes from the host alone: the controller is not invoked and the
// idle clock does not advance, so a hibernated instance stays hibernated.
func (i *Instance) autoRespond(c *Conn, payload []byte) bool {
	i.autoMu.RLock()
	request, response := i.autoRequest, i.autoResponse
	i.autoMu.RUnlock()

	if len(request) == 0 || !bytes.Equal(payload, request) {
		return false
	}

	if err := c.enqueue(response); err != nil {
		logger.Debug("auto-response dropped", "conn", c.id, "error", err)
	}
	return true
}

// hibernateIfIdle evicts the in-memory controller once every connection is
// hibernation-eligible and the instance has been idle long enough. The
// connections and their attachments stay.
func (i *Instance) hibernateIfIdle(idleAfter time.Duration) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.controller == nil {
		return false
	}
	if time.Since(i.lastActivity) < idleAfter {
		return false
	}
	for _, c := range i.conns {
		if !c.hibernatable {
			return false
		}
	}

	i.controller = nil
	logger.Info("hub hibernated", "hub", i.id, "connections", len(i.conns))
	return true
}

// Hibernate evicts the in-memory controller immediately, regardless of the
// idle clock. Open connections are unaffected.
func (i *Instance) Hibernate() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.controller == nil {
		return
	}
	i.controller = nil
	logger.Info("hub hibernated", "hub", i.id, "connections", len(i.conns))
}

// Hibernated reports whether the instance currently has no in-memory hub
// state.
func (i *Instance) Hibernated() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.controller == nil
}

// ConnectionCount returns the number of live connections.
func (i *Instance) ConnectionCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.conns)
}

// SessionIDs returns the ids of the instance's sessions. A hibernated
// instance answers from its attachments without being woken.
func (i *Instance) SessionIDs() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.controller != nil {
		return i.controller.SessionIDs()
	}

	stored, err := i.rt.repo.ListByHub(i.rt.ctx, i.id)
	if err != nil {
		logger.Warn("failed to list attachments", "hub", i.id, "error", err)
		return nil
	}

	ids := make([]string, 0, len(stored))
	for _, data := range stored {
		rec, ok, err := attachment.Decode(data)
		if err != nil || !ok {
			continue
		}
		ids = append(ids, rec.ID)
	}
	return ids
}

// shutdown closes every live connection through the controller so the
// regular close path runs for each.
func (i *Instance) shutdown() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.ensureActive()
	for _, conn := range i.LiveConnections() {
		i.controller.OnClose(conn, websocket.CloseGoingAway, "server shutting down", true)
	}
}

// Host implementation. All methods below run with mu held by the dispatch
// that invoked the controller.

// Upgrade switches the request to a WebSocket, registers the connection, and
// starts its pumps.
func (i *Instance) Upgrade(w http.ResponseWriter, r *http.Request) (hub.Connection, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	c := newConn(uuid.New().String(), ws, i.rt.cfg.SendBuffer)
	i.conns[c.id] = c

	go c.writePump()
	go i.readPump(c)

	return c, nil
}

// MarkHibernatable flags the connection as not pinning the in-memory hub
// state.
func (i *Instance) MarkHibernatable(conn hub.Connection) {
	if c, ok := i.conns[conn.ID()]; ok {
		c.hibernatable = true
	}
}

// Attachment reads the durable attachment for a connection.
func (i *Instance) Attachment(conn hub.Connection) ([]byte, error) {
	return i.rt.repo.Get(i.rt.ctx, i.id, conn.ID())
}

// SetAttachment durably stores the attachment for a connection.
func (i *Instance) SetAttachment(conn hub.Connection, data []byte) error {
	return i.rt.repo.Put(i.rt.ctx, i.id, conn.ID(), data)
}

// Send queues a payload for a live connection.
func (i *Instance) Send(conn hub.Connection, payload []byte) error {
	c, ok := i.conns[conn.ID()]
	if !ok {
		return fmt.Errorf("connection %s is not live", conn.ID())
	}
	return c.enqueue(payload)
}

// Close shuts a connection and discards its attachment. Closing an unknown
// or already-closed connection is a no-op.
func (i *Instance) Close(conn hub.Connection, code int, reason string) error {
	c, ok := i.conns[conn.ID()]
	if !ok {
		return nil
	}
	delete(i.conns, c.id)

	// 1005 and 1006 are reserved and must not go on the wire.
	if code == websocket.CloseNoStatusReceived || code == websocket.CloseAbnormalClosure {
		code = websocket.CloseNormalClosure
	}
	deadline := time.Now().Add(writeWait)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)

	c.close()
	_ = c.ws.Close()

	if err := i.rt.repo.Delete(i.rt.ctx, i.id, c.id); err != nil {
		logger.Warn("failed to discard attachment", "conn", c.id, "error", err)
	}
	return nil
}

// LiveConnections enumerates the currently open connections.
func (i *Instance) LiveConnections() []hub.Connection {
	conns := make([]hub.Connection, 0, len(i.conns))
	for _, c := range i.conns {
		conns = append(conns, c)
	}
	return conns
}

// SetAutoResponse installs the request/response pair answered by the read
// pump.
func (i *Instance) SetAutoResponse(request, response []byte) {
	i.autoMu.Lock()
	defer i.autoMu.Unlock()
	i.autoRequest = append([]byte(nil), request...)
	i.autoResponse = append([]byte(nil), response...)
}

// closeDetails extracts the close code, reason, and cleanliness from a read
// error.
func closeDetails(err error) (int, string, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		clean := ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
		return ce.Code, ce.Text, clean
	}
	return websocket.CloseAbnormalClosure, err.Error(), false
}
