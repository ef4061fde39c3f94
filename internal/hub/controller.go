package hub

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/connection-hub/backend/internal/attachment"
	"github.com/connection-hub/backend/internal/logger"
	"github.com/connection-hub/backend/internal/model"
)

// CloseReason is the informational reason sent with every server-initiated
// close.
const CloseReason = "Hub is closing connection"

// Fixed auto-response pair answered by the host without waking the hub.
var (
	AutoResponseRequest  = []byte("ping")
	AutoResponseResponse = []byte("pong")
)

// Controller orchestrates one hub instance: connection acceptance, message
// dispatch, broadcast fan-out, and close handling. It holds no locks; the
// host guarantees its operations never run concurrently for one instance.
//
// Each connection moves PENDING_UPGRADE -> OPEN in Accept and
// OPEN -> CLOSING -> CLOSED in OnClose. OPEN spans hub evictions: the
// controller itself may be discarded and rebuilt while its connections stay
// open, which is why every record is mirrored to its attachment on mutation.
type Controller struct {
	host  Host
	table *SessionTable

	activated bool
}

// NewController creates a controller bound to a host. OnActivate must run
// before any other operation is dispatched.
func NewController(host Host) *Controller {
	return &Controller{
		host:  host,
		table: NewSessionTable(),
	}
}

// OnActivate rebuilds the session table from the host's live connection set
// and re-registers the auto-response rule. It runs exactly once per
// activation; the rule is not part of the durable attachment state and must
// be installed again each time.
func (c *Controller) OnActivate() {
	if c.activated {
		return
	}
	c.activated = true

	live := c.host.LiveConnections()
	recovered := c.table.Rehydrate(live, c.host)
	c.host.SetAutoResponse(AutoResponseRequest, AutoResponseResponse)

	logger.Info("hub activated", "live", len(live), "recovered", recovered)
}

// Accept validates an upgrade request, switches it to a bidirectional
// channel, and registers a new session for it. The upgrade and method
// checks normally run in the ingress adapter; they are repeated here so a
// malformed accept can never slip through.
func (c *Controller) Accept(w http.ResponseWriter, r *http.Request) (Connection, error) {
	if !websocket.IsWebSocketUpgrade(r) {
		return nil, model.ErrProtocolMismatch
	}
	if r.Method != http.MethodGet {
		return nil, model.ErrMethodNotAllowed
	}

	conn, err := c.host.Upgrade(w, r)
	if err != nil {
		return nil, fmt.Errorf("upgrade failed: %w", err)
	}

	c.host.MarkHibernatable(conn)

	rec := model.NewSessionRecord(uuid.New().String())
	c.persistRecord(conn, rec)
	c.table.Put(conn, rec)

	logger.Info("connection accepted", "conn", conn.ID(), "session", rec.ID, "total", c.table.Len())
	return conn, nil
}

// OnMessage handles an inbound payload from a connection: it replies to the
// sender, then fans the same text out to the live set.
func (c *Controller) OnMessage(conn Connection, payload []byte) {
	rec, ok := c.table.Get(conn)
	if !ok {
		// Attachment lost or never rehydrated. Issue a fresh identity
		// instead of dropping an otherwise healthy connection.
		logger.Warn("recovering session", "conn", conn.ID(), "error", model.ErrUnknownSession)
		rec = model.NewSessionRecord(uuid.New().String())
		c.persistRecord(conn, rec)
		c.table.Put(conn, rec)
	}

	reply := []byte(fmt.Sprintf("[Hub] message: %s, from: %s. Total connections: %d",
		payload, rec.ID, c.table.Len()))

	c.send(conn, reply)

	// Two fan-out passes per inbound message, one including the sender and
	// one excluding it. Clients rely on the resulting counts: three copies
	// for the sender, two for every peer. Do not collapse into one pass.
	for _, e := range c.table.All() {
		c.send(e.Conn, reply)
	}
	for _, e := range c.table.All() {
		if e.Conn != conn {
			c.send(e.Conn, reply)
		}
	}
}

// OnClose shuts the connection with the given code and the fixed reason,
// then drops its session. Safe to call again for an already-closed
// connection.
func (c *Controller) OnClose(conn Connection, code int, reason string, wasClean bool) {
	logger.Debug("closing connection", "conn", conn.ID(), "code", code, "reason", reason, "clean", wasClean)

	if err := c.host.Close(conn, code, CloseReason); err != nil {
		logger.Warn("host close failed", "conn", conn.ID(), "error", err)
	}
	c.table.Remove(conn)
}

// SessionCount returns the number of open sessions.
func (c *Controller) SessionCount() int {
	return c.table.Len()
}

// SessionIDs returns the ids of all open sessions.
func (c *Controller) SessionIDs() []string {
	entries := c.table.All()
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Record.ID)
	}
	return ids
}

// persistRecord mirrors a record to the connection's attachment. The
// attachment is the durable source of truth, so it is written immediately on
// every record mutation; a write failure degrades the session to in-memory
// only and is not fatal.
func (c *Controller) persistRecord(conn Connection, rec *model.SessionRecord) {
	data, err := attachment.Encode(rec)
	if err == nil {
		err = c.host.SetAttachment(conn, data)
	}
	if err != nil {
		logger.Warn("failed to persist attachment", "conn", conn.ID(), "error", err)
	}
}

// send delivers a payload, tolerating peers that close mid-broadcast.
func (c *Controller) send(conn Connection, payload []byte) {
	if err := c.host.Send(conn, payload); err != nil {
		logger.Debug("send skipped", "conn", conn.ID(), "error", err)
	}
}
