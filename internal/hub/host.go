package hub

import "net/http"

// Connection is a non-owning handle to one live bidirectional message
// channel. The handle is created and owned by the host; the hub compares
// handles by identity, never by content.
type Connection interface {
	// ID returns the host-assigned identity of the connection.
	ID() string
}

// AttachmentSource reads the durable attachment stored alongside a
// connection. Nil bytes mean no attachment is stored.
type AttachmentSource interface {
	Attachment(conn Connection) ([]byte, error)
}

// Host is the runtime boundary the controller drives. The host owns the
// sockets and the attachment store; the controller owns the session
// semantics. All methods are called with the instance's event serialization
// held, so implementations need no cross-call locking of their own.
type Host interface {
	AttachmentSource

	// Upgrade switches the HTTP request to a bidirectional channel and
	// returns the server-side handle.
	Upgrade(w http.ResponseWriter, r *http.Request) (Connection, error)

	// MarkHibernatable tells the host the connection should not pin the
	// in-memory hub state while idle.
	MarkHibernatable(conn Connection)

	// SetAttachment durably stores the attachment bytes for a connection.
	SetAttachment(conn Connection, data []byte) error

	// Send delivers a payload to a connection. Sending to a connection that
	// closed mid-flight returns an error the caller may ignore.
	Send(conn Connection, payload []byte) error

	// Close shuts a connection with a close code and reason, discarding its
	// attachment. Closing an already-closed connection is a no-op.
	Close(conn Connection, code int, reason string) error

	// LiveConnections enumerates the currently open connections.
	LiveConnections() []Connection

	// SetAutoResponse installs the request/response byte pair the host
	// answers on its own, without involving the controller.
	SetAutoResponse(request, response []byte)
}
