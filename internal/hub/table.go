package hub

import (
	"github.com/connection-hub/backend/internal/attachment"
	"github.com/connection-hub/backend/internal/logger"
	"github.com/connection-hub/backend/internal/model"
)

// Entry pairs a connection handle with its session record.
type Entry struct {
	Conn   Connection
	Record *model.SessionRecord
}

// SessionTable maps live connection handles to session records. It is a
// volatile cache of the durable attachments: rebuilt on every activation,
// mutated on connect and disconnect, and owned by exactly one hub instance
// whose host serializes all access.
type SessionTable struct {
	entries map[Connection]*model.SessionRecord
}

// NewSessionTable creates an empty session table.
func NewSessionTable() *SessionTable {
	return &SessionTable{
		entries: make(map[Connection]*model.SessionRecord),
	}
}

// Put inserts or replaces the record for a connection.
func (t *SessionTable) Put(conn Connection, rec *model.SessionRecord) {
	t.entries[conn] = rec
}

// Get returns the record for a connection, if present.
func (t *SessionTable) Get(conn Connection) (*model.SessionRecord, bool) {
	rec, ok := t.entries[conn]
	return rec, ok
}

// Remove deletes the entry for a connection. Removing an absent connection
// is a no-op.
func (t *SessionTable) Remove(conn Connection) {
	delete(t.entries, conn)
}

// Len returns the number of entries.
func (t *SessionTable) Len() int {
	return len(t.entries)
}

// All returns a snapshot of the table. Entries removed after the call do not
// affect the returned slice, so iterating remains safe while the table is
// mutated between sends.
func (t *SessionTable) All() []Entry {
	entries := make([]Entry, 0, len(t.entries))
	for conn, rec := range t.entries {
		entries = append(entries, Entry{Conn: conn, Record: rec})
	}
	return entries
}

// Rehydrate rebuilds the table from the host's live connection set by
// decoding each connection's attachment. Connections without an attachment
// are left out for the controller to rebuild lazily; a corrupt attachment is
// logged and skipped without affecting the other connections. Returns the
// number of sessions recovered.
func (t *SessionTable) Rehydrate(conns []Connection, src AttachmentSource) int {
	recovered := 0
	for _, conn := range conns {
		data, err := src.Attachment(conn)
		if err != nil {
			logger.Warn("failed to read attachment", "conn", conn.ID(), "error", err)
			continue
		}

		rec, ok, err := attachment.Decode(data)
		if err != nil {
			logger.Warn("skipping corrupt attachment", "conn", conn.ID(), "error", err)
			continue
		}
		if !ok {
			// Fresh or unknown connection; a record is synthesized on its
			// first message.
			continue
		}

		t.entries[conn] = rec
		recovered++
	}
	return recovered
}
