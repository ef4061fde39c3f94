package hub

import (
	"testing"

	"github.com/connection-hub/backend/internal/attachment"
	"github.com/connection-hub/backend/internal/model"
)

type stubConn struct {
	id string
}

func (c *stubConn) ID() string { return c.id }

// stubSource serves canned attachment bytes keyed by connection id.
type stubSource struct {
	data map[string][]byte
	errs map[string]error
}

func (s *stubSource) Attachment(conn Connection) ([]byte, error) {
	if err, ok := s.errs[conn.ID()]; ok {
		return nil, err
	}
	return s.data[conn.ID()], nil
}

func encodeRecord(t *testing.T, id string) []byte {
	t.Helper()
	data, err := attachment.Encode(model.NewSessionRecord(id))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return data
}

func TestSessionTableBasics(t *testing.T) {
	table := NewSessionTable()
	a := &stubConn{id: "conn-a"}
	b := &stubConn{id: "conn-b"}

	table.Put(a, model.NewSessionRecord("session-a"))
	table.Put(b, model.NewSessionRecord("session-b"))

	if table.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", table.Len())
	}

	rec, ok := table.Get(a)
	if !ok || rec.ID != "session-a" {
		t.Fatalf("expected session-a, got %+v ok=%v", rec, ok)
	}

	table.Remove(a)
	if _, ok := table.Get(a); ok {
		t.Fatal("expected conn-a to be removed")
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", table.Len())
	}

	// Removing an absent connection is a no-op.
	table.Remove(a)
	if table.Len() != 1 {
		t.Fatalf("expected 1 entry after double remove, got %d", table.Len())
	}
}

// TestSessionTableSnapshot verifies that All returns a snapshot that stays
// valid while entries are removed underneath it.
func TestSessionTableSnapshot(t *testing.T) {
	table := NewSessionTable()
	conns := []*stubConn{{id: "c1"}, {id: "c2"}, {id: "c3"}}
	for _, c := range conns {
		table.Put(c, model.NewSessionRecord("session-"+c.id))
	}

	snapshot := table.All()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 entries in snapshot, got %d", len(snapshot))
	}

	for _, e := range snapshot {
		table.Remove(e.Conn)
		if e.Record == nil || e.Record.ID == "" {
			t.Fatal("snapshot entry invalidated by concurrent removal")
		}
	}

	if table.Len() != 0 {
		t.Fatalf("expected empty table, got %d", table.Len())
	}
}

// TestRehydrateCompleteness verifies that rehydration recovers every
// connection whose attachment decodes successfully.
func TestRehydrateCompleteness(t *testing.T) {
	a := &stubConn{id: "conn-a"}
	b := &stubConn{id: "conn-b"}
	src := &stubSource{data: map[string][]byte{
		"conn-a": encodeRecord(t, "session-a"),
		"conn-b": encodeRecord(t, "session-b"),
	}}

	table := NewSessionTable()
	recovered := table.Rehydrate([]Connection{a, b}, src)

	if recovered != 2 {
		t.Fatalf("expected 2 recovered sessions, got %d", recovered)
	}
	if rec, ok := table.Get(a); !ok || rec.ID != "session-a" {
		t.Fatalf("conn-a not rehydrated: %+v ok=%v", rec, ok)
	}
	if rec, ok := table.Get(b); !ok || rec.ID != "session-b" {
		t.Fatalf("conn-b not rehydrated: %+v ok=%v", rec, ok)
	}
}

// TestRehydrateIsolatesCorruptAttachments verifies that one corrupt
// attachment does not abort recovery of the others.
func TestRehydrateIsolatesCorruptAttachments(t *testing.T) {
	good := &stubConn{id: "good"}
	corrupt := &stubConn{id: "corrupt"}
	fresh := &stubConn{id: "fresh"}
	src := &stubSource{data: map[string][]byte{
		"good":    encodeRecord(t, "session-good"),
		"corrupt": []byte("{garbage"),
	}}

	table := NewSessionTable()
	recovered := table.Rehydrate([]Connection{good, corrupt, fresh}, src)

	if recovered != 1 {
		t.Fatalf("expected 1 recovered session, got %d", recovered)
	}
	if _, ok := table.Get(good); !ok {
		t.Fatal("healthy session lost to a neighbor's corrupt attachment")
	}
	if _, ok := table.Get(corrupt); ok {
		t.Fatal("corrupt attachment must not produce a session")
	}
	if _, ok := table.Get(fresh); ok {
		t.Fatal("connection without attachment must stay unknown")
	}
}
