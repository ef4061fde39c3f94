package model

import "time"

// SessionRecord is the per-connection session state the hub keeps for every
// live connection. ID is the mandatory, immutable field; Fields carries
// optional extension metadata merged in over the connection's lifetime.
type SessionRecord struct {
	ID     string
	Fields map[string]string
}

// NewSessionRecord creates a record with the given id and no extra fields.
func NewSessionRecord(id string) *SessionRecord {
	return &SessionRecord{ID: id}
}

// Merge adds the given fields to the record. Existing fields are kept unless
// overwritten by the same key; the id is never replaced.
func (r *SessionRecord) Merge(fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	if r.Fields == nil {
		r.Fields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		r.Fields[k] = v
	}
}

// Clone returns a deep copy of the record.
func (r *SessionRecord) Clone() *SessionRecord {
	out := &SessionRecord{ID: r.ID}
	if r.Fields != nil {
		out.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// HubInstance is a named hub endpoint. The name is client-facing and stable;
// the id is generated once and identifies the instance across restarts.
type HubInstance struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
