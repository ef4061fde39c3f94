// Package attachment serializes session records to and from the opaque
// per-connection attachment slot the host keeps across process evictions.
//
// The wire format is a single flat JSON object: the mandatory "id" key plus
// any extension fields, e.g. {"id":"...","room":"lobby"}. Extension fields
// can be merged in later without disturbing what is already stored.
package attachment

import (
	"encoding/json"
	"fmt"

	"github.com/connection-hub/backend/internal/model"
)

// idKey is the one mandatory key; it is reserved and never treated as an
// extension field.
const idKey = "id"

// Encode serializes a session record into attachment bytes.
func Encode(rec *model.SessionRecord) ([]byte, error) {
	if rec == nil || rec.ID == "" {
		return nil, fmt.Errorf("%w: record has no id", model.ErrCorruptAttachment)
	}

	flat := make(map[string]string, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		if k == idKey {
			continue
		}
		flat[k] = v
	}
	flat[idKey] = rec.ID

	data, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachment: %w", err)
	}
	return data, nil
}

// Decode parses attachment bytes back into a session record. Empty or
// missing bytes mean no prior session state and yield ok=false without an
// error; unparseable bytes or an object without an id are a corrupt
// attachment.
func Decode(data []byte) (*model.SessionRecord, bool, error) {
	if len(data) == 0 {
		return nil, false, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, false, fmt.Errorf("%w: %v", model.ErrCorruptAttachment, err)
	}

	id := flat[idKey]
	if id == "" {
		return nil, false, fmt.Errorf("%w: missing id", model.ErrCorruptAttachment)
	}
	delete(flat, idKey)

	rec := model.NewSessionRecord(id)
	if len(flat) > 0 {
		rec.Fields = flat
	}
	return rec, true, nil
}

// Merge decodes existing attachment bytes, merges the given fields into the
// record, and re-encodes it. Previously stored fields are preserved.
func Merge(data []byte, fields map[string]string) ([]byte, error) {
	rec, ok, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no attachment to merge into", model.ErrCorruptAttachment)
	}
	rec.Merge(fields)
	return Encode(rec)
}
