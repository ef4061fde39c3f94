package repository

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/connection-hub/backend/internal/db"
)

// TestAttachmentStoreRoundTripProperty checks that any stored blob is read
// back byte-for-byte, for any hub and connection ids.
func TestAttachmentStoreRoundTripProperty(t *testing.T) {
	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	defer database.Close()

	repo := NewAttachmentRepository(database)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("stored attachments read back unchanged", prop.ForAll(
		func(hubID, connID, payload string) bool {
			if err := repo.Put(ctx, hubID, connID, []byte(payload)); err != nil {
				t.Logf("put failed: %v", err)
				return false
			}

			data, err := repo.Get(ctx, hubID, connID)
			if err != nil {
				t.Logf("get failed: %v", err)
				return false
			}
			return string(data) == payload
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	properties.Property("delete removes exactly the addressed attachment", prop.ForAll(
		func(hubID, connID, otherConn, payload string) bool {
			if connID == otherConn {
				return true
			}

			repo.Put(ctx, hubID, connID, []byte(payload))
			repo.Put(ctx, hubID, otherConn, []byte(payload))

			if err := repo.Delete(ctx, hubID, connID); err != nil {
				t.Logf("delete failed: %v", err)
				return false
			}

			gone, err := repo.Get(ctx, hubID, connID)
			if err != nil || gone != nil {
				return false
			}
			kept, err := repo.Get(ctx, hubID, otherConn)
			return err == nil && string(kept) == payload
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	properties.TestingRun(t)
}
