// Package repository provides data access for hub instances and connection
// attachments.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AttachmentRepository stores the per-connection attachment blobs that
// survive in-memory hub eviction. One row exists per live connection; the
// row is removed when the connection closes.
type AttachmentRepository struct {
	db *sql.DB
}

// NewAttachmentRepository creates a new AttachmentRepository.
func NewAttachmentRepository(db *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Put inserts or replaces the attachment for a connection.
func (r *AttachmentRepository) Put(ctx context.Context, hubID, connID string, data []byte) error {
	query := `
		INSERT INTO attachments (hub_id, conn_id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hub_id, conn_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, hubID, connID, data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store attachment: %w", err)
	}

	return nil
}

// Get retrieves the attachment for a connection. A connection with no
// attachment yields nil bytes and no error.
func (r *AttachmentRepository) Get(ctx context.Context, hubID, connID string) ([]byte, error) {
	query := `SELECT data FROM attachments WHERE hub_id = ? AND conn_id = ?`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, hubID, connID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	return data, nil
}

// Delete removes the attachment for a connection. Deleting a missing
// attachment is a no-op.
func (r *AttachmentRepository) Delete(ctx context.Context, hubID, connID string) error {
	query := `DELETE FROM attachments WHERE hub_id = ? AND conn_id = ?`

	if _, err := r.db.ExecContext(ctx, query, hubID, connID); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}

	return nil
}

// ListByHub retrieves all attachments belonging to a hub instance, keyed by
// connection id.
func (r *AttachmentRepository) ListByHub(ctx context.Context, hubID string) (map[string][]byte, error) {
	query := `SELECT conn_id, data FROM attachments WHERE hub_id = ?`

	rows, err := r.db.QueryContext(ctx, query, hubID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make(map[string][]byte)
	for rows.Next() {
		var connID string
		var data []byte
		if err := rows.Scan(&connID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments[connID] = data
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}

// DeleteByHub removes all attachments belonging to a hub instance.
func (r *AttachmentRepository) DeleteByHub(ctx context.Context, hubID string) error {
	query := `DELETE FROM attachments WHERE hub_id = ?`

	if _, err := r.db.ExecContext(ctx, query, hubID); err != nil {
		return fmt.Errorf("failed to delete hub attachments: %w", err)
	}

	return nil
}
