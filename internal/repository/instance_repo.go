package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/connection-hub/backend/internal/model"
)

// InstanceRepository maps stable hub names to generated instance ids.
type InstanceRepository struct {
	db *sql.DB
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// GetOrCreateByName resolves a hub name to its instance, allocating a new
// instance id on first use. The name to id mapping is stable across process
// restarts.
func (r *InstanceRepository) GetOrCreateByName(ctx context.Context, name string) (*model.HubInstance, error) {
	inst, err := r.GetByName(ctx, name)
	if err == nil {
		return inst, nil
	}
	if err != model.ErrHubNotFound {
		return nil, err
	}

	inst = &model.HubInstance{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}

	query := `INSERT INTO hubs (id, name, created_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, inst.ID, inst.Name, inst.CreatedAt); err != nil {
		// Another request may have inserted the same name first.
		if existing, lookupErr := r.GetByName(ctx, name); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create hub instance: %w", err)
	}

	return inst, nil
}

// GetByName retrieves a hub instance by its stable name.
func (r *InstanceRepository) GetByName(ctx context.Context, name string) (*model.HubInstance, error) {
	query := `SELECT id, name, created_at FROM hubs WHERE name = ?`

	inst := &model.HubInstance{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&inst.ID, &inst.Name, &inst.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrHubNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hub instance: %w", err)
	}

	return inst, nil
}

// List retrieves all known hub instances.
func (r *InstanceRepository) List(ctx context.Context) ([]*model.HubInstance, error) {
	query := `SELECT id, name, created_at FROM hubs ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list hub instances: %w", err)
	}
	defer rows.Close()

	var instances []*model.HubInstance
	for rows.Next() {
		inst := &model.HubInstance{}
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hub instance: %w", err)
		}
		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hub instances: %w", err)
	}

	return instances, nil
}
