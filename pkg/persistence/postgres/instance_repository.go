package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
)

// InstanceRepository stores execution instances as JSONB documents with
// contact and status columns extracted for indexed lookups.
type InstanceRepository struct {
	db *sql.DB
}

func (r *InstanceRepository) SaveInstance(ctx context.Context, instance *models.ExecutionInstance) error {
	state, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO instances (id, flow_id, contact_id, status, archived, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id)
		DO UPDATE SET status = $4, archived = $5, state = $6, updated_at = NOW()
	`, instance.ID, instance.FlowID, instance.ContactID, string(instance.Status), instance.Archived, state)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) InstanceByID(ctx context.Context, id string) (*models.ExecutionInstance, error) {
	var state []byte

	err := r.db.QueryRowContext(ctx, "SELECT state FROM instances WHERE id = $1", id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrInstanceNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query instance %s: %w", id, err)
	}

	return unmarshalInstance(state)
}

func (r *InstanceRepository) ActiveInstanceByContact(ctx context.Context, contactID string) (*models.ExecutionInstance, error) {
	var state []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT state FROM instances
		WHERE contact_id = $1
		  AND status NOT IN ('completed', 'failed', 'aborted')
		ORDER BY updated_at DESC
		LIMIT 1
	`, contactID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query active instance for contact %s: %w", contactID, err)
	}

	return unmarshalInstance(state)
}

func (r *InstanceRepository) InstancesByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionInstance, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT state FROM instances WHERE status = $1 ORDER BY updated_at",
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query instances by status: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var instances []*models.ExecutionInstance

	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instance, err := unmarshalInstance(state)
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

func (r *InstanceRepository) ArchiveTerminatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE instances
		SET archived = TRUE,
		    state = jsonb_set(state, '{archived}', 'true')
		WHERE archived = FALSE
		  AND status IN ('completed', 'failed', 'aborted')
		  AND updated_at <= $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive instances: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check archive result: %w", err)
	}

	return int(affected), nil
}

func unmarshalInstance(state []byte) (*models.ExecutionInstance, error) {
	var instance models.ExecutionInstance
	if err := json.Unmarshal(state, &instance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}

	return &instance, nil
}

var _ persistence.InstanceRepository = (*InstanceRepository)(nil)
