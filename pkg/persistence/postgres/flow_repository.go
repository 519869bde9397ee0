package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
)

// FlowRepository stores each flow version as one JSONB document keyed by
// (id, version).
type FlowRepository struct {
	db *sql.DB
}

func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.FlowDefinition) error {
	var existingStatus string

	err := r.db.QueryRowContext(ctx,
		"SELECT status FROM flows WHERE id = $1 AND version = $2",
		flow.ID, flow.Version,
	).Scan(&existingStatus)

	switch {
	case err == nil:
		if models.FlowStatus(existingStatus) == models.FlowStatusPublished {
			return persistence.ErrVersionConflict
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("failed to check existing flow version: %w", err)
	}

	definition, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO flows (id, version, status, definition, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id, version)
		DO UPDATE SET status = $3, definition = $4, updated_at = NOW()
	`, flow.ID, flow.Version, string(flow.Status), definition)
	if err != nil {
		return fmt.Errorf("failed to save flow %s: %w", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) FlowByID(ctx context.Context, id string) (*models.FlowDefinition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT definition FROM flows
		WHERE id = $1
		ORDER BY version DESC
		LIMIT 1
	`, id)

	return scanFlow(row)
}

func (r *FlowRepository) FlowByVersion(ctx context.Context, id string, version int) (*models.FlowDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT definition FROM flows WHERE id = $1 AND version = $2",
		id, version)

	return scanFlow(row)
}

func (r *FlowRepository) PublishedFlows(ctx context.Context) ([]*models.FlowDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT definition FROM flows WHERE status = $1 ORDER BY id, version",
		string(models.FlowStatusPublished))
	if err != nil {
		return nil, fmt.Errorf("failed to query published flows: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var flows []*models.FlowDefinition

	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		var flow models.FlowDefinition
		if err := json.Unmarshal(definition, &flow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
		}

		flows = append(flows, &flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

func (r *FlowRepository) DeleteFlow(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrFlowNotFound
	}

	return nil
}

func scanFlow(row *sql.Row) (*models.FlowDefinition, error) {
	var definition []byte

	err := row.Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrFlowNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	var flow models.FlowDefinition
	if err := json.Unmarshal(definition, &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}

	return &flow, nil
}

var _ persistence.FlowRepository = (*FlowRepository)(nil)
