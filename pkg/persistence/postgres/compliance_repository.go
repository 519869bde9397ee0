package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
)

// WindowRepository stores one row per contact session window.
type WindowRepository struct {
	db *sql.DB
}

func (r *WindowRepository) SaveWindow(ctx context.Context, window *models.ConversationWindow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversation_windows (contact_id, last_inbound_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id)
		DO UPDATE SET last_inbound_at = $2, expires_at = $3
	`, window.ContactID, window.LastInboundMessageAt, window.WindowExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to save window for contact %s: %w", window.ContactID, err)
	}

	return nil
}

func (r *WindowRepository) Windows(ctx context.Context) ([]*models.ConversationWindow, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT contact_id, last_inbound_at, expires_at FROM conversation_windows")
	if err != nil {
		return nil, fmt.Errorf("failed to query windows: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var windows []*models.ConversationWindow

	for rows.Next() {
		var window models.ConversationWindow
		if err := rows.Scan(&window.ContactID, &window.LastInboundMessageAt, &window.WindowExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan window: %w", err)
		}

		windows = append(windows, &window)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating windows: %w", err)
	}

	return windows, nil
}

// HealthRepository stores one row per template health record.
type HealthRepository struct {
	db *sql.DB
}

func (r *HealthRepository) SaveTemplateHealth(ctx context.Context, health *models.TemplateHealth) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO template_health (template_id, status, quality, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (template_id)
		DO UPDATE SET status = $2, quality = $3, updated_at = $4
	`, health.TemplateID, string(health.Status), string(health.QualityScore), health.LastStatusUpdate)
	if err != nil {
		return fmt.Errorf("failed to save health for template %s: %w", health.TemplateID, err)
	}

	return nil
}

func (r *HealthRepository) TemplateHealths(ctx context.Context) ([]*models.TemplateHealth, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT template_id, status, quality, updated_at FROM template_health")
	if err != nil {
		return nil, fmt.Errorf("failed to query template health: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var healths []*models.TemplateHealth

	for rows.Next() {
		var (
			health  models.TemplateHealth
			status  string
			quality string
		)

		if err := rows.Scan(&health.TemplateID, &status, &quality, &health.LastStatusUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan template health: %w", err)
		}

		health.Status = models.TemplateStatus(status)
		health.QualityScore = models.QualityScore(quality)
		healths = append(healths, &health)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating template health: %w", err)
	}

	return healths, nil
}

var (
	_ persistence.WindowRepository = (*WindowRepository)(nil)
	_ persistence.HealthRepository = (*HealthRepository)(nil)
)
