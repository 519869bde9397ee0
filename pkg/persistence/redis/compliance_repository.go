package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// WindowRepository keeps all session windows in one hash keyed by contact.
type WindowRepository struct {
	client *redis.Client
}

func windowsKey() string {
	return keyPrefix + ":windows"
}

func (r *WindowRepository) SaveWindow(ctx context.Context, window *models.ConversationWindow) error {
	data, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("failed to marshal window for contact %s: %w", window.ContactID, err)
	}

	if err := r.client.HSet(ctx, windowsKey(), window.ContactID, data).Err(); err != nil {
		return fmt.Errorf("failed to save window for contact %s: %w", window.ContactID, err)
	}

	return nil
}

func (r *WindowRepository) Windows(ctx context.Context) ([]*models.ConversationWindow, error) {
	fields, err := r.client.HGetAll(ctx, windowsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load windows: %w", err)
	}

	windows := make([]*models.ConversationWindow, 0, len(fields))

	for contactID, data := range fields {
		var window models.ConversationWindow
		if err := json.Unmarshal([]byte(data), &window); err != nil {
			return nil, fmt.Errorf("failed to unmarshal window for contact %s: %w", contactID, err)
		}

		windows = append(windows, &window)
	}

	return windows, nil
}

// HealthRepository keeps all template health records in one hash keyed by
// template id.
type HealthRepository struct {
	client *redis.Client
}

func templatesKey() string {
	return keyPrefix + ":templates"
}

func (r *HealthRepository) SaveTemplateHealth(ctx context.Context, health *models.TemplateHealth) error {
	data, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("failed to marshal health for template %s: %w", health.TemplateID, err)
	}

	if err := r.client.HSet(ctx, templatesKey(), health.TemplateID, data).Err(); err != nil {
		return fmt.Errorf("failed to save health for template %s: %w", health.TemplateID, err)
	}

	return nil
}

func (r *HealthRepository) TemplateHealths(ctx context.Context) ([]*models.TemplateHealth, error) {
	fields, err := r.client.HGetAll(ctx, templatesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load template health: %w", err)
	}

	healths := make([]*models.TemplateHealth, 0, len(fields))

	for templateID, data := range fields {
		var health models.TemplateHealth
		if err := json.Unmarshal([]byte(data), &health); err != nil {
			return nil, fmt.Errorf("failed to unmarshal health for template %s: %w", templateID, err)
		}

		healths = append(healths, &health)
	}

	return healths, nil
}

var (
	_ persistence.WindowRepository = (*WindowRepository)(nil)
	_ persistence.HealthRepository = (*HealthRepository)(nil)
)
