package compliance

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/google/uuid"
)

// HealthRepository persists template health across restarts.
type HealthRepository interface {
	SaveTemplateHealth(ctx context.Context, health *models.TemplateHealth) error
	TemplateHealths(ctx context.Context) ([]*models.TemplateHealth, error)
}

// Monitor tracks per-template approval and quality state, driven
// exclusively by provider status events. It is a hard gate re-checked
// immediately before each provider call.
type Monitor struct {
	mu     sync.RWMutex
	health map[string]*models.TemplateHealth
	repo   HealthRepository
	logger *slog.Logger
}

func NewMonitor(repo HealthRepository, logger *slog.Logger) *Monitor {
	return &Monitor{
		health: make(map[string]*models.TemplateHealth),
		repo:   repo,
		logger: logger.With("module", "template_health"),
	}
}

// Load hydrates the in-memory state from the repository on startup.
func (m *Monitor) Load(ctx context.Context) error {
	healths, err := m.repo.TemplateHealths(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range healths {
		m.health[h.TemplateID] = h
	}

	m.logger.Info("Loaded template health records", "count", len(healths))

	return nil
}

// OnStatusUpdate applies a provider status event. A transition into Paused,
// Disabled or Red quality returns a CompliancePause effect plus an operator
// alert; the caller dispatches them. Already-completed sends are never
// mutated retroactively; eligibility is checked per dispatch.
func (m *Monitor) OnStatusUpdate(ctx context.Context, event events.TemplateStatus) ([]models.Effect, error) {
	health := &models.TemplateHealth{
		TemplateID:       event.TemplateID,
		Status:           event.Status,
		QualityScore:     event.QualityScore,
		LastStatusUpdate: event.OccurredAt,
	}

	m.mu.Lock()
	previous := m.health[event.TemplateID]
	m.health[event.TemplateID] = health
	m.mu.Unlock()

	if err := m.repo.SaveTemplateHealth(ctx, health); err != nil {
		return nil, err
	}

	m.logger.Info("Template health updated",
		"template_id", event.TemplateID,
		"status", event.Status,
		"quality", event.QualityScore)

	if !becameUnhealthy(previous, health) {
		return nil, nil
	}

	pause := models.Effect{
		ID:   uuid.New().String(),
		Type: models.EffectCompliancePause,
	}

	alert := models.Effect{
		ID:   uuid.New().String(),
		Type: models.EffectOperatorAlert,
		Alert: &models.AlertPayload{
			Severity: "critical",
			Message:  "template paused by provider health signal",
			Subject:  event.TemplateID,
		},
	}

	return []models.Effect{pause, alert}, nil
}

func becameUnhealthy(previous, current *models.TemplateHealth) bool {
	if current.Sendable() {
		return false
	}

	// Only a transition raises the pause; repeated unhealthy updates stay
	// silent.
	return previous == nil || previous.Sendable()
}

// IsSendable reports whether new sends may target the template. Unknown
// templates are sendable; health exists only once the provider reports it.
func (m *Monitor) IsSendable(templateID string) bool {
	m.mu.RLock()
	health, ok := m.health[templateID]
	m.mu.RUnlock()

	if !ok {
		return true
	}

	return health.Sendable()
}

// Quality returns the last reported quality score for the template.
func (m *Monitor) Quality(templateID string) models.QualityScore {
	m.mu.RLock()
	health, ok := m.health[templateID]
	m.mu.RUnlock()

	if !ok {
		return models.QualityUnknown
	}

	return health.QualityScore
}
