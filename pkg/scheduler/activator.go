package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// FlowStarter starts a flow execution for one contact; the runner
// implements it.
type FlowStarter interface {
	StartFlow(ctx context.Context, flowID, triggerNodeID, contactID string, seed map[string]any) (*models.ExecutionInstance, error)
}

const activatorInterval = 30 * time.Second

// Activator fires schedule triggers. Each tick it reloads the published
// flows, so newly published schedules take effect without a restart. A
// trigger fires when its cron expression has a due activation since the
// previous tick.
type Activator struct {
	flows    persistence.FlowRepository
	starter  FlowStarter
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	lastTick time.Time
}

func NewActivator(flows persistence.FlowRepository, starter FlowStarter, logger *slog.Logger) *Activator {
	return &Activator{
		flows:    flows,
		starter:  starter,
		interval: activatorInterval,
		logger:   logger.With("module", "schedule_activator"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start blocks until the context is cancelled.
func (a *Activator) Start(ctx context.Context) {
	a.lastTick = a.now()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("Schedule activator started", "interval", a.interval)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Schedule activator stopped")

			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Activator) tick(ctx context.Context) {
	now := a.now()
	since := a.lastTick
	a.lastTick = now

	published, err := a.flows.PublishedFlows(ctx)
	if err != nil {
		a.logger.Error("Failed to load published flows", "error", err.Error())

		return
	}

	for _, flow := range published {
		for _, trigger := range flow.TriggerNodes() {
			if trigger.Kind != models.NodeKindTriggerSchedule {
				continue
			}

			cfg, err := trigger.DecodeConfig()
			if err != nil {
				a.logger.Error("Invalid schedule trigger config",
					"flow_id", flow.ID, "node_id", trigger.ID, "error", err.Error())

				continue
			}

			schedule, ok := cfg.(*models.TriggerScheduleConfig)
			if !ok {
				continue
			}

			if !dueSince(schedule.Cron, since, now) {
				continue
			}

			a.fire(ctx, flow, trigger.ID, schedule)
		}
	}
}

func (a *Activator) fire(ctx context.Context, flow *models.FlowDefinition, triggerNodeID string, schedule *models.TriggerScheduleConfig) {
	for _, contactID := range schedule.Contacts {
		instance, err := a.starter.StartFlow(ctx, flow.ID, triggerNodeID, contactID, nil)
		if err != nil {
			// Contacts with an active conversation are skipped, not failed.
			a.logger.Warn("Scheduled start skipped",
				"flow_id", flow.ID, "contact_id", contactID, "reason", err.Error())

			continue
		}

		a.logger.Info("Scheduled flow started",
			"flow_id", flow.ID, "contact_id", contactID, "instance_id", instance.ID)
	}
}

// dueSince reports whether the cron expression has an activation in
// (since, now].
func dueSince(expression string, since, now time.Time) bool {
	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return false
	}

	next := schedule.Next(since)

	return !next.After(now)
}
