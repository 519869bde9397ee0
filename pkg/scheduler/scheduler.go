// Package scheduler owns time-driven work: polling the durable timer store
// to wake suspended instances, activating cron-scheduled flow triggers and
// archiving old terminal instances.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flowzap/flowzap/pkg/eventbus"
	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/persistence"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// TimerPoller polls the timer store and publishes TimerFired events for
// due timers. Timers are completed only after a successful publish, so a
// crash between the two replays the timer (at-least-once).
type TimerPoller struct {
	timers   persistence.TimerRepository
	bus      eventbus.EventPublisher
	interval time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time
}

func NewTimerPoller(timers persistence.TimerRepository, bus eventbus.EventPublisher, logger *slog.Logger) *TimerPoller {
	return &TimerPoller{
		timers:   timers,
		bus:      bus,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
		logger:   logger.With("module", "timer_poller"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start blocks until the context is cancelled.
func (p *TimerPoller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Timer poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Timer poller stopped")

			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *TimerPoller) poll(ctx context.Context) {
	now := p.now()

	due, err := p.timers.DueTimers(ctx, now, p.batch)
	if err != nil {
		p.logger.Error("Failed to query due timers", "error", err.Error())

		return
	}

	for _, timer := range due {
		fired := events.TimerFired{
			BaseEvent:  events.NewBaseEvent(events.TimerFiredEventType),
			TimerID:    timer.ID,
			InstanceID: timer.InstanceID,
			NodeID:     timer.NodeID,
			FiredAt:    now,
		}

		if err := p.bus.Publish(ctx, events.TimerTopic, timer.InstanceID, fired); err != nil {
			p.logger.Error("Failed to publish timer event",
				"timer_id", timer.ID, "instance_id", timer.InstanceID, "error", err.Error())

			continue
		}

		if err := p.timers.CompleteTimer(ctx, timer.ID); err != nil && !errors.Is(err, persistence.ErrTimerNotFound) {
			p.logger.Error("Failed to complete timer", "timer_id", timer.ID, "error", err.Error())
		}
	}
}
