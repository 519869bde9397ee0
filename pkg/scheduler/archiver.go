package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const defaultRetention = 30 * 24 * time.Hour

// Archiver marks old terminal instances as archived on a cron schedule so
// state queries stay bounded while history remains readable.
type Archiver struct {
	instances persistence.InstanceRepository
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	logger    *slog.Logger
	now       func() time.Time
}

func NewArchiver(instances persistence.InstanceRepository, retention time.Duration, schedule string, logger *slog.Logger) *Archiver {
	if retention <= 0 {
		retention = defaultRetention
	}

	if schedule == "" {
		schedule = "@daily"
	}

	return &Archiver{
		instances: instances,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(),
		logger:    logger.With("module", "archiver"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (a *Archiver) Start(ctx context.Context) error {
	_, err := a.cron.AddFunc(a.schedule, func() {
		a.Run(ctx)
	})
	if err != nil {
		return err
	}

	a.cron.Start()
	a.logger.Info("Archiver started", "schedule", a.schedule, "retention", a.retention)

	return nil
}

func (a *Archiver) Stop() {
	<-a.cron.Stop().Done()
}

// Run archives one batch immediately, independent of the cron schedule.
func (a *Archiver) Run(ctx context.Context) {
	cutoff := a.now().Add(-a.retention)

	archived, err := a.instances.ArchiveTerminatedBefore(ctx, cutoff)
	if err != nil {
		a.logger.Error("Failed to archive instances", "error", err.Error())

		return
	}

	if archived > 0 {
		a.logger.Info("Archived terminal instances", "count", archived, "cutoff", cutoff)
	}
}
