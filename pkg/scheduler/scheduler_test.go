package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/mocks"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTimerPollerPublishesThenCompletes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	timers := new(mocks.MockTimerRepository)
	bus := new(mocks.MockEventBus)

	due := []*models.ScheduledTimer{
		{ID: "t1", InstanceID: "i1", NodeID: "n1", FireAt: now.Add(-time.Second)},
	}
	timers.On("DueTimers", mock.Anything, now, 100).Return(due, nil)
	timers.On("CompleteTimer", mock.Anything, "t1").Return(nil)
	bus.On("Publish", mock.Anything, events.TimerTopic, "i1", mock.MatchedBy(func(event any) bool {
		fired, ok := event.(events.TimerFired)

		// The suspension identity travels with the firing so consumers can
		// reject stale deliveries.
		return ok && fired.InstanceID == "i1" && fired.TimerID == "t1" &&
			fired.NodeID == "n1" && fired.FiredAt.Equal(now)
	})).Return(nil)

	poller := NewTimerPoller(timers, bus, slog.Default())
	poller.now = func() time.Time { return now }

	poller.poll(t.Context())

	timers.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestTimerPollerKeepsTimerWhenPublishFails(t *testing.T) {
	now := time.Now().UTC()

	timers := new(mocks.MockTimerRepository)
	bus := new(mocks.MockEventBus)

	due := []*models.ScheduledTimer{{ID: "t1", InstanceID: "i1", FireAt: now}}
	timers.On("DueTimers", mock.Anything, mock.Anything, 100).Return(due, nil)
	bus.On("Publish", mock.Anything, events.TimerTopic, "i1", mock.Anything).Return(errors.New("broker down"))

	poller := NewTimerPoller(timers, bus, slog.Default())
	poller.now = func() time.Time { return now }

	poller.poll(t.Context())

	// The timer stays pending so the next poll retries it.
	timers.AssertNotCalled(t, "CompleteTimer", mock.Anything, mock.Anything)
}

type recordingStarter struct {
	started []string
	err     error
}

func (s *recordingStarter) StartFlow(_ context.Context, flowID, _, contactID string, _ map[string]any) (*models.ExecutionInstance, error) {
	if s.err != nil {
		return nil, s.err
	}

	s.started = append(s.started, flowID+"/"+contactID)

	return &models.ExecutionInstance{ID: "inst-" + contactID}, nil
}

func scheduledFlow(cron string, contacts []any) *models.FlowDefinition {
	trigger := testutil.CreateTestNode(testutil.WithKind(models.NodeKindTriggerSchedule, map[string]any{
		"cron":     cron,
		"contacts": contacts,
	}))

	return testutil.CreateTestFlow([]*models.Node{trigger}, nil)
}

func TestActivatorFiresDueSchedules(t *testing.T) {
	flow := scheduledFlow("0 9 * * *", []any{"c1", "c2"})

	flows := new(mocks.MockFlowRepository)
	flows.On("PublishedFlows", mock.Anything).Return([]*models.FlowDefinition{flow}, nil)

	starter := &recordingStarter{}
	activator := NewActivator(flows, starter, slog.Default())

	activator.lastTick = time.Date(2026, 3, 1, 8, 59, 0, 0, time.UTC)
	activator.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 10, 0, time.UTC) }

	activator.tick(t.Context())

	assert.Equal(t, []string{flow.ID + "/c1", flow.ID + "/c2"}, starter.started)
}

func TestActivatorSkipsNotDueSchedules(t *testing.T) {
	flow := scheduledFlow("0 9 * * *", []any{"c1"})

	flows := new(mocks.MockFlowRepository)
	flows.On("PublishedFlows", mock.Anything).Return([]*models.FlowDefinition{flow}, nil)

	starter := &recordingStarter{}
	activator := NewActivator(flows, starter, slog.Default())

	activator.lastTick = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	activator.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC) }

	activator.tick(t.Context())

	assert.Empty(t, starter.started)
}

func TestActivatorToleratesStartFailures(t *testing.T) {
	flow := scheduledFlow("* * * * *", []any{"busy-contact"})

	flows := new(mocks.MockFlowRepository)
	flows.On("PublishedFlows", mock.Anything).Return([]*models.FlowDefinition{flow}, nil)

	starter := &recordingStarter{err: errors.New("contact has an active instance")}
	activator := NewActivator(flows, starter, slog.Default())

	activator.lastTick = time.Now().UTC().Add(-2 * time.Minute)
	activator.now = func() time.Time { return time.Now().UTC() }

	assert.NotPanics(t, func() { activator.tick(t.Context()) })
}

func TestDueSince(t *testing.T) {
	since := time.Date(2026, 3, 1, 8, 59, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 9, 0, 30, 0, time.UTC)

	assert.True(t, dueSince("0 9 * * *", since, now))
	assert.False(t, dueSince("0 12 * * *", since, now))
	assert.False(t, dueSince("not a cron", since, now))
}

func TestArchiverRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	instances := new(mocks.MockInstanceRepository)
	instances.On("ArchiveTerminatedBefore", mock.Anything, now.Add(-7*24*time.Hour)).Return(3, nil)

	archiver := NewArchiver(instances, 7*24*time.Hour, "", slog.Default())
	archiver.now = func() time.Time { return now }

	archiver.Run(t.Context())

	instances.AssertExpectations(t)
}

func TestArchiverDefaults(t *testing.T) {
	archiver := NewArchiver(new(mocks.MockInstanceRepository), 0, "", slog.Default())

	require.Equal(t, defaultRetention, archiver.retention)
	assert.Equal(t, "@daily", archiver.schedule)
}
