// Package persistence provides the data storage abstraction for flow
// definitions, execution instances, compliance state and durable timers.
package persistence

import (
	"context"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
)

// FlowRepository stores versioned flow definitions. Published versions are
// immutable; saving a flow with an existing (id, version) pair overwrites
// only drafts.
type FlowRepository interface {
	SaveFlow(ctx context.Context, flow *models.FlowDefinition) error
	FlowByID(ctx context.Context, id string) (*models.FlowDefinition, error)
	FlowByVersion(ctx context.Context, id string, version int) (*models.FlowDefinition, error)
	PublishedFlows(ctx context.Context) ([]*models.FlowDefinition, error)
	DeleteFlow(ctx context.Context, id string) error
}

// InstanceRepository stores execution instances. SaveInstance is the
// durability point of the engine: state is persisted before effects are
// dispatched.
type InstanceRepository interface {
	SaveInstance(ctx context.Context, instance *models.ExecutionInstance) error
	InstanceByID(ctx context.Context, id string) (*models.ExecutionInstance, error)

	// ActiveInstanceByContact returns the single non-terminal instance for
	// a contact, or nil when the contact has no active conversation.
	ActiveInstanceByContact(ctx context.Context, contactID string) (*models.ExecutionInstance, error)

	InstancesByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionInstance, error)

	// ArchiveTerminatedBefore marks terminal instances older than the
	// cutoff as archived and returns how many were touched.
	ArchiveTerminatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// WindowRepository stores per-contact 24-hour session windows.
type WindowRepository interface {
	SaveWindow(ctx context.Context, window *models.ConversationWindow) error
	Windows(ctx context.Context) ([]*models.ConversationWindow, error)
}

// HealthRepository stores per-template health state.
type HealthRepository interface {
	SaveTemplateHealth(ctx context.Context, health *models.TemplateHealth) error
	TemplateHealths(ctx context.Context) ([]*models.TemplateHealth, error)
}

// TimerRepository stores durable timers for delayed and timed-out
// suspensions.
type TimerRepository interface {
	ScheduleTimer(ctx context.Context, timer *models.ScheduledTimer) error

	// DueTimers returns up to limit timers with FireAt at or before now,
	// soonest first.
	DueTimers(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTimer, error)

	CompleteTimer(ctx context.Context, id string) error

	// CancelTimersForInstance drops pending timers of an instance, used
	// when it resumes or terminates before the timer fires.
	CancelTimersForInstance(ctx context.Context, instanceID string) error
}

type Persistence interface {
	FlowRepository() FlowRepository
	InstanceRepository() InstanceRepository
	WindowRepository() WindowRepository
	HealthRepository() HealthRepository
	TimerRepository() TimerRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
