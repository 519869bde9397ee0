package mocks

import (
	"context"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockFlowRepository is a mock implementation of persistence.FlowRepository.
type MockFlowRepository struct {
	mock.Mock
}

func (m *MockFlowRepository) SaveFlow(ctx context.Context, flow *models.FlowDefinition) error {
	args := m.Called(ctx, flow)

	return args.Error(0)
}

func (m *MockFlowRepository) FlowByID(ctx context.Context, id string) (*models.FlowDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.FlowDefinition), args.Error(1)
}

func (m *MockFlowRepository) FlowByVersion(ctx context.Context, id string, version int) (*models.FlowDefinition, error) {
	args := m.Called(ctx, id, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.FlowDefinition), args.Error(1)
}

func (m *MockFlowRepository) PublishedFlows(ctx context.Context) ([]*models.FlowDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.FlowDefinition), args.Error(1)
}

func (m *MockFlowRepository) DeleteFlow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockInstanceRepository is a mock implementation of
// persistence.InstanceRepository.
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) SaveInstance(ctx context.Context, instance *models.ExecutionInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockInstanceRepository) InstanceByID(ctx context.Context, id string) (*models.ExecutionInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionInstance), args.Error(1)
}

func (m *MockInstanceRepository) ActiveInstanceByContact(ctx context.Context, contactID string) (*models.ExecutionInstance, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionInstance), args.Error(1)
}

func (m *MockInstanceRepository) InstancesByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ExecutionInstance, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionInstance), args.Error(1)
}

func (m *MockInstanceRepository) ArchiveTerminatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)

	return args.Int(0), args.Error(1)
}

// MockWindowRepository is a mock implementation of
// persistence.WindowRepository.
type MockWindowRepository struct {
	mock.Mock
}

func (m *MockWindowRepository) SaveWindow(ctx context.Context, window *models.ConversationWindow) error {
	args := m.Called(ctx, window)

	return args.Error(0)
}

func (m *MockWindowRepository) Windows(ctx context.Context) ([]*models.ConversationWindow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ConversationWindow), args.Error(1)
}

// MockHealthRepository is a mock implementation of
// persistence.HealthRepository.
type MockHealthRepository struct {
	mock.Mock
}

func (m *MockHealthRepository) SaveTemplateHealth(ctx context.Context, health *models.TemplateHealth) error {
	args := m.Called(ctx, health)

	return args.Error(0)
}

func (m *MockHealthRepository) TemplateHealths(ctx context.Context) ([]*models.TemplateHealth, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TemplateHealth), args.Error(1)
}

// MockTimerRepository is a mock implementation of
// persistence.TimerRepository.
type MockTimerRepository struct {
	mock.Mock
}

func (m *MockTimerRepository) ScheduleTimer(ctx context.Context, timer *models.ScheduledTimer) error {
	args := m.Called(ctx, timer)

	return args.Error(0)
}

func (m *MockTimerRepository) DueTimers(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTimer, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ScheduledTimer), args.Error(1)
}

func (m *MockTimerRepository) CompleteTimer(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockTimerRepository) CancelTimersForInstance(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)

	return args.Error(0)
}

// MockPersistence aggregates the repository mocks behind the
// persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Flows     *MockFlowRepository
	Instances *MockInstanceRepository
	Wins      *MockWindowRepository
	Healths   *MockHealthRepository
	Timers    *MockTimerRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Flows:     new(MockFlowRepository),
		Instances: new(MockInstanceRepository),
		Wins:      new(MockWindowRepository),
		Healths:   new(MockHealthRepository),
		Timers:    new(MockTimerRepository),
	}
}

func (m *MockPersistence) FlowRepository() persistence.FlowRepository { return m.Flows }

func (m *MockPersistence) InstanceRepository() persistence.InstanceRepository { return m.Instances }

func (m *MockPersistence) WindowRepository() persistence.WindowRepository { return m.Wins }

func (m *MockPersistence) HealthRepository() persistence.HealthRepository { return m.Healths }

func (m *MockPersistence) TimerRepository() persistence.TimerRepository { return m.Timers }

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
