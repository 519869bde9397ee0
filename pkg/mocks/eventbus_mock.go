// Package mocks provides testify mocks for the storage, bus and provider
// interfaces used across the test suites.
package mocks

import (
	"context"

	"github.com/flowzap/flowzap/pkg/eventbus"
	"github.com/flowzap/flowzap/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of the eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, topic, key string, event eventbus.Event) error {
	args := m.Called(ctx, topic, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) {
	m.Called(eventType, handler)
}

func (m *MockEventBus) Subscribe(ctx context.Context, topic string) error {
	args := m.Called(ctx, topic)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}
