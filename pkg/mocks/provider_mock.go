package mocks

import (
	"context"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockMessageProvider is a mock implementation of
// connector.MessageProvider.
type MockMessageProvider struct {
	mock.Mock
}

func (m *MockMessageProvider) SendMessage(ctx context.Context, message *models.SendMessagePayload) (string, error) {
	args := m.Called(ctx, message)

	return args.String(0), args.Error(1)
}

// MockHTTPCaller is a mock implementation of connector.HTTPCaller.
type MockHTTPCaller struct {
	mock.Mock
}

func (m *MockHTTPCaller) Call(ctx context.Context, call *models.HTTPCallPayload) (models.DispatchResult, error) {
	args := m.Called(ctx, call)

	return args.Get(0).(models.DispatchResult), args.Error(1)
}

// MockAIProvider is a mock implementation of connector.AIProvider.
type MockAIProvider struct {
	mock.Mock
}

func (m *MockAIProvider) Complete(ctx context.Context, call *models.AICallPayload) (string, error) {
	args := m.Called(ctx, call)

	return args.String(0), args.Error(1)
}
