package connector

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/flowzap/flowzap/pkg/mocks"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type allowAllWindows struct{}

func (allowAllWindows) ValidateSend(string, time.Time, bool) error { return nil }

type closedWindowGate struct{}

func (closedWindowGate) ValidateSend(contactID string, _ time.Time, isTemplate bool) error {
	if isTemplate {
		return nil
	}

	return &models.ComplianceDeniedError{Reason: models.DenialWindowExpired, ContactID: contactID}
}

type templateGate struct {
	blocked map[string]bool
}

func (g templateGate) IsSendable(templateID string) bool { return !g.blocked[templateID] }

func newTestDispatcher(windows WindowGate, templates TemplateGate, messages MessageProvider, http HTTPCaller, ai AIProvider) *Dispatcher {
	d := NewDispatcher(messages, http, ai, windows, templates, Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}, slog.Default())

	// No real sleeping in tests.
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	return d
}

func textEffect(contactID, text string) models.Effect {
	return models.Effect{
		ID:         "ef-1",
		Type:       models.EffectSendMessage,
		InstanceID: "inst-1",
		Message: &models.SendMessagePayload{
			ContactID: contactID,
			Kind:      models.MessageKindText,
			Text:      text,
		},
	}
}

func TestDispatchSendMessage(t *testing.T) {
	messages := new(mocks.MockMessageProvider)
	messages.On("SendMessage", mock.Anything, mock.Anything).Return("wamid.1", nil)

	d := newTestDispatcher(allowAllWindows{}, templateGate{}, messages, nil, nil)

	result, err := d.Dispatch(t.Context(), textEffect("c1", "oi"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "wamid.1", result.ProviderMessageID)
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	messages := new(mocks.MockMessageProvider)
	transient := &models.TransientProviderError{StatusCode: 503, Err: errors.New("overloaded")}
	messages.On("SendMessage", mock.Anything, mock.Anything).Return("", transient).Twice()
	messages.On("SendMessage", mock.Anything, mock.Anything).Return("wamid.2", nil).Once()

	d := newTestDispatcher(allowAllWindows{}, templateGate{}, messages, nil, nil)

	result, err := d.Dispatch(t.Context(), textEffect("c1", "oi"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	messages.AssertNumberOfCalls(t, "SendMessage", 3)
}

func TestDispatchGivesUpAfterMaxAttempts(t *testing.T) {
	messages := new(mocks.MockMessageProvider)
	transient := &models.TransientProviderError{StatusCode: 500, Err: errors.New("boom")}
	messages.On("SendMessage", mock.Anything, mock.Anything).Return("", transient)

	d := newTestDispatcher(allowAllWindows{}, templateGate{}, messages, nil, nil)

	result, err := d.Dispatch(t.Context(), textEffect("c1", "oi"))
	require.Error(t, err)
	assert.False(t, result.Success)
	messages.AssertNumberOfCalls(t, "SendMessage", 3)
}

func TestDispatchPermanentFailureDoesNotRetry(t *testing.T) {
	messages := new(mocks.MockMessageProvider)
	messages.On("SendMessage", mock.Anything, mock.Anything).Return("", errors.New("invalid recipient"))

	d := newTestDispatcher(allowAllWindows{}, templateGate{}, messages, nil, nil)

	_, err := d.Dispatch(t.Context(), textEffect("c1", "oi"))
	require.Error(t, err)
	messages.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestDispatchDeniesFreeFormOutsideWindow(t *testing.T) {
	messages := new(mocks.MockMessageProvider)

	d := newTestDispatcher(closedWindowGate{}, templateGate{}, messages, nil, nil)

	result, err := d.Dispatch(t.Context(), textEffect("c1", "oi"))
	require.Error(t, err)
	assert.True(t, models.IsComplianceDenied(err))
	assert.False(t, result.Success)
	messages.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestDispatchDeniesUnhealthyTemplate(t *testing.T) {
	messages := new(mocks.MockMessageProvider)

	d := newTestDispatcher(closedWindowGate{}, templateGate{blocked: map[string]bool{"tpl1": true}}, messages, nil, nil)

	effect := models.Effect{
		ID:   "ef-2",
		Type: models.EffectSendMessage,
		Message: &models.SendMessagePayload{
			ContactID:  "c1",
			Kind:       models.MessageKindTemplate,
			TemplateID: "tpl1",
		},
	}

	result, err := d.Dispatch(t.Context(), effect)
	require.Error(t, err)
	assert.True(t, models.IsComplianceDenied(err))
	assert.False(t, result.Success)
	messages.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestDispatchHealthyTemplateBypassesWindow(t *testing.T) {
	messages := new(mocks.MockMessageProvider)
	messages.On("SendMessage", mock.Anything, mock.Anything).Return("wamid.3", nil)

	d := newTestDispatcher(closedWindowGate{}, templateGate{}, messages, nil, nil)

	effect := models.Effect{
		ID:   "ef-3",
		Type: models.EffectSendMessage,
		Message: &models.SendMessagePayload{
			ContactID:  "c1",
			Kind:       models.MessageKindTemplate,
			TemplateID: "tpl_ok",
		},
	}

	result, err := d.Dispatch(t.Context(), effect)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestDispatchHTTPReturnsStructuredFailure(t *testing.T) {
	caller := new(mocks.MockHTTPCaller)
	caller.On("Call", mock.Anything, mock.Anything).Return(models.DispatchResult{}, errors.New("connection refused"))

	d := newTestDispatcher(allowAllWindows{}, templateGate{}, nil, caller, nil)

	effect := models.Effect{
		ID:   "ef-4",
		Type: models.EffectCallHTTP,
		HTTP: &models.HTTPCallPayload{URL: "https://api.example.com", Method: "GET"},
	}

	// Call failures route the error port through the result, not through
	// the error return.
	result, err := d.Dispatch(t.Context(), effect)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "connection refused")
}

func TestDispatchAI(t *testing.T) {
	ai := new(mocks.MockAIProvider)
	ai.On("Complete", mock.Anything, mock.Anything).Return("resposta gerada", nil)

	d := newTestDispatcher(allowAllWindows{}, templateGate{}, nil, nil, ai)

	effect := models.Effect{
		ID:   "ef-5",
		Type: models.EffectCallAI,
		AI:   &models.AICallPayload{Prompt: "oi", Variable: "reply"},
	}

	result, err := d.Dispatch(t.Context(), effect)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "resposta gerada", result.Body)
}

func TestDispatchUnknownEffectType(t *testing.T) {
	d := newTestDispatcher(allowAllWindows{}, templateGate{}, nil, nil, nil)

	_, err := d.Dispatch(t.Context(), models.Effect{ID: "ef-6", Type: models.EffectScheduleTimer})
	assert.Error(t, err)
}

func TestDispatchMissingPayload(t *testing.T) {
	d := newTestDispatcher(allowAllWindows{}, templateGate{}, nil, nil, nil)

	_, err := d.Dispatch(t.Context(), models.Effect{ID: "ef-7", Type: models.EffectSendMessage})
	assert.Error(t, err)
}
