package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/mocks"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/flowzap/flowzap/pkg/persistence/file"
	"github.com/flowzap/flowzap/pkg/registry"
	"github.com/flowzap/flowzap/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	instance    *models.ExecutionInstance
	startErr    error
	lastFlowID  string
	lastContact string
	lastSeed    map[string]any
	abortedID   string
	abortReason string
}

func (f *fakeRunner) StartFlow(_ context.Context, flowID, _, contactID string, seed map[string]any) (*models.ExecutionInstance, error) {
	f.lastFlowID = flowID
	f.lastContact = contactID
	f.lastSeed = seed

	if f.startErr != nil {
		return nil, f.startErr
	}

	return f.instance, nil
}

func (f *fakeRunner) AbortInstance(_ context.Context, instanceID, reason string) error {
	f.abortedID = instanceID
	f.abortReason = reason

	return nil
}

func newTestApp(t *testing.T, runner FlowRunner, bus *mocks.MockEventBus) (*fiber.App, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	handlers := NewAPIHandlers(store, runner, registry.NewRegistry(), bus, slog.Default())

	app := fiber.New()
	handlers.Register(app)

	return app, store
}

func permissiveBus() *mocks.MockEventBus {
	bus := new(mocks.MockEventBus)
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return bus
}

func jsonRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func draftGreetingFlow() *models.FlowDefinition {
	trigger := testutil.CreateTestNode(testutil.WithID("t1"), testutil.WithKind(models.NodeKindTriggerKeyword, map[string]any{
		"keywords": []any{"oi"},
	}))
	send := testutil.CreateTestNode(testutil.WithID("s1"), testutil.WithKind(models.NodeKindSendText, map[string]any{
		"text": "Olá!",
	}))
	end := testutil.CreateTestNode(testutil.WithID("e1"), testutil.WithKind(models.NodeKindEnd, map[string]any{}))

	return testutil.CreateTestFlow(
		[]*models.Node{trigger, send, end},
		[]*models.Edge{
			testutil.Edge("t1", models.PortMain, "s1"),
			testutil.Edge("s1", models.PortSent, "e1"),
		},
		func(f *models.FlowDefinition) {
			f.Status = models.FlowStatusDraft
			f.PublishedAt = nil
		},
	)
}

func TestSaveFlowStoresDraft(t *testing.T) {
	app, store := newTestApp(t, &fakeRunner{}, permissiveBus())

	payload := draftGreetingFlow()
	// Clients cannot self-publish through save.
	payload.Status = models.FlowStatusPublished

	resp, err := app.Test(jsonRequest(http.MethodPost, "/flows/", payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var saved models.FlowDefinition
	decodeBody(t, resp, &saved)
	assert.Equal(t, models.FlowStatusDraft, saved.Status)

	stored, err := store.FlowRepository().FlowByID(t.Context(), payload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusDraft, stored.Status)
}

func TestSaveFlowRejectsInvalidNodeConfig(t *testing.T) {
	app, _ := newTestApp(t, &fakeRunner{}, permissiveBus())

	payload := draftGreetingFlow()
	payload.Nodes[1].Config = map[string]any{}

	resp, err := app.Test(jsonRequest(http.MethodPost, "/flows/", payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublishFlow(t *testing.T) {
	app, store := newTestApp(t, &fakeRunner{}, permissiveBus())

	draft := draftGreetingFlow()
	require.NoError(t, store.FlowRepository().SaveFlow(t.Context(), draft))

	resp, err := app.Test(jsonRequest(http.MethodPost, "/flows/"+draft.ID+"/publish", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var published models.FlowDefinition
	decodeBody(t, resp, &published)
	assert.Equal(t, models.FlowStatusPublished, published.Status)
	assert.NotNil(t, published.PublishedAt)

	// Publishing the same version twice is a conflict.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/flows/"+draft.ID+"/publish", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetFlowNotFound(t *testing.T) {
	app, _ := newTestApp(t, &fakeRunner{}, permissiveBus())

	resp, err := app.Test(jsonRequest(http.MethodGet, "/flows/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem map[string]any
	decodeBody(t, resp, &problem)
	assert.Equal(t, "not_found", problem["type"])
}

func TestStartExecution(t *testing.T) {
	runner := &fakeRunner{
		instance: &models.ExecutionInstance{
			ID:        "inst-1",
			FlowID:    "flow-1",
			ContactID: "c1",
			Status:    models.ExecutionStatusWaitingForInput,
		},
	}
	app, _ := newTestApp(t, runner, permissiveBus())

	resp, err := app.Test(jsonRequest(http.MethodPost, "/executions/", map[string]any{
		"flow_id":    "flow-1",
		"contact_id": "c1",
		"variables":  map[string]any{"name": "Maria"},
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var state instanceStateResponse
	decodeBody(t, resp, &state)
	assert.Equal(t, "inst-1", state.ID)
	assert.Equal(t, models.ExecutionStatusWaitingForInput, state.Status)

	assert.Equal(t, "flow-1", runner.lastFlowID)
	assert.Equal(t, "Maria", runner.lastSeed["name"])
}

func TestStartExecutionValidation(t *testing.T) {
	app, _ := newTestApp(t, &fakeRunner{}, permissiveBus())

	resp, err := app.Test(jsonRequest(http.MethodPost, "/executions/", map[string]any{
		"flow_id": "flow-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResumePublishesSyntheticInbound(t *testing.T) {
	bus := permissiveBus()
	app, store := newTestApp(t, &fakeRunner{}, bus)

	flow := testutil.CreateTestFlow(nil, nil)
	waiting := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.Status = models.ExecutionStatusWaitingForInput
	})
	require.NoError(t, store.InstanceRepository().SaveInstance(t.Context(), waiting))

	resp, err := app.Test(jsonRequest(http.MethodPost, "/executions/"+waiting.ID+"/resume", map[string]any{
		"text": "sim",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	bus.AssertCalled(t, "Publish", mock.Anything, events.InboundTopic, "c1", mock.MatchedBy(func(event any) bool {
		message, ok := event.(events.InboundMessage)

		return ok && message.ContactID == "c1" && message.Text == "sim"
	}))
}

func TestResumeRequiresWaitingInstance(t *testing.T) {
	app, store := newTestApp(t, &fakeRunner{}, permissiveBus())

	flow := testutil.CreateTestFlow(nil, nil)
	running := testutil.CreateTestInstance(flow, "c1")
	require.NoError(t, store.InstanceRepository().SaveInstance(t.Context(), running))

	resp, err := app.Test(jsonRequest(http.MethodPost, "/executions/"+running.ID+"/resume", map[string]any{
		"text": "sim",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResumeRequiresInput(t *testing.T) {
	app, store := newTestApp(t, &fakeRunner{}, permissiveBus())

	flow := testutil.CreateTestFlow(nil, nil)
	waiting := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.Status = models.ExecutionStatusWaitingForInput
	})
	require.NoError(t, store.InstanceRepository().SaveInstance(t.Context(), waiting))

	resp, err := app.Test(jsonRequest(http.MethodPost, "/executions/"+waiting.ID+"/resume", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAbortExecutionDefaultsReason(t *testing.T) {
	runner := &fakeRunner{}
	app, _ := newTestApp(t, runner, permissiveBus())

	resp, err := app.Test(jsonRequest(http.MethodPost, "/executions/inst-1/abort", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	assert.Equal(t, "inst-1", runner.abortedID)
	assert.Equal(t, "aborted by operator", runner.abortReason)
}

func TestGetNodeKinds(t *testing.T) {
	app, _ := newTestApp(t, &fakeRunner{}, permissiveBus())

	resp, err := app.Test(jsonRequest(http.MethodGet, "/node-kinds", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		NodeKinds []registry.Descriptor `json:"node_kinds"`
	}
	decodeBody(t, resp, &body)
	assert.Len(t, body.NodeKinds, 19)
}

func TestHealthCheck(t *testing.T) {
	app, _ := newTestApp(t, &fakeRunner{}, permissiveBus())

	resp, err := app.Test(jsonRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProviderWebhook(t *testing.T) {
	bus := permissiveBus()
	app, _ := newTestApp(t, &fakeRunner{}, bus)

	payload := map[string]any{
		"entry": []any{
			map[string]any{
				"changes": []any{
					map[string]any{
						"field": "messages",
						"value": map[string]any{
							"messages": []any{
								map[string]any{
									"from":      "5511999990000",
									"timestamp": "1700000000",
									"type":      "text",
									"text":      map[string]any{"body": "oi"},
								},
							},
							"statuses": []any{
								map[string]any{"id": "wamid.1", "status": "delivered", "timestamp": "1700000001"},
							},
						},
					},
					map[string]any{
						"field": "message_template_status_update",
						"value": map[string]any{
							"message_template_name": "welcome_series",
							"event":                 "PAUSED",
							"new_quality_score":     "RED",
						},
					},
				},
			},
		},
	}

	resp, err := app.Test(jsonRequest(http.MethodPost, "/webhooks/provider", payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.EqualValues(t, 3, body["accepted"])

	bus.AssertCalled(t, "Publish", mock.Anything, events.InboundTopic, "5511999990000", mock.MatchedBy(func(event any) bool {
		message, ok := event.(events.InboundMessage)

		return ok && message.Text == "oi" && message.ReceivedAt.Equal(time.Unix(1700000000, 0).UTC())
	}))
	bus.AssertCalled(t, "Publish", mock.Anything, events.InboundTopic, "welcome_series", mock.MatchedBy(func(event any) bool {
		status, ok := event.(events.TemplateStatus)

		return ok && status.Status == models.TemplateStatusPaused && status.QualityScore == models.QualityRed
	}))
}

func TestProviderWebhookButtonReply(t *testing.T) {
	bus := permissiveBus()
	app, _ := newTestApp(t, &fakeRunner{}, bus)

	payload := map[string]any{
		"entry": []any{
			map[string]any{
				"changes": []any{
					map[string]any{
						"field": "messages",
						"value": map[string]any{
							"messages": []any{
								map[string]any{
									"from":      "5511999990000",
									"timestamp": "1700000000",
									"type":      "interactive",
									"interactive": map[string]any{
										"button_reply": map[string]any{"id": "confirm_order", "title": "Confirmar"},
									},
								},
							},
						},
					},
				},
			},
		},
	}

	resp, err := app.Test(jsonRequest(http.MethodPost, "/webhooks/provider", payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bus.AssertCalled(t, "Publish", mock.Anything, events.InboundTopic, "5511999990000", mock.MatchedBy(func(event any) bool {
		message, ok := event.(events.InboundMessage)

		return ok && message.ButtonPayload == "confirm_order" && message.Text == "Confirmar"
	}))
}

func TestFlowWebhook(t *testing.T) {
	runner := &fakeRunner{
		instance: &models.ExecutionInstance{ID: "inst-1", Status: models.ExecutionStatusRunning},
	}
	app, store := newTestApp(t, runner, permissiveBus())

	trigger := testutil.CreateTestNode(testutil.WithKind(models.NodeKindTriggerWebhook, map[string]any{
		"path": "/hooks/promo",
	}))
	published := testutil.CreateTestFlow([]*models.Node{trigger}, nil)
	require.NoError(t, store.FlowRepository().SaveFlow(t.Context(), published))

	resp, err := app.Test(jsonRequest(http.MethodPost, "/webhooks/flows/hooks/promo", map[string]any{
		"contact_id": "c1",
		"variables":  map[string]any{"campaign": "spring"},
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, published.ID, runner.lastFlowID)
	assert.Equal(t, "c1", runner.lastContact)
	assert.Equal(t, "spring", runner.lastSeed["campaign"])

	resp, err = app.Test(jsonRequest(http.MethodPost, "/webhooks/flows/hooks/unknown", map[string]any{
		"contact_id": "c1",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
