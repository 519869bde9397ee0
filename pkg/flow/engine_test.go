package flow

import (
	"log/slog"
	"testing"
	"time"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/nodes"
	"github.com/flowzap/flowzap/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openWindows struct{}

func (openWindows) ValidateSend(string, time.Time, bool) error { return nil }

type closedWindows struct{}

func (closedWindows) ValidateSend(contactID string, _ time.Time, isTemplate bool) error {
	if isTemplate {
		return nil
	}

	return &models.ComplianceDeniedError{Reason: models.DenialWindowExpired, ContactID: contactID}
}

type healthyTemplates struct{}

func (healthyTemplates) IsSendable(string) bool             { return true }
func (healthyTemplates) Quality(string) models.QualityScore { return models.QualityGreen }

func newTestEngine(windows nodes.WindowGuard) *Engine {
	executor := nodes.NewExecutor(windows, healthyTemplates{}, nil, nil)

	return NewEngine(executor, slog.Default())
}

func inbound(text, button string) events.InboundMessage {
	return events.InboundMessage{
		BaseEvent:     events.NewBaseEvent(events.InboundMessageEventType),
		ContactID:     "5511999990000",
		Text:          text,
		ButtonPayload: button,
		ReceivedAt:    time.Now().UTC(),
	}
}

// onboardingFlow is a greeting conversation: keyword trigger, greeting
// message, confirmation question, condition on the answer, template on the
// positive branch.
func onboardingFlow() *models.FlowDefinition {
	trigger := testutil.CreateTestNode(
		testutil.WithID("trigger"),
		testutil.WithKind(models.NodeKindTriggerKeyword, map[string]any{"keywords": []any{"oi"}}),
	)
	greet := testutil.CreateTestNode(
		testutil.WithID("greet"),
		testutil.WithKind(models.NodeKindSendText, map[string]any{"text": "Olá {{name}}"}),
	)
	ask := testutil.CreateTestNode(
		testutil.WithID("ask"),
		testutil.WithKind(models.NodeKindAskQuestion, map[string]any{
			"question":        "Quer receber novidades? (sim/não)",
			"variable":        "answer",
			"timeout_seconds": 3600,
			"timeout_message": "Sem problemas, até logo.",
		}),
	)
	check := testutil.CreateTestNode(
		testutil.WithID("check"),
		testutil.WithKind(models.NodeKindCondition, map[string]any{
			"left":     "{{answer}}",
			"operator": "==",
			"right":    "sim",
		}),
	)
	welcome := testutil.CreateTestNode(
		testutil.WithID("welcome"),
		testutil.WithKind(models.NodeKindSendTemplate, map[string]any{"template_id": "welcome_series"}),
	)
	end := testutil.CreateTestNode(testutil.WithID("end"), testutil.WithKind(models.NodeKindEnd, nil))

	return testutil.CreateTestFlow(
		[]*models.Node{trigger, greet, ask, check, welcome, end},
		[]*models.Edge{
			testutil.Edge("trigger", models.PortMain, "greet"),
			testutil.Edge("greet", models.PortSent, "ask"),
			testutil.Edge("ask", models.PortReply, "check"),
			testutil.Edge("ask", models.PortTimeout, "end"),
			testutil.Edge("check", models.PortTrue, "welcome"),
			testutil.Edge("check", models.PortFalse, "end"),
			testutil.Edge("welcome", models.PortSent, "end"),
		},
		func(f *models.FlowDefinition) {
			f.Variables = map[string]any{"name": "Maria"}
			f.EntryNodes = []string{"trigger"}
		},
	)
}

func TestEngineHappyPathConfirmation(t *testing.T) {
	engine := newTestEngine(openWindows{})
	flow := onboardingFlow()

	// The inbound "oi" starts the flow: greeting goes out, the question is
	// asked and the instance suspends waiting for input.
	instance, effects, err := engine.Start(flow, "trigger", "5511999990000", nil, inbound("oi", ""))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaitingForInput, instance.Status)
	assert.Equal(t, "ask", instance.CurrentNodeID)
	assert.Equal(t, flow.Version, instance.FlowVersion)

	var sends []string

	for _, effect := range effects {
		if effect.Type == models.EffectSendMessage {
			sends = append(sends, effect.Message.Text)
		}
	}

	assert.Equal(t, []string{"Olá Maria", "Quer receber novidades? (sim/não)"}, sends)
	assert.Equal(t, effects, instance.PendingEffects)

	// The "sim" reply routes through the condition to the template send and
	// the conversation completes.
	instance, effects, err = engine.Advance(flow, instance, inbound("sim", ""))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, instance.Status)
	assert.Equal(t, "sim", instance.Variables["answer"])
	require.Len(t, effects, 1)
	assert.Equal(t, models.MessageKindTemplate, effects[0].Message.Kind)
	assert.Equal(t, "welcome_series", effects[0].Message.TemplateID)
}

func TestEngineTimeoutBranch(t *testing.T) {
	engine := newTestEngine(openWindows{})
	flow := onboardingFlow()

	instance, _, err := engine.Start(flow, "trigger", "5511999990000", nil, inbound("oi", ""))
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusWaitingForInput, instance.Status)
	require.NotNil(t, instance.SuspendedUntil)

	fired := events.TimerFired{
		BaseEvent:  events.NewBaseEvent(events.TimerFiredEventType),
		InstanceID: instance.ID,
		FiredAt:    *instance.SuspendedUntil,
	}

	instance, effects, err := engine.Advance(flow, instance, fired)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, instance.Status)
	require.Len(t, effects, 1)
	assert.Equal(t, "Sem problemas, até logo.", effects[0].Message.Text)
	assert.Empty(t, instance.Variables["answer"])
}

func TestEngineEventForTerminalInstanceIsNoOp(t *testing.T) {
	engine := newTestEngine(openWindows{})
	flow := onboardingFlow()

	instance := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.Status = models.ExecutionStatusCompleted
	})

	result, effects, err := engine.Advance(flow, instance, inbound("oi", ""))
	require.NoError(t, err)
	assert.Same(t, instance, result)
	assert.Empty(t, effects)
}

func TestEngineWaitingWithoutEventStaysPut(t *testing.T) {
	engine := newTestEngine(openWindows{})
	flow := onboardingFlow()

	instance := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.Status = models.ExecutionStatusWaitingForInput
		i.CurrentNodeID = "ask"
	})

	result, effects, err := engine.Advance(flow, instance, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaitingForInput, result.Status)
	assert.Empty(t, effects)
}

func TestEngineComplianceDenialWithUnwiredErrorPortFails(t *testing.T) {
	engine := newTestEngine(closedWindows{})
	flow := onboardingFlow()

	// The window is closed and "greet" has no error edge: the instance must
	// fail rather than deliver out of window.
	instance, _, err := engine.Start(flow, "trigger", "5511999990000", nil, inbound("oi", ""))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, instance.Status)
	assert.Contains(t, instance.FailureReason, "window_expired")
}

func TestEngineDanglingNodeFailsInstance(t *testing.T) {
	engine := newTestEngine(openWindows{})
	flow := onboardingFlow()

	instance := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.CurrentNodeID = "removed-node"
	})

	result, effects, err := engine.Advance(flow, instance, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Contains(t, result.FailureReason, "dangling node reference")
	require.Len(t, effects, 1)
	assert.Equal(t, models.EffectOperatorAlert, effects[0].Type)
}

func TestEngineLoopBoundFailsInstance(t *testing.T) {
	engine := newTestEngine(openWindows{})

	loop := testutil.CreateTestNode(
		testutil.WithID("loop"),
		testutil.WithKind(models.NodeKindLoop, map[string]any{"max_iterations": 3}),
	)
	step := testutil.CreateTestNode(
		testutil.WithID("step"),
		testutil.WithKind(models.NodeKindSetVariable, map[string]any{"name": "n", "value": "x"}),
	)
	end := testutil.CreateTestNode(testutil.WithID("end"), testutil.WithKind(models.NodeKindEnd, nil))

	flow := testutil.CreateTestFlow(
		[]*models.Node{loop, step, end},
		[]*models.Edge{
			testutil.Edge("loop", models.PortBody, "step"),
			testutil.Edge("step", models.PortMain, "loop"),
			testutil.Edge("loop", models.PortDone, "end"),
		},
	)

	instance := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.CurrentNodeID = "loop"
		i.LoopCounts = map[string]int{}
	})

	result, _, err := engine.Advance(flow, instance, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Contains(t, result.FailureReason, "loop bound exceeded")
	assert.Equal(t, 3, result.LoopCounts["loop"])
}

func TestEngineUnboundedCycleHitsStepLimit(t *testing.T) {
	engine := newTestEngine(openWindows{})

	a := testutil.CreateTestNode(
		testutil.WithID("a"),
		testutil.WithKind(models.NodeKindSetVariable, map[string]any{"name": "n", "value": "x"}),
	)
	b := testutil.CreateTestNode(
		testutil.WithID("b"),
		testutil.WithKind(models.NodeKindSetVariable, map[string]any{"name": "m", "value": "y"}),
	)

	flow := testutil.CreateTestFlow(
		[]*models.Node{a, b},
		[]*models.Edge{
			testutil.Edge("a", models.PortMain, "b"),
			testutil.Edge("b", models.PortMain, "a"),
		},
	)

	instance := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.CurrentNodeID = "a"
	})

	result, _, err := engine.Advance(flow, instance, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Contains(t, result.FailureReason, "step limit exceeded")
}

func TestEngineUnconnectedPortCompletes(t *testing.T) {
	engine := newTestEngine(openWindows{})

	send := testutil.CreateTestNode(
		testutil.WithID("send"),
		testutil.WithKind(models.NodeKindSendText, map[string]any{"text": "tchau"}),
	)

	flow := testutil.CreateTestFlow([]*models.Node{send}, nil)

	instance := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.CurrentNodeID = "send"
	})

	result, effects, err := engine.Advance(flow, instance, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	require.Len(t, effects, 1)
}

func TestEngineAdvanceDoesNotMutateInput(t *testing.T) {
	engine := newTestEngine(openWindows{})
	flow := onboardingFlow()

	instance := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.Status = models.ExecutionStatusWaitingForInput
		i.CurrentNodeID = "ask"
	})

	_, _, err := engine.Advance(flow, instance, inbound("sim", ""))
	require.NoError(t, err)

	// The caller's copy stays at the pre-step state for safe retries.
	assert.Equal(t, models.ExecutionStatusWaitingForInput, instance.Status)
	assert.NotContains(t, instance.Variables, "answer")
}

func TestEngineAbort(t *testing.T) {
	engine := newTestEngine(openWindows{})
	flow := onboardingFlow()

	instance := testutil.CreateTestInstance(flow, "c1", func(i *models.ExecutionInstance) {
		i.Status = models.ExecutionStatusWaitingForInput
	})

	aborted := engine.Abort(instance, "superseded by button trigger")
	assert.Equal(t, models.ExecutionStatusAborted, aborted.Status)
	assert.Equal(t, "superseded by button trigger", aborted.FailureReason)
	assert.NotNil(t, aborted.CompletedAt)

	// A terminal instance is returned unchanged.
	same := engine.Abort(aborted, "again")
	assert.Same(t, aborted, same)
}
