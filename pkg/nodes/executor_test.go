package nodes

import (
	"math/rand"
	"testing"
	"time"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWindows struct {
	denied bool
}

func (s *stubWindows) ValidateSend(contactID string, now time.Time, isTemplate bool) error {
	if isTemplate || !s.denied {
		return nil
	}

	return &models.ComplianceDeniedError{Reason: models.DenialWindowExpired, ContactID: contactID}
}

type stubTemplates struct {
	blocked map[string]bool
	quality map[string]models.QualityScore
}

func (s *stubTemplates) IsSendable(templateID string) bool {
	return !s.blocked[templateID]
}

func (s *stubTemplates) Quality(templateID string) models.QualityScore {
	if q, ok := s.quality[templateID]; ok {
		return q
	}

	return models.QualityUnknown
}

func newTestExecutor(windowDenied bool) (*Executor, *stubWindows, *stubTemplates) {
	windows := &stubWindows{denied: windowDenied}
	templates := &stubTemplates{blocked: map[string]bool{}, quality: map[string]models.QualityScore{}}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	executor := NewExecutor(windows, templates, func() time.Time { return fixed }, rand.New(rand.NewSource(1)))

	return executor, windows, templates
}

func runningInstance() *models.ExecutionInstance {
	return &models.ExecutionInstance{
		ID:        "inst-1",
		ContactID: "5511999990000",
		Status:    models.ExecutionStatusRunning,
		Variables: map[string]any{"name": "Maria"},
	}
}

func TestExecuteSendTextRendersTemplate(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindSendText, map[string]any{"text": "Olá {{name}}"}))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.PortSent, result.OutputPort)
	require.Len(t, result.Effects, 1)
	assert.Equal(t, models.EffectSendMessage, result.Effects[0].Type)
	assert.Equal(t, "Olá Maria", result.Effects[0].Message.Text)
}

func TestExecuteSendTextClosedWindowRoutesError(t *testing.T) {
	executor, _, _ := newTestExecutor(true)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindSendText, map[string]any{"text": "oi"}))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.PortError, result.OutputPort)
	assert.True(t, models.IsComplianceDenied(result.PortErr))
	assert.Empty(t, result.Effects)
}

func TestExecuteSendTemplateBypassesWindow(t *testing.T) {
	executor, _, _ := newTestExecutor(true)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindSendTemplate, map[string]any{
		"template_id": "order_update",
		"params":      []any{"{{name}}"},
	}))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.PortSent, result.OutputPort)
	require.Len(t, result.Effects, 1)
	assert.Equal(t, models.MessageKindTemplate, result.Effects[0].Message.Kind)
	assert.Equal(t, []string{"Maria"}, result.Effects[0].Message.Params)
}

func TestExecuteSendTemplateUnhealthyRoutesError(t *testing.T) {
	executor, _, templates := newTestExecutor(false)
	templates.blocked["order_update"] = true

	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindSendTemplate, map[string]any{"template_id": "order_update"}))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.PortError, result.OutputPort)
	assert.True(t, models.IsComplianceDenied(result.PortErr))
}

func TestExecuteSendTemplateYellowQualityAlerts(t *testing.T) {
	executor, _, templates := newTestExecutor(false)
	templates.quality["order_update"] = models.QualityYellow

	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindSendTemplate, map[string]any{"template_id": "order_update"}))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)

	require.Len(t, result.Effects, 2)
	assert.Equal(t, models.EffectOperatorAlert, result.Effects[1].Type)
	assert.Equal(t, "warning", result.Effects[1].Alert.Severity)
}

func TestExecuteAskQuestionSuspendsThenResumes(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindAskQuestion, map[string]any{
		"question":        "Confirma? (sim/não)",
		"variable":        "answer",
		"timeout_seconds": 3600,
	}))

	instance := runningInstance()

	// First entry sends the question, schedules the timeout timer and
	// suspends on waiting_for_input.
	result, err := executor.Execute(node, instance, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Suspend)
	assert.Equal(t, models.ExecutionStatusWaitingForInput, result.Suspend.Status)
	require.Len(t, result.Effects, 2)
	assert.Equal(t, models.EffectSendMessage, result.Effects[0].Type)
	assert.Equal(t, models.EffectScheduleTimer, result.Effects[1].Type)

	// A reply resumes on the reply port and stores the answer.
	instance.Status = models.ExecutionStatusWaitingForInput
	reply := events.InboundMessage{ContactID: instance.ContactID, Text: "sim"}

	result, err = executor.Execute(node, instance, reply)
	require.NoError(t, err)
	assert.Equal(t, models.PortReply, result.OutputPort)
	assert.Equal(t, "sim", result.VariableUpdates["answer"])
}

func TestExecuteAskQuestionTimeout(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindAskQuestion, map[string]any{
		"question":        "Confirma?",
		"variable":        "answer",
		"timeout_seconds": 60,
		"timeout_message": "Sem resposta, {{name}}.",
	}))

	instance := runningInstance()
	instance.Status = models.ExecutionStatusWaitingForInput

	fired := events.TimerFired{InstanceID: instance.ID, FiredAt: time.Now().UTC()}

	result, err := executor.Execute(node, instance, fired)
	require.NoError(t, err)
	assert.Equal(t, models.PortTimeout, result.OutputPort)
	require.Len(t, result.Effects, 1)
	assert.Equal(t, "Sem resposta, Maria.", result.Effects[0].Message.Text)
}

func TestExecuteAskQuestionTimeoutClosedWindowSkipsMessage(t *testing.T) {
	executor, _, _ := newTestExecutor(true)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindAskQuestion, map[string]any{
		"question":        "Confirma?",
		"variable":        "answer",
		"timeout_seconds": 60,
		"timeout_message": "Sem resposta.",
	}))

	instance := runningInstance()
	instance.Status = models.ExecutionStatusWaitingForInput

	result, err := executor.Execute(node, instance, events.TimerFired{InstanceID: instance.ID})
	require.NoError(t, err)
	assert.Equal(t, models.PortTimeout, result.OutputPort)
	assert.Empty(t, result.Effects)
}

func TestExecuteCondition(t *testing.T) {
	executor, _, _ := newTestExecutor(false)

	tests := []struct {
		name     string
		config   map[string]any
		expected string
	}{
		{"equal true", map[string]any{"left": "{{name}}", "operator": "==", "right": "Maria"}, models.PortTrue},
		{"equal false", map[string]any{"left": "{{name}}", "operator": "==", "right": "João"}, models.PortFalse},
		{"contains", map[string]any{"left": "{{name}}", "operator": "contains", "right": "ari"}, models.PortTrue},
		{"numeric greater", map[string]any{"left": "10", "operator": ">", "right": "9.5"}, models.PortTrue},
		{"numeric coercion failure fails closed", map[string]any{"left": "{{name}}", "operator": ">", "right": "3"}, models.PortFalse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindCondition, tt.config))

			result, err := executor.Execute(node, runningInstance(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.OutputPort)
		})
	}
}

func TestExecuteSwitch(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindSwitch, map[string]any{
		"value": "{{name}}",
		"cases": []any{
			map[string]any{"match": "João"},
			map[string]any{"match": "Maria"},
		},
	}))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.PortCase(1), result.OutputPort)
}

func TestExecuteSwitchUnmatched(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindSwitch, map[string]any{
		"value": "zzz",
		"cases": []any{map[string]any{"match": "a"}},
	}))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.PortUnmatch, result.OutputPort)
}

func TestExecuteSetAndGetVariable(t *testing.T) {
	executor, _, _ := newTestExecutor(false)

	set := testutil.CreateTestNode(testutil.WithKind(models.NodeKindSetVariable, map[string]any{
		"name":  "greeting",
		"value": "Olá {{name}}",
	}))

	result, err := executor.Execute(set, runningInstance(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Olá Maria", result.VariableUpdates["greeting"])

	get := testutil.CreateTestNode(testutil.WithKind(models.NodeKindGetVariable, map[string]any{
		"name": "name",
		"into": "copy",
	}))

	result, err = executor.Execute(get, runningInstance(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Maria", result.VariableUpdates["copy"])
}

func TestExecuteLoopBound(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(
		testutil.WithID("loop1"),
		testutil.WithKind(models.NodeKindLoop, map[string]any{"max_iterations": 3}),
	)

	instance := runningInstance()
	instance.LoopCounts = map[string]int{}

	for i := 0; i < 3; i++ {
		result, err := executor.Execute(node, instance, nil)
		require.NoError(t, err)
		assert.Equal(t, models.PortBody, result.OutputPort)
		assert.Equal(t, "loop1", result.LoopIncrement)

		instance.LoopCounts["loop1"]++
	}

	// The fourth re-entry exceeds the bound and fails the step.
	_, err := executor.Execute(node, instance, nil)
	assert.ErrorIs(t, err, models.ErrLoopBoundExceeded)
}

func TestExecuteLoopExitCondition(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindLoop, map[string]any{
		"max_iterations": 10,
		"exit_when": map[string]any{
			"left":     "{{name}}",
			"operator": "==",
			"right":    "Maria",
		},
	}))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.PortDone, result.OutputPort)
}

func TestExecuteRandomRespectsWeights(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindRandom, map[string]any{
		"weights": []any{0, 100},
	}))

	// Weight zero on the first branch means it can never be picked.
	for i := 0; i < 20; i++ {
		result, err := executor.Execute(node, runningInstance(), nil)
		require.NoError(t, err)
		assert.Equal(t, models.PortBranch(1), result.OutputPort)
	}
}

func TestExecuteCallAPISuspendsAndRoutesResult(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindCallAPI, map[string]any{
		"url":    "https://api.example.com/orders/{{name}}",
		"method": "POST",
		"body":   `{"customer":"{{name}}"}`,
	}))

	instance := runningInstance()

	result, err := executor.Execute(node, instance, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Suspend)
	assert.Equal(t, models.ExecutionStatusWaitingForCall, result.Suspend.Status)
	require.Len(t, result.Effects, 1)
	assert.Equal(t, "https://api.example.com/orders/Maria", result.Effects[0].HTTP.URL)
	assert.Equal(t, `{"customer":"Maria"}`, result.Effects[0].HTTP.Body)

	instance.Status = models.ExecutionStatusWaitingForCall
	outcome := events.EffectResult{
		InstanceID: instance.ID,
		NodeID:     node.ID,
		Result:     models.DispatchResult{Success: true, StatusCode: 201, Body: `{"ok":true}`},
	}

	result, err = executor.Execute(node, instance, outcome)
	require.NoError(t, err)
	assert.Equal(t, models.PortSuccess, result.OutputPort)
	assert.Equal(t, 201, result.VariableUpdates["last_api_status"])
}

func TestExecuteCallAIStoresReply(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindCallAI, map[string]any{
		"prompt":   "Responda {{name}}",
		"variable": "ai_reply",
	}))

	instance := runningInstance()

	result, err := executor.Execute(node, instance, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Suspend)
	assert.Equal(t, "Responda Maria", result.Effects[0].AI.Prompt)

	instance.Status = models.ExecutionStatusWaitingForCall
	outcome := events.EffectResult{
		InstanceID: instance.ID,
		NodeID:     node.ID,
		Result:     models.DispatchResult{Success: true, Body: "Tudo certo."},
	}

	result, err = executor.Execute(node, instance, outcome)
	require.NoError(t, err)
	assert.Equal(t, models.PortSuccess, result.OutputPort)
	assert.Equal(t, "Tudo certo.", result.VariableUpdates["ai_reply"])
}

func TestExecuteDelaySuspendsOnTimer(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindDelay, map[string]any{"duration_seconds": 300}))

	instance := runningInstance()

	result, err := executor.Execute(node, instance, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Suspend)
	assert.Equal(t, models.ExecutionStatusWaitingForTimer, result.Suspend.Status)
	require.Len(t, result.Effects, 1)
	assert.Equal(t, models.EffectScheduleTimer, result.Effects[0].Type)

	instance.Status = models.ExecutionStatusWaitingForTimer

	result, err = executor.Execute(node, instance, events.TimerFired{InstanceID: instance.ID})
	require.NoError(t, err)
	assert.Equal(t, models.PortMain, result.OutputPort)
}

func TestExecuteGoToFlowPassesVariables(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindGoToFlow, map[string]any{
		"flow_id":        "flow-2",
		"pass_variables": true,
	}))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	require.Len(t, result.Effects, 1)
	assert.Equal(t, models.EffectStartFlow, result.Effects[0].Type)
	assert.Equal(t, "flow-2", result.Effects[0].StartFlow.FlowID)
	assert.Equal(t, "Maria", result.Effects[0].StartFlow.SeedVariables["name"])
}

func TestExecuteEndCompletes(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindEnd, nil))

	result, err := executor.Execute(node, runningInstance(), nil)
	require.NoError(t, err)
	assert.True(t, result.Complete)
}

func TestExecuteBadConfigIsValidationError(t *testing.T) {
	executor, _, _ := newTestExecutor(false)
	node := testutil.CreateTestNode(testutil.WithKind(models.NodeKindSendText, map[string]any{}))

	_, err := executor.Execute(node, runningInstance(), nil)
	assert.True(t, models.IsValidationError(err))
}
