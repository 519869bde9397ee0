// Package nodes implements the pure node executor: a mapping from
// (node config, instance state, event) to a step result. It emits
// declarative effects and performs no I/O, which keeps every node kind
// deterministically testable.
package nodes

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/google/uuid"
)

// WindowGuard is the read-only view of the conversation window state the
// executor consults before emitting free-form sends.
type WindowGuard interface {
	ValidateSend(contactID string, now time.Time, isTemplate bool) error
}

// TemplateGate is the read-only view of template health the executor
// consults before emitting template sends. Health is re-checked again at
// dispatch time by the connector; this check catches denials early enough
// to route an error port.
type TemplateGate interface {
	IsSendable(templateID string) bool
	Quality(templateID string) models.QualityScore
}

// Suspension is an explicit engine-level suspend value. It is persisted
// with the instance, so crash recovery is part of the contract.
type Suspension struct {
	Status    models.ExecutionStatus
	TimeoutAt *time.Time
}

// StepResult is the outcome of executing one node.
type StepResult struct {
	// VariableUpdates are applied last-write-wins per key within the step.
	VariableUpdates map[string]any

	// OutputPort chooses the edge to follow. Empty with Complete set means
	// the instance finishes.
	OutputPort string

	// PortErr carries the domain outcome that routed OutputPort to an
	// error port. When that port is unwired the engine fails the instance
	// with this reason instead of completing it.
	PortErr error

	Effects  []models.Effect
	Suspend  *Suspension
	Complete bool

	// LoopIncrement names the loop node whose re-entry counter the engine
	// must bump. The executor itself never mutates instance state.
	LoopIncrement string
}

// Executor evaluates nodes. Clock and RNG are injected so results are
// reproducible under test.
type Executor struct {
	windows   WindowGuard
	templates TemplateGate
	now       func() time.Time
	rng       *rand.Rand
}

// NewExecutor creates an executor with the given compliance guards.
func NewExecutor(windows WindowGuard, templates TemplateGate, now func() time.Time, rng *rand.Rand) *Executor {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Executor{
		windows:   windows,
		templates: templates,
		now:       now,
		rng:       rng,
	}
}

// Execute runs one step of the given node. For suspended instances event
// carries the resumption (reply, timer firing or call result); for running
// instances it is nil.
func (e *Executor) Execute(node *models.Node, instance *models.ExecutionInstance, event events.EngineEvent) (StepResult, error) {
	cfg, err := node.DecodeConfig()
	if err != nil {
		return StepResult{}, &models.ValidationError{NodeID: node.ID, Detail: "config decode", Err: err}
	}

	switch c := cfg.(type) {
	case *models.TriggerKeywordConfig, *models.TriggerButtonConfig, *models.TriggerWebhookConfig, *models.TriggerScheduleConfig:
		return e.executeTrigger(node, instance, event)
	case *models.SendTextConfig:
		return e.executeSendText(node, c, instance)
	case *models.SendMediaConfig:
		return e.executeSendMedia(node, c, instance)
	case *models.SendTemplateConfig:
		return e.executeSendTemplate(node, c, instance)
	case *models.AskQuestionConfig:
		return e.executeAskQuestion(node, c, instance, event)
	case *models.ConditionConfig:
		return e.executeCondition(node, c, instance)
	case *models.SwitchConfig:
		return e.executeSwitch(node, c, instance)
	case *models.SetVariableConfig:
		return e.executeSetVariable(c, instance)
	case *models.GetVariableConfig:
		return e.executeGetVariable(c, instance)
	case *models.CallAPIConfig:
		return e.executeCallAPI(node, c, instance, event)
	case *models.CallAIConfig:
		return e.executeCallAI(node, c, instance, event)
	case *models.DelayConfig:
		return e.executeDelay(node, c, instance, event)
	case *models.LoopConfig:
		return e.executeLoop(node, c, instance)
	case *models.RandomConfig:
		return e.executeRandom(c)
	case *models.GoToFlowConfig:
		return e.executeGoToFlow(node, c, instance)
	case *models.EndConfig:
		return StepResult{Complete: true}, nil
	default:
		return StepResult{}, &models.ValidationError{NodeID: node.ID, Detail: fmt.Sprintf("unhandled node kind %s", node.Kind)}
	}
}

// executeTrigger is a pass-through: matching happened before the instance
// was created, so a trigger node simply forwards on its main port.
func (e *Executor) executeTrigger(node *models.Node, instance *models.ExecutionInstance, event events.EngineEvent) (StepResult, error) {
	result := StepResult{OutputPort: models.PortMain}

	if msg, ok := event.(events.InboundMessage); ok {
		result.VariableUpdates = map[string]any{
			"last_message": msg.Text,
		}
		if msg.ButtonPayload != "" {
			result.VariableUpdates["last_button"] = msg.ButtonPayload
		}
	}

	return result, nil
}

func newEffect(effectType models.EffectType, instanceID, nodeID string) models.Effect {
	return models.Effect{
		ID:         uuid.New().String(),
		Type:       effectType,
		InstanceID: instanceID,
		NodeID:     nodeID,
	}
}
