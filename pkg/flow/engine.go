// Package flow implements the orchestrating engine that drives a single
// execution instance across its step loop and suspension points. The
// engine performs no I/O: it returns the updated instance plus the effects
// to dispatch, which keeps every path deterministically testable.
package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/nodes"
	"github.com/google/uuid"
)

// stepLimit bounds one Advance call against graphs that cycle without a
// loop node. Well-formed graphs bound cycles with loop nodes and their
// iteration counters.
const stepLimit = 1000

// Engine advances execution instances through their pinned flow
// definition.
type Engine struct {
	executor *nodes.Executor
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(executor *nodes.Executor, logger *slog.Logger) *Engine {
	return &Engine{
		executor: executor,
		logger:   logger.With("module", "flow_engine"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start creates a new instance pinned to the flow's version, entering at
// the given trigger node, and advances it until it suspends or terminates.
func (e *Engine) Start(
	flow *models.FlowDefinition,
	triggerNodeID string,
	contactID string,
	seedVariables map[string]any,
	event events.EngineEvent,
) (*models.ExecutionInstance, []models.Effect, error) {
	variables := make(map[string]any, len(flow.Variables)+len(seedVariables))
	for k, v := range flow.Variables {
		variables[k] = v
	}

	for k, v := range seedVariables {
		variables[k] = v
	}

	now := e.now()
	instance := &models.ExecutionInstance{
		ID:            uuid.New().String(),
		FlowID:        flow.ID,
		FlowVersion:   flow.Version,
		ContactID:     contactID,
		CurrentNodeID: triggerNodeID,
		Status:        models.ExecutionStatusRunning,
		Variables:     variables,
		LoopCounts:    make(map[string]int),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	return e.Advance(flow, instance, event)
}

// Advance runs the step loop: execute the current node, apply its variable
// updates last-write-wins, queue its effects, and follow the chosen edge
// until the instance suspends or reaches a terminal status. Events
// arriving for an already-terminal instance are a safe no-op.
//
// Retries recompute from the pre-step snapshot: the input instance is
// never mutated, so a failed persist can re-run Advance without
// double-applying updates.
func (e *Engine) Advance(
	flow *models.FlowDefinition,
	instance *models.ExecutionInstance,
	event events.EngineEvent,
) (*models.ExecutionInstance, []models.Effect, error) {
	if instance.Status.IsTerminal() {
		e.logger.Debug("Ignoring event for terminal instance",
			"instance_id", instance.ID, "status", instance.Status)

		return instance, nil, nil
	}

	current := instance.Snapshot()

	if current.Status.IsWaiting() && event == nil {
		return current, nil, nil
	}

	var queued []models.Effect

	for step := 0; ; step++ {
		if step >= stepLimit {
			return e.fail(current, queued, "step limit exceeded: unbounded cycle in graph"), queued, nil
		}

		node := flow.NodeByID(current.CurrentNodeID)
		if node == nil {
			// Corrupt state: the pinned definition no longer contains the
			// node. Fail this instance and alert, never the process.
			reason := fmt.Sprintf("dangling node reference %s", current.CurrentNodeID)
			queued = append(queued, operatorAlert(current, reason))

			return e.fail(current, queued, reason), queued, nil
		}

		result, err := e.executor.Execute(node, current, event)
		if err != nil {
			reason := err.Error()
			if models.IsValidationError(err) {
				e.logger.Error("Node configuration invalid",
					"instance_id", current.ID, "node_id", node.ID, "error", reason)
			}

			queued = append(queued, operatorAlert(current, reason))

			return e.fail(current, queued, reason), queued, nil
		}

		// The resumption event is consumed by the node that was waiting on
		// it; subsequent steps run eventless.
		event = nil

		for name, value := range result.VariableUpdates {
			current.SetVariable(name, value)
		}

		if result.LoopIncrement != "" {
			if current.LoopCounts == nil {
				current.LoopCounts = make(map[string]int)
			}

			current.LoopCounts[result.LoopIncrement]++
		}

		for _, effect := range result.Effects {
			if effect.InstanceID == "" {
				effect.InstanceID = current.ID
			}

			queued = append(queued, effect)
		}

		if result.Suspend != nil {
			current.Status = result.Suspend.Status
			current.SuspendedUntil = result.Suspend.TimeoutAt
			current.UpdatedAt = e.now()
			current.PendingEffects = queued

			return current, queued, nil
		}

		current.Status = models.ExecutionStatusRunning
		current.SuspendedUntil = nil

		if result.Complete {
			return e.complete(current, queued), queued, nil
		}

		edge, ok := flow.EdgeFor(node.ID, result.OutputPort)
		if !ok {
			if result.PortErr != nil {
				// No error port wired: compliance takes precedence over
				// conversation completion, so the instance fails rather
				// than emitting a non-compliant message.
				return e.fail(current, queued, result.PortErr.Error()), queued, nil
			}

			// Unconnected port: execution halts on this branch.
			return e.complete(current, queued), queued, nil
		}

		current.CurrentNodeID = edge.TargetNode
	}
}

func (e *Engine) complete(instance *models.ExecutionInstance, queued []models.Effect) *models.ExecutionInstance {
	now := e.now()
	instance.Status = models.ExecutionStatusCompleted
	instance.CompletedAt = &now
	instance.UpdatedAt = now
	instance.PendingEffects = queued

	return instance
}

func (e *Engine) fail(instance *models.ExecutionInstance, queued []models.Effect, reason string) *models.ExecutionInstance {
	now := e.now()
	instance.Status = models.ExecutionStatusFailed
	instance.FailureReason = reason
	instance.CompletedAt = &now
	instance.UpdatedAt = now
	instance.PendingEffects = queued

	e.logger.Warn("Instance failed",
		"instance_id", instance.ID,
		"flow_id", instance.FlowID,
		"contact_id", instance.ContactID,
		"reason", reason)

	return instance
}

// Abort terminates an instance at a suspension point, e.g. when superseded
// by a higher-priority trigger. Terminal instances are left untouched.
func (e *Engine) Abort(instance *models.ExecutionInstance, reason string) *models.ExecutionInstance {
	if instance.Status.IsTerminal() {
		return instance
	}

	aborted := instance.Snapshot()
	now := e.now()
	aborted.Status = models.ExecutionStatusAborted
	aborted.FailureReason = reason
	aborted.CompletedAt = &now
	aborted.UpdatedAt = now

	return aborted
}

func operatorAlert(instance *models.ExecutionInstance, message string) models.Effect {
	return models.Effect{
		ID:         uuid.New().String(),
		Type:       models.EffectOperatorAlert,
		InstanceID: instance.ID,
		Alert: &models.AlertPayload{
			Severity: "error",
			Message:  message,
			Subject:  instance.FlowID,
		},
	}
}
