// Package runner hosts the execution loop between the event bus, the pure
// flow engine and the effect connector. It serializes all work for one
// contact onto one shard so no two events ever advance the same instance
// concurrently, and it persists instance state before dispatching effects.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowzap/flowzap/pkg/compliance"
	"github.com/flowzap/flowzap/pkg/connector"
	"github.com/flowzap/flowzap/pkg/eventbus"
	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/flow"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
)

type Runner struct {
	workerID    string
	engine      *flow.Engine
	persistence persistence.Persistence
	dispatcher  *connector.Dispatcher
	windows     *compliance.WindowGuard
	templates   *compliance.Monitor
	bus         eventbus.EventBus
	shards      *shardPool
	logger      *slog.Logger
	now         func() time.Time
}

func NewRunner(
	workerID string,
	engine *flow.Engine,
	store persistence.Persistence,
	dispatcher *connector.Dispatcher,
	windows *compliance.WindowGuard,
	templates *compliance.Monitor,
	bus eventbus.EventBus,
	shardCount int,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		workerID:    workerID,
		engine:      engine,
		persistence: store,
		dispatcher:  dispatcher,
		windows:     windows,
		templates:   templates,
		bus:         bus,
		shards:      newShardPool(shardCount),
		logger:      logger.With("module", "runner", "worker_id", workerID),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start hydrates compliance state, wires the event handlers and begins
// consuming the inbound and timer topics.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.windows.Load(ctx); err != nil {
		return fmt.Errorf("failed to load conversation windows: %w", err)
	}

	if err := r.templates.Load(ctx); err != nil {
		return fmt.Errorf("failed to load template health: %w", err)
	}

	r.shards.start(ctx)

	r.bus.Handle(events.InboundMessageEventType, func(ctx context.Context, event any) error {
		message, ok := event.(*events.InboundMessage)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", events.InboundMessageEventType)
		}

		return r.submitInbound(ctx, message)
	})

	r.bus.Handle(events.DeliveryStatusEventType, func(ctx context.Context, event any) error {
		status, ok := event.(*events.DeliveryStatus)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", events.DeliveryStatusEventType)
		}

		r.handleDeliveryStatus(status)

		return nil
	})

	r.bus.Handle(events.TemplateStatusEventType, func(ctx context.Context, event any) error {
		status, ok := event.(*events.TemplateStatus)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", events.TemplateStatusEventType)
		}

		return r.handleTemplateStatus(ctx, status)
	})

	r.bus.Handle(events.TimerFiredEventType, func(ctx context.Context, event any) error {
		fired, ok := event.(*events.TimerFired)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", events.TimerFiredEventType)
		}

		return r.submitTimerFired(ctx, fired)
	})

	if err := r.bus.Subscribe(ctx, events.InboundTopic); err != nil {
		return fmt.Errorf("failed to subscribe to inbound topic: %w", err)
	}

	if err := r.bus.Subscribe(ctx, events.TimerTopic); err != nil {
		return fmt.Errorf("failed to subscribe to timer topic: %w", err)
	}

	r.logger.Info("Runner started", "shards", r.shards.size())

	return nil
}

// Stop drains the shard queues.
func (r *Runner) Stop() {
	r.shards.stop()
	r.logger.Info("Runner stopped")
}

func (r *Runner) submitInbound(ctx context.Context, message *events.InboundMessage) error {
	r.shards.submit(message.ContactID, func(jobCtx context.Context) {
		if err := r.processInbound(jobCtx, message); err != nil {
			r.logger.Error("Failed to process inbound message",
				"contact_id", message.ContactID, "error", err.Error())
		}
	})

	return nil
}

func (r *Runner) submitTimerFired(ctx context.Context, fired *events.TimerFired) error {
	// The shard key is the contact, so the owning instance is resolved
	// first and the event re-checked inside the shard.
	instance, err := r.persistence.InstanceRepository().InstanceByID(ctx, fired.InstanceID)
	if err != nil {
		if persistence.IsInstanceNotFound(err) {
			return nil
		}

		return err
	}

	r.shards.submit(instance.ContactID, func(jobCtx context.Context) {
		if err := r.processTimerFired(jobCtx, fired); err != nil {
			r.logger.Error("Failed to process timer",
				"instance_id", fired.InstanceID, "error", err.Error())
		}
	})

	return nil
}

// processInbound refreshes the contact's session window, then either
// resumes the contact's waiting instance or matches the message against
// published flow triggers.
func (r *Runner) processInbound(ctx context.Context, message *events.InboundMessage) error {
	receivedAt := message.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}

	if err := r.windows.OnInboundMessage(ctx, message.ContactID, receivedAt); err != nil {
		return fmt.Errorf("failed to refresh window: %w", err)
	}

	active, err := r.persistence.InstanceRepository().ActiveInstanceByContact(ctx, message.ContactID)
	if err != nil {
		return err
	}

	published, err := r.persistence.FlowRepository().PublishedFlows(ctx)
	if err != nil {
		return err
	}

	if active != nil {
		// A button press matching a button trigger preempts a suspended
		// conversation; plain keyword matches never do.
		if match := flow.MatchInbound(published, message); match != nil && match.Score >= flow.ScoreButton {
			if err := r.abortInShard(ctx, active, "superseded by higher-priority trigger"); err != nil {
				return err
			}

			return r.startInstance(ctx, match.Flow, match.Trigger.ID, message.ContactID, nil, *message)
		}

		if active.Status != models.ExecutionStatusWaitingForInput {
			// The active instance is waiting on a timer or a call; the
			// message refreshed the window and is otherwise dropped.
			r.logger.Debug("Inbound message ignored by busy instance",
				"contact_id", message.ContactID,
				"instance_id", active.ID,
				"status", active.Status)

			return nil
		}

		return r.advance(ctx, active, *message)
	}

	match := flow.MatchInbound(published, message)
	if match == nil {
		r.logger.Debug("No trigger matched inbound message", "contact_id", message.ContactID)

		return nil
	}

	return r.startInstance(ctx, match.Flow, match.Trigger.ID, message.ContactID, nil, *message)
}

func (r *Runner) processTimerFired(ctx context.Context, fired *events.TimerFired) error {
	instance, err := r.persistence.InstanceRepository().InstanceByID(ctx, fired.InstanceID)
	if err != nil {
		if persistence.IsInstanceNotFound(err) {
			return nil
		}

		return err
	}

	switch instance.Status {
	case models.ExecutionStatusWaitingForTimer, models.ExecutionStatusWaitingForInput:
		// Timer delivery is at-least-once. A duplicate or stale firing from
		// an earlier suspension point must not resume a later one.
		if fired.NodeID != "" && fired.NodeID != instance.CurrentNodeID {
			r.logger.Debug("Timer fired for a different suspension point",
				"instance_id", fired.InstanceID,
				"timer_node_id", fired.NodeID,
				"current_node_id", instance.CurrentNodeID)

			return nil
		}

		return r.advance(ctx, instance, *fired)
	default:
		// The instance resumed or terminated before the timer fired.
		r.logger.Debug("Timer fired for non-waiting instance",
			"instance_id", fired.InstanceID, "status", instance.Status)

		return nil
	}
}

// handleDeliveryStatus records provider-side delivery state. Deliveries do
// not route flow ports; failed sends are surfaced to operators through the
// log stream.
func (r *Runner) handleDeliveryStatus(status *events.DeliveryStatus) {
	level := slog.LevelDebug
	if status.Status == "failed" {
		level = slog.LevelWarn
	}

	r.logger.Log(context.Background(), level, "Delivery status received",
		"provider_message_id", status.ProviderMessageID,
		"status", status.Status,
		"occurred_at", status.OccurredAt)
}

func (r *Runner) handleTemplateStatus(ctx context.Context, status *events.TemplateStatus) error {
	effects, err := r.templates.OnStatusUpdate(ctx, *status)
	if err != nil {
		return err
	}

	for _, effect := range effects {
		switch effect.Type {
		case models.EffectCompliancePause:
			paused := events.CompliancePaused{
				BaseEvent:    events.NewBaseEvent(events.CompliancePausedEventType),
				TemplateID:   status.TemplateID,
				Status:       status.Status,
				QualityScore: status.QualityScore,
			}
			if err := r.bus.Publish(ctx, events.LifecycleTopic, status.TemplateID, paused); err != nil {
				return err
			}
		case models.EffectOperatorAlert:
			r.logAlert(effect)
		}
	}

	return nil
}

// StartFlow begins a new execution outside of trigger matching, used by
// the API and by schedule triggers. The trigger node is resolved from the
// flow's entry nodes when not given.
func (r *Runner) StartFlow(ctx context.Context, flowID, triggerNodeID, contactID string, seed map[string]any) (*models.ExecutionInstance, error) {
	definition, err := r.persistence.FlowRepository().FlowByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if definition.Status != models.FlowStatusPublished {
		return nil, fmt.Errorf("flow %s is not published", flowID)
	}

	if triggerNodeID == "" {
		triggers := definition.TriggerNodes()
		if len(triggers) == 0 {
			return nil, fmt.Errorf("flow %s has no trigger nodes", flowID)
		}

		triggerNodeID = triggers[0].ID
	}

	result := make(chan startResult, 1)

	r.shards.submit(contactID, func(jobCtx context.Context) {
		active, err := r.persistence.InstanceRepository().ActiveInstanceByContact(jobCtx, contactID)
		if err != nil {
			result <- startResult{err: err}

			return
		}

		if active != nil {
			result <- startResult{err: fmt.Errorf("contact %s already has active instance %s", contactID, active.ID)}

			return
		}

		instance, err := r.startInstanceReturning(jobCtx, definition, triggerNodeID, contactID, seed, nil)
		result <- startResult{instance: instance, err: err}
	})

	select {
	case res := <-result:
		return res.instance, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type startResult struct {
	instance *models.ExecutionInstance
	err      error
}

// AbortInstance terminates a suspended instance. Aborting an already
// terminal instance is a no-op.
func (r *Runner) AbortInstance(ctx context.Context, instanceID, reason string) error {
	instance, err := r.persistence.InstanceRepository().InstanceByID(ctx, instanceID)
	if err != nil {
		return err
	}

	done := make(chan error, 1)

	r.shards.submit(instance.ContactID, func(jobCtx context.Context) {
		current, err := r.persistence.InstanceRepository().InstanceByID(jobCtx, instanceID)
		if err != nil {
			done <- err

			return
		}

		if current.Status.IsTerminal() {
			done <- nil

			return
		}

		done <- r.abortInShard(jobCtx, current, reason)
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abortInShard aborts an instance from within its shard goroutine, so no
// submission round-trip is needed.
func (r *Runner) abortInShard(ctx context.Context, instance *models.ExecutionInstance, reason string) error {
	aborted := r.engine.Abort(instance, reason)

	if err := r.persistence.InstanceRepository().SaveInstance(ctx, aborted); err != nil {
		return fmt.Errorf("failed to persist aborted instance %s: %w", aborted.ID, err)
	}

	if err := r.persistence.TimerRepository().CancelTimersForInstance(ctx, aborted.ID); err != nil {
		r.logger.Warn("Failed to cancel timers for aborted instance",
			"instance_id", aborted.ID, "error", err.Error())
	}

	event := events.ExecutionAborted{
		BaseEvent:  events.NewBaseEvent(events.ExecutionAbortedEventType),
		InstanceID: aborted.ID,
		ContactID:  aborted.ContactID,
		Reason:     reason,
	}
	if err := r.bus.Publish(ctx, events.LifecycleTopic, aborted.ContactID, event); err != nil {
		r.logger.Warn("Failed to publish abort event", "instance_id", aborted.ID, "error", err.Error())
	}

	return nil
}

func (r *Runner) startInstance(
	ctx context.Context,
	definition *models.FlowDefinition,
	triggerNodeID, contactID string,
	seed map[string]any,
	event events.EngineEvent,
) error {
	_, err := r.startInstanceReturning(ctx, definition, triggerNodeID, contactID, seed, event)

	return err
}

func (r *Runner) startInstanceReturning(
	ctx context.Context,
	definition *models.FlowDefinition,
	triggerNodeID, contactID string,
	seed map[string]any,
	event events.EngineEvent,
) (*models.ExecutionInstance, error) {
	instance, effects, err := r.engine.Start(definition, triggerNodeID, contactID, seed, event)
	if err != nil {
		return nil, err
	}

	started := events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEventType),
		InstanceID:  instance.ID,
		FlowID:      definition.ID,
		FlowVersion: definition.Version,
		ContactID:   contactID,
		TriggerNode: triggerNodeID,
	}
	if err := r.bus.Publish(ctx, events.LifecycleTopic, contactID, started); err != nil {
		r.logger.Warn("Failed to publish execution started event", "error", err.Error())
	}

	if err := r.persistAndDispatch(ctx, definition, instance, effects); err != nil {
		return instance, err
	}

	return instance, nil
}

// advance loads the pinned flow version, runs the engine and then persists
// and dispatches.
func (r *Runner) advance(ctx context.Context, instance *models.ExecutionInstance, event events.EngineEvent) error {
	definition, err := r.persistence.FlowRepository().FlowByVersion(ctx, instance.FlowID, instance.FlowVersion)
	if err != nil {
		return fmt.Errorf("failed to load pinned flow %s v%d: %w", instance.FlowID, instance.FlowVersion, err)
	}

	wasWaiting := instance.Status.IsWaiting()

	updated, effects, err := r.engine.Advance(definition, instance, event)
	if err != nil {
		return err
	}

	if wasWaiting && (updated.Status != instance.Status || updated.CurrentNodeID != instance.CurrentNodeID) {
		// The instance left its suspension point, so any pending wake-up for
		// it is stale. This includes moving between two waits of the same
		// status, such as consecutive questions. Replacement timers are
		// scheduled afterwards, from the step's queued effects.
		if err := r.persistence.TimerRepository().CancelTimersForInstance(ctx, updated.ID); err != nil {
			r.logger.Warn("Failed to cancel stale timers",
				"instance_id", updated.ID, "error", err.Error())
		}
	}

	return r.persistAndDispatch(ctx, definition, updated, effects)
}

// persistAndDispatch is the durability boundary: the instance with its
// queued effects is saved first, effects are dispatched second, and the
// drained effect queue is saved last. A crash between the saves replays
// dispatch from the persisted queue instead of losing it.
func (r *Runner) persistAndDispatch(
	ctx context.Context,
	definition *models.FlowDefinition,
	instance *models.ExecutionInstance,
	effects []models.Effect,
) error {
	if err := r.persistence.InstanceRepository().SaveInstance(ctx, instance); err != nil {
		return fmt.Errorf("failed to persist instance %s: %w", instance.ID, err)
	}

	r.publishLifecycle(ctx, instance)

	for _, effect := range effects {
		if err := r.dispatchEffect(ctx, definition, instance, effect); err != nil {
			return err
		}
	}

	if len(instance.PendingEffects) > 0 {
		instance.PendingEffects = nil
		if err := r.persistence.InstanceRepository().SaveInstance(ctx, instance); err != nil {
			return fmt.Errorf("failed to clear effect queue for instance %s: %w", instance.ID, err)
		}
	}

	return nil
}

func (r *Runner) dispatchEffect(
	ctx context.Context,
	definition *models.FlowDefinition,
	instance *models.ExecutionInstance,
	effect models.Effect,
) error {
	switch effect.Type {
	case models.EffectSendMessage:
		// Send nodes are fire-and-forget: the engine already routed their
		// sent port, so a dispatch failure is logged, not routed.
		if _, err := r.dispatcher.Dispatch(ctx, effect); err != nil {
			r.logger.Warn("Outbound message dispatch failed",
				"instance_id", instance.ID,
				"node_id", effect.NodeID,
				"error", err.Error())
		}

		return nil

	case models.EffectCallHTTP, models.EffectCallAI:
		result, err := r.dispatcher.Dispatch(ctx, effect)
		if err != nil {
			result = models.DispatchResult{Success: false, Error: err.Error()}
		}

		feedback := events.EffectResult{
			InstanceID: instance.ID,
			NodeID:     effect.NodeID,
			EffectID:   effect.ID,
			Result:     result,
			OccurredAt: r.now(),
		}

		reloaded, err := r.persistence.InstanceRepository().InstanceByID(ctx, instance.ID)
		if err != nil {
			return err
		}

		return r.advance(ctx, reloaded, feedback)

	case models.EffectScheduleTimer:
		if effect.Timer == nil {
			return fmt.Errorf("schedule_timer effect %s has no payload", effect.ID)
		}

		timer := &models.ScheduledTimer{
			ID:         effect.ID,
			InstanceID: instance.ID,
			NodeID:     effect.NodeID,
			FireAt:     effect.Timer.FireAt,
			CreatedAt:  r.now(),
		}

		return r.persistence.TimerRepository().ScheduleTimer(ctx, timer)

	case models.EffectStartFlow:
		return r.dispatchStartFlow(ctx, instance, effect)

	case models.EffectCompliancePause:
		return nil

	case models.EffectOperatorAlert:
		r.logAlert(effect)

		return nil

	default:
		return fmt.Errorf("effect type %s cannot be dispatched", effect.Type)
	}
}

func (r *Runner) dispatchStartFlow(ctx context.Context, parent *models.ExecutionInstance, effect models.Effect) error {
	if effect.StartFlow == nil {
		return fmt.Errorf("start_flow effect %s has no payload", effect.ID)
	}

	target, err := r.persistence.FlowRepository().FlowByID(ctx, effect.StartFlow.FlowID)
	if err != nil {
		return fmt.Errorf("failed to load handover target flow %s: %w", effect.StartFlow.FlowID, err)
	}

	if target.Status != models.FlowStatusPublished {
		return fmt.Errorf("handover target flow %s is not published", target.ID)
	}

	triggers := target.TriggerNodes()
	if len(triggers) == 0 {
		return fmt.Errorf("handover target flow %s has no trigger nodes", target.ID)
	}

	contactID := effect.StartFlow.ContactID
	if contactID == "" {
		contactID = parent.ContactID
	}

	// Same shard, so the parent has already terminated by the time the
	// child starts.
	return r.startInstance(ctx, target, triggers[0].ID, contactID, effect.StartFlow.SeedVariables, nil)
}

func (r *Runner) publishLifecycle(ctx context.Context, instance *models.ExecutionInstance) {
	var event eventbus.Event

	switch instance.Status {
	case models.ExecutionStatusCompleted:
		event = events.ExecutionCompleted{
			BaseEvent:  events.NewBaseEvent(events.ExecutionCompletedEventType),
			InstanceID: instance.ID,
			FlowID:     instance.FlowID,
			ContactID:  instance.ContactID,
			Duration:   instance.UpdatedAt.Sub(instance.CreatedAt),
		}
	case models.ExecutionStatusFailed:
		event = events.ExecutionFailed{
			BaseEvent:  events.NewBaseEvent(events.ExecutionFailedEventType),
			InstanceID: instance.ID,
			FlowID:     instance.FlowID,
			ContactID:  instance.ContactID,
			Reason:     instance.FailureReason,
			NodeID:     instance.CurrentNodeID,
		}
	case models.ExecutionStatusWaitingForInput, models.ExecutionStatusWaitingForTimer, models.ExecutionStatusWaitingForCall:
		event = events.ExecutionSuspended{
			BaseEvent:  events.NewBaseEvent(events.ExecutionSuspendedEventType),
			InstanceID: instance.ID,
			Status:     instance.Status,
			NodeID:     instance.CurrentNodeID,
			Until:      instance.SuspendedUntil,
		}
	default:
		return
	}

	if err := r.bus.Publish(ctx, events.LifecycleTopic, instance.ContactID, event); err != nil {
		r.logger.Warn("Failed to publish lifecycle event",
			"instance_id", instance.ID, "error", err.Error())
	}
}

func (r *Runner) logAlert(effect models.Effect) {
	if effect.Alert == nil {
		return
	}

	level := slog.LevelWarn
	if effect.Alert.Severity == "critical" || effect.Alert.Severity == "error" {
		level = slog.LevelError
	}

	r.logger.Log(context.Background(), level, "Operator alert",
		"severity", effect.Alert.Severity,
		"message", effect.Alert.Message,
		"subject", effect.Alert.Subject,
		"instance_id", effect.InstanceID)
}
