package nodes

import (
	"time"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/template"
)

// executeAskQuestion sends the question and suspends on WaitForInput. A
// reply resumes on the reply port with the answer stored in the configured
// variable; the reply-wait timeout resumes on the timeout port instead.
func (e *Executor) executeAskQuestion(node *models.Node, cfg *models.AskQuestionConfig, instance *models.ExecutionInstance, event events.EngineEvent) (StepResult, error) {
	switch ev := event.(type) {
	case events.InboundMessage:
		if instance.Status == models.ExecutionStatusWaitingForInput {
			answer := ev.Text
			if answer == "" {
				answer = ev.ButtonPayload
			}

			return StepResult{
				OutputPort:      models.PortReply,
				VariableUpdates: map[string]any{cfg.Variable: answer},
			}, nil
		}
	case events.TimerFired:
		if instance.Status == models.ExecutionStatusWaitingForInput {
			result := StepResult{OutputPort: models.PortTimeout}

			if cfg.TimeoutMessage != "" {
				if err := e.windows.ValidateSend(instance.ContactID, e.now(), false); err == nil {
					effect := newEffect(models.EffectSendMessage, instance.ID, node.ID)
					effect.Message = &models.SendMessagePayload{
						ContactID: instance.ContactID,
						Kind:      models.MessageKindText,
						Text:      template.Render(cfg.TimeoutMessage, instance.Variables),
					}
					result.Effects = []models.Effect{effect}
				}
			}

			return result, nil
		}
	}

	// First entry: emit the question and suspend.
	if err := e.windows.ValidateSend(instance.ContactID, e.now(), false); err != nil {
		return StepResult{OutputPort: models.PortError, PortErr: err}, nil
	}

	effect := newEffect(models.EffectSendMessage, instance.ID, node.ID)
	effect.Message = &models.SendMessagePayload{
		ContactID: instance.ContactID,
		Kind:      models.MessageKindText,
		Text:      template.Render(cfg.Question, instance.Variables),
	}

	suspend := &Suspension{Status: models.ExecutionStatusWaitingForInput}
	effects := []models.Effect{effect}

	if cfg.TimeoutSeconds > 0 {
		timeoutAt := e.now().Add(time.Duration(cfg.TimeoutSeconds) * time.Second)
		suspend.TimeoutAt = &timeoutAt

		timer := newEffect(models.EffectScheduleTimer, instance.ID, node.ID)
		timer.Timer = &models.TimerPayload{FireAt: timeoutAt}
		effects = append(effects, timer)
	}

	return StepResult{Effects: effects, Suspend: suspend}, nil
}

// executeDelay suspends on WaitForTimer. The deliberate delay is a true
// yield realized by the durable scheduler, never a blocking sleep.
func (e *Executor) executeDelay(node *models.Node, cfg *models.DelayConfig, instance *models.ExecutionInstance, event events.EngineEvent) (StepResult, error) {
	if _, ok := event.(events.TimerFired); ok {
		return StepResult{OutputPort: models.PortMain}, nil
	}

	delay := time.Duration(cfg.DurationSeconds) * time.Second
	if cfg.Jitter && cfg.JitterSeconds > 0 {
		jitter := time.Duration(e.rng.Intn(2*cfg.JitterSeconds+1)-cfg.JitterSeconds) * time.Second
		if delay+jitter > 0 {
			delay += jitter
		}
	}

	fireAt := e.now().Add(delay)

	timer := newEffect(models.EffectScheduleTimer, instance.ID, node.ID)
	timer.Timer = &models.TimerPayload{FireAt: fireAt}

	return StepResult{
		Effects: []models.Effect{timer},
		Suspend: &Suspension{
			Status:    models.ExecutionStatusWaitingForTimer,
			TimeoutAt: &fireAt,
		},
	}, nil
}
