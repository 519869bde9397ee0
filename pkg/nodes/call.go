package nodes

import (
	"time"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/template"
)

const (
	defaultCallTimeout = 30 * time.Second
	minCallTimeout     = 1 * time.Second
	maxCallTimeout     = 300 * time.Second
)

// executeCallAPI builds an HTTP effect with templates substituted in URL,
// headers and body (including inside JSON bodies), then suspends until the
// connector reports the result. The response status routes success or
// error.
func (e *Executor) executeCallAPI(node *models.Node, cfg *models.CallAPIConfig, instance *models.ExecutionInstance, event events.EngineEvent) (StepResult, error) {
	if result, ok := event.(events.EffectResult); ok && instance.Status == models.ExecutionStatusWaitingForCall {
		return routeCallResult(result, map[string]any{
			"last_api_status": result.Result.StatusCode,
			"last_api_body":   result.Result.Body,
		}), nil
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = defaultCallTimeout
	}

	if timeout < minCallTimeout {
		timeout = minCallTimeout
	}

	if timeout > maxCallTimeout {
		timeout = maxCallTimeout
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = template.Render(v, instance.Variables)
	}

	method := cfg.Method
	if method == "" {
		method = "GET"
	}

	effect := newEffect(models.EffectCallHTTP, instance.ID, node.ID)
	effect.HTTP = &models.HTTPCallPayload{
		URL:     template.Render(cfg.URL, instance.Variables),
		Method:  method,
		Headers: headers,
		Body:    template.Render(cfg.Body, instance.Variables),
		Timeout: timeout,
	}

	return StepResult{
		Effects: []models.Effect{effect},
		Suspend: &Suspension{Status: models.ExecutionStatusWaitingForCall},
	}, nil
}

// executeCallAI builds an AI provider call effect and suspends for its
// result. The reply text lands in the configured variable.
func (e *Executor) executeCallAI(node *models.Node, cfg *models.CallAIConfig, instance *models.ExecutionInstance, event events.EngineEvent) (StepResult, error) {
	if result, ok := event.(events.EffectResult); ok && instance.Status == models.ExecutionStatusWaitingForCall {
		updates := map[string]any{}
		if result.Result.Success {
			updates[cfg.Variable] = result.Result.Body
		}

		return routeCallResult(result, updates), nil
	}

	effect := newEffect(models.EffectCallAI, instance.ID, node.ID)
	effect.AI = &models.AICallPayload{
		Prompt:       template.Render(cfg.Prompt, instance.Variables),
		SystemPrompt: template.Render(cfg.SystemPrompt, instance.Variables),
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		Variable:     cfg.Variable,
	}

	return StepResult{
		Effects: []models.Effect{effect},
		Suspend: &Suspension{Status: models.ExecutionStatusWaitingForCall},
	}, nil
}

func routeCallResult(result events.EffectResult, updates map[string]any) StepResult {
	if result.Result.Success {
		return StepResult{
			OutputPort:      models.PortSuccess,
			VariableUpdates: updates,
		}
	}

	return StepResult{
		OutputPort: models.PortError,
		VariableUpdates: map[string]any{
			"last_error": result.Result.Error,
		},
	}
}
