// Package connector dispatches declarative effects against external
// providers: the messaging platform, generic REST APIs and AI providers.
// Retry and backoff policy is owned here so node kinds never reimplement
// it, and compliance gates are re-checked immediately before each provider
// call.
package connector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageProvider sends outbound messages through the messaging platform.
type MessageProvider interface {
	SendMessage(ctx context.Context, message *models.SendMessagePayload) (providerMessageID string, err error)
}

// HTTPCaller performs a generic REST call built by a call_api node.
type HTTPCaller interface {
	Call(ctx context.Context, call *models.HTTPCallPayload) (models.DispatchResult, error)
}

// AIProvider performs a completion call built by a call_ai node.
type AIProvider interface {
	Complete(ctx context.Context, call *models.AICallPayload) (string, error)
}

// WindowGate and TemplateGate are the synchronous dispatch-time compliance
// checks. State can change between enqueue and dispatch, so the gate runs
// again here.
type WindowGate interface {
	ValidateSend(contactID string, now time.Time, isTemplate bool) error
}

type TemplateGate interface {
	IsSendable(templateID string) bool
}

// Config bounds the centralized retry policy.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
	}
}

// Dispatcher routes effects to the matching provider with bounded
// exponential backoff on transient failures. Permanent failures (4xx
// validation, compliance denial) return immediately as structured results.
type Dispatcher struct {
	messages  MessageProvider
	http      HTTPCaller
	ai        AIProvider
	windows   WindowGate
	templates TemplateGate
	config    Config
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(
	messages MessageProvider,
	http HTTPCaller,
	ai AIProvider,
	windows WindowGate,
	templates TemplateGate,
	config Config,
	logger *slog.Logger,
) *Dispatcher {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	return &Dispatcher{
		messages:  messages,
		http:      http,
		ai:        ai,
		windows:   windows,
		templates: templates,
		config:    config,
		logger:    logger.With("module", "connector"),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepCtx,
	}
}

// WithTracer enables a span per dispatched effect.
func (d *Dispatcher) WithTracer(t trace.Tracer) *Dispatcher {
	d.tracer = t

	return d
}

// Dispatch performs one effect. The returned result is structured so the
// engine can route error ports; the error return is reserved for effects
// the connector cannot handle at all.
func (d *Dispatcher) Dispatch(ctx context.Context, effect models.Effect) (models.DispatchResult, error) {
	if d.tracer != nil {
		var span trace.Span

		ctx, span = tracer.StartSpan(ctx, d.tracer, "connector.dispatch",
			attribute.String(tracer.EffectIDKey, effect.ID),
			attribute.String(tracer.EffectKindKey, string(effect.Type)),
			attribute.String(tracer.InstanceIDKey, effect.InstanceID),
		)
		defer span.End()

		result, err := d.dispatch(ctx, effect)
		if err != nil {
			tracer.SetError(span, err)
		}

		return result, err
	}

	return d.dispatch(ctx, effect)
}

func (d *Dispatcher) dispatch(ctx context.Context, effect models.Effect) (models.DispatchResult, error) {
	switch effect.Type {
	case models.EffectSendMessage:
		return d.dispatchMessage(ctx, effect)
	case models.EffectCallHTTP:
		return d.dispatchHTTP(ctx, effect)
	case models.EffectCallAI:
		return d.dispatchAI(ctx, effect)
	default:
		return models.DispatchResult{}, fmt.Errorf("effect type %s is not dispatchable", effect.Type)
	}
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, effect models.Effect) (models.DispatchResult, error) {
	message := effect.Message
	if message == nil {
		return models.DispatchResult{}, fmt.Errorf("send_message effect %s has no payload", effect.ID)
	}

	// Hard gate: compliance state may have changed since the effect was
	// enqueued.
	isTemplate := message.Kind == models.MessageKindTemplate

	if err := d.windows.ValidateSend(message.ContactID, d.now(), isTemplate); err != nil {
		d.logger.Warn("Send denied at dispatch", "contact_id", message.ContactID, "reason", err.Error())

		return models.DispatchResult{Success: false, Error: err.Error()}, err
	}

	if isTemplate && !d.templates.IsSendable(message.TemplateID) {
		denied := &models.ComplianceDeniedError{
			Reason:     models.DenialTemplateUnhealthy,
			ContactID:  message.ContactID,
			TemplateID: message.TemplateID,
		}
		d.logger.Warn("Template send denied at dispatch", "template_id", message.TemplateID)

		return models.DispatchResult{Success: false, Error: denied.Error()}, denied
	}

	var providerMessageID string

	err := d.withRetry(ctx, "send_message", func() error {
		var callErr error
		providerMessageID, callErr = d.messages.SendMessage(ctx, message)

		return callErr
	})
	if err != nil {
		return models.DispatchResult{Success: false, Error: err.Error()}, err
	}

	return models.DispatchResult{Success: true, ProviderMessageID: providerMessageID}, nil
}

func (d *Dispatcher) dispatchHTTP(ctx context.Context, effect models.Effect) (models.DispatchResult, error) {
	if effect.HTTP == nil {
		return models.DispatchResult{}, fmt.Errorf("call_http effect %s has no payload", effect.ID)
	}

	var result models.DispatchResult

	err := d.withRetry(ctx, "call_http", func() error {
		var callErr error
		result, callErr = d.http.Call(ctx, effect.HTTP)

		return callErr
	})
	if err != nil {
		return models.DispatchResult{Success: false, Error: err.Error()}, nil
	}

	return result, nil
}

func (d *Dispatcher) dispatchAI(ctx context.Context, effect models.Effect) (models.DispatchResult, error) {
	if effect.AI == nil {
		return models.DispatchResult{}, fmt.Errorf("call_ai effect %s has no payload", effect.ID)
	}

	var text string

	err := d.withRetry(ctx, "call_ai", func() error {
		var callErr error
		text, callErr = d.ai.Complete(ctx, effect.AI)

		return callErr
	})
	if err != nil {
		return models.DispatchResult{Success: false, Error: err.Error()}, nil
	}

	return models.DispatchResult{Success: true, Body: text}, nil
}

// withRetry retries transient failures with capped exponential backoff.
// Permanent failures return on the first occurrence.
func (d *Dispatcher) withRetry(ctx context.Context, operation string, call func() error) error {
	delay := d.config.InitialDelay

	var lastErr error

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}

		if !models.IsTransient(lastErr) {
			return lastErr
		}

		if attempt == d.config.MaxAttempts {
			break
		}

		d.logger.Warn("Transient provider failure, backing off",
			"operation", operation,
			"attempt", attempt,
			"delay", delay,
			"error", lastErr.Error())

		if err := d.sleep(ctx, delay); err != nil {
			return err
		}

		delay *= 2
		if delay > d.config.MaxDelay {
			delay = d.config.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, d.config.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
