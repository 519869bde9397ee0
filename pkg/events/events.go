// Package events defines the typed events that drive flow execution and the
// bus events published for lifecycle observation.
package events

import (
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Bus topics.
const (
	InboundTopic   = "flowzap.inbound"   // provider webhooks, normalized
	LifecycleTopic = "flowzap.lifecycle" // execution lifecycle events
	TimerTopic     = "flowzap.timers"    // durable timer firings
)

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InboundMessageEventType EventType = "inbound.message"
	DeliveryStatusEventType EventType = "inbound.delivery_status"
	TemplateStatusEventType EventType = "inbound.template_status"
	TimerFiredEventType     EventType = "timer.fired"

	ExecutionStartedEventType   EventType = "execution.started"
	ExecutionCompletedEventType EventType = "execution.completed"
	ExecutionFailedEventType    EventType = "execution.failed"
	ExecutionAbortedEventType   EventType = "execution.aborted"
	ExecutionSuspendedEventType EventType = "execution.suspended"
	CompliancePausedEventType   EventType = "compliance.paused"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EngineEvent is the closed set of events that can be fed into the flow
// engine's Advance step.
type EngineEvent interface {
	engineEvent()
	At() time.Time
}

// InboundMessage is a user message or button press normalized from the
// provider webhook. Parsing the raw webhook payload happens at the web
// layer; the engine only sees this typed form.
type InboundMessage struct {
	BaseEvent

	ContactID     string    `json:"contact_id"`
	Text          string    `json:"text,omitempty"`
	ButtonPayload string    `json:"button_payload,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

func (e InboundMessage) GetType() EventType { return InboundMessageEventType }
func (e InboundMessage) engineEvent()       {}
func (e InboundMessage) At() time.Time      { return e.ReceivedAt }

// DeliveryStatus reports provider-side delivery state for a sent message.
type DeliveryStatus struct {
	BaseEvent

	ProviderMessageID string    `json:"provider_message_id"`
	Status            string    `json:"status"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func (e DeliveryStatus) GetType() EventType { return DeliveryStatusEventType }

// TemplateStatus is a provider template quality/approval update. It is the
// only writer input for template health state.
type TemplateStatus struct {
	BaseEvent

	TemplateID   string                `json:"template_id"`
	Status       models.TemplateStatus `json:"status"`
	QualityScore models.QualityScore   `json:"quality_score"`
	OccurredAt   time.Time             `json:"occurred_at"`
}

func (e TemplateStatus) GetType() EventType { return TemplateStatusEventType }

// TimerFired resumes an instance suspended on WaitForTimer or on a
// reply-wait timeout. TimerID and NodeID identify the suspension point the
// timer was scheduled for; timer delivery is at-least-once, so consumers
// must drop firings whose node no longer matches the instance's suspension.
type TimerFired struct {
	BaseEvent

	TimerID    string    `json:"timer_id"`
	InstanceID string    `json:"instance_id"`
	NodeID     string    `json:"node_id"`
	FiredAt    time.Time `json:"fired_at"`
}

func (e TimerFired) GetType() EventType { return TimerFiredEventType }
func (e TimerFired) engineEvent()       {}
func (e TimerFired) At() time.Time      { return e.FiredAt }

// EffectResult feeds a connector dispatch outcome back into the engine so
// call nodes can route their success/error ports. It never crosses the bus;
// the runner produces it locally after dispatching.
type EffectResult struct {
	InstanceID string                `json:"instance_id"`
	NodeID     string                `json:"node_id"`
	EffectID   string                `json:"effect_id"`
	Result     models.DispatchResult `json:"result"`
	OccurredAt time.Time             `json:"occurred_at"`
}

func (e EffectResult) engineEvent()  {}
func (e EffectResult) At() time.Time { return e.OccurredAt }
