package models

import "time"

// EffectType identifies a declarative side-effecting intent emitted by the
// node executor. Effects are dispatched by the runner after the instance is
// durably persisted; the engine itself performs no I/O.
type EffectType string

const (
	EffectSendMessage     EffectType = "send_message"
	EffectCallHTTP        EffectType = "call_http"
	EffectCallAI          EffectType = "call_ai"
	EffectScheduleTimer   EffectType = "schedule_timer"
	EffectStartFlow       EffectType = "start_flow"
	EffectCompliancePause EffectType = "compliance_pause"
	EffectOperatorAlert   EffectType = "operator_alert"
)

// MessageKind distinguishes outbound message payloads.
type MessageKind string

const (
	MessageKindText     MessageKind = "text"
	MessageKindMedia    MessageKind = "media"
	MessageKindTemplate MessageKind = "template"
)

// SendMessagePayload is an outbound message intent. Template sends carry
// TemplateID; free-form sends are window-gated at dispatch time.
type SendMessagePayload struct {
	ContactID  string      `json:"contact_id"`
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	MediaURL   string      `json:"media_url,omitempty"`
	MediaType  string      `json:"media_type,omitempty"`
	Caption    string      `json:"caption,omitempty"`
	TemplateID string      `json:"template_id,omitempty"`
	Language   string      `json:"language,omitempty"`
	Params     []string    `json:"params,omitempty"`
}

// HTTPCallPayload is a generic REST call intent with templates already
// substituted.
type HTTPCallPayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Timeout time.Duration     `json:"timeout"`
}

// AICallPayload is an AI provider call intent.
type AICallPayload struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Model        string  `json:"model,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	Variable     string  `json:"variable"`
}

// TimerPayload schedules a durable timer that resumes the instance.
type TimerPayload struct {
	FireAt time.Time `json:"fire_at"`
}

// StartFlowPayload starts a new flow execution for the same contact.
type StartFlowPayload struct {
	FlowID        string         `json:"flow_id"`
	ContactID     string         `json:"contact_id"`
	SeedVariables map[string]any `json:"seed_variables,omitempty"`
}

// AlertPayload raises an operator-facing alert.
type AlertPayload struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Subject  string `json:"subject,omitempty"` // e.g. template id
}

// Effect is a declarative, not-yet-performed intent. Exactly one payload
// matches Type.
type Effect struct {
	ID         string     `json:"id"`
	Type       EffectType `json:"type"`
	InstanceID string     `json:"instance_id,omitempty"`
	NodeID     string     `json:"node_id,omitempty"`

	Message   *SendMessagePayload `json:"message,omitempty"`
	HTTP      *HTTPCallPayload    `json:"http,omitempty"`
	AI        *AICallPayload      `json:"ai,omitempty"`
	Timer     *TimerPayload       `json:"timer,omitempty"`
	StartFlow *StartFlowPayload   `json:"start_flow,omitempty"`
	Alert     *AlertPayload       `json:"alert,omitempty"`
}

// DispatchResult is the connector layer's outcome for one dispatched effect.
type DispatchResult struct {
	Success           bool           `json:"success"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	StatusCode        int            `json:"status_code,omitempty"`
	Body              string         `json:"body,omitempty"`
	Output            map[string]any `json:"output,omitempty"`
	Error             string         `json:"error,omitempty"`
}
