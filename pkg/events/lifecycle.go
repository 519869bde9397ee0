package events

import (
	"time"

	"github.com/flowzap/flowzap/pkg/models"
)

// Execution lifecycle events published on LifecycleTopic for dashboards and
// operator alerting.

type ExecutionStarted struct {
	BaseEvent

	InstanceID  string `json:"instance_id"`
	FlowID      string `json:"flow_id"`
	FlowVersion int    `json:"flow_version"`
	ContactID   string `json:"contact_id"`
	TriggerNode string `json:"trigger_node"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEventType }

type ExecutionCompleted struct {
	BaseEvent

	InstanceID string        `json:"instance_id"`
	FlowID     string        `json:"flow_id"`
	ContactID  string        `json:"contact_id"`
	Duration   time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEventType }

type ExecutionFailed struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	FlowID     string `json:"flow_id"`
	ContactID  string `json:"contact_id"`
	Reason     string `json:"reason"`
	NodeID     string `json:"node_id,omitempty"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEventType }

type ExecutionAborted struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	ContactID  string `json:"contact_id"`
	Reason     string `json:"reason"`
}

func (e ExecutionAborted) GetType() EventType { return ExecutionAbortedEventType }

type ExecutionSuspended struct {
	BaseEvent

	InstanceID string                 `json:"instance_id"`
	Status     models.ExecutionStatus `json:"status"`
	NodeID     string                 `json:"node_id"`
	Until      *time.Time             `json:"until,omitempty"`
}

func (e ExecutionSuspended) GetType() EventType { return ExecutionSuspendedEventType }

// CompliancePaused is raised when a template transitions into an unhealthy
// state and all future sends against it become ineligible.
type CompliancePaused struct {
	BaseEvent

	TemplateID   string                `json:"template_id"`
	Status       models.TemplateStatus `json:"status"`
	QualityScore models.QualityScore   `json:"quality_score"`
}

func (e CompliancePaused) GetType() EventType { return CompliancePausedEventType }
