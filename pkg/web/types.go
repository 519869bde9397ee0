package web

import "github.com/flowzap/flowzap/pkg/models"

type startExecutionRequest struct {
	FlowID        string         `json:"flow_id"         validate:"required"`
	TriggerNodeID string         `json:"trigger_node_id"`
	ContactID     string         `json:"contact_id"      validate:"required"`
	Variables     map[string]any `json:"variables"`
}

type resumeRequest struct {
	Text          string `json:"text"`
	ButtonPayload string `json:"button_payload"`
}

type abortRequest struct {
	Reason string `json:"reason"`
}

type webhookStartRequest struct {
	ContactID string         `json:"contact_id" validate:"required"`
	Variables map[string]any `json:"variables"`
}

type instanceStateResponse struct {
	ID             string                 `json:"id"`
	FlowID         string                 `json:"flow_id"`
	FlowVersion    int                    `json:"flow_version"`
	ContactID      string                 `json:"contact_id"`
	Status         models.ExecutionStatus `json:"status"`
	CurrentNodeID  string                 `json:"current_node_id"`
	Variables      map[string]any         `json:"variables,omitempty"`
	FailureReason  string                 `json:"failure_reason,omitempty"`
	SuspendedUntil string                 `json:"suspended_until,omitempty"`
	CreatedAt      string                 `json:"created_at"`
	UpdatedAt      string                 `json:"updated_at"`
}

func toInstanceState(instance *models.ExecutionInstance) instanceStateResponse {
	resp := instanceStateResponse{
		ID:            instance.ID,
		FlowID:        instance.FlowID,
		FlowVersion:   instance.FlowVersion,
		ContactID:     instance.ContactID,
		Status:        instance.Status,
		CurrentNodeID: instance.CurrentNodeID,
		Variables:     instance.Variables,
		FailureReason: instance.FailureReason,
		CreatedAt:     instance.CreatedAt.Format(timeFormat),
		UpdatedAt:     instance.UpdatedAt.Format(timeFormat),
	}

	if instance.SuspendedUntil != nil {
		resp.SuspendedUntil = instance.SuspendedUntil.Format(timeFormat)
	}

	return resp
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"
