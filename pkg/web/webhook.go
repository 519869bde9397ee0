package web

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/flow"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// providerPayload mirrors the Cloud API webhook envelope. Only the fields
// the engine consumes are decoded; everything else is ignored.
type providerPayload struct {
	Entry []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []struct {
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
					Button struct {
						Payload string `json:"payload"`
						Text    string `json:"text"`
					} `json:"button"`
					Interactive struct {
						ButtonReply struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"button_reply"`
					} `json:"interactive"`
				} `json:"messages"`
				Statuses []struct {
					ID        string `json:"id"`
					Status    string `json:"status"`
					Timestamp string `json:"timestamp"`
				} `json:"statuses"`
				MessageTemplateID   json.Number `json:"message_template_id"`
				MessageTemplateName string      `json:"message_template_name"`
				Event               string      `json:"event"`
				NewQualityScore     string      `json:"new_quality_score"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ProviderWebhook normalizes the provider callback into typed bus events.
// It always acknowledges with 200 once the payload parses; the provider
// retries on anything else and we would rather dedupe than replay storms.
func (h *APIHandlers) ProviderWebhook(c fiber.Ctx) error {
	var payload providerPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return badRequest(c, "invalid webhook payload: "+err.Error())
	}

	published := 0

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			for _, msg := range value.Messages {
				event := events.InboundMessage{
					BaseEvent:  events.NewBaseEvent(events.InboundMessageEventType),
					ContactID:  msg.From,
					ReceivedAt: parseEpoch(msg.Timestamp),
				}

				switch {
				case msg.Interactive.ButtonReply.ID != "":
					event.ButtonPayload = msg.Interactive.ButtonReply.ID
					event.Text = msg.Interactive.ButtonReply.Title
				case msg.Button.Payload != "":
					event.ButtonPayload = msg.Button.Payload
					event.Text = msg.Button.Text
				default:
					event.Text = msg.Text.Body
				}

				if err := h.bus.Publish(c.Context(), events.InboundTopic, event.ContactID, event); err != nil {
					h.logger.Error("Failed to publish inbound message", "contact_id", event.ContactID, "error", err)

					continue
				}

				published++
			}

			for _, status := range value.Statuses {
				event := events.DeliveryStatus{
					BaseEvent:         events.NewBaseEvent(events.DeliveryStatusEventType),
					ProviderMessageID: status.ID,
					Status:            status.Status,
					OccurredAt:        parseEpoch(status.Timestamp),
				}

				if err := h.bus.Publish(c.Context(), events.InboundTopic, status.ID, event); err != nil {
					h.logger.Error("Failed to publish delivery status", "provider_message_id", status.ID, "error", err)

					continue
				}

				published++
			}

			if change.Field == "message_template_status_update" || change.Field == "message_template_quality_update" {
				event := events.TemplateStatus{
					BaseEvent:    events.NewBaseEvent(events.TemplateStatusEventType),
					TemplateID:   templateID(value.MessageTemplateID, value.MessageTemplateName),
					Status:       templateStatusFromEvent(value.Event),
					QualityScore: qualityFromProvider(value.NewQualityScore),
					OccurredAt:   time.Now().UTC(),
				}

				if err := h.bus.Publish(c.Context(), events.InboundTopic, event.TemplateID, event); err != nil {
					h.logger.Error("Failed to publish template status", "template_id", event.TemplateID, "error", err)

					continue
				}

				published++
			}
		}
	}

	return c.JSON(fiber.Map{"accepted": published})
}

// FlowWebhook starts the flow whose webhook trigger is bound to the
// requested path. The wildcard segment after /webhooks/flows/ is the
// trigger path.
func (h *APIHandlers) FlowWebhook(c fiber.Ctx) error {
	path := c.Params("*")
	if path == "" {
		return badRequest(c, "webhook path is required")
	}

	var req webhookStartRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid request payload: "+err.Error())
	}

	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	flows, err := h.store.FlowRepository().PublishedFlows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	match := flow.MatchWebhook(flows, path)
	if match == nil {
		return notFound(c, "no published flow listens on this webhook path")
	}

	instance, err := h.runner.StartFlow(c.Context(), match.Flow.ID, match.Trigger.ID, req.ContactID, req.Variables)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(toInstanceState(instance))
}

// parseEpoch handles the provider's string-encoded unix timestamps.
func parseEpoch(raw string) time.Time {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds <= 0 {
		return time.Now().UTC()
	}

	return time.Unix(seconds, 0).UTC()
}

func templateID(id json.Number, name string) string {
	if id.String() != "" {
		return id.String()
	}

	return name
}

func templateStatusFromEvent(event string) models.TemplateStatus {
	switch strings.ToUpper(event) {
	case "APPROVED":
		return models.TemplateStatusApproved
	case "PAUSED", "FLAGGED":
		return models.TemplateStatusPaused
	case "DISABLED":
		return models.TemplateStatusDisabled
	case "REJECTED":
		return models.TemplateStatusRejected
	case "PENDING", "IN_APPEAL":
		return models.TemplateStatusPending
	default:
		return models.TemplateStatusApproved
	}
}

func qualityFromProvider(score string) models.QualityScore {
	switch strings.ToUpper(score) {
	case "GREEN", "HIGH":
		return models.QualityGreen
	case "YELLOW", "MEDIUM":
		return models.QualityYellow
	case "RED", "LOW":
		return models.QualityRed
	default:
		return models.QualityUnknown
	}
}
