// Package web provides the REST API: flow management, execution control
// and the provider webhook that feeds inbound events onto the bus.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/flowzap/flowzap/pkg/eventbus"
	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/flowzap/flowzap/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// FlowRunner is the execution control surface the API needs; the runner
// implements it.
type FlowRunner interface {
	StartFlow(ctx context.Context, flowID, triggerNodeID, contactID string, seed map[string]any) (*models.ExecutionInstance, error)
	AbortInstance(ctx context.Context, instanceID, reason string) error
}

type APIHandlers struct {
	store    persistence.Persistence
	runner   FlowRunner
	registry *registry.Registry
	bus      eventbus.EventPublisher
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAPIHandlers(
	store persistence.Persistence,
	runner FlowRunner,
	reg *registry.Registry,
	bus eventbus.EventPublisher,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		store:    store,
		runner:   runner,
		registry: reg,
		bus:      bus,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "web"),
	}
}

// Register wires every route onto the app.
func (h *APIHandlers) Register(app *fiber.App) {
	flows := app.Group("/flows")
	flows.Get("/", h.GetFlows)
	flows.Post("/", h.SaveFlow)
	flows.Get("/:id", h.GetFlow)
	flows.Delete("/:id", h.DeleteFlow)
	flows.Post("/:id/publish", h.PublishFlow)

	executions := app.Group("/executions")
	executions.Post("/", h.StartExecution)
	executions.Get("/:id", h.GetInstanceState)
	executions.Post("/:id/resume", h.Resume)
	executions.Post("/:id/abort", h.AbortExecution)

	webhooks := app.Group("/webhooks")
	webhooks.Post("/provider", h.ProviderWebhook)
	webhooks.Post("/flows/*", h.FlowWebhook)

	app.Get("/node-kinds", h.GetNodeKinds)
	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.store.FlowRepository().PublishedFlows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"flows": flows, "count": len(flows)})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.store.FlowRepository().FlowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(flow)
}

// SaveFlow stores a draft. Publishing is a separate, explicit step so a
// half-edited graph can never serve traffic.
func (h *APIHandlers) SaveFlow(c fiber.Ctx) error {
	var flow models.FlowDefinition
	if err := json.Unmarshal(c.Body(), &flow); err != nil {
		return badRequest(c, "invalid flow payload: "+err.Error())
	}

	if flow.ID == "" {
		flow.ID = uuid.New().String()
	}

	if flow.Version == 0 {
		flow.Version = 1
	}

	flow.Status = models.FlowStatusDraft

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	if err := h.validate.Struct(&flow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.registry.ValidateFlow(&flow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.store.FlowRepository().SaveFlow(c.Context(), &flow); err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(&flow)
}

// PublishFlow freezes the latest draft version. Instances started from it
// stay pinned to this version even after later edits.
func (h *APIHandlers) PublishFlow(c fiber.Ctx) error {
	repo := h.store.FlowRepository()

	flow, err := repo.FlowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	if flow.Status == models.FlowStatusPublished {
		return conflict(c, "flow version is already published")
	}

	if err := h.registry.ValidateFlow(flow); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	flow.Status = models.FlowStatusPublished
	flow.PublishedAt = &now
	flow.UpdatedAt = now

	if err := repo.SaveFlow(c.Context(), flow); err != nil {
		return handleDomainError(c, err)
	}

	h.logger.Info("Flow published", "flow_id", flow.ID, "version", flow.Version)

	return c.JSON(flow)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	if err := h.store.FlowRepository().DeleteFlow(c.Context(), c.Params("id")); err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetNodeKinds(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"node_kinds": h.registry.Descriptors()})
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req startExecutionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid request payload: "+err.Error())
	}

	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.runner.StartFlow(c.Context(), req.FlowID, req.TriggerNodeID, req.ContactID, req.Variables)
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(toInstanceState(instance))
}

func (h *APIHandlers) GetInstanceState(c fiber.Ctx) error {
	instance, err := h.store.InstanceRepository().InstanceByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	return c.JSON(toInstanceState(instance))
}

// Resume injects a synthetic inbound message for the instance's contact,
// which travels the same bus path as real provider messages.
func (h *APIHandlers) Resume(c fiber.Ctx) error {
	var req resumeRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid request payload: "+err.Error())
	}

	if req.Text == "" && req.ButtonPayload == "" {
		return badRequest(c, "text or button_payload is required")
	}

	instance, err := h.store.InstanceRepository().InstanceByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleDomainError(c, err)
	}

	if instance.Status != models.ExecutionStatusWaitingForInput {
		return conflict(c, "instance is not waiting for input")
	}

	message := events.InboundMessage{
		BaseEvent:     events.NewBaseEvent(events.InboundMessageEventType),
		ContactID:     instance.ContactID,
		Text:          req.Text,
		ButtonPayload: req.ButtonPayload,
		ReceivedAt:    time.Now().UTC(),
	}

	if err := h.bus.Publish(c.Context(), events.InboundTopic, instance.ContactID, message); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) AbortExecution(c fiber.Ctx) error {
	var req abortRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return badRequest(c, "invalid request payload: "+err.Error())
		}
	}

	if req.Reason == "" {
		req.Reason = "aborted by operator"
	}

	if err := h.runner.AbortInstance(c.Context(), c.Params("id"), req.Reason); err != nil {
		return handleDomainError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
