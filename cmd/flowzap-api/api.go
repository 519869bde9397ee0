package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/flowzap/flowzap/pkg/cmd"
	"github.com/flowzap/flowzap/pkg/compliance"
	"github.com/flowzap/flowzap/pkg/connector"
	"github.com/flowzap/flowzap/pkg/eventbus"
	"github.com/flowzap/flowzap/pkg/flow"
	"github.com/flowzap/flowzap/pkg/nodes"
	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/flowzap/flowzap/pkg/registry"
	"github.com/flowzap/flowzap/pkg/runner"
	"github.com/flowzap/flowzap/pkg/scheduler"
	"github.com/flowzap/flowzap/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	cli "github.com/urfave/cli/v3"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	runner      web.FlowRunner
}

func NewAPI(
	apiLogger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	flowRunner web.FlowRunner,
) *API {
	return &API{
		logger:      apiLogger,
		persistence: store,
		registry:    reg,
		eventBus:    eventBus,
		runner:      flowRunner,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.persistence, a.runner, a.registry, a.eventBus, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowzap API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}

// runAPI builds a full execution node and serves the REST API on top of it.
// With the gochannel bus this is a complete single-process deployment; with
// Kafka it joins the worker consumer group.
func runAPI(ctx context.Context, apiLogger *slog.Logger, workerID string, command *cli.Command) error {
	store, err := cmd.NewPersistence(ctx, apiLogger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			apiLogger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(
		command.String("event-bus"),
		command.String("kafka-brokers"),
		"flowzap-worker",
		apiLogger,
	)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			apiLogger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	windows := compliance.NewWindowGuard(store.WindowRepository(), apiLogger)
	templates := compliance.NewMonitor(store.HealthRepository(), apiLogger)

	executor := nodes.NewExecutor(windows, templates, nil, nil)
	engine := flow.NewEngine(executor, apiLogger)

	messages := connector.NewWhatsAppProvider(connector.WhatsAppConfig{
		BaseURL:       command.String("whatsapp-base-url"),
		PhoneNumberID: command.String("whatsapp-phone-number-id"),
		AccessToken:   command.String("whatsapp-access-token"),
	})

	dispatcher := connector.NewDispatcher(
		messages,
		connector.NewRESTCaller(),
		connector.NewOpenAIProvider(command.String("ai-model")),
		windows,
		templates,
		connector.DefaultConfig(),
		apiLogger,
	)

	flowRunner := runner.NewRunner(
		workerID,
		engine,
		store,
		dispatcher,
		windows,
		templates,
		eventBus,
		command.Int("shards"),
		apiLogger,
	)

	if err := flowRunner.Start(ctx); err != nil {
		return err
	}

	defer flowRunner.Stop()

	poller := scheduler.NewTimerPoller(store.TimerRepository(), eventBus, apiLogger)
	go poller.Start(ctx)

	api := NewAPI(apiLogger, store, registry.NewRegistry(), eventBus, flowRunner)

	return api.Start(command.Int("port"))
}
