package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/flowzap/flowzap/pkg/cmd"
	"github.com/flowzap/flowzap/pkg/compliance"
	"github.com/flowzap/flowzap/pkg/connector"
	"github.com/flowzap/flowzap/pkg/flow"
	"github.com/flowzap/flowzap/pkg/nodes"
	"github.com/flowzap/flowzap/pkg/runner"
	"github.com/flowzap/flowzap/pkg/scheduler"
	"github.com/flowzap/flowzap/pkg/tracer"
	cli "github.com/urfave/cli/v3"
)

// runWorker wires persistence, the bus, the engine and the schedulers, then
// blocks until the process is signalled.
func runWorker(ctx context.Context, logger *slog.Logger, workerID string, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(
		command.String("event-bus"),
		command.String("kafka-brokers"),
		"flowzap-worker",
		logger,
	)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	windows := compliance.NewWindowGuard(store.WindowRepository(), logger)
	templates := compliance.NewMonitor(store.HealthRepository(), logger)

	executor := nodes.NewExecutor(windows, templates, nil, nil)
	engine := flow.NewEngine(executor, logger)

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
		logger,
	)

	if command.Bool("tracing") {
		t, err := tracer.NewTracer(ctx, "flowzap-worker")
		if err != nil {
			return err
		}

		dispatcher = dispatcher.WithTracer(t)
	}

	worker := runner.NewRunner(
		workerID,
		engine,
		store,
		dispatcher,
		windows,
		templates,
		eventBus,
		command.Int("shards"),
		logger,
	)

	if err := worker.Start(ctx); err != nil {
		return err
	}

	defer worker.Stop()

	poller := scheduler.NewTimerPoller(store.TimerRepository(), eventBus, logger)
	go poller.Start(ctx)

	activator := scheduler.NewActivator(store.FlowRepository(), worker, logger)
	go activator.Start(ctx)

	archiver := scheduler.NewArchiver(store.InstanceRepository(), 0, "", logger)
	if err := archiver.Start(ctx); err != nil {
		return err
	}

	defer archiver.Stop()

	<-ctx.Done()

	logger.Info("Shutting down worker")

	return nil
}
