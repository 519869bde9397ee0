// Package main provides the flowzap worker: it consumes inbound and timer
// events, advances flow instances and dispatches their effects.
package main

import (
	"context"
	"os"

	"github.com/flowzap/flowzap/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const defaultShardCount = 16

func main() {
	cmd := &cli.Command{
		Name:                  "flowzap-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to execute conversational flows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.IntFlag{
				Name:    "shards",
				Usage:   "Number of per-contact execution shards",
				Value:   defaultShardCount,
				Sources: cli.EnvVars("SHARD_COUNT"),
			},
			&cli.StringFlag{
				Name:    "whatsapp-phone-number-id",
				Usage:   "Phone number ID used for outbound sends",
				Sources: cli.EnvVars("WHATSAPP_PHONE_NUMBER_ID"),
			},
			&cli.StringFlag{
				Name:    "whatsapp-access-token",
				Usage:   "Access token for the messaging provider",
				Sources: cli.EnvVars("WHATSAPP_ACCESS_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "whatsapp-base-url",
				Usage:   "Override for the messaging provider base URL",
				Sources: cli.EnvVars("WHATSAPP_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "ai-model",
				Usage:   "Default model for call_ai nodes",
				Value:   "gpt-4o-mini",
				Sources: cli.EnvVars("AI_MODEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces for effect dispatches",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowzap-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing flowzap worker")

			return runWorker(ctx, logger, workerID, command)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
