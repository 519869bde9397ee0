// Package main provides the flowzap API server: flow management, execution
// control and the provider webhook.
package main

import (
	"context"
	"os"

	"github.com/flowzap/flowzap/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "flowzap-api",
		Usage:                 "Create, publish and run conversational flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Value:   "gochannel",
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
				Value:   16,
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
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing flowzap API")

			workerID := "api-" + uuid.New().String()[:8]

			return runAPI(ctx, logger, workerID, command)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
