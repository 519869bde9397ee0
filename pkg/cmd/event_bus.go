package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/flowzap/flowzap/pkg/eventbus"
)

// NewEventBus builds the bus from the provider name. Kafka is the
// production provider; gochannel keeps single-process deployments and
// local development free of brokers.
func NewEventBus(provider, brokers, consumerGroup string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		if brokers == "" {
			return nil, fmt.Errorf("kafka event bus requires broker addresses")
		}

		return eventbus.NewKafkaEventBus(strings.Split(brokers, ","), consumerGroup, wmLogger)
	case "gochannel", "":
		return eventbus.NewInProcessEventBus(wmLogger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
