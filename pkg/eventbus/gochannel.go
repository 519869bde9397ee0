package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewInProcessEventBus builds an EventBus on watermill's in-memory
// channel pub/sub, used for single-process deployments and tests.
func NewInProcessEventBus(wmLogger watermill.LoggerAdapter) *WatermillEventBus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)

	return NewWatermillEventBus(pubSub, pubSub)
}
