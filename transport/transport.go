// Package transport defines the interfaces and registry for the agent's
// broker transports. Each transport implementation (rabbitmq, nats, channel)
// lives in its own sub-package and registers itself with the registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines the subscriber the agent consumes from and the publisher
// used to forward poison messages.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder is the function signature for creating a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports. The
// interface keeps transports decoupled from the full agent config package.
type Config interface {
	// GetPubSubSystem returns the transport type name.
	GetPubSubSystem() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// GetPrefetchCount bounds how many deliveries the broker pushes before
	// the agent acknowledges one. It is the broker-side half of the worker
	// pool's backpressure.
	GetPrefetchCount() int
}
