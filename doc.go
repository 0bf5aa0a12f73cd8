// Package checkagent runs a data-quality job agent inside your own network.
// It subscribes to an organization-scoped event queue, dispatches each event
// to a versioned action backed by the bundled validation engine, executes the
// actions under a bounded worker pool, and reports every job outcome to the
// control-plane REST API.
//
// A minimal setup fills Config, implements Engine against your validation
// engine, and calls New followed by Run:
//
//	conf, err := checkagent.LoadConfig("agent.toml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	agent := checkagent.New(conf, logger, ctx, checkagent.Dependencies{
//		Engine: myEngine,
//	})
//	if err := agent.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Transports
//
// The agent reads the broker from Config.PubSubSystem:
//   - rabbitmq: AMQP durable queue, QoS prefetch bound to the pool size
//   - nats: NATS subjects with client-side reconnect
//   - channel: In-memory Go channels for testing
//
// # Delivery semantics
//
// A message is acknowledged when its job finishes, whether it succeeded or
// failed terminally. Retryable failures nack the message for broker
// redelivery; a per-correlation-id cap stops redelivery loops. Messages that
// can never be processed (undecodable envelopes, events addressed to another
// organization, exhausted redeliveries) are forwarded to the poison queue and
// acknowledged.
//
// # Middleware
//
// The default middleware chain covers correlation ID injection, structured
// logging, OpenTelemetry tracing, Prometheus metrics, poison queue
// forwarding, and panic recovery. Custom middleware can be added via
// Dependencies.Middlewares.
package checkagent
