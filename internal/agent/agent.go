// Package agent wires the queue subscriber, action registry, worker pool, and
// status reporter into a single long-running orchestrator.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/checkagent/internal/agent/actions"
	configpkg "github.com/drblury/checkagent/internal/agent/config"
	loggingpkg "github.com/drblury/checkagent/internal/agent/logging"
	"github.com/drblury/checkagent/internal/agent/pool"
	"github.com/drblury/checkagent/internal/agent/reporter"
	transportpkg "github.com/drblury/checkagent/transport"
)

const eventsHandlerName = "checkagent_events"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// Dependencies holds the collaborators an Agent needs. Engine is the only one
// a production deployment must supply; the rest default to the built-in
// implementations.
type Dependencies struct {
	// Engine backs the version-1 action set. Leave nil only when Registry is
	// supplied instead.
	Engine actions.Engine

	// Registry overrides the default action registry. When set, Engine is
	// ignored and the caller owns all registrations.
	Registry *actions.Registry

	// Reporter overrides the control-plane REST reporter, mainly for tests.
	Reporter pool.Reporter

	// Hooks are appended after the built-in logging and metrics hooks.
	Hooks pool.JobHooks

	// Middlewares are appended after the default middleware chain.
	Middlewares []MiddlewareRegistration
	// DisableDefaultMiddlewares skips registering the default chain when true.
	DisableDefaultMiddlewares bool

	// TransportRegistry overrides the default transport registry.
	TransportRegistry *transportpkg.Registry
}

// Agent consumes events from the queue, executes the matching actions under a
// bounded worker pool, and reports every job outcome to the control plane.
type Agent struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	orgID uuid.UUID

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	registry   *actions.Registry
	executor   *actions.Executor
	controller *pool.Controller
	deliveries *deliveryTracker

	metrics      *agentMetrics
	promRegistry *prometheus.Registry

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// New constructs an Agent for the supplied configuration. Configuration
// problems are startup failures and panic immediately; nothing is retried.
func New(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps Dependencies) *Agent {
	if conf == nil {
		panic("checkagent: config is required")
	}
	if log == nil {
		panic("checkagent: logger is required")
	}

	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		panic(fmt.Sprintf("checkagent: invalid config: %v", err))
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating agent",
		loggingpkg.LogFields{
			"pubsub_system": conf.GetPubSubSystem(),
			"config":        conf,
		})

	a := &Agent{
		Conf:         conf,
		Logger:       log,
		orgID:        uuid.MustParse(conf.OrganizationID),
		promRegistry: prometheus.NewRegistry(),
		deliveries:   newDeliveryTracker(conf.MaxRedeliveries),
	}

	transportRegistry := deps.TransportRegistry
	if transportRegistry == nil {
		transportRegistry = transportpkg.DefaultRegistry
	}
	transport, err := transportRegistry.Build(ctx, conf, wmLogger)
	if err != nil {
		panic(err)
	}
	a.publisher = transport.Publisher
	a.subscriber = transport.Subscriber

	a.registry = deps.Registry
	if a.registry == nil {
		a.registry = actions.NewRegistry()
		if deps.Engine != nil {
			if err := actions.RegisterDefaults(a.registry, deps.Engine); err != nil {
				panic(err)
			}
		}
	}

	a.executor = actions.NewExecutor(actions.ExecutorConfig{
		Registry:             a.registry,
		Timeout:              conf.JobTimeout,
		DefaultEngineVersion: conf.EngineMajorVersion,
		Logger:               log,
	})

	jobReporter := deps.Reporter
	if jobReporter == nil {
		client, err := reporter.New(reporter.Config{
			BaseURL:         conf.BaseURL,
			OrganizationID:  conf.OrganizationID,
			AccessToken:     conf.AccessToken,
			MaxRetries:      conf.ReportMaxRetries,
			InitialInterval: conf.ReportInitialInterval,
			MaxInterval:     conf.ReportMaxInterval,
			Logger:          log,
		})
		if err != nil {
			panic(err)
		}
		jobReporter = client
	}

	// The gauge closure runs at scrape time, after the controller exists.
	a.metrics = newAgentMetrics(a.promRegistry, func() float64 {
		return float64(a.controller.InFlight())
	})

	hooks := pool.LoggingHooks(log).
		Merge(a.metrics.hooks()).
		Merge(deps.Hooks)

	a.controller = pool.NewController(pool.ControllerConfig{
		Size:     conf.WorkerPoolSize,
		Executor: a.executor,
		Reporter: jobReporter,
		Hooks:    hooks,
		Logger:   log,
	})

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		panic(err)
	}
	a.router = router
	a.router.AddPlugin(plugin.SignalsHandler)

	a.registerConfiguredMiddlewares(deps)

	a.router.AddNoPublisherHandler(
		eventsHandlerName,
		conf.Queue,
		a.subscriber,
		a.handleMessage,
	)

	return a
}

// Run starts the agent and blocks until the context is cancelled or the router
// stops. Jobs admitted before shutdown run to completion, bounded only by the
// job timeout.
func (a *Agent) Run(ctx context.Context) error {
	a.startHTTPServers()

	err := routerRun(a.router, ctx)

	a.Logger.Info("Draining worker pool", loggingpkg.LogFields{
		"in_flight": a.controller.InFlight(),
	})
	a.controller.Wait()

	return err
}

// Close shuts the agent down. Safe to call multiple times; later calls return
// the first result.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if err := a.router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close router: %w", err))
		}
		if err := a.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		a.controller.Wait()
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// Running returns a channel that is closed once the router is up and
// consuming. Useful for tests that publish immediately after starting Run.
func (a *Agent) Running() chan struct{} {
	return a.router.Running()
}

// Registry exposes the action registry so callers can add actions for
// additional engine versions before Run.
func (a *Agent) Registry() *actions.Registry {
	return a.registry
}

// Stats returns a snapshot of the worker pool statistics.
func (a *Agent) Stats() pool.StatsSnapshot {
	return a.controller.Stats()
}

// Publisher exposes the transport publisher, mainly so tests using the
// in-memory channel transport can inject events.
func (a *Agent) Publisher() message.Publisher {
	return a.publisher
}

func (a *Agent) registerConfiguredMiddlewares(deps Dependencies) {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := a.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			panic(fmt.Sprintf("failed to register middleware %s: %v", name, err))
		}
	}
}

// RegisterHTTPHandler mounts a handler on the mux for the given port. Servers
// are started by Run.
func (a *Agent) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	a.httpServersMu.Lock()
	defer a.httpServersMu.Unlock()

	if a.httpServers == nil {
		a.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := a.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		a.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (a *Agent) startHTTPServers() {
	a.httpServersMu.Lock()
	defer a.httpServersMu.Unlock()

	for port, mux := range a.httpServers {
		addr := fmt.Sprintf(":%d", port)
		a.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				a.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
