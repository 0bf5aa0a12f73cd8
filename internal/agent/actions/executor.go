package actions

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/checkagent/internal/agent/logging"
)

const tracerName = "checkagent-executor"

// ExecutorConfig configures a new Executor.
type ExecutorConfig struct {
	Registry *Registry
	// Timeout is the per-job wall-clock budget. Zero disables the deadline.
	Timeout time.Duration
	// DefaultEngineVersion is used as the dispatch version for events that do
	// not declare one.
	DefaultEngineVersion string
	Logger               logging.ServiceLogger
}

// Executor resolves an action for a job and runs it under the configured
// timeout. It holds no state between calls.
type Executor struct {
	registry       *Registry
	timeout        time.Duration
	defaultVersion string
	logger         logging.ServiceLogger
	tracer         trace.Tracer
}

// NewExecutor builds an Executor for the supplied registry.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Registry == nil {
		panic("checkagent: executor requires a registry")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Executor{
		registry:       cfg.Registry,
		timeout:        cfg.Timeout,
		defaultVersion: cfg.DefaultEngineVersion,
		logger:         logger,
		tracer:         otel.Tracer(tracerName),
	}
}

type runOutcome struct {
	result *ActionResult
	err    error
}

// Execute resolves the job's action and runs it. Every returned error is a
// normalized *Failure. Exceeding the timeout yields a retryable timeout
// failure; the running action is signalled through ctx but not preempted.
func (e *Executor) Execute(ctx context.Context, job *Job) (*ActionResult, error) {
	version := job.Event.EngineMajorVersion
	if version == "" {
		version = e.defaultVersion
	}
	action := e.registry.Resolve(version, job.Event.Type)()

	ctx, span := e.tracer.Start(ctx, "ExecuteAction", trace.WithAttributes(
		attribute.String("event.type", job.Event.Type),
		attribute.String("event.engine_version", version),
		attribute.String("job.correlation_id", job.CorrelationID),
	))
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	outcomeCh := make(chan runOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomeCh <- runOutcome{err: Internal("action panic: %v", r)}
			}
		}()
		result, err := action.Run(ctx, job.Event, job.CorrelationID)
		outcomeCh <- runOutcome{result: result, err: Normalize(err)}
	}()

	select {
	case outcome := <-outcomeCh:
		if outcome.err != nil {
			span.SetStatus(codes.Error, outcome.err.Error())
			return nil, outcome.err
		}
		span.SetStatus(codes.Ok, "")
		return outcome.result, nil
	case <-ctx.Done():
		failure := Normalize(ctx.Err())
		span.SetStatus(codes.Error, failure.Error())
		e.logger.Error("Action exceeded its deadline", failure, logging.LogFields{
			"event_type":     job.Event.Type,
			"correlation_id": job.CorrelationID,
			"timeout":        fmt.Sprint(e.timeout),
		})
		return nil, failure
	}
}
