// Package pool bounds job concurrency and isolates action execution from the
// message-receive path. Slot acquisition is the backpressure boundary: when
// every slot is busy, submission blocks the delivery goroutine and the broker
// stops prefetching once its unacked window fills.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drblury/checkagent/internal/agent/actions"
	"github.com/drblury/checkagent/internal/agent/logging"
)

// Outcome tells the subscriber what to do with the delivery after the job
// finished.
type Outcome int

const (
	// OutcomeAck removes the message from the queue: the job succeeded, hit
	// a non-retryable failure, or resolved to the fallback action.
	OutcomeAck Outcome = iota
	// OutcomeRequeue rejects the message for broker redelivery after a
	// retryable failure.
	OutcomeRequeue
)

// Reporter delivers job status to the control plane. Delivery failures are
// the reporter's problem: they never change an ack decision and never cause a
// job to re-execute.
type Reporter interface {
	ReportStarted(ctx context.Context, job *actions.Job) error
	ReportCompleted(ctx context.Context, job *actions.Job, result *actions.ActionResult, failure *actions.Failure) error
}

// ControllerConfig configures a new Controller.
type ControllerConfig struct {
	// Size is the number of execution slots. Values below one fall back to a
	// single slot.
	Size     int
	Executor *actions.Executor
	Reporter Reporter
	Hooks    JobHooks
	Logger   logging.ServiceLogger
}

// Controller owns every in-flight job from admission to outcome.
type Controller struct {
	size     int
	slots    chan struct{}
	inFlight atomic.Int64
	wg       sync.WaitGroup

	executor *actions.Executor
	reporter Reporter
	hooks    JobHooks
	logger   logging.ServiceLogger
	stats    *Stats
}

// NewController builds a Controller with the given slot count.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Executor == nil {
		panic("checkagent: controller requires an executor")
	}
	if cfg.Reporter == nil {
		panic("checkagent: controller requires a reporter")
	}
	size := cfg.Size
	if size < 1 {
		size = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Controller{
		size:     size,
		slots:    make(chan struct{}, size),
		executor: cfg.Executor,
		reporter: cfg.Reporter,
		hooks:    cfg.Hooks,
		logger:   logger,
		stats:    newStats(),
	}
}

// Size returns the configured slot count.
func (c *Controller) Size() int { return c.size }

// InFlight returns the number of jobs currently holding a slot.
func (c *Controller) InFlight() int64 { return c.inFlight.Load() }

// Stats returns a point-in-time snapshot of job statistics.
func (c *Controller) Stats() StatsSnapshot {
	return c.stats.Snapshot(c.inFlight.Load())
}

// Wait blocks until every admitted job has finished. Used during draining.
func (c *Controller) Wait() { c.wg.Wait() }

// Process admits the job, executes its action, reports the outcome, and maps
// it onto an ack/requeue decision. It blocks while the pool is saturated;
// cancellation of ctx while waiting for admission requeues the message
// untouched. Once admitted, the job runs to completion even through shutdown,
// bounded only by the executor's timeout.
func (c *Controller) Process(ctx context.Context, job *actions.Job) Outcome {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return OutcomeRequeue
	}
	c.wg.Add(1)
	c.inFlight.Add(1)
	c.stats.admit()
	defer func() {
		<-c.slots
		c.inFlight.Add(-1)
		c.wg.Done()
	}()

	c.hooks.start(job)
	start := time.Now()

	// Detach from the delivery context so shutdown does not abort a running
	// job, while keeping trace/log values attached.
	runCtx := context.WithoutCancel(ctx)

	if err := c.reporter.ReportStarted(runCtx, job); err != nil {
		c.logger.Error("Failed to report job start", err, logging.LogFields{
			"correlation_id": job.CorrelationID,
			"event_type":     job.Event.Type,
		})
	}

	result, err := c.executor.Execute(runCtx, job)
	duration := time.Since(start)

	var failure *actions.Failure
	if err != nil {
		// The executor normalizes everything; keep a guard for safety.
		if !errors.As(err, &failure) {
			failure = actions.Normalize(err)
		}
	}
	c.stats.finish(duration, failure != nil)

	if reportErr := c.reporter.ReportCompleted(runCtx, job, result, failure); reportErr != nil {
		c.logger.Error("Failed to report job completion", reportErr, logging.LogFields{
			"correlation_id": job.CorrelationID,
			"event_type":     job.Event.Type,
		})
	}

	if failure != nil {
		c.hooks.errored(job, duration, failure)
		if failure.Retryable {
			return OutcomeRequeue
		}
		return OutcomeAck
	}

	c.hooks.done(job, duration)
	return OutcomeAck
}
