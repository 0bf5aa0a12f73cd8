package pool

import (
	"time"

	"github.com/drblury/checkagent/internal/agent/actions"
	"github.com/drblury/checkagent/internal/agent/logging"
)

// JobHooks defines optional callbacks around the job lifecycle. Nil hooks are
// simply not called.
type JobHooks struct {
	// OnJobStart runs after a job has been admitted into the pool, before
	// execution begins.
	OnJobStart func(job *actions.Job)

	// OnJobDone runs after a job completed successfully and its result was
	// handed to the reporter.
	OnJobDone func(job *actions.Job, duration time.Duration)

	// OnJobError runs after a job failed. The failure is already normalized.
	OnJobError func(job *actions.Job, duration time.Duration, failure *actions.Failure)
}

// Merge combines two JobHooks into one that calls both, h's hooks first.
func (h JobHooks) Merge(other JobHooks) JobHooks {
	merged := JobHooks{
		OnJobStart: h.OnJobStart,
		OnJobDone:  h.OnJobDone,
		OnJobError: h.OnJobError,
	}
	if other.OnJobStart != nil {
		if prev := merged.OnJobStart; prev != nil {
			merged.OnJobStart = func(job *actions.Job) { prev(job); other.OnJobStart(job) }
		} else {
			merged.OnJobStart = other.OnJobStart
		}
	}
	if other.OnJobDone != nil {
		if prev := merged.OnJobDone; prev != nil {
			merged.OnJobDone = func(job *actions.Job, d time.Duration) { prev(job, d); other.OnJobDone(job, d) }
		} else {
			merged.OnJobDone = other.OnJobDone
		}
	}
	if other.OnJobError != nil {
		if prev := merged.OnJobError; prev != nil {
			merged.OnJobError = func(job *actions.Job, d time.Duration, f *actions.Failure) {
				prev(job, d, f)
				other.OnJobError(job, d, f)
			}
		} else {
			merged.OnJobError = other.OnJobError
		}
	}
	return merged
}

func (h JobHooks) start(job *actions.Job) {
	if h.OnJobStart != nil {
		h.OnJobStart(job)
	}
}

func (h JobHooks) done(job *actions.Job, duration time.Duration) {
	if h.OnJobDone != nil {
		h.OnJobDone(job, duration)
	}
}

func (h JobHooks) errored(job *actions.Job, duration time.Duration, failure *actions.Failure) {
	if h.OnJobError != nil {
		h.OnJobError(job, duration, failure)
	}
}

// LoggingHooks returns pre-built hooks that log job lifecycle events.
func LoggingHooks(logger logging.ServiceLogger) JobHooks {
	return JobHooks{
		OnJobStart: func(job *actions.Job) {
			logger.Info("Starting job", logging.LogFields{
				"event_type":     job.Event.Type,
				"correlation_id": job.CorrelationID,
			})
		},
		OnJobDone: func(job *actions.Job, duration time.Duration) {
			logger.Info("Completed job", logging.LogFields{
				"event_type":     job.Event.Type,
				"correlation_id": job.CorrelationID,
				"duration_ms":    duration.Milliseconds(),
			})
		},
		OnJobError: func(job *actions.Job, duration time.Duration, failure *actions.Failure) {
			logger.Error("Job failed", failure, logging.LogFields{
				"event_type":     job.Event.Type,
				"correlation_id": job.CorrelationID,
				"duration_ms":    duration.Milliseconds(),
				"failure_kind":   string(failure.Kind),
				"retryable":      failure.Retryable,
			})
		},
	}
}

// MetricsHooks returns pre-built hooks that feed job counters.
func MetricsHooks(onStart func(), onDone, onError func(kind string)) JobHooks {
	return JobHooks{
		OnJobStart: func(*actions.Job) {
			if onStart != nil {
				onStart()
			}
		},
		OnJobDone: func(*actions.Job, time.Duration) {
			if onDone != nil {
				onDone("")
			}
		},
		OnJobError: func(_ *actions.Job, _ time.Duration, failure *actions.Failure) {
			if onError != nil {
				onError(string(failure.Kind))
			}
		},
	}
}
