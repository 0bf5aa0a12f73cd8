package actions

import (
	"time"

	"github.com/drblury/checkagent/internal/agent/events"
)

// Job is the runtime unit of work wrapping one decoded event. It is created
// when a delivery decodes successfully and destroyed once its outcome has
// been reported and the message acknowledged or rejected. A Job is owned by
// exactly one execution slot for its whole lifetime.
type Job struct {
	Event         *events.Envelope
	CorrelationID string
	ReceivedAt    time.Time
}

// NewJob wraps a decoded envelope with its correlation metadata.
func NewJob(event *events.Envelope, correlationID string) *Job {
	return &Job{
		Event:         event,
		CorrelationID: correlationID,
		ReceivedAt:    time.Now().UTC(),
	}
}
