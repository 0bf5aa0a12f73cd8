// Package actions contains the versioned action registry and the executor
// that turns decoded events into reported results. The business logic behind
// each action lives on the other side of the Engine seam.
package actions

import (
	"context"

	"github.com/drblury/checkagent/internal/agent/events"
)

// Action handles the business logic for one (engine version, event type)
// pair. Implementations must honour ctx cancellation: the executor's timeout
// is cooperative, not preemptive.
type Action interface {
	Run(ctx context.Context, event *events.Envelope, correlationID string) (*ActionResult, error)
}

// Factory produces a fresh Action instance per job.
type Factory func() Action

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc func(ctx context.Context, event *events.Envelope, correlationID string) (*ActionResult, error)

func (f ActionFunc) Run(ctx context.Context, event *events.Envelope, correlationID string) (*ActionResult, error) {
	return f(ctx, event, correlationID)
}

// CreatedResource identifies a control-plane resource an action produced.
type CreatedResource struct {
	ResourceID string `json:"resource_id"`
	Type       string `json:"type"`
}

// ActionResult is the successful outcome of executing one job. It is produced
// once by the executor and consumed once by the reporter.
type ActionResult struct {
	CorrelationID    string            `json:"correlation_id"`
	EventType        string            `json:"event_type"`
	CreatedResources []CreatedResource `json:"created_resources,omitempty"`
	Payload          map[string]any    `json:"payload,omitempty"`
}
