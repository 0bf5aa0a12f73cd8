package actions

import (
	"context"

	"github.com/drblury/checkagent/internal/agent/events"
)

// fallbackAction is resolved for every (version, event type) pair without a
// registered action. It succeeds trivially so the message is acknowledged,
// but tags the result as unknown so the control plane can tell the operator
// the agent build is out of date.
type fallbackAction struct{}

func newFallbackAction() Action { return fallbackAction{} }

func (fallbackAction) Run(_ context.Context, event *events.Envelope, correlationID string) (*ActionResult, error) {
	return &ActionResult{
		CorrelationID: correlationID,
		EventType:     events.TypeUnknown,
		Payload: map[string]any{
			"received_event_type": event.Type,
		},
	}, nil
}
