package agent

import (
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/checkagent/internal/agent/actions"
	"github.com/drblury/checkagent/internal/agent/events"
	"github.com/drblury/checkagent/internal/agent/logging"
	"github.com/drblury/checkagent/internal/agent/pool"
)

// deliveryTrackerMaxKeys bounds the tracker's memory. When the map grows past
// this, it is cleared wholesale; losing counts for stale correlation ids only
// delays poisoning a looping message, it never drops a live one.
const deliveryTrackerMaxKeys = 100_000

// deliveryTracker counts how often each correlation id has been seen. Brokers
// differ in whether they expose a redelivery count, so the agent keeps its own.
type deliveryTracker struct {
	mu   sync.Mutex
	max  int
	seen map[string]int
}

func newDeliveryTracker(max int) *deliveryTracker {
	return &deliveryTracker{
		max:  max,
		seen: make(map[string]int),
	}
}

// observe records a delivery and reports whether the cap is now exhausted.
// A cap of zero disables tracking.
func (t *deliveryTracker) observe(correlationID string) (count int, exhausted bool) {
	if t.max <= 0 {
		return 0, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.seen) >= deliveryTrackerMaxKeys {
		t.seen = make(map[string]int)
	}

	t.seen[correlationID]++
	count = t.seen[correlationID]
	return count, count > t.max
}

// forget drops the count for a finished delivery so a later event reusing the
// correlation id starts fresh.
func (t *deliveryTracker) forget(correlationID string) {
	if t.max <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, correlationID)
}

// handleMessage is the router handler for the event queue. Returning nil acks
// the delivery; returning an error nacks it for broker redelivery, unless the
// poison middleware intercepts a *events.PoisonError first.
func (a *Agent) handleMessage(msg *message.Message) error {
	correlationID := msg.Metadata[events.MetadataCorrelationID]

	count, exhausted := a.deliveries.observe(correlationID)
	if exhausted {
		a.Logger.Error("Redelivery cap exhausted, poisoning message", nil, logging.LogFields{
			"correlation_id": correlationID,
			"deliveries":     count,
			"max":            a.Conf.MaxRedeliveries,
		})
		return &events.PoisonError{
			Reason: events.ReasonRedeliveryExhausted,
			Err:    fmt.Errorf("delivered %d times, cap is %d", count, a.Conf.MaxRedeliveries),
		}
	}

	event, err := events.Decode(msg.Payload)
	if err != nil {
		a.Logger.Error("Discarding undecodable message", err, logging.LogFields{
			"correlation_id": correlationID,
			"message_uuid":   msg.UUID,
		})
		return err
	}

	if event.OrganizationID != a.orgID {
		// A cross-organization event reaching this queue means a routing or
		// credential problem upstream. Never execute it.
		err := &events.PoisonError{
			Reason: events.ReasonOrganizationMismatch,
			Err:    fmt.Errorf("event for organization %s received by agent for %s", event.OrganizationID, a.orgID),
		}
		a.Logger.Error("SECURITY: rejecting event for another organization", err, logging.LogFields{
			"correlation_id":        correlationID,
			"event_type":            event.Type,
			"event_organization_id": event.OrganizationID.String(),
			"agent_organization_id": a.orgID.String(),
		})
		return err
	}

	job := actions.NewJob(event, correlationID)
	outcome := a.controller.Process(msg.Context(), job)
	if outcome == pool.OutcomeRequeue {
		return fmt.Errorf("job %s requeued for retry", correlationID)
	}

	a.deliveries.forget(correlationID)
	return nil
}
