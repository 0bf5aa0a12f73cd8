package events

import "fmt"

// PoisonReason classifies why a message was removed from circulation.
type PoisonReason string

const (
	// ReasonMalformed marks messages whose payload cannot be decoded into a
	// well-formed envelope.
	ReasonMalformed PoisonReason = "malformed"
	// ReasonOrganizationMismatch marks events addressed to a different
	// organization than the one this agent serves.
	ReasonOrganizationMismatch PoisonReason = "organization_mismatch"
	// ReasonRedeliveryExhausted marks messages redelivered more often than
	// the configured cap.
	ReasonRedeliveryExhausted PoisonReason = "redelivery_exhausted"
)

// PoisonError wraps messages that must be rejected without redelivery. The
// subscriber forwards them to the poison queue and acknowledges the original
// so the broker never loops on them.
type PoisonError struct {
	Reason PoisonReason
	Err    error
}

func (e *PoisonError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("poison message (%s)", e.Reason)
	}
	return fmt.Sprintf("poison message (%s): %v", e.Reason, e.Err)
}

func (e *PoisonError) Unwrap() error { return e.Err }
