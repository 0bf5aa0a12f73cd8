package actions

import "fmt"

// AlreadyRegisteredError is returned when two actions claim the same
// (engine version, event type) pair. Duplicate registration would silently
// shadow a handler, so it is rejected at startup rather than at dispatch.
type AlreadyRegisteredError struct {
	Version   string
	EventType string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("event type %s already registered for engine version %s", e.EventType, e.Version)
}

// Registry maps (engine major version, event type) to an action factory. It
// is populated during startup and read-only afterwards, so lookups need no
// locking. Dispatch keys on the version explicitly because the agent binary
// must support side-by-side engine versions.
type Registry struct {
	entries  map[string]map[string]Factory
	fallback Factory
}

// NewRegistry returns an empty registry whose misses resolve to the fallback
// action.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]map[string]Factory),
		fallback: newFallbackAction,
	}
}

// Register adds a factory for the given dispatch key. Registering the same
// pair twice returns an *AlreadyRegisteredError.
func (r *Registry) Register(version, eventType string, factory Factory) error {
	if version == "" || eventType == "" {
		return fmt.Errorf("registration requires a version and an event type")
	}
	if factory == nil {
		return fmt.Errorf("registration for %s/%s requires a factory", version, eventType)
	}
	byType, ok := r.entries[version]
	if !ok {
		byType = make(map[string]Factory)
		r.entries[version] = byType
	}
	if _, exists := byType[eventType]; exists {
		return &AlreadyRegisteredError{Version: version, EventType: eventType}
	}
	byType[eventType] = factory
	return nil
}

// Resolve returns the factory registered for the exact (version, event type)
// pair, or the fallback factory when no entry exists. An agent running an
// older engine never fails on an event type introduced by a newer one: it
// no-ops and reports the event as unknown.
func (r *Registry) Resolve(version, eventType string) Factory {
	if byType, ok := r.entries[version]; ok {
		if factory, ok := byType[eventType]; ok {
			return factory
		}
	}
	return r.fallback
}
