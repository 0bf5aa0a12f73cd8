package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/drblury/checkagent/internal/agent/events"
)

func noopFactory() Factory {
	return func() Action {
		return ActionFunc(func(_ context.Context, _ *events.Envelope, correlationID string) (*ActionResult, error) {
			return &ActionResult{CorrelationID: correlationID}, nil
		})
	}
}

func TestRegistryResolveExactMatch(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("1", events.TypeRunCheckpoint, noopFactory()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	factory := r.Resolve("1", events.TypeRunCheckpoint)
	result, err := factory().Run(context.Background(), &events.Envelope{Type: events.TypeRunCheckpoint}, "corr-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EventType == events.TypeUnknown {
		t.Error("exact match should not resolve to the fallback action")
	}
}

func TestRegistryResolveFallback(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("1", events.TypeRunCheckpoint, noopFactory()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name      string
		version   string
		eventType string
	}{
		{"unknown event type", "1", "event_from_the_future"},
		{"unknown version", "2", events.TypeRunCheckpoint},
		{"both unknown", "9", "whatever"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := r.Resolve(tt.version, tt.eventType)
			result, err := factory().Run(context.Background(), &events.Envelope{Type: tt.eventType}, "corr-2")
			if err != nil {
				t.Fatalf("fallback action should never fail: %v", err)
			}
			if result.EventType != events.TypeUnknown {
				t.Errorf("EventType = %q, want %q", result.EventType, events.TypeUnknown)
			}
			if got := result.Payload["received_event_type"]; got != tt.eventType {
				t.Errorf("received_event_type = %v, want %q", got, tt.eventType)
			}
		})
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("1", events.TypeRunCheckpoint, noopFactory()); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	err := r.Register("1", events.TypeRunCheckpoint, noopFactory())
	var dup *AlreadyRegisteredError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *AlreadyRegisteredError, got %v", err)
	}
	if dup.Version != "1" || dup.EventType != events.TypeRunCheckpoint {
		t.Errorf("error carries %s/%s, want 1/%s", dup.Version, dup.EventType, events.TypeRunCheckpoint)
	}
}

func TestRegistrySameTypeAcrossVersions(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("1", events.TypeRunCheckpoint, noopFactory()); err != nil {
		t.Fatalf("Register v1: %v", err)
	}
	if err := r.Register("2", events.TypeRunCheckpoint, noopFactory()); err != nil {
		t.Errorf("same event type under a different version must be allowed: %v", err)
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("", events.TypeRunCheckpoint, noopFactory()); err == nil {
		t.Error("expected error for empty version")
	}
	if err := r.Register("1", "", noopFactory()); err == nil {
		t.Error("expected error for empty event type")
	}
	if err := r.Register("1", events.TypeRunCheckpoint, nil); err == nil {
		t.Error("expected error for nil factory")
	}
}
