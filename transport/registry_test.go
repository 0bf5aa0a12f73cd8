package transport

import (
	"context"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type stubConfig struct {
	system string
}

func (c *stubConfig) GetPubSubSystem() string { return c.system }
func (c *stubConfig) GetRabbitMQURL() string  { return "" }
func (c *stubConfig) GetNATSURL() string      { return "" }
func (c *stubConfig) GetPrefetchCount() int   { return 1 }

func stubBuilder(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
	return Transport{Publisher: pubSub, Subscriber: pubSub}, nil
}

func TestRegistryBuildRegisteredTransport(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", stubBuilder)

	transport, err := r.Build(context.Background(), &stubConfig{system: "stub"}, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if transport.Publisher == nil || transport.Subscriber == nil {
		t.Error("transport should have a publisher and subscriber")
	}
}

func TestRegistryBuildIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", stubBuilder)

	if _, err := r.Build(context.Background(), &stubConfig{system: "STUB"}, watermill.NopLogger{}); err != nil {
		t.Errorf("Build with upper-case name: %v", err)
	}
}

func TestRegistryBuildEmptyDefaultsToChannel(t *testing.T) {
	r := NewRegistry()
	r.Register("channel", stubBuilder)

	if _, err := r.Build(context.Background(), &stubConfig{}, watermill.NopLogger{}); err != nil {
		t.Errorf("empty PubSubSystem should default to channel: %v", err)
	}
}

func TestRegistryBuildUnknownTransport(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", stubBuilder)

	_, err := r.Build(context.Background(), &stubConfig{system: "carrier-pigeon"}, watermill.NopLogger{})
	if err == nil {
		t.Fatal("expected error for unknown transport")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error should name the unknown transport, got %v", err)
	}
	if !strings.Contains(err.Error(), "stub") {
		t.Errorf("error should list registered transports, got %v", err)
	}
}

func TestRegistryBuildNilConfig(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Build(context.Background(), nil, watermill.NopLogger{}); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestRegistryHasAndNames(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", stubBuilder)

	if !r.Has("stub") {
		t.Error("Has(stub) = false, want true")
	}
	if r.Has("other") {
		t.Error("Has(other) = true, want false")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "stub" {
		t.Errorf("Names() = %v, want [stub]", names)
	}
}
