package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/drblury/checkagent/internal/agent/actions"
	configpkg "github.com/drblury/checkagent/internal/agent/config"
	"github.com/drblury/checkagent/internal/agent/events"
	"github.com/drblury/checkagent/internal/agent/jsoncodec"
	"github.com/drblury/checkagent/internal/agent/logging"
	transportpkg "github.com/drblury/checkagent/transport"
	channelpkg "github.com/drblury/checkagent/transport/channel"
)

const testOrgID = "0ccac1ab-7870-4b08-a48d-6330c0ab43b7"

// stubEngine returns canned answers; a checkpoint named "flaky" fails with a
// retryable error to exercise the redelivery path.
type stubEngine struct {
	mu              sync.Mutex
	checkpointCalls int
	lastCheckpoint  string
}

func (e *stubEngine) RunCheckpoint(_ context.Context, payload events.RunCheckpointPayload, _ string) ([]actions.CreatedResource, error) {
	e.mu.Lock()
	e.checkpointCalls++
	e.lastCheckpoint = payload.CheckpointName
	e.mu.Unlock()

	if payload.CheckpointName == "flaky" {
		return nil, actions.Transient(errors.New("warehouse unreachable"))
	}
	return []actions.CreatedResource{{ResourceID: "res-1", Type: "SuiteValidationResult"}}, nil
}

func (e *stubEngine) DraftDatasourceConfig(context.Context, uuid.UUID) error {
	return nil
}

func (e *stubEngine) ListTableNames(context.Context, string) ([]string, error) {
	return []string{"orders"}, nil
}

func (e *stubEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpointCalls
}

// stubReporter collects report calls without touching the network.
type stubReporter struct {
	mu        sync.Mutex
	started   []string
	completed []completion
}

type completion struct {
	correlationID string
	result        *actions.ActionResult
	failure       *actions.Failure
}

func (r *stubReporter) ReportStarted(_ context.Context, job *actions.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, job.CorrelationID)
	return nil
}

func (r *stubReporter) ReportCompleted(_ context.Context, job *actions.Job, result *actions.ActionResult, failure *actions.Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, completion{correlationID: job.CorrelationID, result: result, failure: failure})
	return nil
}

func (r *stubReporter) completions() []completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]completion, len(r.completed))
	copy(out, r.completed)
	return out
}

func testConfig() *configpkg.Config {
	return &configpkg.Config{
		OrganizationID:  testOrgID,
		AccessToken:     "token",
		BaseURL:         "https://api.example.com",
		Queue:           "agent-jobs",
		PoisonQueue:     "agent-jobs.poison",
		PubSubSystem:    "channel",
		WorkerPoolSize:  2,
		JobTimeout:      5 * time.Second,
		MaxRedeliveries: 2,
	}
}

// startTestAgent builds an agent on the in-memory transport and runs it until
// the test ends.
func startTestAgent(t *testing.T, conf *configpkg.Config, engine actions.Engine, reporter *stubReporter) *Agent {
	t.Helper()

	registry := transportpkg.NewRegistry()
	registry.Register("channel", channelpkg.Build)

	a := New(conf, logging.Nop(), context.Background(), Dependencies{
		Engine:            engine,
		Reporter:          reporter,
		TransportRegistry: registry,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("agent did not stop")
		}
		_ = a.Close()
	})

	select {
	case <-a.Running():
	case <-time.After(10 * time.Second):
		t.Fatal("router never started")
	}
	return a
}

func publishEvent(t *testing.T, a *Agent, correlationID string, env events.Envelope) {
	t.Helper()
	payload, err := jsoncodec.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata[events.MetadataCorrelationID] = correlationID
	if err := a.Publisher().Publish(a.Conf.Queue, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAgentProcessesRegisteredEvent(t *testing.T) {
	engine := &stubEngine{}
	reporter := &stubReporter{}
	a := startTestAgent(t, testConfig(), engine, reporter)

	payload, _ := jsoncodec.Marshal(events.RunCheckpointPayload{CheckpointName: "nightly"})
	publishEvent(t, a, "corr-ok", events.Envelope{
		Type:               events.TypeRunCheckpoint,
		OrganizationID:     uuid.MustParse(testOrgID),
		EngineMajorVersion: "1",
		Payload:            payload,
	})

	waitFor(t, "completion report", func() bool { return len(reporter.completions()) >= 1 })

	if engine.calls() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.calls())
	}
	got := reporter.completions()[0]
	if got.correlationID != "corr-ok" {
		t.Errorf("correlation id = %q, want corr-ok", got.correlationID)
	}
	if got.failure != nil {
		t.Errorf("unexpected failure: %v", got.failure)
	}
	if got.result == nil || len(got.result.CreatedResources) != 1 {
		t.Errorf("result = %+v, want one created resource", got.result)
	}
}

func TestAgentReportsUnknownEventType(t *testing.T) {
	engine := &stubEngine{}
	reporter := &stubReporter{}
	a := startTestAgent(t, testConfig(), engine, reporter)

	publishEvent(t, a, "corr-unknown", events.Envelope{
		Type:           "event_from_the_future",
		OrganizationID: uuid.MustParse(testOrgID),
	})

	waitFor(t, "completion report", func() bool { return len(reporter.completions()) >= 1 })

	if engine.calls() != 0 {
		t.Errorf("engine calls = %d, want 0 for unknown events", engine.calls())
	}
	got := reporter.completions()[0]
	if got.failure != nil {
		t.Errorf("unknown events complete without failure, got %v", got.failure)
	}
	if got.result == nil || got.result.EventType != events.TypeUnknown {
		t.Errorf("result = %+v, want EventType %q", got.result, events.TypeUnknown)
	}
}

func TestAgentRejectsCrossOrganizationEvent(t *testing.T) {
	engine := &stubEngine{}
	reporter := &stubReporter{}
	a := startTestAgent(t, testConfig(), engine, reporter)

	poisoned := subscribePoison(t, a)

	payload, _ := jsoncodec.Marshal(events.RunCheckpointPayload{CheckpointName: "nightly"})
	publishEvent(t, a, "corr-foreign", events.Envelope{
		Type:           events.TypeRunCheckpoint,
		OrganizationID: uuid.New(),
		Payload:        payload,
	})

	waitFor(t, "poison queue message", func() bool { return poisoned.Load() >= 1 })

	if engine.calls() != 0 {
		t.Errorf("engine calls = %d, cross-organization events must never execute", engine.calls())
	}
	if len(reporter.completions()) != 0 {
		t.Errorf("cross-organization events must not be reported, got %+v", reporter.completions())
	}
}

func TestAgentPoisonsUndecodableMessage(t *testing.T) {
	engine := &stubEngine{}
	reporter := &stubReporter{}
	a := startTestAgent(t, testConfig(), engine, reporter)

	poisoned := subscribePoison(t, a)

	msg := message.NewMessage(watermill.NewUUID(), []byte("this is not json"))
	msg.Metadata[events.MetadataCorrelationID] = "corr-garbage"
	if err := a.Publisher().Publish(a.Conf.Queue, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "poison queue message", func() bool { return poisoned.Load() >= 1 })

	if engine.calls() != 0 {
		t.Errorf("engine calls = %d, want 0", engine.calls())
	}
}

func TestAgentPoisonsAfterRedeliveryCap(t *testing.T) {
	engine := &stubEngine{}
	reporter := &stubReporter{}
	conf := testConfig()
	conf.MaxRedeliveries = 2
	a := startTestAgent(t, conf, engine, reporter)

	poisoned := subscribePoison(t, a)

	payload, _ := jsoncodec.Marshal(events.RunCheckpointPayload{CheckpointName: "flaky"})
	publishEvent(t, a, "corr-flaky", events.Envelope{
		Type:               events.TypeRunCheckpoint,
		OrganizationID:     uuid.MustParse(testOrgID),
		EngineMajorVersion: "1",
		Payload:            payload,
	})

	// Each retryable failure nacks the message; the channel transport
	// redelivers until the tracker poisons it.
	waitFor(t, "poison queue message", func() bool { return poisoned.Load() >= 1 })

	if got := engine.calls(); got != conf.MaxRedeliveries {
		t.Errorf("engine calls = %d, want %d (one per allowed delivery)", got, conf.MaxRedeliveries)
	}

	completions := reporter.completions()
	if len(completions) != conf.MaxRedeliveries {
		t.Fatalf("completions = %d, want %d", len(completions), conf.MaxRedeliveries)
	}
	for _, c := range completions {
		if c.failure == nil || !c.failure.Retryable {
			t.Errorf("each attempt should report a retryable failure, got %+v", c.failure)
		}
	}
}

// slowEngine blocks in ListTableNames until the job context expires.
type slowEngine struct {
	stubEngine
}

func (e *slowEngine) ListTableNames(ctx context.Context, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAgentReportsTimeoutAsRetryableFailure(t *testing.T) {
	engine := &slowEngine{}
	reporter := &stubReporter{}
	conf := testConfig()
	conf.JobTimeout = 50 * time.Millisecond
	conf.MaxRedeliveries = 1
	a := startTestAgent(t, conf, engine, reporter)

	poisoned := subscribePoison(t, a)

	payload, _ := jsoncodec.Marshal(events.ListTableNamesPayload{DatasourceName: "warehouse"})
	publishEvent(t, a, "corr-slow", events.Envelope{
		Type:               events.TypeListTableNames,
		OrganizationID:     uuid.MustParse(testOrgID),
		EngineMajorVersion: "1",
		Payload:            payload,
	})

	// First delivery times out and nacks; the redelivery exceeds the cap.
	waitFor(t, "poison queue message", func() bool { return poisoned.Load() >= 1 })

	completions := reporter.completions()
	if len(completions) != 1 {
		t.Fatalf("completions = %d, want 1", len(completions))
	}
	failure := completions[0].failure
	if failure == nil || failure.Kind != actions.KindTimeout {
		t.Fatalf("failure = %+v, want kind %q", failure, actions.KindTimeout)
	}
	if !failure.Retryable {
		t.Error("timeouts should be retryable")
	}
}

func TestAgentCloseIsIdempotent(t *testing.T) {
	a := startTestAgent(t, testConfig(), &stubEngine{}, &stubReporter{})

	first := a.Close()
	second := a.Close()
	if !errors.Is(second, first) && second != first {
		t.Errorf("Close results differ: %v vs %v", first, second)
	}
}

// subscribePoison subscribes to the poison queue and counts arrivals. The
// channel transport only delivers to subscribers that exist at publish time,
// so tests subscribe before triggering the poison path.
func subscribePoison(t *testing.T, a *Agent) *atomic.Int64 {
	t.Helper()

	sub, ok := a.Publisher().(message.Subscriber)
	if !ok {
		t.Fatal("channel transport publisher should also subscribe")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	messages, err := sub.Subscribe(ctx, a.Conf.PoisonQueue)
	if err != nil {
		t.Fatalf("subscribe poison queue: %v", err)
	}

	var count atomic.Int64
	go func() {
		for msg := range messages {
			msg.Ack()
			count.Add(1)
		}
	}()
	return &count
}
