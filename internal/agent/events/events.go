// Package events defines the inbound queue message envelope and the typed
// event payloads the agent understands. Events are immutable once decoded.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/drblury/checkagent/internal/agent/jsoncodec"
)

// Event type discriminators carried in the envelope. The set mirrors the
// control plane's published event catalog for engine major version 1.
const (
	TypeRunCheckpoint          = "run_checkpoint_request"
	TypeRunScheduledCheckpoint = "run_scheduled_checkpoint.received"
	TypeDraftDatasourceConfig  = "test_datasource_config"
	TypeListTableNames         = "list_table_names_request.received"

	// TypeUnknown marks results produced by the fallback action for event
	// types this agent build does not recognise.
	TypeUnknown = "unknown_event"
)

// MetadataCorrelationID is the message metadata key carrying the broker's
// correlation identifier for a delivery.
const MetadataCorrelationID = "correlation_id"

// Envelope is the top-level structure of every inbound queue message. The
// type-specific payload stays raw until the resolved action decodes it.
type Envelope struct {
	Type               string          `json:"event_type"`
	OrganizationID     uuid.UUID       `json:"organization_id"`
	EngineMajorVersion string          `json:"engine_major_version,omitempty"`
	Payload            json.RawMessage `json:"payload,omitempty"`
}

// Scheduled reports whether the event originated from the control-plane
// scheduler. Scheduled events have no pre-created control-plane job record;
// the agent creates one before execution.
func (e *Envelope) Scheduled() bool {
	return e.Type == TypeRunScheduledCheckpoint
}

// DecodePayload unmarshals the type-specific payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	if err := jsoncodec.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// RunCheckpointPayload asks the engine to run a named checkpoint.
type RunCheckpointPayload struct {
	CheckpointID                uuid.UUID           `json:"checkpoint_id"`
	CheckpointName              string              `json:"checkpoint_name"`
	DatasourceNamesToAssetNames map[string][]string `json:"datasource_names_to_asset_names,omitempty"`
	SplitterOptions             map[string]any      `json:"splitter_options,omitempty"`
}

// RunScheduledCheckpointPayload is the scheduler-issued variant of
// RunCheckpointPayload.
type RunScheduledCheckpointPayload struct {
	RunCheckpointPayload
	ScheduleID uuid.UUID `json:"schedule_id"`
}

// DraftDatasourceConfigPayload asks the engine to test a draft datasource
// configuration stored in the control plane.
type DraftDatasourceConfigPayload struct {
	ConfigID uuid.UUID `json:"config_id"`
}

// ListTableNamesPayload asks the engine to enumerate tables for a datasource.
type ListTableNamesPayload struct {
	DatasourceName string `json:"datasource_name"`
}

// Decode parses a raw queue message into an Envelope. Any message that cannot
// be decoded into a well-formed envelope is poison: it can never be processed
// by this or any future agent build and must not be redelivered.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := jsoncodec.Unmarshal(data, &env); err != nil {
		return nil, &PoisonError{Reason: ReasonMalformed, Err: err}
	}
	if env.Type == "" {
		return nil, &PoisonError{Reason: ReasonMalformed, Err: errors.New("envelope is missing event_type")}
	}
	if env.OrganizationID == uuid.Nil {
		return nil, &PoisonError{Reason: ReasonMalformed, Err: errors.New("envelope is missing organization_id")}
	}
	return &env, nil
}
