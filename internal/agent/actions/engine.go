package actions

import (
	"context"

	"github.com/google/uuid"

	"github.com/drblury/checkagent/internal/agent/events"
)

// Engine is the seam to the bundled data-validation engine. The agent never
// looks inside these calls; it only dispatches to them and reports their
// outcome. Implementations return *Failure values (see Transient, Validation)
// to control retry behaviour, or plain errors to be treated as internal.
type Engine interface {
	// RunCheckpoint executes a checkpoint and returns the control-plane
	// resources it produced.
	RunCheckpoint(ctx context.Context, payload events.RunCheckpointPayload, correlationID string) ([]CreatedResource, error)

	// DraftDatasourceConfig tests a draft datasource configuration.
	DraftDatasourceConfig(ctx context.Context, configID uuid.UUID) error

	// ListTableNames enumerates the tables reachable through a datasource.
	ListTableNames(ctx context.Context, datasourceName string) ([]string, error)
}

// RegisterDefaults registers the version-1 action set against the given
// engine. It is called once during orchestrator startup.
func RegisterDefaults(r *Registry, engine Engine) error {
	for eventType, factory := range map[string]Factory{
		events.TypeRunCheckpoint:          func() Action { return &runCheckpointAction{engine: engine} },
		events.TypeRunScheduledCheckpoint: func() Action { return &runScheduledCheckpointAction{engine: engine} },
		events.TypeDraftDatasourceConfig:  func() Action { return &draftDatasourceConfigAction{engine: engine} },
		events.TypeListTableNames:         func() Action { return &listTableNamesAction{engine: engine} },
	} {
		if err := r.Register("1", eventType, factory); err != nil {
			return err
		}
	}
	return nil
}

type runCheckpointAction struct {
	engine Engine
}

func (a *runCheckpointAction) Run(ctx context.Context, event *events.Envelope, correlationID string) (*ActionResult, error) {
	var payload events.RunCheckpointPayload
	if err := event.DecodePayload(&payload); err != nil {
		return nil, Validation("%v", err)
	}
	if payload.CheckpointName == "" {
		return nil, Validation("checkpoint_name is required to run a checkpoint")
	}
	resources, err := a.engine.RunCheckpoint(ctx, payload, correlationID)
	if err != nil {
		return nil, err
	}
	return &ActionResult{
		CorrelationID:    correlationID,
		EventType:        event.Type,
		CreatedResources: resources,
	}, nil
}

type runScheduledCheckpointAction struct {
	engine Engine
}

func (a *runScheduledCheckpointAction) Run(ctx context.Context, event *events.Envelope, correlationID string) (*ActionResult, error) {
	var payload events.RunScheduledCheckpointPayload
	if err := event.DecodePayload(&payload); err != nil {
		return nil, Validation("%v", err)
	}
	if payload.ScheduleID == uuid.Nil {
		return nil, Validation("schedule_id is required for a scheduled checkpoint")
	}
	if payload.CheckpointName == "" {
		return nil, Validation("checkpoint_name is required to run a checkpoint")
	}
	resources, err := a.engine.RunCheckpoint(ctx, payload.RunCheckpointPayload, correlationID)
	if err != nil {
		return nil, err
	}
	return &ActionResult{
		CorrelationID:    correlationID,
		EventType:        event.Type,
		CreatedResources: resources,
	}, nil
}

type draftDatasourceConfigAction struct {
	engine Engine
}

func (a *draftDatasourceConfigAction) Run(ctx context.Context, event *events.Envelope, correlationID string) (*ActionResult, error) {
	var payload events.DraftDatasourceConfigPayload
	if err := event.DecodePayload(&payload); err != nil {
		return nil, Validation("%v", err)
	}
	if payload.ConfigID == uuid.Nil {
		return nil, Validation("config_id is required to test a draft datasource config")
	}
	if err := a.engine.DraftDatasourceConfig(ctx, payload.ConfigID); err != nil {
		return nil, err
	}
	return &ActionResult{
		CorrelationID: correlationID,
		EventType:     event.Type,
	}, nil
}

type listTableNamesAction struct {
	engine Engine
}

func (a *listTableNamesAction) Run(ctx context.Context, event *events.Envelope, correlationID string) (*ActionResult, error) {
	var payload events.ListTableNamesPayload
	if err := event.DecodePayload(&payload); err != nil {
		return nil, Validation("%v", err)
	}
	if payload.DatasourceName == "" {
		return nil, Validation("datasource_name is required to list table names")
	}
	tables, err := a.engine.ListTableNames(ctx, payload.DatasourceName)
	if err != nil {
		return nil, err
	}
	return &ActionResult{
		CorrelationID: correlationID,
		EventType:     event.Type,
		Payload: map[string]any{
			"table_names": tables,
		},
	}, nil
}
