package checkagent

import (
	agentpkg "github.com/drblury/checkagent/internal/agent"
	actionspkg "github.com/drblury/checkagent/internal/agent/actions"
	configpkg "github.com/drblury/checkagent/internal/agent/config"
	eventspkg "github.com/drblury/checkagent/internal/agent/events"
	loggingpkg "github.com/drblury/checkagent/internal/agent/logging"
	poolpkg "github.com/drblury/checkagent/internal/agent/pool"
	reporterpkg "github.com/drblury/checkagent/internal/agent/reporter"
	transportpkg "github.com/drblury/checkagent/transport"
)

type (
	Config       = configpkg.Config
	Agent        = agentpkg.Agent
	Dependencies = agentpkg.Dependencies

	MiddlewareBuilder      = agentpkg.MiddlewareBuilder
	MiddlewareRegistration = agentpkg.MiddlewareRegistration

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Event envelope and typed payloads
	Envelope                      = eventspkg.Envelope
	PoisonError                   = eventspkg.PoisonError
	PoisonReason                  = eventspkg.PoisonReason
	RunCheckpointPayload          = eventspkg.RunCheckpointPayload
	RunScheduledCheckpointPayload = eventspkg.RunScheduledCheckpointPayload
	DraftDatasourceConfigPayload  = eventspkg.DraftDatasourceConfigPayload
	ListTableNamesPayload         = eventspkg.ListTableNamesPayload

	// Actions and execution
	Action          = actionspkg.Action
	ActionFunc      = actionspkg.ActionFunc
	ActionFactory   = actionspkg.Factory
	ActionResult    = actionspkg.ActionResult
	ActionRegistry  = actionspkg.Registry
	CreatedResource = actionspkg.CreatedResource
	Engine          = actionspkg.Engine
	Failure         = actionspkg.Failure
	FailureKind     = actionspkg.FailureKind
	Job             = actionspkg.Job
	Executor        = actionspkg.Executor
	ExecutorConfig  = actionspkg.ExecutorConfig

	// Worker pool
	JobHooks      = poolpkg.JobHooks
	Outcome       = poolpkg.Outcome
	Reporter      = poolpkg.Reporter
	StatsSnapshot = poolpkg.StatsSnapshot

	// Status reporting
	ReporterClient = reporterpkg.Client
	ReporterConfig = reporterpkg.Config
	JobStarted     = reporterpkg.JobStarted
	JobCompleted   = reporterpkg.JobCompleted

	// Transports
	Transport         = transportpkg.Transport
	TransportBuilder  = transportpkg.Builder
	TransportConfig   = transportpkg.Config
	TransportRegistry = transportpkg.Registry
)

// Event type discriminators.
const (
	TypeRunCheckpoint          = eventspkg.TypeRunCheckpoint
	TypeRunScheduledCheckpoint = eventspkg.TypeRunScheduledCheckpoint
	TypeDraftDatasourceConfig  = eventspkg.TypeDraftDatasourceConfig
	TypeListTableNames         = eventspkg.TypeListTableNames
	TypeUnknown                = eventspkg.TypeUnknown
)

// Failure kinds.
const (
	KindValidation = actionspkg.KindValidation
	KindTransient  = actionspkg.KindTransient
	KindTimeout    = actionspkg.KindTimeout
	KindCanceled   = actionspkg.KindCanceled
	KindInternal   = actionspkg.KindInternal
)

// Outcomes.
const (
	OutcomeAck     = poolpkg.OutcomeAck
	OutcomeRequeue = poolpkg.OutcomeRequeue
)

var (
	New        = agentpkg.New
	LoadConfig = configpkg.LoadFile

	NewRegistry      = actionspkg.NewRegistry
	RegisterDefaults = actionspkg.RegisterDefaults
	NewExecutor      = actionspkg.NewExecutor

	NewReporter = reporterpkg.New

	DefaultMiddlewares      = agentpkg.DefaultMiddlewares
	CorrelationIDMiddleware = agentpkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = agentpkg.LogMessagesMiddleware
	TracerMiddleware        = agentpkg.TracerMiddleware
	MetricsMiddleware       = agentpkg.MetricsMiddleware
	PoisonQueueMiddleware   = agentpkg.PoisonQueueMiddleware
	RecovererMiddleware     = agentpkg.RecovererMiddleware

	LoggingHooks = poolpkg.LoggingHooks
	MetricsHooks = poolpkg.MetricsHooks

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	RegisterTransport = transportpkg.Register
)
