// Package reporter delivers job status to the control-plane API. Delivery is
// best-effort with bounded retry: an undeliverable status is logged and
// dropped, never allowed to block the run loop or re-execute a job.
package reporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/drblury/checkagent/internal/agent/actions"
	"github.com/drblury/checkagent/internal/agent/events"
	"github.com/drblury/checkagent/internal/agent/jsoncodec"
	"github.com/drblury/checkagent/internal/agent/logging"
)

// Version identifies the agent build in the User-Agent header.
const Version = "0.1.0"

const (
	headerAgentJobID = "Agent-Job-Id"
	userAgentProduct = "checkagent"

	statusStarted   = "started"
	statusCompleted = "completed"

	processedByAgent = "agent"

	// unknownEventHint is reported for events this build has no action for.
	unknownEventHint = "The version of the agent you are using does not support this event type. Please upgrade to the most recent release."
)

// JobStarted is reported before an action runs.
type JobStarted struct {
	Status string `json:"status"`
}

// JobCompleted is reported once per job after its action finished.
type JobCompleted struct {
	Status           string                    `json:"status"`
	Success          bool                      `json:"success"`
	CreatedResources []actions.CreatedResource `json:"created_resources"`
	ErrorStackTrace  string                    `json:"error_stack_trace,omitempty"`
	ErrorCode        string                    `json:"error_code,omitempty"`
	ProcessedBy      string                    `json:"processed_by,omitempty"`
}

type statusRequest struct {
	Data any `json:"data"`
}

type scheduledJobRequest struct {
	Data scheduledJob `json:"data"`
}

type scheduledJob struct {
	CorrelationID string           `json:"correlation_id"`
	Event         *events.Envelope `json:"event"`
}

// Config configures a new Client.
type Config struct {
	BaseURL        string
	OrganizationID string
	AccessToken    string

	// Retry tuning for transient delivery failures.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
	Logger     logging.ServiceLogger
}

// Client reports job status over the control-plane REST API.
type Client struct {
	baseURL    string
	orgID      string
	token      string
	maxRetries int
	initial    time.Duration
	max        time.Duration
	http       *http.Client
	logger     logging.ServiceLogger
}

// New validates the config and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reporter: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("reporter: invalid base URL: %w", err)
	}
	if cfg.OrganizationID == "" {
		return nil, fmt.Errorf("reporter: organization id is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("reporter: access token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	initial := cfg.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	maxWait := cfg.MaxInterval
	if maxWait <= 0 {
		maxWait = 16 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		orgID:      cfg.OrganizationID,
		token:      cfg.AccessToken,
		maxRetries: maxRetries,
		initial:    initial,
		max:        maxWait,
		http:       httpClient,
		logger:     logger,
	}, nil
}

// ReportStarted records that a job began executing. Scheduled events have no
// pre-created control-plane job record, so the agent creates one; for all
// other events it patches the existing record.
func (c *Client) ReportStarted(ctx context.Context, job *actions.Job) error {
	if job.Event.Scheduled() {
		body, err := jsoncodec.Marshal(scheduledJobRequest{Data: scheduledJob{
			CorrelationID: job.CorrelationID,
			Event:         job.Event,
		}})
		if err != nil {
			return fmt.Errorf("reporter: encode scheduled job: %w", err)
		}
		return c.send(ctx, http.MethodPost, c.jobsURL(), body, job.CorrelationID)
	}

	body, err := jsoncodec.Marshal(statusRequest{Data: JobStarted{Status: statusStarted}})
	if err != nil {
		return fmt.Errorf("reporter: encode job status: %w", err)
	}
	return c.send(ctx, http.MethodPatch, c.jobURL(job.CorrelationID), body, job.CorrelationID)
}

// ReportCompleted translates the execution outcome into a completed status
// and delivers it.
func (c *Client) ReportCompleted(ctx context.Context, job *actions.Job, result *actions.ActionResult, failure *actions.Failure) error {
	status := buildCompletedStatus(result, failure)
	body, err := jsoncodec.Marshal(statusRequest{Data: status})
	if err != nil {
		return fmt.Errorf("reporter: encode job status: %w", err)
	}
	return c.send(ctx, http.MethodPatch, c.jobURL(job.CorrelationID), body, job.CorrelationID)
}

func buildCompletedStatus(result *actions.ActionResult, failure *actions.Failure) JobCompleted {
	status := JobCompleted{
		Status:      statusCompleted,
		ProcessedBy: processedByAgent,
	}
	switch {
	case failure != nil:
		status.ErrorStackTrace = failure.Message
		status.ErrorCode = string(failure.Kind)
	case result != nil && result.EventType == events.TypeUnknown:
		status.ErrorStackTrace = unknownEventHint
		status.ErrorCode = events.TypeUnknown
	default:
		status.Success = true
		if result != nil {
			status.CreatedResources = result.CreatedResources
		}
	}
	if status.CreatedResources == nil {
		status.CreatedResources = []actions.CreatedResource{}
	}
	return status
}

func (c *Client) jobsURL() string {
	return fmt.Sprintf("%s/organizations/%s/agent-jobs", c.baseURL, c.orgID)
}

func (c *Client) jobURL(correlationID string) string {
	return fmt.Sprintf("%s/%s", c.jobsURL(), correlationID)
}

// send delivers one request with exponential backoff. Server-side and
// network errors are retried up to the configured attempt budget; client
// errors are permanent.
func (c *Client) send(ctx context.Context, method, target string, body []byte, correlationID string) error {
	operation := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("User-Agent", userAgentProduct+"/"+Version)
		req.Header.Set(headerAgentJobID, correlationID)

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("control plane returned %s", resp.Status)
		case resp.StatusCode >= 400:
			return struct{}{}, backoff.Permanent(fmt.Errorf("control plane rejected request: %s", resp.Status))
		}
		return struct{}{}, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.initial
	expo.MaxInterval = c.max

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(c.maxRetries)),
	)
	if err != nil {
		c.logger.Error("Dropping undeliverable job status", err, logging.LogFields{
			"correlation_id": correlationID,
			"target":         target,
			"method":         method,
		})
		return fmt.Errorf("reporter: deliver status for %s: %w", correlationID, err)
	}
	return nil
}
