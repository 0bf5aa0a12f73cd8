package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables recognised by FromEnv. Secrets are typically injected
// through the environment rather than written into the config file.
const (
	EnvOrganizationID = "CHECKAGENT_ORGANIZATION_ID"
	EnvAccessToken    = "CHECKAGENT_ACCESS_TOKEN"
	EnvBaseURL        = "CHECKAGENT_BASE_URL"
	EnvQueue          = "CHECKAGENT_QUEUE"
	EnvPubSubSystem   = "CHECKAGENT_PUBSUB_SYSTEM"
	EnvRabbitMQURL    = "CHECKAGENT_RABBITMQ_URL"
	EnvNATSURL        = "CHECKAGENT_NATS_URL"
	EnvWorkerPoolSize = "CHECKAGENT_WORKER_POOL_SIZE"
	EnvJobTimeout     = "CHECKAGENT_JOB_TIMEOUT"
)

// fileConfig mirrors Config for TOML decoding; durations are expressed as
// strings like "30m" and converted after decoding.
type fileConfig struct {
	OrganizationID        string `toml:"organization_id"`
	AccessToken           string `toml:"access_token"`
	BaseURL               string `toml:"base_url"`
	Queue                 string `toml:"queue"`
	PoisonQueue           string `toml:"poison_queue"`
	PubSubSystem          string `toml:"pubsub_system"`
	RabbitMQURL           string `toml:"rabbitmq_url"`
	NATSURL               string `toml:"nats_url"`
	EngineMajorVersion    string `toml:"engine_major_version"`
	WorkerPoolSize        int    `toml:"worker_pool_size"`
	JobTimeout            string `toml:"job_timeout"`
	MaxRedeliveries       int    `toml:"max_redeliveries"`
	ReportMaxRetries      int    `toml:"report_max_retries"`
	ReportInitialInterval string `toml:"report_initial_interval"`
	ReportMaxInterval     string `toml:"report_max_interval"`
	MetricsEnabled        bool   `toml:"metrics_enabled"`
	MetricsPort           int    `toml:"metrics_port"`
}

// LoadFile reads a TOML configuration file. The result is not validated;
// callers apply FromEnv overrides first and then Validate.
func LoadFile(path string) (*Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg := &Config{
		OrganizationID:     fc.OrganizationID,
		AccessToken:        fc.AccessToken,
		BaseURL:            fc.BaseURL,
		Queue:              fc.Queue,
		PoisonQueue:        fc.PoisonQueue,
		PubSubSystem:       fc.PubSubSystem,
		RabbitMQURL:        fc.RabbitMQURL,
		NATSURL:            fc.NATSURL,
		EngineMajorVersion: fc.EngineMajorVersion,
		WorkerPoolSize:     fc.WorkerPoolSize,
		MaxRedeliveries:    fc.MaxRedeliveries,
		ReportMaxRetries:   fc.ReportMaxRetries,
		MetricsEnabled:     fc.MetricsEnabled,
		MetricsPort:        fc.MetricsPort,
	}

	for _, d := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{fc.JobTimeout, "job_timeout", &cfg.JobTimeout},
		{fc.ReportInitialInterval, "report_initial_interval", &cfg.ReportInitialInterval},
		{fc.ReportMaxInterval, "report_max_interval", &cfg.ReportMaxInterval},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// FromEnv overlays environment variables onto the config. Unset variables
// leave the existing values untouched.
func (c *Config) FromEnv() error {
	setString := func(env string, dst *string) {
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}
	setString(EnvOrganizationID, &c.OrganizationID)
	setString(EnvAccessToken, &c.AccessToken)
	setString(EnvBaseURL, &c.BaseURL)
	setString(EnvQueue, &c.Queue)
	setString(EnvPubSubSystem, &c.PubSubSystem)
	setString(EnvRabbitMQURL, &c.RabbitMQURL)
	setString(EnvNATSURL, &c.NATSURL)

	if v, ok := os.LookupEnv(EnvWorkerPoolSize); ok {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkerPoolSize, err)
		}
		c.WorkerPoolSize = size
	}
	if v, ok := os.LookupEnv(EnvJobTimeout); ok {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvJobTimeout, err)
		}
		c.JobTimeout = timeout
	}
	return nil
}
