package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/orbsec/organization-service/pkg/events"
	"github.com/orbsec/organization-service/pkg/observability"
	"github.com/orbsec/organization-service/pkg/storage"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "ORGSVC_"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Events        EventsConfig
	Licensing     LicensingConfig
	Observability ObservabilityConfig

	// PolicyFile is an optional YAML file with resilience tunables. It is
	// watched and reloaded while the service runs.
	PolicyFile string `env:"POLICY_FILE"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	// RateLimit is requests per second across the API, 0 disables it
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"0"`
	RateBurst int     `env:"RATE_BURST" envDefault:"100"`

	// Health, metrics and debug endpoints (separate port for k8s probes)
	HealthPort string `env:"HEALTH_PORT" envDefault:"9090"`
}

// EventsConfig configures change event delivery
type EventsConfig struct {
	// RedisURL selects the Redis stream publisher; empty logs events instead
	RedisURL     string        `env:"REDIS_URL"`
	Stream       string        `env:"EVENT_STREAM" envDefault:"organization-changes"`
	StreamMaxLen int64         `env:"EVENT_STREAM_MAXLEN" envDefault:"100000"`
	Workers      int           `env:"EVENT_WORKERS" envDefault:"4"`
	QueueSize    int           `env:"EVENT_QUEUE_SIZE" envDefault:"256"`
	Timeout      time.Duration `env:"EVENT_TIMEOUT" envDefault:"10s"`
}

// LicensingConfig configures the licensing service client
type LicensingConfig struct {
	BaseURL string        `env:"LICENSING_URL" envDefault:"http://licensing-service:8080"`
	Timeout time.Duration `env:"LICENSING_TIMEOUT" envDefault:"5s"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	MetricsEnabled  bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsSchedule string `env:"METRICS_SCHEDULE" envDefault:"@every 15s"`

	OTelEnabled        bool          `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint       string        `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	OTelServiceName    string        `env:"OTEL_SERVICE_NAME" envDefault:"organization-service"`
	OTelServiceVersion string        `env:"OTEL_SERVICE_VERSION" envDefault:"1.0.0"`
	OTelInsecure       bool          `env:"OTEL_INSECURE" envDefault:"true"`
	OTelSampleRatio    float64       `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
	OTelExportInterval time.Duration `env:"OTEL_EXPORT_INTERVAL" envDefault:"10s"`
}

// Level parses LogLevel
func (o ObservabilityConfig) Level() observability.LogLevel {
	level, err := observability.ParseLevel(o.LogLevel)
	if err != nil {
		return observability.InfoLevel
	}
	return level
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
		ExportInterval: o.OTelExportInterval,
	}
}

// Dispatcher converts the settings for events.NewDispatcher
func (e EventsConfig) Dispatcher() events.DispatcherConfig {
	cfg := events.DefaultDispatcherConfig()
	cfg.Workers = e.Workers
	cfg.QueueSize = e.QueueSize
	cfg.Timeout = e.Timeout
	return cfg
}

// Load reads the configuration from the process environment
func Load() (*Config, error) {
	return load(env.Options{Prefix: EnvPrefix})
}

// LoadFrom reads the configuration from environ instead of the process
// environment. Keys carry the ORGSVC_ prefix.
func LoadFrom(environ map[string]string) (*Config, error) {
	return load(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{Storage: storage.DefaultConfig()}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres", "sqlite":
		if c.Storage.DSN == "" {
			return fmt.Errorf("store DSN is required for %s storage", c.Storage.Type)
		}
		if c.Storage.MaxConns <= 0 {
			return errors.New("store max connections must be positive")
		}
		if c.Storage.MinConns > c.Storage.MaxConns {
			return errors.New("store min connections cannot exceed max connections")
		}
	default:
		return fmt.Errorf("unknown storage type: %q", c.Storage.Type)
	}
	if c.Storage.CacheEnabled && c.Storage.CacheTTL <= 0 {
		return errors.New("cache TTL must be positive when the cache is enabled")
	}

	if c.Events.RedisURL != "" && c.Events.Stream == "" {
		return errors.New("event stream is required when redis is configured")
	}
	if c.Events.Workers <= 0 || c.Events.QueueSize <= 0 {
		return errors.New("event workers and queue size must be positive")
	}

	u, err := url.Parse(c.Licensing.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid licensing URL: %q", c.Licensing.BaseURL)
	}

	if _, err := observability.ParseLevel(c.Observability.LogLevel); err != nil {
		return err
	}
	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return errors.New("OTel endpoint is required when OTel is enabled")
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("OTel sample ratio must be within [0, 1], got %v", r)
	}

	return nil
}
