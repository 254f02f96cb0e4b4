package resilience

import (
	"fmt"
	"time"
)

// Well-known policy names used by the organization service
const (
	PolicyStoreRead     = "store-read"
	PolicyStoreWrite    = "store-write"
	PolicyRemoteLicense = "remote-license"
	PolicyEventPublish  = "event-publish"
)

// Config holds the tunables of one policy
type Config struct {
	// Bulkhead
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`

	// Retry
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" json:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	Jitter            float64       `yaml:"jitter" json:"jitter"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout" json:"attempt_timeout"`

	// Circuit breaker
	FailureRateThreshold float64       `yaml:"failure_rate_threshold" json:"failure_rate_threshold"`
	MinimumCalls         int           `yaml:"minimum_calls" json:"minimum_calls"`
	WindowSize           int           `yaml:"window_size" json:"window_size"`
	OpenTimeout          time.Duration `yaml:"open_timeout" json:"open_timeout"`
	HalfOpenMaxCalls     int           `yaml:"half_open_max_calls" json:"half_open_max_calls"`
}

// DefaultConfig returns the configuration applied to any policy that does
// not override a value
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:        25,
		MaxAttempts:          3,
		InitialBackoff:       200 * time.Millisecond,
		MaxBackoff:           2 * time.Second,
		BackoffMultiplier:    2.0,
		Jitter:               0,
		AttemptTimeout:       5 * time.Second,
		FailureRateThreshold: 0.5,
		MinimumCalls:         10,
		WindowSize:           20,
		OpenTimeout:          30 * time.Second,
		HalfOpenMaxCalls:     1,
	}
}

// DefaultPolicies returns the built-in per call-site configuration
func DefaultPolicies() map[string]Config {
	storeRead := DefaultConfig()

	storeWrite := DefaultConfig()
	storeWrite.MaxConcurrent = 10

	remote := DefaultConfig()
	remote.MaxConcurrent = 10
	remote.AttemptTimeout = 3 * time.Second

	publish := DefaultConfig()
	publish.MaxConcurrent = 5
	publish.MaxAttempts = 2
	publish.AttemptTimeout = 2 * time.Second

	return map[string]Config{
		PolicyStoreRead:     storeRead,
		PolicyStoreWrite:    storeWrite,
		PolicyRemoteLicense: remote,
		PolicyEventPublish:  publish,
	}
}

// WithDefaults fills zero values from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BackoffMultiplier < 1.0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = d.Jitter
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		c.FailureRateThreshold = d.FailureRateThreshold
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MinimumCalls <= 0 {
		c.MinimumCalls = d.MinimumCalls
	}
	if c.MinimumCalls > c.WindowSize {
		c.MinimumCalls = c.WindowSize
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	return c
}

// Validate rejects configurations that cannot be normalized
func (c Config) Validate() error {
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	if c.FailureRateThreshold < 0 || c.FailureRateThreshold > 1 {
		return fmt.Errorf("failure_rate_threshold must be within [0, 1], got %v", c.FailureRateThreshold)
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("jitter must be within [0, 1), got %v", c.Jitter)
	}
	return nil
}
