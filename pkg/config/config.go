package config

import (
	"runtime"
	"sort"

	"github.com/heraldhq/herald/pkg/errors"
)

// ChannelConfig configures a single channel connector instance.
// Connectors resolve their channel definition from the registry using
// the identity fields, then feed Settings into a schema-bound store.
type ChannelConfig struct {
	// Name identifies the connector instance in logs and metrics.
	// When loaded from a Config document it defaults to the channel key.
	Name string `yaml:"name" json:"name"`

	// Provider and ChannelType select the channel definition in the
	// registry (e.g. "twilio" / "sms").
	Provider    string `yaml:"provider" json:"provider"`
	ChannelType string `yaml:"channel_type" json:"channel_type"`

	// Version pins a schema version. Empty selects the latest
	// registered version.
	Version string `yaml:"version" json:"version"`

	// Settings carry parameter and authentication field values for the
	// schema-bound settings store. Values are validated against the
	// channel schema, not here.
	Settings map[string]interface{} `yaml:"settings" json:"settings"`

	// Dispatch tunes batch send fan-out
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// DispatchConfig contains batch fan-out settings.
// These bound concurrency and request rate against the provider.
type DispatchConfig struct {
	// Workers defines the number of concurrent send workers
	Workers int `yaml:"workers" json:"workers"`
	// RateLimitPerSec limits sends per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// Burst sets the rate limiter burst size
	Burst int `yaml:"burst" json:"burst"`
}

// ObservabilityConfig contains monitoring settings for one connector.
type ObservabilityConfig struct {
	// EnableMetrics activates Prometheus collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableTracing activates span emission
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// Config is the top-level Herald configuration document.
type Config struct {
	// Name identifies the host application
	Name string `yaml:"name" json:"name"`
	// Environment tags logs and traces (development, staging, production)
	Environment string `yaml:"environment" json:"environment"`
	// Channels maps instance names to their channel configurations
	Channels map[string]ChannelConfig `yaml:"channels" json:"channels"`
}

// NewChannelConfig creates a ChannelConfig with sensible defaults.
// Specific channels override these as needed before Validate.
func NewChannelConfig(provider, channelType string) *ChannelConfig {
	return &ChannelConfig{
		Provider:    provider,
		ChannelType: channelType,
		Settings:    make(map[string]interface{}),
		Dispatch: DispatchConfig{
			Workers:         runtime.NumCPU(),
			RateLimitPerSec: 0,
			Burst:           1,
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     true,
			EnableTracing:     false,
			LogLevel:          "info",
			TracingSampleRate: 0.1,
		},
	}
}

// DefaultConfig returns an empty top-level document with defaults
func DefaultConfig() *Config {
	return &Config{
		Name:        "herald",
		Environment: "development",
		Channels:    make(map[string]ChannelConfig),
	}
}

// Validate checks the channel configuration for correctness.
// Settings content is not checked here; the channel schema owns that.
func (cc *ChannelConfig) Validate() error {
	if cc.Provider == "" {
		return errors.New(errors.ErrorTypeConfig, "provider is required")
	}
	if cc.ChannelType == "" {
		return errors.New(errors.ErrorTypeConfig, "channel_type is required")
	}
	if cc.Dispatch.Workers < 0 {
		return errors.New(errors.ErrorTypeConfig, "dispatch.workers cannot be negative")
	}
	if cc.Dispatch.RateLimitPerSec < 0 {
		return errors.New(errors.ErrorTypeConfig, "dispatch.rate_limit_per_sec cannot be negative")
	}
	if cc.Dispatch.Burst < 0 {
		return errors.New(errors.ErrorTypeConfig, "dispatch.burst cannot be negative")
	}
	if rate := cc.Observability.TracingSampleRate; rate < 0 || rate > 1 {
		return errors.New(errors.ErrorTypeConfig, "observability.tracing_sample_rate must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks every channel in the document
func (c *Config) Validate() error {
	names := make([]string, 0, len(c.Channels))
	for name := range c.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ch := c.Channels[name]
		if err := ch.Validate(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "channel '"+name+"' is invalid")
		}
	}
	return nil
}

// GetWorkers returns the worker count, ensuring it is at least 1
func (d *DispatchConfig) GetWorkers() int {
	if d.Workers <= 0 {
		return runtime.NumCPU()
	}
	return d.Workers
}

// IsRateLimited returns true if rate limiting is enabled
func (d *DispatchConfig) IsRateLimited() bool {
	return d.RateLimitPerSec > 0
}

// GetBurst returns the limiter burst size, ensuring it is at least 1
func (d *DispatchConfig) GetBurst() int {
	if d.Burst <= 0 {
		return 1
	}
	return d.Burst
}
