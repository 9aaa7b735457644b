package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewChannelConfigDefaults(t *testing.T) {
	cc := NewChannelConfig("twilio", "sms")

	assert.Equal(t, "twilio", cc.Provider)
	assert.Equal(t, "sms", cc.ChannelType)
	assert.NotNil(t, cc.Settings)
	assert.GreaterOrEqual(t, cc.Dispatch.GetWorkers(), 1)
	assert.False(t, cc.Dispatch.IsRateLimited())
	assert.True(t, cc.Observability.EnableMetrics)
	assert.Equal(t, "info", cc.Observability.LogLevel)
	assert.InDelta(t, 0.1, cc.Observability.TracingSampleRate, 0.001)

	require.NoError(t, cc.Validate())
}

func TestChannelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ChannelConfig)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*ChannelConfig) {},
		},
		{
			name:    "missing provider",
			mutate:  func(cc *ChannelConfig) { cc.Provider = "" },
			wantErr: "provider is required",
		},
		{
			name:    "missing channel type",
			mutate:  func(cc *ChannelConfig) { cc.ChannelType = "" },
			wantErr: "channel_type is required",
		},
		{
			name:    "negative workers",
			mutate:  func(cc *ChannelConfig) { cc.Dispatch.Workers = -1 },
			wantErr: "dispatch.workers cannot be negative",
		},
		{
			name:    "negative rate limit",
			mutate:  func(cc *ChannelConfig) { cc.Dispatch.RateLimitPerSec = -5 },
			wantErr: "dispatch.rate_limit_per_sec cannot be negative",
		},
		{
			name:    "sample rate above one",
			mutate:  func(cc *ChannelConfig) { cc.Observability.TracingSampleRate = 1.5 },
			wantErr: "tracing_sample_rate must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := NewChannelConfig("twilio", "sms")
			tt.mutate(cc)

			err := cc.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestLoadChannelConfig(t *testing.T) {
	t.Setenv("HERALD_TEST_SID", "AC123")
	os.Unsetenv("HERALD_TEST_REGION")

	path := writeConfigFile(t, `
provider: twilio
channel_type: sms
version: 1.0.0
settings:
  AccountSid: ${HERALD_TEST_SID}
  Region: ${HERALD_TEST_REGION:-us1}
  MaxRetries: 5
dispatch:
  workers: 8
  rate_limit_per_sec: 50
  burst: 10
observability:
  enable_tracing: true
  tracing_sample_rate: 0.5
`)

	cc, err := LoadChannelConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "twilio", cc.Provider)
	assert.Equal(t, "sms", cc.ChannelType)
	assert.Equal(t, "1.0.0", cc.Version)
	assert.Equal(t, "AC123", cc.Settings["AccountSid"])
	assert.Equal(t, "us1", cc.Settings["Region"])
	assert.Equal(t, 5, cc.Settings["MaxRetries"])
	assert.Equal(t, 8, cc.Dispatch.Workers)
	assert.Equal(t, 50, cc.Dispatch.RateLimitPerSec)
	assert.Equal(t, 10, cc.Dispatch.GetBurst())
	assert.True(t, cc.Observability.EnableTracing)
	assert.InDelta(t, 0.5, cc.Observability.TracingSampleRate, 0.001)

	// Unspecified sections keep their defaults.
	assert.True(t, cc.Observability.EnableMetrics)
	assert.Equal(t, "info", cc.Observability.LogLevel)
}

func TestLoadChannelConfigInvalid(t *testing.T) {
	path := writeConfigFile(t, `
provider: twilio
dispatch:
  workers: 4
`)

	_, err := LoadChannelConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_type is required")
}

func TestLoadConfigFillsChannelNames(t *testing.T) {
	path := writeConfigFile(t, `
name: notifier
environment: staging
channels:
  orders-sms:
    provider: twilio
    channel_type: sms
  alerts-push:
    provider: firebase
    channel_type: push
    name: custom-name
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "notifier", cfg.Name)
	assert.Equal(t, "staging", cfg.Environment)
	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, "orders-sms", cfg.Channels["orders-sms"].Name)
	assert.Equal(t, "custom-name", cfg.Channels["alerts-push"].Name)
}

func TestLoadConfigReportsInvalidChannel(t *testing.T) {
	path := writeConfigFile(t, `
channels:
  broken:
    provider: twilio
    channel_type: sms
    dispatch:
      workers: -2
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel 'broken' is invalid")
	assert.Contains(t, err.Error(), "dispatch.workers cannot be negative")
}

func TestLoadMissingFile(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &Config{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "provider: [unclosed")

	err := Load(path, &ChannelConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestSaveRoundTrip(t *testing.T) {
	cc := NewChannelConfig("twilio", "sms")
	cc.Name = "orders-sms"
	cc.Settings["AccountSid"] = "AC123"
	cc.Dispatch.RateLimitPerSec = 25

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, Save(path, cc))

	loaded, err := LoadChannelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cc.Name, loaded.Name)
	assert.Equal(t, cc.Provider, loaded.Provider)
	assert.Equal(t, "AC123", loaded.Settings["AccountSid"])
	assert.Equal(t, 25, loaded.Dispatch.RateLimitPerSec)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("HERALD_SET", "value")
	os.Unsetenv("HERALD_UNSET")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "set variable", in: "key: ${HERALD_SET}", want: "key: value"},
		{name: "unset variable", in: "key: ${HERALD_UNSET}", want: "key: "},
		{name: "unset with default", in: "key: ${HERALD_UNSET:-fallback}", want: "key: fallback"},
		{name: "set ignores default", in: "key: ${HERALD_SET:-fallback}", want: "key: value"},
		{name: "multiple", in: "${HERALD_SET}/${HERALD_UNSET:-x}", want: "value/x"},
		{name: "no variables", in: "key: plain", want: "key: plain"},
		{name: "unterminated", in: "key: ${HERALD_SET", want: "key: ${HERALD_SET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.in))
		})
	}
}
