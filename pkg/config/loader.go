package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/heraldhq/herald/pkg/errors"
)

// Load reads a YAML file into config after substituting environment
// variables.
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller and validated
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}

	return nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file")
	}

	return nil
}

// LoadConfig loads a top-level Config document, fills channel names
// from their map keys, and validates the result.
func LoadConfig(filePath string) (*Config, error) {
	cfg := DefaultConfig()
	if err := Load(filePath, cfg); err != nil {
		return nil, err
	}

	for name, ch := range cfg.Channels {
		if ch.Name == "" {
			ch.Name = name
			cfg.Channels[name] = ch
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadChannelConfig loads a document holding a single ChannelConfig
func LoadChannelConfig(filePath string) (*ChannelConfig, error) {
	cc := NewChannelConfig("", "")
	if err := Load(filePath, cc); err != nil {
		return nil, err
	}
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return cc, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} with
// environment variable values. An unset or empty variable without a
// default expands to the empty string.
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := content[start+2 : end]
		varName, fallback, hasFallback := strings.Cut(expr, ":-")

		value := os.Getenv(varName)
		if value == "" && hasFallback {
			value = fallback
		}
		content = content[:start] + value + content[end+1:]
	}
	return content
}
