package config

// Configuration loading and validation for plfscan.

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RafaelBenildoMafra/Tia-Parser/internal/errors"
)

// Config controls the extraction pipeline's tunables: timeouts, the
// reference domain tag, and the output file name, rather than feature
// toggles.
type Config struct {
	// OutputFileName is written into the input file's directory.
	OutputFileName string `yaml:"output_file_name"`

	// DomainTag is prepended (no separator) to every emitted reference address.
	DomainTag string `yaml:"domain_tag"`

	// RegexTimeout bounds a single scan (10s-5m is a reasonable range for
	// containers in the wild). A scan that exceeds this reports RegexTimeout
	// and the containing pass moves on to its next match.
	RegexTimeout time.Duration `yaml:"regex_timeout"`

	// ReferenceMaxDepth bounds recursive PlcItem reference expansion
	// (default 32).
	ReferenceMaxDepth int `yaml:"reference_max_depth"`

	// LogLevel is one of silent, error, warn, info, verbose, debug.
	LogLevel string `yaml:"log_level"`

	// LogFile, if set, receives every log line that LogLevel lets through.
	LogFile string `yaml:"log_file,omitempty"`
}

// CreateDefaultConfig returns the built-in defaults.
func CreateDefaultConfig() *Config {
	return &Config{
		OutputFileName:    "export.txt",
		DomainTag:         "8A0E",
		RegexTimeout:      10 * time.Second,
		ReferenceMaxDepth: 32,
		LogLevel:          "info",
	}
}

// WriteDefaultConfig writes the default configuration to path as YAML.
func WriteDefaultConfig(path string) error {
	cfg := CreateDefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadConfig loads a configuration from a YAML file. If the file doesn't
// exist and autoCreate is true, a default config file is written and then
// read back.
func LoadConfig(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && autoCreate {
			if err := WriteDefaultConfig(path); err != nil {
				return nil, fmt.Errorf("create default config: %w", err)
			}
			data, err = os.ReadFile(path)
			if err != nil {
				return nil, errors.WrapConfigError(fmt.Errorf("read created config file: %w", err), path)
			}
		} else {
			return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
		}
	}

	cfg := CreateDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, errors.WrapConfigError(err, path)
	}

	return cfg, nil
}

// ValidateConfig checks and normalizes a Config.
func ValidateConfig(cfg *Config) error {
	if cfg.OutputFileName == "" {
		cfg.OutputFileName = "export.txt"
	}
	if cfg.DomainTag == "" {
		cfg.DomainTag = "8A0E"
	}
	if cfg.RegexTimeout <= 0 {
		cfg.RegexTimeout = 10 * time.Second
	}
	if cfg.RegexTimeout < 10*time.Second || cfg.RegexTimeout > 5*time.Minute {
		return fmt.Errorf("regex_timeout must be between 10s and 5m, got %s", cfg.RegexTimeout)
	}
	if cfg.ReferenceMaxDepth <= 0 {
		cfg.ReferenceMaxDepth = 32
	}
	switch cfg.LogLevel {
	case "", "silent", "error", "warn", "info", "verbose", "debug":
	default:
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return nil
}
