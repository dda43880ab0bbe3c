package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/burstci/internal/cache"
	"github.com/vk/burstci/internal/model"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Paths name the definition: .hcl files or directories, or one YAML or
	// JSON file.
	Paths []string

	// Event source overrides.
	Event        string
	Ref          string
	BaseRef      string
	EventPayload string

	Workers        int
	NeedsPolicy    string
	DefaultTimeout time.Duration
	WorkDir        string

	// CacheLocation selects the blob store, e.g. "sqlite:///tmp/c.db".
	CacheLocation string
	NoCache       bool
	Compression   string

	// SecretsFile is an age-encrypted KEY=VALUE file. Empty reads deploy
	// secrets from the environment.
	SecretsFile     string
	SecretsIdentity string

	ReportPath string
	Color      bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

// NewConfig validates cfg and returns a copy ready for use.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("a definition path is required")
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, errors.New("invalid log-format: must be 'text' or 'json'")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	if cfg.Workers < 0 {
		return nil, fmt.Errorf("invalid workers %d: must not be negative", cfg.Workers)
	}
	if cfg.DefaultTimeout < 0 {
		return nil, fmt.Errorf("invalid timeout %s: must not be negative", cfg.DefaultTimeout)
	}
	if cfg.NeedsPolicy != "" {
		if _, err := model.ParseNeedsPolicy(cfg.NeedsPolicy); err != nil {
			return nil, err
		}
	}
	if _, err := cache.ParseCompression(cfg.Compression); err != nil {
		return nil, err
	}
	if (cfg.SecretsFile == "") != (cfg.SecretsIdentity == "") {
		return nil, errors.New("secrets-file and secrets-identity must be given together")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck-port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
