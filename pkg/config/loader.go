package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration file, merges it over the built-in defaults,
// applies environment overrides, validates, and builds the backend registry.
//
// A missing file is not an error: the defaults plus environment are used and
// the backend table is empty (the router then always returns DefaultBackend).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		fileCfg := &Config{}
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
		}
		// File values win over defaults; absent sections keep defaults.
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging configuration: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("Configuration file not found, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	parseDurations(cfg)
	applyEnvOverrides(cfg)

	registry, err := NewBackendRegistry(cfg.Backends)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	cfg.BackendRegistry = registry

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	slog.Info("Configuration loaded",
		"path", path,
		"backends", registry.Len(),
		"data_dir", cfg.DataDir)
	return cfg, nil
}

// parseDurations resolves the raw duration strings from YAML onto the
// runtime fields. Invalid values are logged and the default is kept.
func parseDurations(cfg *Config) {
	setDuration := func(raw, field string, dst *time.Duration) {
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			slog.Warn("Invalid duration in config, using default",
				"field", field, "value", raw, "default", *dst)
			return
		}
		*dst = d
	}

	setDuration(cfg.LLM.RawRequestTimeout, "llm.request_timeout", &cfg.LLM.RequestTimeout)
	setDuration(cfg.Cache.RawSweepInterval, "cache.sweep_interval", &cfg.Cache.SweepInterval)
	setDuration(cfg.RateLimit.RawWindow, "rate_limit.window", &cfg.RateLimit.Window)
	setDuration(cfg.Pipeline.RawBaseDelay, "pipeline.base_delay", &cfg.Pipeline.BaseDelay)
	setDuration(cfg.Moderation.RawCacheTTL, "moderation.cache_ttl", &cfg.Moderation.CacheTTL)
}

// applyEnvOverrides layers well-known environment variables over the config.
// Environment always wins; malformed values are logged and ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REMOTE_CACHE_URL"); v != "" {
		cfg.Cache.RemoteURL = v
	}
	if v := os.Getenv("REMOTE_CACHE_TOKEN"); v != "" {
		cfg.Cache.RemoteToken = v
	}
	if v := os.Getenv("RATE_LIMIT_MAX_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.MaxRequests = n
		} else {
			slog.Warn("Ignoring invalid RATE_LIMIT_MAX_REQUESTS", "value", v)
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.Window = time.Duration(n) * time.Second
		} else {
			slog.Warn("Ignoring invalid RATE_LIMIT_WINDOW_SECONDS", "value", v)
		}
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Moderation.AlertWebhookURL = v
	}
}
