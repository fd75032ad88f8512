package config

import "time"

// Config is the umbrella configuration object returned by Load() and used
// throughout the application.
type Config struct {
	configPath string // Configuration file path (for reference)

	// DataDir is the working directory for persisted state files
	// (.model-telemetry.json, .routing-history.json, .extraction-state.json).
	DataDir string `yaml:"data_dir"`

	// DefaultBackend is returned by the router when the backend table is empty.
	DefaultBackend string `yaml:"default_backend"`

	// Backends is the static backend descriptor table.
	Backends []BackendDescriptor `yaml:"backends"`

	// Section configs. Pointers so a merge can distinguish "absent" from zero.
	LLM        *LLMConfig        `yaml:"llm"`
	Cache      *CacheConfig      `yaml:"cache"`
	RateLimit  *RateLimitConfig  `yaml:"rate_limit"`
	Pipeline   *PipelineConfig   `yaml:"pipeline"`
	Moderation *ModerationConfig `yaml:"moderation"`

	// Registry built from Backends during Load.
	BackendRegistry *BackendRegistry `yaml:"-"`
}

// LLMConfig configures the reference HTTP backend adapter.
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible endpoint root.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in config files.
	APIKeyEnv string `yaml:"api_key_env"`

	// RequestTimeout is the hard cap on a single backend call when the
	// request carries no max-latency constraint of its own.
	// Set from RawRequestTimeout ("30s") during Load.
	RequestTimeout time.Duration `yaml:"-"`

	RawRequestTimeout string `yaml:"request_timeout"`
}

// CacheConfig configures the cache adapter.
type CacheConfig struct {
	// RemoteURL and RemoteToken select the remote variant when both are set.
	// Normally populated from REMOTE_CACHE_URL / REMOTE_CACHE_TOKEN.
	RemoteURL   string `yaml:"remote_url"`
	RemoteToken string `yaml:"remote_token"`

	// SweepInterval is how often the in-process variant evicts expired entries.
	SweepInterval time.Duration `yaml:"-"`

	RawSweepInterval string `yaml:"sweep_interval"`
}

// RateLimitConfig configures the per-client sliding window.
type RateLimitConfig struct {
	// MaxRequests is the number of requests allowed per window.
	MaxRequests int `yaml:"max_requests"`

	// Window is the sliding window length.
	Window time.Duration `yaml:"-"`

	RawWindow string `yaml:"window"`
}

// PipelineConfig configures the map-phase executor.
type PipelineConfig struct {
	// Concurrency caps simultaneously executing chunk tasks.
	Concurrency int `yaml:"concurrency"`

	// MaxRetries is the per-chunk retry budget before fallback.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay is the first retry backoff; doubles per attempt.
	BaseDelay time.Duration `yaml:"-"`

	RawBaseDelay string `yaml:"base_delay"`

	// ChunkSize is the target chunk length in characters.
	ChunkSize int `yaml:"chunk_size"`

	// Overlap is the number of characters repeated between adjacent chunks.
	Overlap int `yaml:"overlap"`
}

// ModerationConfig configures the moderation serving path.
type ModerationConfig struct {
	// MaxLatencyMS is the latency budget passed to the router per request.
	MaxLatencyMS float64 `yaml:"max_latency_ms"`

	// CacheTTL is how long non-critical moderation results are cached.
	CacheTTL time.Duration `yaml:"-"`

	RawCacheTTL string `yaml:"cache_ttl"`

	// AlertWebhookURL, when set, routes alerts to a webhook sink in
	// addition to the stderr log sink.
	AlertWebhookURL string `yaml:"alert_webhook_url"`
}

// ConfigPath returns the configuration file path.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// Validate checks cross-field consistency after defaults and env overlays.
func (c *Config) Validate() error {
	if c.RateLimit.MaxRequests <= 0 {
		return &ValidationError{Component: "rate_limit", Field: "max_requests",
			Err: ErrInvalidValue}
	}
	if c.RateLimit.Window <= 0 {
		return &ValidationError{Component: "rate_limit", Field: "window",
			Err: ErrInvalidValue}
	}
	if c.Pipeline.Concurrency <= 0 {
		return &ValidationError{Component: "pipeline", Field: "concurrency",
			Err: ErrInvalidValue}
	}
	if c.Pipeline.Overlap < 0 || c.Pipeline.Overlap >= c.Pipeline.ChunkSize {
		return &ValidationError{Component: "pipeline", Field: "overlap",
			Err: ErrInvalidValue}
	}
	if c.DefaultBackend != "" && c.BackendRegistry.Len() > 0 {
		if _, err := c.BackendRegistry.Get(c.DefaultBackend); err != nil {
			return &ValidationError{Component: "config", Field: "default_backend", Err: err}
		}
	}
	return nil
}
