package config

import "time"

// DefaultConfig returns the built-in defaults. Values from the YAML file and
// the environment are merged on top of these.
func DefaultConfig() *Config {
	return &Config{
		DataDir:        ".",
		DefaultBackend: "",
		LLM: &LLMConfig{
			BaseURL:        "http://localhost:8000/v1",
			APIKeyEnv:      "LLM_API_KEY",
			RequestTimeout: 30 * time.Second,
		},
		Cache: &CacheConfig{
			SweepInterval: 5 * time.Minute,
		},
		RateLimit: &RateLimitConfig{
			MaxRequests: 100,
			Window:      60 * time.Second,
		},
		Pipeline: &PipelineConfig{
			Concurrency: 3,
			MaxRetries:  3,
			BaseDelay:   time.Second,
			ChunkSize:   16000,
			Overlap:     800,
		},
		Moderation: &ModerationConfig{
			MaxLatencyMS: 2000,
			CacheTTL:     time.Hour,
		},
	}
}
