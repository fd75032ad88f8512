// Package cache provides the process-wide cache adapter: a uniform
// get/set/delete contract with TTL, backed by either an in-process map or a
// remote key/value store. Caching is best-effort everywhere; callers treat
// read errors as misses and write errors as no-ops.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/config"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Adapter is the uniform cache contract. Implementations must be safe for
// concurrent use. A single adapter is installed process-wide at init and
// never swapped afterwards.
type Adapter interface {
	// Get returns the value for key, or ErrNotFound. Never returns expired data.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL, overwriting any
	// existing entry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Type identifies the variant ("memory" or "remote") for stats reporting.
	Type() string

	// Len is the entry count for stats reporting; remote variants may
	// return -1 when the store cannot be enumerated cheaply.
	Len() int
}

// FromEnv selects the adapter variant: remote when both URL and token are
// configured, in-process otherwise.
func FromEnv(cfg *config.CacheConfig) Adapter {
	if cfg.RemoteURL != "" && cfg.RemoteToken != "" {
		slog.Info("Using remote cache", "url", cfg.RemoteURL)
		return NewRemote(cfg.RemoteURL, cfg.RemoteToken)
	}
	slog.Info("Using in-process cache", "sweep_interval", cfg.SweepInterval)
	return NewMemory(cfg.SweepInterval)
}
