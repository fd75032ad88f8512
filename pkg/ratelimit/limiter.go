// Package ratelimit implements a per-client sliding-window request counter
// on top of the cache adapter. Storage failures fail open: a stalled
// limiter must not deny the legitimate traffic that caused it.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/cache"
	"github.com/codeready-toolchain/modelmux/pkg/config"
)

// entry is the persisted window state for one client.
type entry struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"reset_at_ms"`
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, floored at 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter counts requests per client identifier within a fixed window.
type Limiter struct {
	store  cache.Adapter
	cfg    *config.RateLimitConfig
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewLimiter creates a limiter backed by the given cache adapter.
func NewLimiter(store cache.Adapter, cfg *config.RateLimitConfig) *Limiter {
	return &Limiter{
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "rate-limiter"),
		now:    time.Now,
	}
}

// Check records one request for clientID and reports whether it is allowed.
// Any storage failure returns allowed with the full budget remaining.
func (l *Limiter) Check(ctx context.Context, clientID string) Result {
	windowSeconds := int(l.cfg.Window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%d", clientID, windowSeconds)
	now := l.now()

	open := Result{
		Allowed:   true,
		Limit:     l.cfg.MaxRequests,
		Remaining: l.cfg.MaxRequests,
		ResetAt:   now.Add(l.cfg.Window),
	}

	var current entry
	raw, err := l.store.Get(ctx, key)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, &current); jsonErr != nil {
			l.logger.Warn("Corrupt rate limit entry, resetting window",
				"client_id", clientID, "error", jsonErr)
			current = entry{}
		}
	case err == cache.ErrNotFound:
		// First request in a fresh window.
	default:
		l.logger.Warn("Rate limit storage read failed, failing open",
			"client_id", clientID, "error", err)
		return open
	}

	nowMS := now.UnixMilli()
	if current.Count == 0 || nowMS >= current.ResetAt {
		fresh := entry{Count: 1, ResetAt: now.Add(l.cfg.Window).UnixMilli()}
		if err := l.write(ctx, key, fresh, l.cfg.Window); err != nil {
			return open
		}
		return Result{
			Allowed:   true,
			Limit:     l.cfg.MaxRequests,
			Remaining: l.cfg.MaxRequests - 1,
			ResetAt:   time.UnixMilli(fresh.ResetAt),
		}
	}

	resetAt := time.UnixMilli(current.ResetAt)
	if current.Count >= l.cfg.MaxRequests {
		return Result{
			Allowed:   false,
			Limit:     l.cfg.MaxRequests,
			Remaining: 0,
			ResetAt:   resetAt,
		}
	}

	current.Count++
	remainingWindow := time.Duration(math.Ceil(resetAt.Sub(now).Seconds())) * time.Second
	if err := l.write(ctx, key, current, remainingWindow); err != nil {
		return open
	}
	return Result{
		Allowed:   true,
		Limit:     l.cfg.MaxRequests,
		Remaining: l.cfg.MaxRequests - current.Count,
		ResetAt:   resetAt,
	}
}

// write persists the entry; failures are logged and surfaced so Check can
// fail open.
func (l *Limiter) write(ctx context.Context, key string, e entry, ttl time.Duration) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, key, raw, ttl); err != nil {
		l.logger.Warn("Rate limit storage write failed, failing open",
			"key", key, "error", err)
		return err
	}
	return nil
}
