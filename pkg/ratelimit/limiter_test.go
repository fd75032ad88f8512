package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/modelmux/pkg/cache"
	"github.com/codeready-toolchain/modelmux/pkg/config"
)

// brokenStore fails every operation, simulating an unreachable remote cache.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("connection refused") }
func (brokenStore) Type() string                         { return "broken" }
func (brokenStore) Len() int                             { return 0 }

func newTestLimiter(t *testing.T, maxRequests int, window time.Duration) *Limiter {
	t.Helper()
	store := cache.NewMemory(time.Minute)
	t.Cleanup(store.Close)
	return NewLimiter(store, &config.RateLimitConfig{
		MaxRequests: maxRequests,
		Window:      window,
	})
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	l := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := l.Check(ctx, "client-a")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, result.Limit)
		assert.Equal(t, 2-i, result.Remaining)
	}

	blocked := l.Check(ctx, "client-a")
	assert.False(t, blocked.Allowed)
	assert.Equal(t, 0, blocked.Remaining)
	assert.GreaterOrEqual(t, blocked.RetryAfter(time.Now()), 1)
}

func TestCheckIsolatesClients(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	assert.True(t, l.Check(ctx, "client-a").Allowed)
	assert.False(t, l.Check(ctx, "client-a").Allowed)

	// A different client has its own window.
	assert.True(t, l.Check(ctx, "client-b").Allowed)
}

func TestCheckWindowReset(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	assert.True(t, l.Check(ctx, "client").Allowed)
	assert.False(t, l.Check(ctx, "client").Allowed)

	// Advance past the window: the counter starts fresh.
	l.now = func() time.Time { return base.Add(61 * time.Second) }
	result := l.Check(ctx, "client")
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestCheckFailsOpen(t *testing.T) {
	l := NewLimiter(brokenStore{}, &config.RateLimitConfig{
		MaxRequests: 2,
		Window:      time.Minute,
	})

	// Storage is down: every request is allowed with the full budget.
	for i := 0; i < 10; i++ {
		result := l.Check(context.Background(), "client")
		assert.True(t, result.Allowed)
		assert.Equal(t, 2, result.Remaining)
	}
}

func TestCheckCorruptEntryResetsWindow(t *testing.T) {
	store := cache.NewMemory(time.Minute)
	t.Cleanup(store.Close)
	l := NewLimiter(store, &config.RateLimitConfig{MaxRequests: 5, Window: time.Minute})
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ratelimit:client:60", []byte("not json"), time.Minute))

	result := l.Check(ctx, "client")
	assert.True(t, result.Allowed)
	assert.Equal(t, 4, result.Remaining)
}

func TestRetryAfterFloor(t *testing.T) {
	now := time.Now()
	r := Result{ResetAt: now.Add(-time.Second)}
	assert.Equal(t, 1, r.RetryAfter(now))

	r = Result{ResetAt: now.Add(30 * time.Second)}
	assert.Equal(t, 30, r.RetryAfter(now))
}
