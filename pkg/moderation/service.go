package moderation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/cache"
	"github.com/codeready-toolchain/modelmux/pkg/config"
	"github.com/codeready-toolchain/modelmux/pkg/llm"
	"github.com/codeready-toolchain/modelmux/pkg/router"
	"github.com/codeready-toolchain/modelmux/pkg/telemetry"
)

const moderationSystemPrompt = "You are a content moderator. Classify the " +
	"message, detect its language, assign a severity (safe, warning, " +
	"critical), up to three categories, a confidence, and a 0-100 risk score."

// Response is a moderation result plus serving metadata.
type Response struct {
	Result
	Cached bool `json:"cached"`
}

// Service is the end-to-end moderation request handler.
type Service struct {
	cfg       *config.ModerationConfig
	cache     cache.Adapter
	router    *router.Router
	store     *telemetry.Store
	client    llm.Client
	validator *llm.Validator
	metrics   *Metrics
	alerts    AlertSink
	logger    *slog.Logger
}

// NewService wires the moderation serving path. alerts may be nil, in which
// case the default stderr log sink is installed.
func NewService(
	cfg *config.ModerationConfig,
	cacheAdapter cache.Adapter,
	r *router.Router,
	store *telemetry.Store,
	client llm.Client,
	metrics *Metrics,
	alerts AlertSink,
) *Service {
	if alerts == nil {
		alerts = NewLogSink()
	}
	return &Service{
		cfg:       cfg,
		cache:     cacheAdapter,
		router:    r,
		store:     store,
		client:    client,
		validator: llm.NewValidator(),
		metrics:   metrics,
		alerts:    alerts,
		logger:    slog.Default().With("component", "moderation-service"),
	}
}

// Metrics exposes the rolling aggregates for the read endpoint.
func (s *Service) Metrics() *Metrics { return s.metrics }

// CacheKey derives the cache key from the normalized message and locale.
func CacheKey(message, locale string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	sum := sha256.Sum256([]byte(normalized + "|" + locale))
	return "moderation:" + hex.EncodeToString(sum[:])
}

// Moderate handles one unary request: cache, route, invoke, record, alert.
// Backend failures fail safe: the returned result is safe/unflagged with
// the error summary in Reasoning, and the error is not propagated.
// Configuration errors (no eligible backend) are propagated.
func (s *Service) Moderate(ctx context.Context, req Request) (*Response, error) {
	key := CacheKey(req.Message, req.Locale)

	if cached := s.lookup(ctx, key); cached != nil {
		s.metrics.RecordCacheHit(&cached.Result)
		return cached, nil
	}
	s.metrics.RecordCacheMiss()

	selection, err := s.router.Select(router.Config{
		Task:                 config.TaskClassification,
		Priority:             config.PrioritySpeed,
		Complexity:           config.ComplexityLow,
		MaxLatencyMS:         s.cfg.MaxLatencyMS,
		RequiredCapabilities: []string{config.CapabilityStructuredOutput},
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Invoke(callCtx, llm.Request{
		Backend: selection.Backend,
		System:  moderationSystemPrompt,
		Prompt:  s.prompt(req),
		Schema:  Schema,
	})
	latencyMS := float64(time.Since(start).Milliseconds())

	if err != nil {
		return s.failSafe(selection.Backend, latencyMS, err), nil
	}

	var result Result
	fromRetry := false
	if err := s.validator.ValidateInto(Schema, []byte(resp.Content), &result); err != nil {
		// Malformed structured output counts against the backend, then one
		// immediate retry, then fail safe. retryOnce records its own outcome.
		s.store.Update(selection.Backend, latencyMS, false)
		retried, retryErr := s.retryOnce(callCtx, selection.Backend, req)
		if retryErr != nil {
			return s.safeDefault(selection.Backend, latencyMS, retryErr), nil
		}
		result = *retried
		fromRetry = true
	}
	result.normalizeInvariants()

	if !fromRetry {
		s.store.Update(selection.Backend, latencyMS, true)
	}
	s.metrics.RecordResult(&result, latencyMS)

	if result.Flagged || result.Severity == SeverityCritical {
		s.emitAlert(ctx, &result, selection.Backend)
	}

	// Critical content must always be re-evaluated, never served from cache.
	if result.Severity != SeverityCritical {
		s.storeResult(ctx, key, &result)
	}

	return &Response{Result: result}, nil
}

// ModerateStream handles a streaming request. The cache is bypassed (state
// is partial); telemetry is still updated when the stream completes.
func (s *Service) ModerateStream(ctx context.Context, req Request) (<-chan llm.StreamChunk, error) {
	selection, err := s.router.Select(router.Config{
		Task:         config.TaskClassification,
		Priority:     config.PrioritySpeed,
		Complexity:   config.ComplexityLow,
		MaxLatencyMS: s.cfg.MaxLatencyMS,
		RequiredCapabilities: []string{
			config.CapabilityStructuredOutput,
			config.CapabilityStreaming,
		},
	})
	if err != nil {
		return nil, err
	}

	chunks, errs := s.client.InvokeStream(ctx, llm.Request{
		Backend: selection.Backend,
		System:  moderationSystemPrompt,
		Prompt:  s.prompt(req),
		Schema:  Schema,
	})

	out := make(chan llm.StreamChunk, 100)
	start := time.Now()
	go func() {
		defer close(out)
		for chunk := range chunks {
			out <- chunk
		}
		latencyMS := float64(time.Since(start).Milliseconds())
		if err := <-errs; err != nil {
			s.store.Update(selection.Backend, latencyMS, false)
			out <- llm.StreamChunk{Error: err.Error(), IsFinal: true}
			return
		}
		s.store.Update(selection.Backend, latencyMS, true)
	}()
	return out, nil
}

// lookup returns the cached response, or nil on miss. Cache errors are
// treated as misses.
func (s *Service) lookup(ctx context.Context, key string) *Response {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if err != cache.ErrNotFound {
			s.logger.Warn("Cache read failed, treating as miss", "error", err)
		}
		return nil
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		s.logger.Warn("Corrupt cache entry, treating as miss", "error", err)
		return nil
	}
	if !result.Severity.IsValid() {
		s.logger.Warn("Cached result has unknown severity, treating as miss",
			"severity", result.Severity)
		return nil
	}
	return &Response{Result: result, Cached: true}
}

// storeResult caches the result; write failures are logged no-ops.
func (s *Service) storeResult(ctx context.Context, key string, result *Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("Failed to encode result for cache", "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("Cache write failed", "error", err)
	}
}

// retryOnce re-invokes after a schema validation failure.
func (s *Service) retryOnce(ctx context.Context, backend string, req Request) (*Result, error) {
	start := time.Now()
	resp, err := s.client.Invoke(ctx, llm.Request{
		Backend: backend,
		System:  moderationSystemPrompt,
		Prompt:  s.prompt(req),
		Schema:  Schema,
	})
	latencyMS := float64(time.Since(start).Milliseconds())
	if err != nil {
		s.store.Update(backend, latencyMS, false)
		return nil, err
	}

	var result Result
	if err := s.validator.ValidateInto(Schema, []byte(resp.Content), &result); err != nil {
		s.store.Update(backend, latencyMS, false)
		return nil, err
	}
	s.store.Update(backend, latencyMS, true)
	return &result, nil
}

// failSafe records the telemetry failure and returns the conservative
// default.
func (s *Service) failSafe(backend string, latencyMS float64, cause error) *Response {
	s.store.Update(backend, latencyMS, false)
	return s.safeDefault(backend, latencyMS, cause)
}

// safeDefault returns the conservative verdict: safe and unflagged, so a
// broken moderator never silently blocks traffic. Telemetry is the caller's
// concern; the failed call must be recorded exactly once.
func (s *Service) safeDefault(backend string, latencyMS float64, cause error) *Response {
	s.logger.Error("Moderation call failed, returning safe default",
		"backend", backend, "error", cause)

	result := Result{
		Severity:   SeveritySafe,
		Categories: []string{},
		Flagged:    false,
		Reasoning:  fmt.Sprintf("error: %v", cause),
	}
	s.metrics.RecordResult(&result, latencyMS)
	return &Response{Result: result}
}

// emitAlert routes a flagged result to the alert sink. Fail-open.
func (s *Service) emitAlert(ctx context.Context, result *Result, backend string) {
	alert := Alert{
		Timestamp:  time.Now(),
		Severity:   result.Severity,
		Categories: result.Categories,
		RiskScore:  result.RiskScore,
		Language:   result.Language,
		Backend:    backend,
		Reasoning:  result.Reasoning,
	}
	if err := s.alerts.Send(ctx, alert); err != nil {
		s.logger.Warn("Alert delivery failed", "error", err)
	}
}

// prompt builds the locale-aware moderation prompt.
func (s *Service) prompt(req Request) string {
	if req.Locale != "" {
		return fmt.Sprintf("Moderate this message (caller locale %s):\n\n%s",
			req.Locale, req.Message)
	}
	return "Moderate this message:\n\n" + req.Message
}

// callContext derives the per-call deadline from the configured latency
// budget, with headroom for transport overhead.
func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.MaxLatencyMS <= 0 {
		return context.WithCancel(ctx)
	}
	budget := time.Duration(s.cfg.MaxLatencyMS)*time.Millisecond + 500*time.Millisecond
	return context.WithTimeout(ctx, budget)
}
