// Package pipeline executes a map function over document chunks with
// bounded concurrency, per-chunk retry with exponential backoff, degraded
// fallback, and a persisted checkpoint so crashed runs resume where they
// stopped.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/codeready-toolchain/modelmux/pkg/chunk"
	"github.com/codeready-toolchain/modelmux/pkg/llm"
)

// MapFunc produces one chunk's result. It may cooperate with ctx
// cancellation but is not required to.
type MapFunc[R any] func(ctx context.Context, c chunk.Chunk) (R, error)

// FallbackFunc is the degraded map function invoked once the primary
// exhausts its retry budget.
type FallbackFunc[R any] func(ctx context.Context, c chunk.Chunk, cause error) (R, error)

// SyntheticFunc builds the failure-record result for a chunk whose primary
// and fallback both failed, so downstream reduction still counts the chunk.
type SyntheticFunc[R any] func(c chunk.Chunk, cause error) R

// Policy controls map-phase execution.
type Policy struct {
	// Concurrency caps simultaneously executing chunks. Default 3.
	Concurrency int

	// MaxRetries is the per-chunk retry budget for retryable errors.
	MaxRetries int

	// BaseDelay is the first backoff; doubles per attempt.
	BaseDelay time.Duration

	// RetryFailed re-queues chunks the checkpoint marks failed. Completed
	// chunks are always skipped on resume.
	RetryFailed bool
}

func (p Policy) withDefaults() Policy {
	if p.Concurrency <= 0 {
		p.Concurrency = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}

// Progress is a per-terminal-outcome notification.
type Progress struct {
	Completed int
	Failed    int
	Total     int
}

// Executor runs the map phase for one result type.
type Executor[R any] struct {
	policy    Policy
	mapFn     MapFunc[R]
	fallback  FallbackFunc[R] // nil disables degraded fallback
	synthetic SyntheticFunc[R]
	statePath string
	logger    *slog.Logger

	// OnProgress, when set, is called after every terminal chunk outcome.
	OnProgress func(Progress)

	mu    sync.Mutex
	state *State[R]
}

// NewExecutor creates a map-phase executor. statePath is the checkpoint
// document location; synthetic must not be nil.
func NewExecutor[R any](policy Policy, statePath string, mapFn MapFunc[R], fallback FallbackFunc[R], synthetic SyntheticFunc[R]) *Executor[R] {
	return &Executor[R]{
		policy:    policy.withDefaults(),
		mapFn:     mapFn,
		fallback:  fallback,
		synthetic: synthetic,
		statePath: statePath,
		logger:    slog.Default().With("component", "pipeline-executor"),
	}
}

// Run executes the map phase over chunks. When the checkpoint at statePath
// matches fingerprint, completed chunks are skipped and (policy-dependent)
// failed chunks are retried. The returned state is the final checkpoint;
// on cancellation it reflects every outcome reached so far and has already
// been written to disk.
func (e *Executor[R]) Run(ctx context.Context, fingerprint string, chunks []chunk.Chunk) (*State[R], error) {
	state, resumed, err := e.prepareState(fingerprint, len(chunks))
	if err != nil {
		return nil, err
	}

	pending := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !state.terminal(c.Index) {
			pending = append(pending, c)
		}
	}

	if len(pending) == 0 && state.Done() {
		e.logger.Info("Checkpoint already terminal, skipping map phase",
			"completed", len(state.Completed), "failed", len(state.Failed))
		return state, nil
	}

	e.logger.Info("Map phase starting",
		"fingerprint", shortFingerprint(fingerprint),
		"total_chunks", len(chunks),
		"pending", len(pending),
		"resumed", resumed,
		"concurrency", e.policy.Concurrency)

	sem := semaphore.NewWeighted(int64(e.policy.Concurrency))
	var wg sync.WaitGroup

	for _, c := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled: stop dispatching new chunks.
			break
		}
		wg.Add(1)
		go func(c chunk.Chunk) {
			defer wg.Done()
			defer sem.Release(1)
			e.processChunk(ctx, c)
		}(c)
	}

	wg.Wait()

	// A cancel always leaves a current checkpoint behind.
	e.checkpoint()
	if err := ctx.Err(); err != nil {
		e.logger.Warn("Map phase cancelled", "completed", len(state.Completed), "failed", len(state.Failed))
		return e.snapshotState(), err
	}

	e.logger.Info("Map phase complete",
		"completed", len(state.Completed),
		"failed", len(state.Failed))
	return e.snapshotState(), nil
}

// processChunk drives one chunk to a terminal outcome.
func (e *Executor[R]) processChunk(ctx context.Context, c chunk.Chunk) {
	log := slog.With("component", "pipeline-executor", "chunk", c.Index)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			// Abort at the retry boundary; the chunk stays pending so a
			// resumed run picks it up.
			return
		}

		result, err := e.mapFn(ctx, c)
		if err == nil {
			e.complete(c.Index, result)
			return
		}
		lastErr = err

		if attempt >= e.policy.MaxRetries || !llm.IsRetryable(err) {
			break
		}

		delay := e.policy.BaseDelay << attempt
		log.Warn("Chunk attempt failed, backing off",
			"attempt", attempt+1, "delay", delay, "error", err)
		if !sleepCtx(ctx, delay) {
			return
		}
	}

	// Degraded fallback, then synthetic failure record.
	if e.fallback != nil {
		if result, err := e.fallback(ctx, c, lastErr); err == nil {
			log.Info("Chunk recovered via fallback")
			e.complete(c.Index, result)
			return
		} else {
			lastErr = fmt.Errorf("fallback after %v: %w", lastErr, err)
		}
	}

	log.Error("Chunk failed terminally", "error", lastErr)
	e.fail(c, lastErr)
}

// prepareState loads a matching checkpoint or starts fresh.
func (e *Executor[R]) prepareState(fingerprint string, totalChunks int) (*State[R], bool, error) {
	loaded, err := LoadState[R](e.statePath)
	if err != nil {
		return nil, false, err
	}

	if loaded != nil && loaded.SourceFingerprint == fingerprint {
		if e.policy.RetryFailed {
			for _, index := range loaded.Failed {
				delete(loaded.FailureReasons, index)
			}
			loaded.Failed = nil
		}
		e.mu.Lock()
		e.state = loaded
		e.mu.Unlock()
		return loaded, true, nil
	}

	fresh := newState[R](fingerprint, totalChunks)
	e.mu.Lock()
	e.state = fresh
	e.mu.Unlock()
	return fresh, false, nil
}

func (e *Executor[R]) complete(index int, result R) {
	e.mu.Lock()
	e.state.markCompleted(index, result)
	e.mu.Unlock()
	e.checkpoint()
	e.notify()
}

func (e *Executor[R]) fail(c chunk.Chunk, cause error) {
	e.mu.Lock()
	e.state.markFailed(c.Index, cause.Error())
	e.mu.Unlock()
	e.checkpoint()
	e.notify()
}

// checkpoint persists the current state. Write failures are logged, never
// fatal: the run continues, resume may just be incomplete.
func (e *Executor[R]) checkpoint() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return
	}
	if err := e.state.save(e.statePath); err != nil {
		e.logger.Error("Checkpoint write failed, resume may be incomplete",
			"path", e.statePath, "error", err)
	}
}

func (e *Executor[R]) notify() {
	if e.OnProgress == nil {
		return
	}
	e.mu.Lock()
	p := Progress{
		Completed: len(e.state.Completed),
		Failed:    len(e.state.Failed),
		Total:     e.state.TotalChunks,
	}
	e.mu.Unlock()
	e.OnProgress(p)
}

// snapshotState returns a shallow copy safe to read after Run returns.
func (e *Executor[R]) snapshotState() *State[R] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Results merges completed chunk results with synthetic records for failed
// chunks, keyed by chunk index, so downstream reduction counts every chunk.
func (e *Executor[R]) Results(state *State[R], chunks []chunk.Chunk) map[int]R {
	byIndex := make(map[int]chunk.Chunk, len(chunks))
	for _, c := range chunks {
		byIndex[c.Index] = c
	}

	out := make(map[int]R, len(state.ChunkResults)+len(state.Failed))
	for index, result := range state.ChunkResults {
		out[index] = result
	}
	for _, index := range state.Failed {
		reason := state.FailureReasons[index]
		out[index] = e.synthetic(byIndex[index], fmt.Errorf("%s", reason))
	}
	return out
}

// sleepCtx waits for d, returning false when ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
