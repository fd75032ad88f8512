package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/modelmux/pkg/chunk"
	"github.com/codeready-toolchain/modelmux/pkg/llm"
)

type result struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func testChunks(n int) []chunk.Chunk {
	chunks := make([]chunk.Chunk, n)
	for i := range chunks {
		chunks[i] = chunk.Chunk{Index: i, Text: fmt.Sprintf("chunk %d", i)}
	}
	return chunks
}

func synthetic(c chunk.Chunk, cause error) result {
	return result{Index: c.Index, Text: "failed: " + cause.Error()}
}

func fastPolicy() Policy {
	return Policy{Concurrency: 2, MaxRetries: 2, BaseDelay: time.Millisecond}
}

func transientErr(msg string) error {
	return llm.NewBackendError("test", llm.ErrClassTransient, errors.New(msg))
}

func TestRunAllChunksSucceed(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	chunks := testChunks(5)

	e := NewExecutor(fastPolicy(), statePath,
		func(_ context.Context, c chunk.Chunk) (result, error) {
			return result{Index: c.Index, Text: c.Text}, nil
		}, nil, synthetic)

	state, err := e.Run(context.Background(), Fingerprint("doc"), chunks)
	require.NoError(t, err)

	assert.True(t, state.Done())
	assert.Len(t, state.Completed, 5)
	assert.Empty(t, state.Failed)
	assert.Len(t, state.ChunkResults, 5)
}

func TestRunRetriesWithinBudget(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	var attempts atomic.Int32

	// Fails twice, succeeds on the third attempt; budget is 2 retries.
	e := NewExecutor(fastPolicy(), statePath,
		func(_ context.Context, c chunk.Chunk) (result, error) {
			if attempts.Add(1) <= 2 {
				return result{}, transientErr("flaky")
			}
			return result{Index: c.Index, Text: "ok"}, nil
		}, nil, synthetic)

	state, err := e.Run(context.Background(), Fingerprint("doc"), testChunks(1))
	require.NoError(t, err)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Len(t, state.Completed, 1)
	assert.Empty(t, state.Failed)
}

func TestRunRetryBudgetExhausted(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	var attempts atomic.Int32

	e := NewExecutor(fastPolicy(), statePath,
		func(context.Context, chunk.Chunk) (result, error) {
			attempts.Add(1)
			return result{}, transientErr("always down")
		}, nil, synthetic)

	state, err := e.Run(context.Background(), Fingerprint("doc"), testChunks(1))
	require.NoError(t, err)

	// Initial attempt plus MaxRetries.
	assert.Equal(t, int32(3), attempts.Load())
	assert.Len(t, state.Failed, 1)
	assert.Empty(t, state.Completed)
	assert.Contains(t, state.FailureReasons[0], "always down")
}

func TestRunNonRetryableFailsImmediately(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	var attempts atomic.Int32

	e := NewExecutor(fastPolicy(), statePath,
		func(context.Context, chunk.Chunk) (result, error) {
			attempts.Add(1)
			return result{}, llm.NewBackendError("test", llm.ErrClassFatal, errors.New("broken"))
		}, nil, synthetic)

	state, err := e.Run(context.Background(), Fingerprint("doc"), testChunks(1))
	require.NoError(t, err)

	assert.Equal(t, int32(1), attempts.Load())
	assert.Len(t, state.Failed, 1)
}

func TestRunFallbackRecovers(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)

	e := NewExecutor(fastPolicy(), statePath,
		func(context.Context, chunk.Chunk) (result, error) {
			return result{}, transientErr("primary down")
		},
		func(_ context.Context, c chunk.Chunk, _ error) (result, error) {
			return result{Index: c.Index, Text: "degraded"}, nil
		}, synthetic)

	state, err := e.Run(context.Background(), Fingerprint("doc"), testChunks(1))
	require.NoError(t, err)

	assert.Len(t, state.Completed, 1)
	assert.Equal(t, "degraded", state.ChunkResults[0].Text)
}

func TestRunResumeSkipsCompleted(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	chunks := testChunks(4)
	fingerprint := Fingerprint("doc")

	// First run: chunks 0 and 2 succeed, 1 and 3 fail terminally.
	e1 := NewExecutor(fastPolicy(), statePath,
		func(_ context.Context, c chunk.Chunk) (result, error) {
			if c.Index%2 == 1 {
				return result{}, llm.NewBackendError("test", llm.ErrClassFatal, errors.New("down"))
			}
			return result{Index: c.Index, Text: "ok"}, nil
		}, nil, synthetic)
	state1, err := e1.Run(context.Background(), fingerprint, chunks)
	require.NoError(t, err)
	require.Len(t, state1.Completed, 2)
	require.Len(t, state1.Failed, 2)

	// Second run without RetryFailed: nothing is re-executed.
	var calls atomic.Int32
	e2 := NewExecutor(fastPolicy(), statePath,
		func(_ context.Context, c chunk.Chunk) (result, error) {
			calls.Add(1)
			return result{Index: c.Index, Text: "rerun"}, nil
		}, nil, synthetic)
	state2, err := e2.Run(context.Background(), fingerprint, chunks)
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls.Load())
	assert.Len(t, state2.Completed, 2)
	assert.True(t, state2.Done())

	// Third run with RetryFailed: only the failed chunks are retried.
	policy := fastPolicy()
	policy.RetryFailed = true
	e3 := NewExecutor(policy, statePath,
		func(_ context.Context, c chunk.Chunk) (result, error) {
			calls.Add(1)
			return result{Index: c.Index, Text: "recovered"}, nil
		}, nil, synthetic)
	state3, err := e3.Run(context.Background(), fingerprint, chunks)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, state3.Completed, 4)
	assert.Empty(t, state3.Failed)
	assert.Equal(t, "ok", state3.ChunkResults[0].Text)
	assert.Equal(t, "recovered", state3.ChunkResults[1].Text)
}

func TestRunChangedSourceStartsFresh(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	chunks := testChunks(2)

	mapOK := func(_ context.Context, c chunk.Chunk) (result, error) {
		return result{Index: c.Index, Text: "ok"}, nil
	}

	e1 := NewExecutor(fastPolicy(), statePath, mapOK, nil, synthetic)
	_, err := e1.Run(context.Background(), Fingerprint("version one"), chunks)
	require.NoError(t, err)

	var calls atomic.Int32
	e2 := NewExecutor(fastPolicy(), statePath,
		func(ctx context.Context, c chunk.Chunk) (result, error) {
			calls.Add(1)
			return mapOK(ctx, c)
		}, nil, synthetic)
	_, err = e2.Run(context.Background(), Fingerprint("version two"), chunks)
	require.NoError(t, err)

	// Different fingerprint: the old checkpoint is discarded.
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunCancellationCheckpointsProgress(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	chunks := testChunks(6)
	ctx, cancel := context.WithCancel(context.Background())

	var completed atomic.Int32
	policy := fastPolicy()
	policy.Concurrency = 1
	e := NewExecutor(policy, statePath,
		func(ctx context.Context, c chunk.Chunk) (result, error) {
			if completed.Add(1) == 2 {
				cancel()
			}
			return result{Index: c.Index, Text: "ok"}, nil
		}, nil, synthetic)

	state, err := e.Run(ctx, Fingerprint("doc"), chunks)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, state)

	// The checkpoint on disk matches what the run reported.
	loaded, loadErr := LoadState[result](statePath)
	require.NoError(t, loadErr)
	require.NotNil(t, loaded)
	assert.Equal(t, len(state.Completed), len(loaded.Completed))
	assert.Less(t, len(loaded.Completed), len(chunks))
}

func TestRunCompletedAndFailedStayDisjoint(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	chunks := testChunks(10)

	e := NewExecutor(fastPolicy(), statePath,
		func(_ context.Context, c chunk.Chunk) (result, error) {
			if c.Index%3 == 0 {
				return result{}, llm.NewBackendError("test", llm.ErrClassFatal, errors.New("down"))
			}
			return result{Index: c.Index}, nil
		}, nil, synthetic)

	state, err := e.Run(context.Background(), Fingerprint("doc"), chunks)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, i := range state.Completed {
		seen[i] = true
	}
	for _, i := range state.Failed {
		assert.False(t, seen[i], "chunk %d in both completed and failed", i)
	}
	assert.Equal(t, len(chunks), len(state.Completed)+len(state.Failed))

	// Every result key belongs to a completed chunk.
	for index := range state.ChunkResults {
		assert.True(t, seen[index], "result for non-completed chunk %d", index)
	}
}

func TestResultsIncludeSyntheticRecords(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	chunks := testChunks(3)

	e := NewExecutor(fastPolicy(), statePath,
		func(_ context.Context, c chunk.Chunk) (result, error) {
			if c.Index == 1 {
				return result{}, llm.NewBackendError("test", llm.ErrClassFatal, errors.New("dead"))
			}
			return result{Index: c.Index, Text: "ok"}, nil
		}, nil, synthetic)

	state, err := e.Run(context.Background(), Fingerprint("doc"), chunks)
	require.NoError(t, err)

	results := e.Results(state, chunks)
	require.Len(t, results, 3)
	assert.Equal(t, "ok", results[0].Text)
	assert.Contains(t, results[1].Text, "failed:")
	assert.Contains(t, results[1].Text, "dead")
}

func TestRunHonorsConcurrencyBound(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	chunks := testChunks(12)

	var mu sync.Mutex
	current, peak := 0, 0

	policy := fastPolicy()
	policy.Concurrency = 3
	e := NewExecutor(policy, statePath,
		func(_ context.Context, c chunk.Chunk) (result, error) {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			return result{Index: c.Index}, nil
		}, nil, synthetic)

	_, err := e.Run(context.Background(), Fingerprint("doc"), chunks)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 3)
	assert.Greater(t, peak, 0)
}

func TestOnProgressReportsEveryOutcome(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), StateFile)
	chunks := testChunks(4)

	var mu sync.Mutex
	var updates []Progress

	e := NewExecutor(fastPolicy(), statePath,
		func(_ context.Context, c chunk.Chunk) (result, error) {
			return result{Index: c.Index}, nil
		}, nil, synthetic)
	e.OnProgress = func(p Progress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	}

	_, err := e.Run(context.Background(), Fingerprint("doc"), chunks)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 4)

	// Notification order is not guaranteed under concurrency; the terminal
	// count must still have been observed by someone.
	maxCompleted := 0
	for _, p := range updates {
		assert.Equal(t, 4, p.Total)
		if p.Completed > maxCompleted {
			maxCompleted = p.Completed
		}
	}
	assert.Equal(t, 4, maxCompleted)
}
