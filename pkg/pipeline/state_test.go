package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStable(t *testing.T) {
	assert.Equal(t, Fingerprint("same input"), Fingerprint("same input"))
	assert.NotEqual(t, Fingerprint("input a"), Fingerprint("input b"))
	assert.Len(t, Fingerprint("x"), 64)
}

func TestLoadStateMissingFile(t *testing.T) {
	state, err := LoadState[string](filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestLoadStateCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFile)
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	_, err := LoadState[string](path)
	assert.Error(t, err)
}

func TestStateSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFile)

	state := newState[string]("fp", 3)
	state.markCompleted(0, "zero")
	state.markFailed(2, "timed out")
	require.NoError(t, state.save(path))

	loaded, err := LoadState[string](path)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "fp", loaded.SourceFingerprint)
	assert.Equal(t, 3, loaded.TotalChunks)
	assert.Equal(t, []int{0}, loaded.Completed)
	assert.Equal(t, []int{2}, loaded.Failed)
	assert.Equal(t, "zero", loaded.ChunkResults[0])
	assert.Equal(t, "timed out", loaded.FailureReasons[2])
	assert.False(t, loaded.Done())
}

func TestStateFailedThenCompleted(t *testing.T) {
	state := newState[string]("fp", 2)

	state.markFailed(0, "first attempt")
	state.markCompleted(0, "recovered")

	assert.Equal(t, []int{0}, state.Completed)
	assert.Empty(t, state.Failed)
	assert.Empty(t, state.FailureReasons)
	assert.Equal(t, "recovered", state.ChunkResults[0])
}

func TestStateMarksAreIdempotent(t *testing.T) {
	state := newState[string]("fp", 2)

	state.markCompleted(1, "a")
	state.markCompleted(1, "b")

	assert.Equal(t, []int{1}, state.Completed)
	assert.Equal(t, "b", state.ChunkResults[1])
	assert.True(t, state.terminal(1))
	assert.False(t, state.terminal(0))
}
