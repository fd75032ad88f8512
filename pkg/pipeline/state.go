package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

// StateFile is the checkpoint document name under the working directory.
const StateFile = ".extraction-state.json"

// Fingerprint returns the stable identifier for a source input. Identical
// input yields an identical fingerprint, which keys the checkpoint.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// State is the persisted processing checkpoint for one source document.
//
// Invariants: Completed and Failed are disjoint; every key in ChunkResults
// is in Completed; failure summaries live in FailureReasons, never in
// ChunkResults.
type State[R any] struct {
	SourceFingerprint string         `json:"source_fingerprint"`
	TotalChunks       int            `json:"total_chunks"`
	Completed         []int          `json:"completed"`
	Failed            []int          `json:"failed"`
	ChunkResults      map[int]R      `json:"chunk_results"`
	FailureReasons    map[int]string `json:"failure_reasons,omitempty"`
	StartedAt         time.Time      `json:"start_ts"`
	UpdatedAt         time.Time      `json:"last_update_ts"`
}

// newState initializes a fresh checkpoint for a source.
func newState[R any](fingerprint string, totalChunks int) *State[R] {
	now := time.Now()
	return &State[R]{
		SourceFingerprint: fingerprint,
		TotalChunks:       totalChunks,
		ChunkResults:      make(map[int]R),
		FailureReasons:    make(map[int]string),
		StartedAt:         now,
		UpdatedAt:         now,
	}
}

// LoadState reads a checkpoint from path. A missing file returns (nil, nil)
// so callers can start fresh. Unknown fields are ignored; absent optional
// fields get defaults.
func LoadState[R any](path string) (*State[R], error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var state State[R]
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	if state.ChunkResults == nil {
		state.ChunkResults = make(map[int]R)
	}
	if state.FailureReasons == nil {
		state.FailureReasons = make(map[int]string)
	}
	return &state, nil
}

// save writes the checkpoint atomically.
func (s *State[R]) save(path string) error {
	s.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}

// markCompleted records a successful chunk result.
func (s *State[R]) markCompleted(index int, result R) {
	s.ChunkResults[index] = result
	s.Completed = insertSorted(s.Completed, index)
	s.Failed = removeInt(s.Failed, index)
	delete(s.FailureReasons, index)
}

// markFailed records a terminal chunk failure with its error summary.
func (s *State[R]) markFailed(index int, reason string) {
	s.Failed = insertSorted(s.Failed, index)
	s.Completed = removeInt(s.Completed, index)
	delete(s.ChunkResults, index)
	s.FailureReasons[index] = reason
}

// Done reports whether every chunk reached a terminal outcome.
func (s *State[R]) Done() bool {
	return len(s.Completed)+len(s.Failed) >= s.TotalChunks
}

// terminal reports whether the chunk index already has an outcome.
func (s *State[R]) terminal(index int) bool {
	return containsInt(s.Completed, index) || containsInt(s.Failed, index)
}

func insertSorted(set []int, v int) []int {
	i := sort.SearchInts(set, v)
	if i < len(set) && set[i] == v {
		return set
	}
	set = append(set, 0)
	copy(set[i+1:], set[i:])
	set[i] = v
	return set
}

func removeInt(set []int, v int) []int {
	i := sort.SearchInts(set, v)
	if i < len(set) && set[i] == v {
		return append(set[:i], set[i+1:]...)
	}
	return set
}

func containsInt(set []int, v int) bool {
	i := sort.SearchInts(set, v)
	return i < len(set) && set[i] == v
}
