// Package reduce aggregates per-chunk map outputs: a deduplicating merge
// for entity extraction and a hierarchical combiner for free-form
// summaries. Both are deterministic functions of their inputs so runs can
// be replayed.
package reduce

import (
	"sort"
	"strings"

	"github.com/codeready-toolchain/modelmux/pkg/extract"
)

// normalize is the dedup key transform: lowercase + trim. The first-seen
// original form is preserved for display.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Merge deduplicates extraction results across chunks. Results are
// processed in ascending chunk-index order, so collisions resolve
// deterministically: first-seen display form wins, first-non-empty scalar
// attribute wins, and chunk-index provenance accumulates in encounter
// order.
func Merge(results map[int]extract.ChunkResult) *extract.Aggregate {
	indices := make([]int, 0, len(results))
	for index := range results {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	people := newAccumulator[extract.Person]()
	companies := newAccumulator[extract.Company]()
	concepts := newAccumulator[extract.Concept]()
	relationships := newAccumulator[extract.Relationship]()
	var failed []int

	for _, index := range indices {
		result := results[index]
		if result.Failed {
			failed = append(failed, index)
			continue
		}

		for _, p := range result.People {
			people.add(normalize(p.Name), index, p, func(existing *extract.Person) {
				if existing.Role == "" {
					existing.Role = p.Role
				}
			})
		}
		for _, c := range result.Companies {
			companies.add(normalize(c.Name), index, c, func(existing *extract.Company) {
				if existing.Industry == "" {
					existing.Industry = c.Industry
				}
			})
		}
		for _, c := range result.Concepts {
			concepts.add(normalize(c.Name), index, c, func(existing *extract.Concept) {
				if existing.Description == "" {
					existing.Description = c.Description
				}
			})
		}
		for _, r := range result.Relationships {
			key := normalize(r.Person1) + "\x00" + normalize(r.Person2) + "\x00" + normalize(r.Type)
			relationships.add(key, index, r, func(existing *extract.Relationship) {
				existing.Evidence = mergeEvidence(existing.Evidence, r.Evidence)
			})
		}
	}

	return &extract.Aggregate{
		People:        finalize(people, func(p *extract.Person, chunks []int) { p.Chunks = chunks }),
		Companies:     finalize(companies, func(c *extract.Company, chunks []int) { c.Chunks = chunks }),
		Concepts:      finalize(concepts, func(c *extract.Concept, chunks []int) { c.Chunks = chunks }),
		Relationships: finalize(relationships, func(r *extract.Relationship, chunks []int) { r.Chunks = chunks }),
		FailedChunks:  failed,
	}
}

// accumulator keeps merged entities in first-seen order with chunk
// provenance.
type accumulator[T any] struct {
	order  []string
	values map[string]*T
	chunks map[string][]int
}

func newAccumulator[T any]() *accumulator[T] {
	return &accumulator[T]{
		values: make(map[string]*T),
		chunks: make(map[string][]int),
	}
}

// add merges value under key. On collision, merge mutates the stored entity
// (first-non-empty attribute semantics live in the callback).
func (a *accumulator[T]) add(key string, chunkIndex int, value T, merge func(*T)) {
	if existing, ok := a.values[key]; ok {
		merge(existing)
	} else {
		a.order = append(a.order, key)
		a.values[key] = &value
	}

	seen := a.chunks[key]
	if len(seen) == 0 || seen[len(seen)-1] != chunkIndex {
		if !containsChunk(seen, chunkIndex) {
			a.chunks[key] = append(seen, chunkIndex)
		}
	}
}

// finalize returns merged entities in first-seen order with their chunk sets
// attached.
func finalize[T any](a *accumulator[T], attach func(*T, []int)) []T {
	out := make([]T, 0, len(a.order))
	for _, key := range a.order {
		value := a.values[key]
		attach(value, a.chunks[key])
		out = append(out, *value)
	}
	return out
}

func containsChunk(set []int, v int) bool {
	for _, c := range set {
		if c == v {
			return true
		}
	}
	return false
}

// mergeEvidence concatenates evidence strings with a separator,
// deduplicating substring-wise: evidence already contained in the merged
// text is dropped.
func mergeEvidence(existing, incoming string) string {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	if strings.Contains(existing, incoming) {
		return existing
	}
	if strings.Contains(incoming, existing) {
		return incoming
	}
	return existing + "; " + incoming
}
