package reduce

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	// combineThreshold is the fan-in above which reduction goes hierarchical.
	combineThreshold = 10
	// batchSize is the partition size for hierarchical reduction.
	batchSize = 5
)

// CombineFunc merges an ordered list of partial summaries into one. It is
// expected to call a backend; everything else about the reduction is pure.
type CombineFunc func(ctx context.Context, summaries []string) (string, error)

// Summaries reduces per-chunk summaries (keyed by chunk index) into a
// single text. Small fan-in is combined in one call; larger fan-in is
// partitioned into batches reduced in parallel (bounded by concurrency),
// recursing until one summary remains. Input order is by ascending chunk
// index, so the output is deterministic for a given multiset of inputs.
func Summaries(ctx context.Context, byIndex map[int]string, combine CombineFunc, concurrency int) (string, error) {
	if concurrency <= 0 {
		concurrency = 3
	}

	indices := make([]int, 0, len(byIndex))
	for index := range byIndex {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	ordered := make([]string, 0, len(indices))
	for _, index := range indices {
		if s := byIndex[index]; s != "" {
			ordered = append(ordered, s)
		}
	}

	return reduceLevel(ctx, ordered, combine, concurrency)
}

// reduceLevel performs one (possibly recursive) reduction pass.
func reduceLevel(ctx context.Context, summaries []string, combine CombineFunc, concurrency int) (string, error) {
	switch {
	case len(summaries) == 0:
		return "", nil
	case len(summaries) == 1:
		return summaries[0], nil
	case len(summaries) <= combineThreshold:
		return combine(ctx, summaries)
	}

	batches := partition(summaries, batchSize)
	reduced := make([]string, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			combined, err := combine(gctx, batch)
			if err != nil {
				return err
			}
			reduced[i] = combined
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return reduceLevel(ctx, reduced, combine, concurrency)
}

func partition(items []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
