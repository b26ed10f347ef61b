package executor

import (
	"context"
	"sync"

	"github.com/contentsquare/reqengine/request"
)

// BatchResult holds one request's outcome; batch functions return results
// at the same index as the submitted request, since batch semantics allow
// independent per-request failure per SPEC_FULL.md §4.6.
type BatchResult[T any] struct {
	Response *request.Response[T]
	Err      error
}

// ExecuteBatch submits every request to the queue and awaits all results.
// A failure in one request never prevents the others from completing.
func ExecuteBatch[T any](ctx context.Context, e *Executor, reqs []*request.Request[T]) []BatchResult[T] {
	results := make([]BatchResult[T], len(reqs))
	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, r := range reqs {
		go func(i int, r *request.Request[T]) {
			defer wg.Done()
			resp, err := Execute(ctx, e, r)
			results[i] = BatchResult[T]{Response: resp, Err: err}
		}(i, r)
	}
	wg.Wait()
	return results
}

// ExecuteConcurrent splits reqs into chunks of at most maxConcurrency and
// submits each chunk to the queue sequentially, per SPEC_FULL.md §4.6.
func ExecuteConcurrent[T any](ctx context.Context, e *Executor, reqs []*request.Request[T], maxConcurrency int) []BatchResult[T] {
	if maxConcurrency <= 0 {
		maxConcurrency = len(reqs)
	}
	results := make([]BatchResult[T], 0, len(reqs))
	for start := 0; start < len(reqs); start += maxConcurrency {
		end := start + maxConcurrency
		if end > len(reqs) {
			end = len(reqs)
		}
		chunkResults := ExecuteBatch(ctx, e, reqs[start:end])
		results = append(results, chunkResults...)
	}
	return results
}
