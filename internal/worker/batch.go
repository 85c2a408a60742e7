package worker

import (
	"context"
	"fmt"
)

// Indexed is a Result that remembers which input it was produced for
type Indexed interface {
	Result
	Index() int
}

// RunBatch executes jobs on a bounded pool and returns results ordered by Index.
// When ctx is cancelled before every job completes, partial results are
// discarded and the context error is returned.
func RunBatch(ctx context.Context, workers int, jobs []Job) ([]Indexed, error) {
	if len(jobs) == 0 {
		return []Indexed{}, nil
	}

	pool := NewPool(ctx, workers)
	pool.Start()

	for _, job := range jobs {
		if err := pool.Submit(job); err != nil {
			pool.Shutdown()
			return nil, err
		}
	}

	results := pool.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) != len(jobs) {
		return nil, fmt.Errorf("batch incomplete: %d of %d jobs returned", len(results), len(jobs))
	}

	ordered := make([]Indexed, len(jobs))
	for _, r := range results {
		ir, ok := r.(Indexed)
		if !ok {
			return nil, fmt.Errorf("batch result %T is not indexed", r)
		}
		if ir.Index() < 0 || ir.Index() >= len(jobs) || ordered[ir.Index()] != nil {
			return nil, fmt.Errorf("batch result index %d out of range or duplicated", ir.Index())
		}
		ordered[ir.Index()] = ir
	}
	return ordered, nil
}
