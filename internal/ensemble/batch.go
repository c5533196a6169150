package ensemble

import (
	"context"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BatchResult is the outcome of one request in a batch.
type BatchResult struct {
	Result *domain.EnsembleResult `json:"result,omitempty"`
	Err    error                  `json:"-"`
	Error  string                 `json:"error,omitempty"`
}

// AnalyzeBatch admits every valid request in input order, then scores them
// concurrently through a bounded worker pool. Each application sees all others
// in its batch regardless of scheduling. Results are returned in input order.
func (d *Detector) AnalyzeBatch(ctx context.Context, reqs []*domain.ScoringRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))
	admitted := make([]*admission, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			results[i] = failed(err)
			continue
		}
		if err := validateRequest(req); err != nil {
			results[i] = failed(err)
			continue
		}
		admitted[i] = d.admit(ctx, req)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.cfg.BatchWorkers)

	for i, a := range admitted {
		if a == nil {
			continue
		}
		select {
		case sem <- struct{}{}: // Acquire
		case <-ctx.Done():
			for j := i; j < len(reqs); j++ {
				if admitted[j] != nil {
					results[j] = failed(ctx.Err())
				}
			}
			wg.Wait()
			return results
		}

		wg.Add(1)
		go func(idx int, a *admission) {
			defer wg.Done()
			defer func() { <-sem }() // Release
			results[idx] = BatchResult{Result: d.score(ctx, a)}
		}(i, a)
	}

	wg.Wait()
	return results
}

func failed(err error) BatchResult {
	return BatchResult{Err: err, Error: err.Error()}
}
