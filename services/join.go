package services

import (
	"context"
	"fmt"
	"sync"

	"bizharvest/models"
	"bizharvest/utils"
)

// SourceRunner executes one independent harvest run (own orchestrator, own
// browser surface) and returns its result.
type SourceRunner func(ctx context.Context) (*models.ParseResult, error)

// JoinSources runs independent sources on the worker pool and joins them:
// all runs must finish before the combined summary is computed, and a
// failure of any source fails the join (partial results are still returned
// for inspection). The runs share no mutable state; this join is the only
// synchronization point.
func JoinSources(ctx context.Context, pool *utils.WorkerPool, runners []SourceRunner) ([]*models.ParseResult, models.AggregateSummary, error) {
	results := make([]*models.ParseResult, len(runners))
	errs := make([]error, len(runners))
	var mu sync.Mutex

	for i, runner := range runners {
		i, runner := i, runner
		pool.Submit(func() {
			res, err := runner(ctx)
			mu.Lock()
			results[i], errs[i] = res, err
			mu.Unlock()
		})
	}
	pool.Wait()

	completed := results[:0:0]
	summaries := make([]models.AggregateSummary, 0, len(runners))
	var firstErr error
	for i, res := range results {
		if errs[i] != nil && firstErr == nil {
			firstErr = fmt.Errorf("source %d: %w", i+1, errs[i])
		}
		if res != nil {
			completed = append(completed, res)
			summaries = append(summaries, res.Aggregated)
		}
	}

	return completed, MergeSummaries(summaries...), firstErr
}
