// Package batch drives the crawl one checkpointed batch at a time.
//
// Batches execute strictly sequentially: every fetch of batch i reaches a
// terminal outcome and the batch's artifact and failure rows are durably
// written before batch i+1 starts. Within a batch, fetches run concurrently
// with no ordering guarantee.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tikitools/tiki-crawler/pkg/catalog"
	"github.com/tikitools/tiki-crawler/pkg/logging"
	"github.com/tikitools/tiki-crawler/pkg/store"
)

// Config holds orchestrator configuration.
type Config struct {
	// BatchSize is the number of identifiers per batch.
	BatchSize int

	// Cooldown is slept between batches.
	Cooldown time.Duration

	// ProgressEvery controls how many completed fetches separate progress
	// log lines within a batch.
	ProgressEvery int
}

// DefaultConfig returns the configuration of the original crawl runs.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		Cooldown:      3 * time.Second,
		ProgressEvery: 200,
	}
}

// Fetcher resolves one identifier to a terminal outcome. Implemented by
// catalog.Client; tests substitute instrumented stubs.
type Fetcher interface {
	Fetch(ctx context.Context, id string) catalog.Outcome
}

// Runner partitions the identifier list into batches and drives each batch
// through fetch, persist, and failure flush.
type Runner struct {
	fetcher   Fetcher
	artifacts *store.ArtifactStore
	failures  *store.FailureLog
	config    Config
	logger    zerolog.Logger
}

// Summary aggregates one run's results.
type Summary struct {
	StartBatch   int
	TotalBatches int
	BatchesRun   int
	Successes    int
	Failures     int
}

// NewRunner creates a batch runner.
func NewRunner(fetcher Fetcher, artifacts *store.ArtifactStore, failures *store.FailureLog, cfg Config) (*Runner, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if failures == nil {
		return nil, fmt.Errorf("failure log is required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive (got %d)", cfg.BatchSize)
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown cannot be negative (got %s)", cfg.Cooldown)
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultConfig().ProgressEvery
	}

	return &Runner{
		fetcher:   fetcher,
		artifacts: artifacts,
		failures:  failures,
		config:    cfg,
		logger:    logging.NewLogger("batch"),
	}, nil
}

// Run processes batches startBatch..total in order. Per-identifier failures
// are captured as failure rows and never stop the run; persistence errors
// and context cancellation do.
func (r *Runner) Run(ctx context.Context, ids []string, startBatch int) (*Summary, error) {
	if startBatch < 1 {
		return nil, fmt.Errorf("start batch must be >= 1 (got %d)", startBatch)
	}

	total := (len(ids) + r.config.BatchSize - 1) / r.config.BatchSize
	summary := &Summary{StartBatch: startBatch, TotalBatches: total}

	if startBatch > total {
		r.logger.Info().
			Int("start_batch", startBatch).
			Int("total_batches", total).
			Msg("Nothing to do, all batches already completed")
		return summary, nil
	}

	for index := startBatch; index <= total; index++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		lo := (index - 1) * r.config.BatchSize
		hi := lo + r.config.BatchSize
		if hi > len(ids) {
			hi = len(ids)
		}
		batchIDs := ids[lo:hi]

		r.logger.Info().
			Int("batch", index).
			Int("total_batches", total).
			Int("ids", len(batchIDs)).
			Msg("Processing batch")

		outcomes := r.runBatch(ctx, index, batchIDs)

		// A batch interrupted by cancellation leaves no artifact and is
		// fully redone on the next run.
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		successes := make([]*catalog.Product, 0, len(outcomes))
		failures := make([]store.FailureRecord, 0)
		for _, outcome := range outcomes {
			if outcome.Success() {
				successes = append(successes, outcome.Product)
			} else {
				failures = append(failures, store.FailureRecord{
					ID:     outcome.ID,
					Reason: outcome.Reason.String(),
				})
			}
		}

		// The artifact write is the checkpoint; it must complete before
		// the batch counts as done.
		if err := r.artifacts.WriteBatch(index, successes); err != nil {
			return summary, fmt.Errorf("persist batch %d: %w", index, err)
		}
		if err := r.failures.Append(failures); err != nil {
			return summary, fmt.Errorf("flush failures for batch %d: %w", index, err)
		}

		summary.BatchesRun++
		summary.Successes += len(successes)
		summary.Failures += len(failures)

		r.logger.Info().
			Int("batch", index).
			Int("successes", len(successes)).
			Int("failures", len(failures)).
			Int("total_successes", summary.Successes).
			Msg("Batch completed")

		if index < total && r.config.Cooldown > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(r.config.Cooldown):
			}
		}
	}

	return summary, nil
}

// runBatch dispatches one fetch goroutine per identifier and joins them
// all. The results channel is closed only after every worker finished, so
// the collection loop below is a hard join point.
func (r *Runner) runBatch(ctx context.Context, index int, ids []string) []catalog.Outcome {
	results := make(chan catalog.Outcome, len(ids))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			results <- r.fetcher.Fetch(ctx, id)
		}(id)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]catalog.Outcome, 0, len(ids))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
		if len(outcomes)%r.config.ProgressEvery == 0 {
			r.logger.Info().
				Int("batch", index).
				Int("done", len(outcomes)).
				Int("total", len(ids)).
				Msg("Batch progress")
		}
	}
	return outcomes
}
