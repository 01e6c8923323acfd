// Package orchestrator drives the full aggregation run: it executes every
// configured source adapter, pushes the results through normalization and
// per-run deduplication, hands each source's batch to the persistence
// sink, and aggregates one run report. Adapter failures — including
// panics — are contained at the adapter boundary and never abort the run.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"procurepulse/aggregator-service/internal/adapter"
	"procurepulse/aggregator-service/internal/dedup"
	"procurepulse/aggregator-service/internal/model"
	"procurepulse/aggregator-service/internal/normalize"
)

// errCategoryPanic and errCategoryPersistence extend the adapter error
// categories with failures that happen outside the adapters themselves.
const (
	errCategoryPanic       = "panic"
	errCategoryPersistence = "persistence"
)

// Sink is the persistence boundary the runner writes through.
type Sink interface {
	UpsertBatch(ctx context.Context, source string, opps []*model.Opportunity) (inserted, updated int, err error)
}

// Runner executes one aggregation run across all adapters.
type Runner struct {
	adapters   []adapter.Adapter
	normalizer *normalize.Normalizer
	sink       Sink
	filter     adapter.Filter
	priority   []string
	parallel   bool
	runTimeout time.Duration // 0 disables the run-level bound
}

// New assembles a Runner.
func New(adapters []adapter.Adapter, normalizer *normalize.Normalizer, sink Sink, filter adapter.Filter, priority []string, parallel bool, runTimeout time.Duration) *Runner {
	return &Runner{
		adapters:   adapters,
		normalizer: normalizer,
		sink:       sink,
		filter:     filter,
		priority:   priority,
		parallel:   parallel,
		runTimeout: runTimeout,
	}
}

// adapterResult is one adapter's completed work. Each task owns its result
// exclusively until it is merged after completion, so no locking is needed
// around adapter execution.
type adapterResult struct {
	name     string
	opps     []*model.Opportunity
	report   model.AdapterReport
	rejected int
}

// Run executes every adapter (sequentially or concurrently), deduplicates
// the merged batch, persists per-source batches, and returns the report.
func (r *Runner) Run(ctx context.Context) model.RunReport {
	report := model.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log.Printf("[orchestrator] run %s started — %d adapter(s), parallel=%v", report.RunID, len(r.adapters), r.parallel)

	// The run-level bound applies to fetching only. Adapters still in
	// flight when it elapses fail with partial results, but batches from
	// adapters that finished in time must still persist, so the sink keeps
	// the caller's context.
	fetchCtx := ctx
	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	results := r.collect(fetchCtx, report.StartedAt)

	// Merge in adapter registration order so reports are deterministic,
	// then deduplicate across the whole run with source priority.
	var merged []*model.Opportunity
	for _, res := range results {
		merged = append(merged, res.opps...)
	}
	kept, droppedBySource := dedup.Deduplicate(merged, r.priority)

	perSource := make(map[string][]*model.Opportunity, len(results))
	for _, opp := range kept {
		perSource[opp.Source] = append(perSource[opp.Source], opp)
	}

	persistFailures := 0
	for i := range results {
		res := &results[i]
		src := model.SourceReport{
			Source:           res.name,
			Fetched:          res.report.Fetched,
			Rejected:         res.rejected,
			Deduplicated:     droppedBySource[res.name],
			ErrorsByCategory: res.report.Errors,
			ZeroResults:      res.report.Fetched == 0,
			ElapsedMs:        res.report.Elapsed.Milliseconds(),
		}

		// One transaction per source batch; a failure rolls back this
		// batch only and the records retry on the next scheduled run.
		inserted, updated, err := r.sink.UpsertBatch(ctx, res.name, perSource[res.name])
		if err != nil {
			log.Printf("[orchestrator] persist %s: %v — batch rolled back", res.name, err)
			persistFailures++
			res.report.AddError(errCategoryPersistence)
			src.ErrorsByCategory = res.report.Errors
		}
		src.Inserted = inserted
		src.Updated = updated

		if src.ZeroResults {
			log.Printf("[orchestrator] zero-results alert: %s returned nothing (errors=%d)", res.name, res.report.ErrorTotal())
		}

		report.PerSource = append(report.PerSource, src)
		report.TotalInserted += inserted
		report.TotalUpdated += updated
		report.TotalErrors += res.report.ErrorTotal()
	}

	// Every single batch failing means storage itself is down; that is the
	// one run-level fatal condition and operators must be able to alert on
	// it rather than find it buried in per-source counts.
	if persistFailures > 0 && persistFailures == len(results) {
		log.Printf("[orchestrator] FATAL: storage unreachable — all %d batches rolled back this run", persistFailures)
	}

	report.FinishedAt = time.Now().UTC()
	log.Printf("[orchestrator] run %s done — inserted=%d updated=%d errors=%d elapsed=%s",
		report.RunID, report.TotalInserted, report.TotalUpdated, report.TotalErrors,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report
}

// collect runs every adapter and returns results in registration order.
func (r *Runner) collect(ctx context.Context, scrapedAt time.Time) []adapterResult {
	results := make([]adapterResult, len(r.adapters))

	if !r.parallel {
		for i, a := range r.adapters {
			results[i] = r.runAdapter(ctx, a, scrapedAt)
		}
		return results
	}

	// Bounded worker pool sized to the adapter count: each task owns its
	// own result slot and nothing is shared until the WaitGroup clears.
	var wg sync.WaitGroup
	for i, a := range r.adapters {
		wg.Add(1)
		go func(i int, a adapter.Adapter) {
			defer wg.Done()
			results[i] = r.runAdapter(ctx, a, scrapedAt)
		}(i, a)
	}
	wg.Wait()
	return results
}

// runAdapter executes one adapter's fetch and normalizes its output. A
// panic inside the adapter is recorded as that adapter's failure and must
// not disturb any sibling adapter or the run itself.
func (r *Runner) runAdapter(ctx context.Context, a adapter.Adapter, scrapedAt time.Time) (res adapterResult) {
	res.name = a.Name()
	res.report = model.NewAdapterReport()

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[orchestrator] adapter %s panicked: %v — isolated", res.name, rec)
			res.report.AddError(errCategoryPanic)
		}
	}()

	raw, report := a.Fetch(ctx, r.filter)
	res.report = report

	for _, rec := range raw {
		opp, reason := r.normalizer.Normalize(rec, res.name, scrapedAt)
		if reason != "" {
			res.rejected++
			continue
		}
		res.opps = append(res.opps, opp)
	}
	return res
}
