// Package scheduler wires up the cron job that periodically triggers a
// full aggregation run.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"procurepulse/aggregator-service/internal/orchestrator"
)

// Scheduler wraps robfig/cron and manages the recurring run loop.
type Scheduler struct {
	cron    *cron.Cron
	runner  *orchestrator.Runner
	status  *orchestrator.Status
	spec    string // cron spec, e.g. "@every 24h"
	entryID cron.EntryID
}

// New creates a Scheduler that fires every intervalHours hours.
func New(runner *orchestrator.Runner, status *orchestrator.Status, intervalHours int) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cron.DefaultLogger)),
		runner: runner,
		status: status,
		spec:   fmt.Sprintf("@every %dh", intervalHours),
	}
}

// Start registers the job and starts the scheduler. Also runs one
// aggregation immediately so the table is populated without waiting for
// the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.entryID = id

	s.cron.Start()
	// Persisted next-run times come from the live entry, not an
	// interval approximation.
	s.status.TrackSchedule(s.NextRun)
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)

	// Run immediately on startup (non-blocking)
	go s.runOnce(ctx)

	return nil
}

// NextRun reports the next scheduled tick. Zero before Start.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

// runOnce executes a full run and refreshes the persisted run status.
// The on-demand /run endpoint shares the same Runner; only the trigger
// differs.
func (s *Scheduler) runOnce(ctx context.Context) {
	log.Println("[scheduler] Aggregation cycle started")

	report := s.runner.Run(ctx)

	if err := s.status.Refresh(ctx, &report); err != nil {
		log.Printf("[scheduler] status refresh error: %v", err)
	}

	log.Printf("[scheduler] Aggregation cycle complete — inserted=%d updated=%d errors=%d",
		report.TotalInserted, report.TotalUpdated, report.TotalErrors)
}
