package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"procurepulse/aggregator-service/internal/model"
)

const statusKey = "aggregator:run_status"

// Status owns the process-wide scheduler state: last run time, next
// scheduled run, and the last report. It is persisted in Redis so the
// state survives restarts and is queryable without triggering a run.
type Status struct {
	rdb      *redis.Client
	interval time.Duration

	mu     sync.RWMutex
	nextFn func() time.Time // live schedule, when one is running
}

// NewStatus returns a Status for a schedule firing every interval.
func NewStatus(rdb *redis.Client, interval time.Duration) *Status {
	return &Status{rdb: rdb, interval: interval}
}

// TrackSchedule points Refresh at the live cron schedule, so the persisted
// next-run time matches the actual tick. Without it the next run is
// approximated as finish time plus the interval, which drifts by each
// run's duration.
func (s *Status) TrackSchedule(next func() time.Time) {
	s.mu.Lock()
	s.nextFn = next
	s.mu.Unlock()
}

// nextRunAt resolves the next scheduled run relative to a finished one.
func (s *Status) nextRunAt(finished time.Time) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nextFn != nil {
		if n := s.nextFn(); !n.IsZero() {
			return n.UTC()
		}
	}
	return finished.Add(s.interval)
}

// Init ensures a status document exists at startup. An existing document
// is left alone; a fresh one announces the immediate first run.
func (s *Status) Init(ctx context.Context) error {
	err := s.rdb.Get(ctx, statusKey).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read run status: %w", err)
	}

	now := time.Now().UTC()
	return s.write(ctx, model.RunStatus{NextRunAt: &now})
}

// Refresh records a completed run and schedules the next one.
func (s *Status) Refresh(ctx context.Context, report *model.RunReport) error {
	last := report.FinishedAt
	next := s.nextRunAt(last)
	return s.write(ctx, model.RunStatus{
		LastRunAt:  &last,
		NextRunAt:  &next,
		LastReport: report,
	})
}

// Get returns the current status document.
func (s *Status) Get(ctx context.Context) (*model.RunStatus, error) {
	raw, err := s.rdb.Get(ctx, statusKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return &model.RunStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run status: %w", err)
	}

	var status model.RunStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode run status: %w", err)
	}
	return &status, nil
}

func (s *Status) write(ctx context.Context, status model.RunStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode run status: %w", err)
	}
	if err := s.rdb.Set(ctx, statusKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("write run status: %w", err)
	}
	return nil
}
