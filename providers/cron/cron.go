// Package cron runs periodic background jobs such as the dashboard stats refresh.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alecthomas/errors"

	"github.com/floatchat/floatchat/providers/leases"
)

// MinPeriod is the shortest period a job may be scheduled with.
const MinPeriod = 5 * time.Second

type Schedule struct {
	name    string
	lastRun time.Time
	period  time.Duration
	run     Job
}

// NextRun returns the next time the job should run.
func (s *Schedule) NextRun() time.Time {
	return nextRun(s.period, s.lastRun)
}

func (s *Schedule) String() string {
	return fmt.Sprintf("Schedule(%q, nextRun=%s)", s.name, s.NextRun().Format(time.RFC3339))
}

// Job represents a cron job.
type Job func(ctx context.Context) error

type Scheduler struct {
	lock      sync.Mutex
	logger    *slog.Logger
	leaser    leases.Leaser
	now       func() time.Time
	schedules []*Schedule
}

// NewScheduler creates a new cron scheduler that runs until ctx is cancelled.
//
// The [Scheduler] uses [leases.Leaser] to prevent cron jobs from running concurrently.
func NewScheduler(ctx context.Context, logger *slog.Logger, leaser leases.Leaser) *Scheduler {
	return NewSchedulerForTesting(ctx, logger, leaser, time.Now)
}

// NewSchedulerForTesting creates a scheduler with a custom clock.
func NewSchedulerForTesting(ctx context.Context, logger *slog.Logger, leaser leases.Leaser, now func() time.Time) *Scheduler {
	s := &Scheduler{logger: logger, leaser: leaser, now: now}
	go s.run(ctx)
	return s
}

// Register a new cron job.
func (s *Scheduler) Register(name string, schedule time.Duration, job Job) error {
	if schedule < MinPeriod {
		return errors.Errorf("%s: schedule duration must be at least %s", name, MinPeriod)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	sched := &Schedule{name: name, period: schedule, run: job, lastRun: s.now()}
	s.schedules = append(s.schedules, sched)
	s.logger.Debug("Scheduled new cron job", "job", sched.name, "period", schedule)
	s.sortSchedulesNoLock()
	return nil
}

// Schedules returns a snapshot of the registered schedules, soonest first.
func (s *Scheduler) Schedules() []Schedule {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, *schedule)
	}
	return out
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(time.Millisecond * 100)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := s.now()
		s.lock.Lock()
		for _, schedule := range s.schedules {
			if !schedule.NextRun().Before(now) {
				continue
			}
			schedule.lastRun = now
			s.runJob(ctx, schedule)
		}
		s.sortSchedulesNoLock()
		s.lock.Unlock()
	}
}

func (s *Scheduler) runJob(ctx context.Context, schedule *Schedule) {
	release, err := s.leaser.Acquire(ctx, leases.JobKey(schedule.name), schedule.period/2)
	if err != nil {
		// Another replica holds the lease.
		s.logger.Warn("Skipping cron job, lease not acquired", "job", schedule.name, "error", err)
		return
	}
	defer func() {
		if err := release(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Failed to release lease for cron job", "job", schedule.name, "error", err)
		}
	}()
	start := s.now()
	if err := schedule.run(ctx); err != nil {
		s.logger.Error("Cron job failed", "job", schedule.name, "error", err)
		return
	}
	s.logger.Debug("Cron job completed", "job", schedule.name, "elapsed", s.now().Sub(start))
}

func (s *Scheduler) sortSchedulesNoLock() {
	slices.SortFunc(s.schedules, func(a, b *Schedule) int { return a.NextRun().Compare(b.NextRun()) })
}

// Calculate the next time a cron job should run.
//
// eg. If period=5m, and lastRun=5:01 it will return 5:05.
func nextRun(period time.Duration, lastRun time.Time) time.Time {
	// Floor the current time to the nearest period boundary.
	lastRunDurationSinceEpoch := time.Duration(lastRun.UnixNano()) / period * period
	nextRun := lastRunDurationSinceEpoch + period
	return time.Unix(0, nextRun.Nanoseconds()).UTC()
}
