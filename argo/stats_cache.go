package argo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alecthomas/errors"

	"github.com/floatchat/floatchat/providers/cron"
)

const (
	// StatsRefreshJob names the cron job refreshing a [StatsCache], and so its lease.
	StatsRefreshJob = "argo-stats"
	// StatsRefreshPeriod is how often the stats refresh job is scheduled.
	StatsRefreshPeriod = time.Minute
)

// Registrar is implemented by [cron.Scheduler].
type Registrar interface {
	Register(name string, schedule time.Duration, job cron.Job) error
}

// StatsCache serves [Stats] from memory, loading them from the underlying [Store] on first use and on Refresh.
type StatsCache struct {
	store  Store
	logger *slog.Logger

	lock   sync.Mutex
	stats  Stats
	loaded bool
}

func NewStatsCache(logger *slog.Logger, store Store) *StatsCache {
	return &StatsCache{store: store, logger: logger}
}

// Schedule registers a job that periodically refreshes the cache.
func (c *StatsCache) Schedule(registrar Registrar) error {
	return errors.WithStack(registrar.Register(StatsRefreshJob, StatsRefreshPeriod, c.Refresh))
}

// Stats returns the cached stats, loading them if necessary.
func (c *StatsCache) Stats(ctx context.Context) (Stats, error) {
	c.lock.Lock()
	if c.loaded {
		defer c.lock.Unlock()
		return c.stats, nil
	}
	c.lock.Unlock()
	if err := c.Refresh(ctx); err != nil {
		return Stats{}, errors.WithStack(err)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stats, nil
}

// Refresh reloads the stats from the store.
func (c *StatsCache) Refresh(ctx context.Context) error {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return errors.Errorf("failed to refresh stats: %w", err)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.stats = stats
	c.loaded = true
	c.logger.Debug("Refreshed stats", "floats", stats.TotalFloats, "profiles", stats.TotalProfiles)
	return nil
}

// Invalidate drops the cached stats so the next call to Stats reloads them.
func (c *StatsCache) Invalidate() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.loaded = false
}
