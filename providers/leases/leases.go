// Package leases provides mutual exclusion between FloatChat replicas.
//
// The cron scheduler takes a lease per job, so that a job such as the ARGO stats refresh runs on one replica at a
// time even when several share a database.
package leases

import (
	"context"
	"time"

	"github.com/alecthomas/errors"
)

// ErrLeaseHeld is returned when the lease acquisition times out because the lease is already held.
var ErrLeaseHeld = errors.New("lease is held")

// ErrLeaseNotHeld is returned by Release when the lease is not held.
var ErrLeaseNotHeld = errors.New("lease is not held")

// JobKey is the lease key guarding the cron job named job.
func JobKey(job string) string { return "cron/" + job }

// Release an acquired lease.
type Release func(ctx context.Context) error

// Leaser acquires and releases named leases.
type Leaser interface {
	// Acquire acquires a lease for the given key.
	//
	// It blocks until the lease is acquired, timeout is reached, or ctx is cancelled. An acquired lease is released
	// by calling the returned [Release] or by cancelling ctx.
	//
	// Implementations shared between processes renew their leases, and terminate the process if renewal keeps
	// failing.
	Acquire(ctx context.Context, key string, timeout time.Duration) (Release, error)

	// Close releases all resources associated with the leaser.
	Close() error
}
