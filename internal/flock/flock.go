// Package flock provides advisory file locks shared between processes.
package flock

import (
	"context"
	"os"
	"time"

	"github.com/alecthomas/errors"
	"golang.org/x/sys/unix"
)

// Release a held lock.
type Release func() error

// Acquire an exclusive lock on path, creating it if necessary.
//
// A timeout of zero tries exactly once.
func Acquire(ctx context.Context, path string, timeout time.Duration) (Release, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Errorf("failed to open lock file: %w", err)
	}
	deadline := time.Now().Add(timeout)
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) || !time.Now().Before(deadline) {
			_ = f.Close()
			return nil, errors.Errorf("%s: failed to acquire lock: %w", path, err)
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, errors.WithStack(ctx.Err())
		case <-time.After(time.Millisecond * 100):
		}
	}
	return func() error {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
			_ = f.Close()
			return errors.Errorf("%s: failed to release lock: %w", path, err)
		}
		return errors.WithStack(f.Close())
	}, nil
}
