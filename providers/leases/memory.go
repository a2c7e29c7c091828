package leases

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/alecthomas/errors"
)

// MemoryLeaser holds leases in process memory.
//
// It only excludes holders within one process, which is all `serve --memory` needs.
type MemoryLeaser struct {
	lock sync.Mutex
	// Each held key maps to a channel closed when the lease is released.
	leases map[string]chan struct{}
}

var _ Leaser = (*MemoryLeaser)(nil)

func NewMemoryLeaser() *MemoryLeaser {
	return &MemoryLeaser{leases: map[string]chan struct{}{}}
}

func (m *MemoryLeaser) Acquire(ctx context.Context, key string, timeout time.Duration) (Release, error) {
	wait, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		m.lock.Lock()
		released, held := m.leases[key]
		if !held {
			released = make(chan struct{})
			m.leases[key] = released
			m.lock.Unlock()
			go func() {
				select {
				case <-ctx.Done():
					m.release(key, released)
				case <-released:
				}
			}()
			return func(context.Context) error {
				if !m.release(key, released) {
					return errors.Errorf("%s: %w", key, ErrLeaseNotHeld)
				}
				return nil
			}, nil
		}
		m.lock.Unlock()

		select {
		case <-released:
		case <-wait.Done():
			if ctx.Err() != nil {
				return nil, errors.WithStack(ctx.Err())
			}
			return nil, errors.Errorf("%s: %w", key, ErrLeaseHeld)
		}
	}
}

// release drops the lease on key if it is still the one signalled by released.
func (m *MemoryLeaser) release(key string, released chan struct{}) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.leases[key] != released {
		return false
	}
	delete(m.leases, key)
	close(released)
	return true
}

// Held returns the keys currently leased, sorted.
func (m *MemoryLeaser) Held() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	keys := make([]string, 0, len(m.leases))
	for key := range m.leases {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func (m *MemoryLeaser) Close() error { return nil }
