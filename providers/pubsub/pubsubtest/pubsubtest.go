// Package pubsubtest contains helper functions for testing pubsub.
package pubsubtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/floatchat/floatchat/providers/pubsub"
)

type User struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func (u User) EventID() string { return u.Name }

// RunPubSubTest runs the test suite for a [pubsub.Topic] implementation.
//
// Two subscribers share the "workers" group and one subscribes alone to "audit",
// so every event must be seen once by the workers and once by the auditor.
func RunPubSubTest(t *testing.T, topic pubsub.Topic[User]) {
	t.Helper()
	t.Cleanup(func() {
		assert.NoError(t, topic.Close())
	})
	var worker0, worker1, audit atomic.Int32
	count := func(counter *atomic.Int32) pubsub.Handler[User] {
		return func(ctx context.Context, event pubsub.Event[User]) error {
			counter.Add(1)
			return nil
		}
	}
	assert.NoError(t, topic.Subscribe(t.Context(), "workers", count(&worker0)))
	assert.NoError(t, topic.Subscribe(t.Context(), "workers", count(&worker1)))
	assert.NoError(t, topic.Subscribe(t.Context(), "audit", count(&audit)))

	for i := range 16 {
		err := topic.Publish(t.Context(), pubsub.NewEvent(User{Name: fmt.Sprintf("Alice %d", i), Age: 30}))
		assert.NoError(t, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if worker0.Load()+worker1.Load() == 16 && audit.Load() == 16 {
			return
		}
		time.Sleep(time.Millisecond * 20)
	}
	t.Fatalf("workers = %d + %d, audit = %d", worker0.Load(), worker1.Load(), audit.Load())
}
