package pubsub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alecthomas/errors"
)

type memoryGroup[T any] struct {
	events  chan Event[T]
	members int
}

// InMemoryTopic delivers events within the process.
//
// Each subscription group has a bounded buffer. Events published while a group's
// buffer is full are dropped for that group and logged.
type InMemoryTopic[T any] struct {
	logger *slog.Logger
	buffer int

	lock   sync.Mutex
	closed bool
	groups map[string]*memoryGroup[T]
}

var _ Topic[string] = (*InMemoryTopic[string])(nil)

// NewMemoryTopic creates a new in-memory [Topic].
func NewMemoryTopic[T any](logger *slog.Logger) *InMemoryTopic[T] {
	return &InMemoryTopic[T]{
		logger: logger,
		buffer: 128,
		groups: map[string]*memoryGroup[T]{},
	}
}

func (i *InMemoryTopic[T]) Publish(ctx context.Context, event Event[T]) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return errors.WithStack(ErrClosed)
	}
	for name, group := range i.groups {
		select {
		case group.events <- event:
		default:
			i.logger.Warn("Dropping event, subscriber buffer full", "group", name, "event", event.ID())
		}
	}
	return nil
}

func (i *InMemoryTopic[T]) Subscribe(ctx context.Context, group string, handler Handler[T]) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return errors.WithStack(ErrClosed)
	}
	g, ok := i.groups[group]
	if !ok {
		g = &memoryGroup[T]{events: make(chan Event[T], i.buffer)}
		i.groups[group] = g
	}
	g.members++
	go i.consume(ctx, group, g, handler)
	return nil
}

func (i *InMemoryTopic[T]) consume(ctx context.Context, name string, group *memoryGroup[T], handler Handler[T]) {
	defer i.leave(name, group)
	for {
		select {
		case event, ok := <-group.events:
			if !ok {
				return
			}
			if err := handler(ctx, event); err != nil {
				i.logger.Error("Failed to handle event", "group", name, "event", event.ID(), "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (i *InMemoryTopic[T]) leave(name string, group *memoryGroup[T]) {
	i.lock.Lock()
	defer i.lock.Unlock()
	group.members--
	if group.members == 0 && i.groups[name] == group {
		delete(i.groups, name)
	}
}

// Subscribers returns the number of active subscription groups.
func (i *InMemoryTopic[T]) Subscribers() int {
	i.lock.Lock()
	defer i.lock.Unlock()
	return len(i.groups)
}

func (i *InMemoryTopic[T]) Close() error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	for name, group := range i.groups {
		close(group.events)
		delete(i.groups, name)
	}
	return nil
}
