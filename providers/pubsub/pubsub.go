// Package pubsub contains topics used to fan events out to subscribers, such as browsers listening for chat replies.
package pubsub

import (
	"context"
	"encoding/json"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/alecthomas/errors"
	"go.jetify.com/typeid/v2"

	"github.com/floatchat/floatchat/internal/cloudevent"
	"github.com/floatchat/floatchat/internal/strcase"
)

// ErrClosed is returned when publishing to or subscribing to a closed topic.
var ErrClosed = errors.New("topic closed")

// EventPayload _may_ be implemented by an event to specify an ID.
//
// If not present, a unique TypeID will be generated using [NewID].
type EventPayload interface {
	// EventID returns the unique identifier for the event.
	EventID() string
}

// EventSubject _may_ be implemented by an event to set the CloudEvent "subject".
type EventSubject interface {
	EventSubject() string
}

// Handler receives events delivered to a subscription.
type Handler[T any] func(ctx context.Context, event Event[T]) error

// Topic represents a PubSub topic.
type Topic[T any] interface {
	// Publish publishes an event to every subscription group.
	Publish(ctx context.Context, event Event[T]) error
	// Subscribe to the topic until ctx is cancelled.
	//
	// Each event is delivered to one subscriber in each group.
	Subscribe(ctx context.Context, group string, handler Handler[T]) error
	// Close the topic.
	Close() error
}

// NewID returns a unique identifier for the given type.
//
// The string is a [TypeID](https://github.com/jetify-com/typeid), with the snake_cased type name as the prefix.
func NewID[T any]() string {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := strings.ReplaceAll(strings.ToLower(strings.Join(strcase.Split(t.Name()), "_")), "__", "_")
	return typeid.MustGenerate(name).String()
}

// Event represents a typed CloudEvent.
//
// Marshals to/from a JSON CloudEvent, eg.
//
//	{
//	  "specversion": "1.0",
//	  "type": "github.com/floatchat/floatchat/chat.Response",
//	  "source": "github.com/floatchat/floatchat/chat.(*Service).Handle",
//	  "id": "chat_01h455vb4pex5vsknk084sn02q",
//	  "data": {"reply": "..."}
//	}
type Event[T any] struct {
	id      string
	source  string
	subject string
	created time.Time
	payload T
}

// NewEvent wraps payload in an [Event] sourced from the calling function.
func NewEvent[T any](payload T) Event[T] {
	var source string
	pc, _, _, ok := runtime.Caller(1)
	if ok && pc != 0 {
		source = runtime.FuncForPC(pc).Name()
	}
	var id string
	if p, ok := any(payload).(EventPayload); ok {
		id = p.EventID()
	} else {
		id = NewID[T]()
	}
	var subject string
	if s, ok := any(payload).(EventSubject); ok {
		subject = s.EventSubject()
	}
	return Event[T]{
		id:      id,
		source:  source,
		subject: subject,
		created: time.Now().UTC(),
		payload: payload,
	}
}

func (e Event[T]) ID() string         { return e.id }
func (e Event[T]) Source() string     { return e.source }
func (e Event[T]) Subject() string    { return e.subject }
func (e Event[T]) Created() time.Time { return e.created }
func (e Event[T]) Payload() T         { return e.payload }

func (e Event[T]) MarshalJSON() ([]byte, error) {
	cloudEvent := cloudevent.New(e.id, e.source, e.subject, e.created, e.payload)
	return errors.WithStack2(json.Marshal(cloudEvent))
}

func (e *Event[T]) UnmarshalJSON(data []byte) error {
	var ce cloudevent.Event[T]
	err := json.Unmarshal(data, &ce)
	if err != nil {
		return errors.Errorf("failed to unmarshal CloudEvent: %w", err)
	}
	if ce.SpecVersion != cloudevent.SpecVersion {
		return errors.Errorf("unsupported CloudEvent specversion %q", ce.SpecVersion)
	}
	e.id = ce.ID
	e.source = ce.Source
	e.subject = ce.Subject
	e.created = ce.Time
	e.payload = ce.Data
	return nil
}
