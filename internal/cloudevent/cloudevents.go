// Package cloudevent models CloudEvents (https://cloudevents.io/) in their JSON form.
package cloudevent

import (
	"reflect"
	"time"
)

const SpecVersion = "1.0"

type Event[T any] struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject,omitempty"`
	Time            time.Time `json:"time"`
	ID              string    `json:"id"`
	DataContentType string    `json:"datacontenttype"`
	Data            T         `json:"data"`
}

// TypeName returns the CloudEvent type for payloads of type T, eg. "github.com/floatchat/floatchat/chat.Response".
func TypeName[T any]() string {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}

func New[T any](id, source, subject string, created time.Time, data T) Event[T] {
	return Event[T]{
		SpecVersion:     SpecVersion,
		Type:            TypeName[T](),
		Source:          source,
		Subject:         subject,
		Time:            created,
		ID:              id,
		DataContentType: "application/json; charset=utf-8",
		Data:            data,
	}
}
