// Package chat answers questions about ARGO float data and broadcasts the replies.
package chat

import (
	"context"
	"strings"

	"github.com/alecthomas/errors"
	"go.jetify.com/typeid/v2"

	"github.com/floatchat/floatchat/argo"
)

// ErrEmptyMessage is returned for requests without a message.
var ErrEmptyMessage = errors.New("message is required")

type Request struct {
	Message string `json:"message"`
	// Filters optionally narrows "where" queries, using the same keys as the floats API.
	Filters   map[string]any `json:"filters,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Validate the request.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return errors.WithStack(ErrEmptyMessage)
	}
	return nil
}

type ActionType string

const (
	ActionHighlight ActionType = "highlight"
	ActionCompare   ActionType = "compare"
	ActionVisualize ActionType = "visualize"
)

// Action is a hint to the dashboard, such as highlighting floats on the map.
type Action struct {
	Type ActionType     `json:"type"`
	Data map[string]any `json:"data"`
}

// Highlight floats on the map.
func Highlight(ids ...string) Action {
	return Action{Type: ActionHighlight, Data: map[string]any{"float_ids": ids}}
}

// Compare floats side by side.
func Compare(ids ...string) Action {
	return Action{Type: ActionCompare, Data: map[string]any{"float_ids": ids}}
}

// Visualize switches the dashboard to a named visualisation.
func Visualize(kind string) Action {
	return Action{Type: ActionVisualize, Data: map[string]any{"type": kind}}
}

type Response struct {
	ID         string   `json:"id"`
	Reply      string   `json:"reply"`
	Actions    []Action `json:"actions"`
	SQLQuery   string   `json:"sql_query,omitempty"`
	Confidence float64  `json:"confidence"`
}

// EventID implements pubsub.EventPayload.
func (r Response) EventID() string { return r.ID }

// NewResponseID returns a new "chat_" prefixed TypeID.
func NewResponseID() string {
	return typeid.MustGenerate("chat").String()
}

// Responder produces a reply to a chat request.
type Responder interface {
	Respond(ctx context.Context, req Request) (Response, error)
}

// ResponderFunc adapts a function to a [Responder].
type ResponderFunc func(ctx context.Context, req Request) (Response, error)

func (f ResponderFunc) Respond(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }

// FilterFromMap converts request filters into an [argo.Filter].
//
// Recognised keys are lat_min, lat_max, lon_min, lon_max, float_id and status.
func FilterFromMap(filters map[string]any) (argo.Filter, error) {
	filter := argo.Filter{}
	number := func(key string) (*float64, error) {
		v, ok := filters[key]
		if !ok || v == nil {
			return nil, nil
		}
		f, ok := v.(float64)
		if !ok {
			return nil, errors.Errorf("filter %s: expected a number but got %T", key, v)
		}
		return &f, nil
	}
	text := func(key string) (string, error) {
		v, ok := filters[key]
		if !ok || v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", errors.Errorf("filter %s: expected a string but got %T", key, v)
		}
		return s, nil
	}
	var err error
	if filter.LatMin, err = number("lat_min"); err != nil {
		return argo.Filter{}, err
	}
	if filter.LatMax, err = number("lat_max"); err != nil {
		return argo.Filter{}, err
	}
	if filter.LonMin, err = number("lon_min"); err != nil {
		return argo.Filter{}, err
	}
	if filter.LonMax, err = number("lon_max"); err != nil {
		return argo.Filter{}, err
	}
	if filter.FloatID, err = text("float_id"); err != nil {
		return argo.Filter{}, err
	}
	status, err := text("status")
	if err != nil {
		return argo.Filter{}, err
	}
	filter.Status = argo.Status(status)
	return filter, nil
}
