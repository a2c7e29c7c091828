package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/errors"

	"github.com/floatchat/floatchat"
	"github.com/floatchat/floatchat/chat"
	"github.com/floatchat/floatchat/providers/pubsub"
)

// eventBuffer is the number of chat events queued for a slow browser before the topic starts dropping them.
const eventBuffer = 16

// browser names the subscription group of a single event stream.
type browser struct{}

type connected struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Events streams every chat reply to the client as a server-sent event.
//
// Each stream subscribes in its own group, so every connected browser receives every reply.
// The stream opens with a "connection" event and each reply is sent as a "chat" event whose
// data is the reply's CloudEvent.
func (s *Service) Events(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan pubsub.Event[chat.Response], eventBuffer)
	group := pubsub.NewID[browser]()
	err := s.chat.Subscribe(ctx, group, func(ctx context.Context, event pubsub.Event[chat.Response]) error {
		select {
		case events <- event:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		floatchat.EncodeResponse(s.logger, r, w, floatchat.EncodeError, nil, err)
		return
	}

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.logger.Debug("Event stream opened", "group", group)
	defer s.logger.Debug("Event stream closed", "group", group)

	hello, err := json.Marshal(connected{
		Type:      "connection",
		Message:   "Connected to FloatChat",
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("Failed to encode connection event", "error", err)
		return
	}
	if err := writeEvent(rc, w, "", "connection", hello); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return

		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("Failed to encode chat event", "event", event.ID(), "error", err)
				continue
			}
			if err := writeEvent(rc, w, event.ID(), "chat", data); err != nil {
				s.logger.Debug("Failed to write chat event", "event", event.ID(), "error", err)
				return
			}
		}
	}
}

func writeEvent(rc *http.ResponseController, w http.ResponseWriter, id, name string, data []byte) error {
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return errors.WithStack(err)
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(rc.Flush())
}
