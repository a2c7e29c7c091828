package chat

import (
	"context"
	"log/slog"

	"github.com/alecthomas/errors"

	"github.com/floatchat/floatchat/providers/pubsub"
)

// Service answers chat requests and broadcasts every reply on a topic.
type Service struct {
	logger    *slog.Logger
	responder Responder
	topic     pubsub.Topic[Response]
}

func NewService(logger *slog.Logger, responder Responder, topic pubsub.Topic[Response]) *Service {
	return &Service{logger: logger, responder: responder, topic: topic}
}

// Handle a chat request.
//
// Responder failures are turned into an apologetic reply rather than an error,
// so callers always have something to show the user.
func (s *Service) Handle(ctx context.Context, req Request) Response {
	s.logger.Debug("Received chat request", "message", req.Message)
	resp, err := s.responder.Respond(ctx, req)
	if err != nil {
		s.logger.Error("Chat responder failed", "error", err)
		resp = Response{
			Reply:      "I encountered an error processing your request: " + err.Error(),
			Actions:    []Action{},
			Confidence: 0.5,
		}
	}
	if resp.ID == "" {
		resp.ID = NewResponseID()
	}
	if resp.Actions == nil {
		resp.Actions = []Action{}
	}
	if err := s.topic.Publish(ctx, pubsub.NewEvent(resp)); err != nil {
		s.logger.Warn("Failed to broadcast chat response", "id", resp.ID, "error", err)
	}
	return resp
}

// Subscribe to every reply produced by [Service.Handle] until ctx is cancelled.
//
// Each distinct group receives every reply.
func (s *Service) Subscribe(ctx context.Context, group string, handler pubsub.Handler[Response]) error {
	return errors.WithStack(s.topic.Subscribe(ctx, group, handler))
}
