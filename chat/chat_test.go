package chat_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/errors"

	"github.com/floatchat/floatchat/argo"
	"github.com/floatchat/floatchat/chat"
	"github.com/floatchat/floatchat/providers/logging/loggingtest"
	"github.com/floatchat/floatchat/providers/pubsub"
)

func TestKeywordResponder(t *testing.T) {
	tests := []struct {
		message    string
		confidence float64
		reply      string
		actions    []chat.Action
		sql        string
	}{
		{
			message:    "Show me warm water",
			confidence: 0.89,
			reply:      "temperature patterns in the Arabian Sea",
			actions:    []chat.Action{chat.Highlight("1902672", "1902677"), chat.Visualize("temperature_map")},
			sql:        "SELECT wmo, temperature, lat, lon FROM argo_profiles WHERE variable = 'TEMP' AND lat BETWEEN 10 AND 25",
		},
		{
			message:    "How SALTY is it?",
			confidence: 0.92,
			reply:      "36.1 PSU",
			actions:    []chat.Action{chat.Compare("2900533", "2902201"), chat.Visualize("salinity_profile")},
			sql:        "SELECT wmo, salinity, lat, lon FROM argo_profiles WHERE variable = 'PSAL'",
		},
		{
			message:    "Where are the floats?",
			confidence: 0.95,
			reply:      "locations of our active ARGO floats",
			actions:    []chat.Action{chat.Highlight("1902672", "1902677", "2900464", "2900533", "2902201")},
		},
		{
			message:    "depth",
			confidence: 0.88,
			reply:      "thermocline",
			actions:    []chat.Action{chat.Visualize("depth_profile"), chat.Compare("1902672", "2900464")},
		},
		{
			message:    "anything near the equator",
			confidence: 0.91,
			reply:      "Float 2900464",
			actions:    []chat.Action{chat.Highlight("2900464"), chat.Visualize("equatorial_analysis")},
			sql:        "SELECT * FROM argo_profiles WHERE lat BETWEEN -5 AND 5",
		},
		{
			message:    "hello",
			confidence: 0.75,
			reply:      "What would you like to explore?",
			actions:    []chat.Action{},
		},
	}
	responder := chat.NewKeywordResponder(argo.NewSeededMemoryStore())
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			resp, err := responder.Respond(t.Context(), chat.Request{Message: tt.message})
			assert.NoError(t, err)
			assert.Equal(t, tt.confidence, resp.Confidence)
			assert.Contains(t, resp.Reply, tt.reply)
			assert.Equal(t, tt.actions, resp.Actions)
			assert.Equal(t, tt.sql, resp.SQLQuery)
		})
	}
}

func TestKeywordResponderWhereClause(t *testing.T) {
	responder := chat.NewKeywordResponder(argo.NewSeededMemoryStore())

	resp, err := responder.Respond(t.Context(), chat.Request{Message: "Which floats are where lat > 5 and lon < 70?"})
	assert.NoError(t, err)
	assert.Equal(t, "2 floats match lat > 5 and lon < 70: 1902672, 2900533.", resp.Reply)
	assert.Equal(t, []chat.Action{chat.Highlight("1902672", "2900533")}, resp.Actions)
	assert.Contains(t, resp.SQLQuery, "WHERE lat >= 5")
	assert.Equal(t, 0.9, resp.Confidence)

	resp, err = responder.Respond(t.Context(), chat.Request{
		Message: "floats where lat > 5",
		Filters: map[string]any{"status": "delayed"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "Float 2902201 matches lat > 5.", resp.Reply)

	resp, err = responder.Respond(t.Context(), chat.Request{Message: "floats where lat > 80"})
	assert.NoError(t, err)
	assert.Equal(t, "No floats match lat > 80.", resp.Reply)

	_, err = responder.Respond(t.Context(), chat.Request{
		Message: "floats where lat > 5",
		Filters: map[string]any{"lat_min": "north"},
	})
	assert.Error(t, err)
}

func TestKeywordResponderRejectsEmptyMessage(t *testing.T) {
	responder := chat.NewKeywordResponder(argo.NewSeededMemoryStore())
	_, err := responder.Respond(t.Context(), chat.Request{Message: "  "})
	assert.IsError(t, err, chat.ErrEmptyMessage)
}

func TestFilterFromMap(t *testing.T) {
	var filters map[string]any
	assert.NoError(t, json.Unmarshal([]byte(`{"lat_min": 1.5, "lon_max": 90, "float_id": "1902672", "status": null}`), &filters))
	filter, err := chat.FilterFromMap(filters)
	assert.NoError(t, err)
	assert.Equal(t, argo.Filter{LatMin: argo.Bound(1.5), LonMax: argo.Bound(90), FloatID: "1902672"}, filter)

	_, err = chat.FilterFromMap(map[string]any{"float_id": 12})
	assert.Error(t, err)
}

func TestServiceBroadcastsResponses(t *testing.T) {
	logger, _ := loggingtest.NewRecorder()
	topic := pubsub.NewMemoryTopic[chat.Response](logger)
	t.Cleanup(func() { _ = topic.Close() })
	service := chat.NewService(logger, chat.NewKeywordResponder(argo.NewSeededMemoryStore()), topic)

	received := make(chan pubsub.Event[chat.Response], 1)
	err := service.Subscribe(t.Context(), "browser", func(ctx context.Context, event pubsub.Event[chat.Response]) error {
		received <- event
		return nil
	})
	assert.NoError(t, err)

	resp := service.Handle(t.Context(), chat.Request{Message: "temperature"})
	assert.True(t, strings.HasPrefix(resp.ID, "chat_"), "%s", resp.ID)

	select {
	case event := <-received:
		assert.Equal(t, resp.ID, event.ID())
		assert.Equal(t, resp, event.Payload())
	case <-time.After(5 * time.Second):
		t.Fatal("response was not broadcast")
	}
}

func TestServiceConvertsErrors(t *testing.T) {
	logger, recorder := loggingtest.NewRecorder()
	topic := pubsub.NewMemoryTopic[chat.Response](logger)
	t.Cleanup(func() { _ = topic.Close() })
	failing := chat.ResponderFunc(func(ctx context.Context, req chat.Request) (chat.Response, error) {
		return chat.Response{}, errors.New("model unavailable")
	})
	service := chat.NewService(logger, failing, topic)

	resp := service.Handle(t.Context(), chat.Request{Message: "temperature"})
	assert.Equal(t, "I encountered an error processing your request: model unavailable", resp.Reply)
	assert.Equal(t, 0.5, resp.Confidence)
	assert.Equal(t, []chat.Action{}, resp.Actions)
	assert.NotZero(t, resp.ID)
	assert.Equal(t, 1, len(recorder.Level(slog.LevelError)))
}
