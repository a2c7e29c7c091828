package api_test

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/errors"
	"github.com/go-openapi/spec"

	"github.com/floatchat/floatchat/api"
	"github.com/floatchat/floatchat/argo"
	"github.com/floatchat/floatchat/chat"
	"github.com/floatchat/floatchat/dashboard"
	"github.com/floatchat/floatchat/page"
	"github.com/floatchat/floatchat/providers/logging/loggingtest"
	"github.com/floatchat/floatchat/providers/pubsub"
)

var now = time.Date(2024, 1, 16, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return now }

type brokenStore struct {
	argo.Store
}

func (brokenStore) Floats(ctx context.Context, filter argo.Filter) ([]argo.Float, error) {
	return nil, errors.New("database is locked")
}

func newService(t *testing.T, store argo.Store) *api.Service {
	t.Helper()
	logger, _ := loggingtest.NewRecorder()
	topic := pubsub.NewMemoryTopic[chat.Response](logger)
	t.Cleanup(func() { _ = topic.Close() })
	stats := argo.NewStatsCache(logger, store)
	board := dashboard.New(logger, "FloatChat", dashboard.Panels{
		dashboard.NewOverview(stats, store).WithClock(clock),
		dashboard.NewFloats(store).WithClock(clock),
		dashboard.Chat{ChatURL: "/api/chat", EventsURL: "/api/events"},
	})
	chatService := chat.NewService(logger, chat.NewKeywordResponder(store), topic)
	return api.New(logger, store, stats, chatService, page.NewEntry("dashboard", logger, board), "memory").WithClock(clock)
}

func seeded(t *testing.T) http.Handler {
	t.Helper()
	return newService(t, argo.NewSeededMemoryStore().WithClock(clock)).Handler()
}

func do(t *testing.T, handler http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "%s", w.Body.String())
	return out
}

func ids(floats []argo.Float) []string {
	out := []string{}
	for _, float := range floats {
		out = append(out, float.ID)
	}
	return out
}

func TestDashboardPage(t *testing.T) {
	w := do(t, seeded(t), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `data-float="1902672"`)
	assert.NotContains(t, w.Body.String(), page.FallbackHeading)

	w = do(t, seeded(t), http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardPageFallsBack(t *testing.T) {
	handler := newService(t, brokenStore{argo.NewSeededMemoryStore()}).Handler()
	w := do(t, handler, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), page.FallbackHeading)
	assert.Contains(t, w.Body.String(), page.FallbackBody)
	assert.NotContains(t, w.Body.String(), "database is locked")
}

func TestHealth(t *testing.T) {
	w := do(t, seeded(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, api.Health{Message: "FloatChat API is running", Status: "active", Mode: "memory", Timestamp: now}, decode[api.Health](t, w))
}

func TestChat(t *testing.T) {
	handler := seeded(t)
	w := do(t, handler, http.MethodPost, "/api/chat", `{"message": "How salty is the Arabian Sea?"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode[chat.Response](t, w)
	assert.Equal(t, 0.92, resp.Confidence)
	assert.True(t, strings.HasPrefix(resp.ID, "chat_"), "%s", resp.ID)

	w = do(t, handler, http.MethodPost, "/api/chat", `{"message": "where lat < 0"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Float 2900464 matches lat < 0.", decode[chat.Response](t, w).Reply)

	w = do(t, handler, http.MethodPost, "/api/chat", `{"message": " "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "message is required")

	w = do(t, handler, http.MethodPost, "/api/chat", `{"message": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFloats(t *testing.T) {
	tests := []struct {
		query    string
		expected []string
	}{
		{"", []string{"1902672", "1902677", "2900464", "2900533", "2902201"}},
		{"?lat_min=5&lon_max=70", []string{"1902672", "2900533"}},
		{"?float_id=2900464", []string{"2900464"}},
		{"?q=status+%3D+delayed", []string{"2902201"}},
		{"?lat_min=0&q=lon+%3E+80", []string{"2902201"}},
		{"?start_date=2024-01-13", []string{"1902672", "1902677", "2900464"}},
		{"?end_date=2024-01-12", []string{"2900533", "2902201"}},
		{"?start_date=2024-01-14T00:00:00Z&end_date=2024-01-14", []string{"1902677"}},
		{"?lat_min=80", []string{}},
	}
	handler := seeded(t)
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := do(t, handler, http.MethodGet, "/api/floats"+tt.query, "")
			assert.Equal(t, http.StatusOK, w.Code, "%s", w.Body.String())
			assert.Equal(t, tt.expected, ids(decode[[]argo.Float](t, w)))
		})
	}
}

func TestListFloatsInvalid(t *testing.T) {
	handler := seeded(t)
	for _, query := range []string{"?lat_min=north", "?q=depth+%3E+5", "?q=lat+%3E+100", "?start_date=yesterday"} {
		t.Run(query, func(t *testing.T) {
			w := do(t, handler, http.MethodGet, "/api/floats"+query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, "%s", w.Body.String())
			assert.Equal(t, "400", decode[map[string]string](t, w)["code"])
		})
	}
}

func TestListFloatsStoreFailure(t *testing.T) {
	handler := newService(t, brokenStore{argo.NewSeededMemoryStore()}).Handler()
	w := do(t, handler, http.MethodGet, "/api/floats", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestProfile(t *testing.T) {
	handler := seeded(t)

	w := do(t, handler, http.MethodGet, "/api/floats/1902672/profile", "")
	assert.Equal(t, http.StatusOK, w.Code)
	profile := decode[argo.Profile](t, w)
	assert.Equal(t, argo.Temperature, profile.Variable)
	assert.Equal(t, 28.5, profile.Values[0])

	w = do(t, handler, http.MethodGet, "/api/floats/1902672/profile?variable=salinity", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 35.1, decode[argo.Profile](t, w).Values[0])

	w = do(t, handler, http.MethodGet, "/api/floats/1902672/profile?variable=pressure", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, handler, http.MethodGet, "/api/floats/9999999/profile", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimeSeries(t *testing.T) {
	handler := seeded(t)

	w := do(t, handler, http.MethodGet, "/api/floats/2900464/timeseries", "")
	assert.Equal(t, http.StatusOK, w.Code)
	series := decode[argo.TimeSeries](t, w)
	assert.Equal(t, api.DefaultTimeSeriesDays, len(series.Points))
	assert.Equal(t, argo.Point{Timestamp: now, Value: 28.0, Depth: 10}, series.Points[0])

	w = do(t, handler, http.MethodGet, "/api/floats/2900464/timeseries?variable=oxygen&days=7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	series = decode[argo.TimeSeries](t, w)
	assert.Equal(t, argo.Oxygen, series.Variable)
	assert.Equal(t, 7, len(series.Points))

	for _, query := range []string{"?days=400", "?days=-1", "?days=many"} {
		w = do(t, handler, http.MethodGet, "/api/floats/2900464/timeseries"+query, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s", query)
	}

	w = do(t, handler, http.MethodGet, "/api/floats/9999999/timeseries", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsAndQuality(t *testing.T) {
	handler := seeded(t)

	w := do(t, handler, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	stats := decode[argo.Stats](t, w)
	assert.Equal(t, argo.Stats{TotalFloats: 5, ActiveFloats: 4, TotalProfiles: 15, LastUpdate: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}, stats)

	w = do(t, handler, http.MethodGet, "/api/quality/1902672", "")
	assert.Equal(t, http.StatusOK, w.Code)
	quality := decode[argo.Quality](t, w)
	assert.Equal(t, 1.0, quality.Overall)
	assert.Equal(t, "Quality assessment for float 1902672 completed", quality.Details)

	w = do(t, handler, http.MethodGet, "/api/quality/9999999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExport(t *testing.T) {
	handler := seeded(t)

	w := do(t, handler, http.MethodGet, "/api/export?lat_max=0", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="argo_data.csv"`, w.Header().Get("Content-Disposition"))
	records, err := csv.NewReader(w.Body).ReadAll()
	assert.NoError(t, err)
	assert.Equal(t, [][]string{
		{"id", "lat", "lon", "last_contact", "temperature", "salinity", "trajectory", "status"},
		{"2900464", "-2.1", "85.6", "2024-01-13T08:20:00Z", "27.8", "35.7", "[[-2.4,85.3],[-2.2,85.4],[-2.1,85.6]]", "active"},
	}, records)

	w = do(t, handler, http.MethodGet, "/api/export?format=json", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="argo_data.json"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, 5, len(decode[[]argo.Float](t, w)))

	w = do(t, handler, http.MethodGet, "/api/export?format=netcdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "unsupported format")
}

func TestCORS(t *testing.T) {
	handler := seeded(t)
	r := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, handler, http.MethodGet, "/api/stats", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLogging(t *testing.T) {
	logger, recorder := loggingtest.NewRecorder()
	handler := api.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	do(t, handler, http.MethodGet, "/api/stats", "")
	entries := recorder.Level(slog.LevelDebug)
	assert.Equal(t, 1, len(entries))
	assert.Equal(t, "/api/stats", entries[0].Attrs["path"])
	assert.Equal(t, "418", entries[0].Attrs["status"])
}

func TestOpenAPI(t *testing.T) {
	w := do(t, seeded(t), http.MethodGet, "/api/openapi.json", "")
	assert.Equal(t, http.StatusOK, w.Code)
	doc := decode[spec.Swagger](t, w)
	assert.Equal(t, "2.0", doc.Swagger)
	assert.Equal(t, "FloatChat API", doc.Info.Title)

	paths := []string{}
	for path := range doc.Paths.Paths {
		paths = append(paths, path)
	}
	for _, path := range []string{"/", "/healthz", "/api/chat", "/api/floats", "/api/floats/{id}/profile", "/api/floats/{id}/timeseries", "/api/stats", "/api/quality/{id}", "/api/export", "/api/events", "/api/openapi.json"} {
		assert.SliceContains(t, paths, path)
	}

	profile := doc.Paths.Paths["/api/floats/{id}/profile"].Get
	assert.NotZero(t, profile)
	params := map[string]string{}
	for _, param := range profile.Parameters {
		params[param.Name] = param.In
	}
	assert.Equal(t, map[string]string{"id": "path", "variable": "query"}, params)
	assert.Equal(t, "#/definitions/argo.Profile", profile.Responses.StatusCodeResponses[200].Schema.Ref.String())
	assert.NotZero(t, profile.Responses.StatusCodeResponses[404])

	chatOp := doc.Paths.Paths["/api/chat"].Post
	assert.NotZero(t, chatOp)
	assert.Equal(t, "body", chatOp.Parameters[0].In)

	float, ok := doc.Definitions["argo.Float"]
	assert.True(t, ok)
	assert.Equal(t, "date-time", float.Properties["last_contact"].Format)
	status := float.Properties["status"]
	assert.Equal(t, "#/definitions/argo.Status", status.Ref.String())
}

func TestEvents(t *testing.T) {
	server := httptest.NewServer(seeded(t))
	t.Cleanup(server.Close)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/events", nil)
	assert.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := bufio.NewReader(resp.Body)
	name, data := readEvent(t, events)
	assert.Equal(t, "connection", name)
	assert.Contains(t, data, `"Connected to FloatChat"`)

	chatResp, err := http.Post(server.URL+"/api/chat", "application/json", strings.NewReader(`{"message": "near the equator"}`))
	assert.NoError(t, err)
	var reply chat.Response
	assert.NoError(t, json.NewDecoder(chatResp.Body).Decode(&reply))
	_ = chatResp.Body.Close()

	name, data = readEvent(t, events)
	assert.Equal(t, "chat", name)
	var event pubsub.Event[chat.Response]
	assert.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, reply.ID, event.ID())
	assert.Equal(t, reply, event.Payload())
}

// readEvent reads one server-sent event, returning its name and data.
func readEvent(t *testing.T, r *bufio.Reader) (name, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if errors.Is(err, io.EOF) {
			t.Fatal("event stream closed")
		}
		assert.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}
