package api

import (
	"net/http"
	"reflect"

	"github.com/floatchat/floatchat"
	"github.com/floatchat/floatchat/argo"
	"github.com/floatchat/floatchat/chat"
)

// An endpoint is a single route on the API mux, along with what is needed to document it.
type endpoint struct {
	pattern     string
	description string
	tag         string
	// query is the struct type decoded from the query string, if any.
	query []reflect.Type
	// body is the type decoded from the JSON request body, if any.
	body reflect.Type
	// result is the type encoded in a successful response, if any.
	result   reflect.Type
	produces []string
	handler  http.Handler
}

// handle adapts fn to an [http.Handler] that encodes its result or error.
func (s *Service) handle(fn func(r *http.Request) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, err := fn(r)
		floatchat.EncodeResponse(s.logger, r, w, floatchat.EncodeError, out, translateError(err))
	})
}

func (s *Service) endpoints() []endpoint {
	return []endpoint{
		{
			pattern:     "GET /{$}",
			description: "The dashboard page.",
			tag:         "dashboard",
			produces:    []string{"text/html"},
			handler:     s.page,
		},
		{
			pattern:     "GET /healthz",
			description: "Reports that the service is running.",
			tag:         "health",
			result:      reflect.TypeFor[Health](),
			handler: s.handle(func(r *http.Request) (any, error) {
				return s.Health(r.Context()), nil
			}),
		},
		{
			pattern:     "POST /api/chat",
			description: "Answers a question about the float data and broadcasts the reply.",
			tag:         "chat",
			body:        reflect.TypeFor[chat.Request](),
			result:      reflect.TypeFor[chat.Response](),
			handler: s.handle(func(r *http.Request) (any, error) {
				req, err := floatchat.DecodeRequest[chat.Request](r.Method, r)
				if err != nil {
					return nil, err
				}
				return s.Chat(r.Context(), req)
			}),
		},
		{
			pattern:     "GET /api/floats",
			description: "Lists the floats matching the filters.",
			tag:         "floats",
			query:       []reflect.Type{reflect.TypeFor[FilterQuery]()},
			result:      reflect.TypeFor[[]argo.Float](),
			handler: s.handle(func(r *http.Request) (any, error) {
				q, err := floatchat.DecodeRequest[FilterQuery](r.Method, r)
				if err != nil {
					return nil, err
				}
				return s.ListFloats(r.Context(), q)
			}),
		},
		{
			pattern:     "GET /api/floats/{id}/profile",
			description: "Returns the vertical profile of a variable for a float.",
			tag:         "floats",
			query:       []reflect.Type{reflect.TypeFor[ProfileQuery]()},
			result:      reflect.TypeFor[argo.Profile](),
			handler: s.handle(func(r *http.Request) (any, error) {
				q, err := floatchat.DecodeRequest[ProfileQuery](r.Method, r)
				if err != nil {
					return nil, err
				}
				return s.GetProfile(r.Context(), r.PathValue("id"), q)
			}),
		},
		{
			pattern:     "GET /api/floats/{id}/timeseries",
			description: "Returns the daily readings of a variable for a float.",
			tag:         "floats",
			query:       []reflect.Type{reflect.TypeFor[TimeSeriesQuery]()},
			result:      reflect.TypeFor[argo.TimeSeries](),
			handler: s.handle(func(r *http.Request) (any, error) {
				q, err := floatchat.DecodeRequest[TimeSeriesQuery](r.Method, r)
				if err != nil {
					return nil, err
				}
				return s.GetTimeSeries(r.Context(), r.PathValue("id"), q)
			}),
		},
		{
			pattern:     "GET /api/stats",
			description: "Returns dataset statistics.",
			tag:         "stats",
			result:      reflect.TypeFor[argo.Stats](),
			handler: s.handle(func(r *http.Request) (any, error) {
				return s.GetStats(r.Context())
			}),
		},
		{
			pattern:     "GET /api/quality/{id}",
			description: "Returns the data quality of a float.",
			tag:         "stats",
			result:      reflect.TypeFor[argo.Quality](),
			handler: s.handle(func(r *http.Request) (any, error) {
				return s.GetQuality(r.Context(), r.PathValue("id"))
			}),
		},
		{
			pattern:     "GET /api/export",
			description: "Exports the floats matching the filters as CSV or JSON.",
			tag:         "floats",
			query:       []reflect.Type{reflect.TypeFor[ExportQuery](), reflect.TypeFor[FilterQuery]()},
			produces:    []string{"text/csv", "application/json"},
			handler: s.handle(func(r *http.Request) (any, error) {
				q, err := floatchat.DecodeRequest[ExportQuery](r.Method, r)
				if err != nil {
					return nil, err
				}
				filters, err := floatchat.DecodeRequest[FilterQuery](r.Method, r)
				if err != nil {
					return nil, err
				}
				return s.Export(r.Context(), q, filters)
			}),
		},
		{
			pattern:     "GET /api/events",
			description: "Streams chat replies as server-sent CloudEvents.",
			tag:         "chat",
			produces:    []string{"text/event-stream"},
			handler:     http.HandlerFunc(s.Events),
		},
		{
			pattern:     "GET /api/openapi.json",
			description: "This document.",
			tag:         "meta",
			handler: s.handle(func(r *http.Request) (any, error) {
				return s.OpenAPI(), nil
			}),
		},
	}
}

// Handler returns the API mux wrapped in the standard middleware.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, endpoint := range s.endpoints() {
		mux.Handle(endpoint.pattern, endpoint.handler)
	}
	return floatchat.Chain(mux, RequestLogger(s.logger), CORS("*"))
}
