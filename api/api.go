// Package api serves the FloatChat dashboard and its JSON API.
package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alecthomas/errors"

	"github.com/floatchat/floatchat"
	"github.com/floatchat/floatchat/argo"
	"github.com/floatchat/floatchat/argo/query"
	"github.com/floatchat/floatchat/chat"
	"github.com/floatchat/floatchat/dashboard"
)

// DefaultTimeSeriesDays is the window used when a time series request does not specify one.
const DefaultTimeSeriesDays = 30

// Service implements the API endpoints.
type Service struct {
	logger *slog.Logger
	store  argo.Store
	stats  dashboard.StatsSource
	chat   *chat.Service
	page   http.Handler
	mode   string
	now    func() time.Time
}

// New creates the API service.
//
// page serves the dashboard at the root, and mode is reported by the health check.
func New(logger *slog.Logger, store argo.Store, stats dashboard.StatsSource, chatService *chat.Service, page http.Handler, mode string) *Service {
	return &Service{
		logger: logger,
		store:  store,
		stats:  stats,
		chat:   chatService,
		page:   page,
		mode:   mode,
		now:    time.Now,
	}
}

// WithClock overrides the clock used for health check timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type Health struct {
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports that the service is running.
func (s *Service) Health(ctx context.Context) Health {
	return Health{
		Message:   "FloatChat API is running",
		Status:    "active",
		Mode:      s.mode,
		Timestamp: s.now().UTC(),
	}
}

// Chat answers a question and broadcasts the reply to every event stream.
func (s *Service) Chat(ctx context.Context, req chat.Request) (chat.Response, error) {
	if err := req.Validate(); err != nil {
		return chat.Response{}, floatchat.APIErrorf(http.StatusBadRequest, "%w", err)
	}
	return s.chat.Handle(ctx, req), nil
}

// FilterQuery holds the float filters accepted as query parameters.
type FilterQuery struct {
	LatMin    string `qstring:"lat_min"`
	LatMax    string `qstring:"lat_max"`
	LonMin    string `qstring:"lon_min"`
	LonMax    string `qstring:"lon_max"`
	FloatID   string `qstring:"float_id"`
	Status    string `qstring:"status"`
	StartDate string `qstring:"start_date"`
	EndDate   string `qstring:"end_date"`
	// Q is a filter expression such as "lat > 5 and lon < 70", applied over the other parameters.
	Q string `qstring:"q"`
}

// Filter converts the query parameters into an [argo.Filter].
func (q FilterQuery) Filter() (argo.Filter, error) {
	filter := argo.Filter{FloatID: q.FloatID, Status: argo.Status(q.Status)}
	bounds := []struct {
		name  string
		value string
		dest  **float64
	}{
		{"lat_min", q.LatMin, &filter.LatMin},
		{"lat_max", q.LatMax, &filter.LatMax},
		{"lon_min", q.LonMin, &filter.LonMin},
		{"lon_max", q.LonMax, &filter.LonMax},
	}
	for _, bound := range bounds {
		if bound.value == "" {
			continue
		}
		v, err := strconv.ParseFloat(bound.value, 64)
		if err != nil {
			return argo.Filter{}, errors.Errorf("%s must be a number: %q: %w", bound.name, bound.value, argo.ErrInvalidRange)
		}
		*bound.dest = argo.Bound(v)
	}
	var err error
	if filter.Start, err = parseDate("start_date", q.StartDate, false); err != nil {
		return argo.Filter{}, err
	}
	if filter.End, err = parseDate("end_date", q.EndDate, true); err != nil {
		return argo.Filter{}, err
	}
	if q.Q != "" {
		parsed, err := query.Parse(q.Q)
		if err != nil {
			return argo.Filter{}, errors.WithStack(err)
		}
		filter = filter.Merge(parsed)
	}
	return filter, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date includes the whole day.
func parseDate(name, value string, end bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, errors.Errorf("%s must be a date or RFC 3339 timestamp: %q: %w", name, value, argo.ErrInvalidRange)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// ListFloats returns the floats matching the filter.
func (s *Service) ListFloats(ctx context.Context, q FilterQuery) ([]argo.Float, error) {
	filter, err := q.Filter()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return errors.WithStack2(s.store.Floats(ctx, filter))
}

type ProfileQuery struct {
	Variable string `qstring:"variable"`
}

// GetProfile returns the vertical profile of a variable for a float.
func (s *Service) GetProfile(ctx context.Context, id string, q ProfileQuery) (argo.Profile, error) {
	variable, err := argo.ParseVariable(q.Variable)
	if err != nil {
		return argo.Profile{}, errors.WithStack(err)
	}
	return errors.WithStack2(s.store.Profile(ctx, id, variable))
}

type TimeSeriesQuery struct {
	Variable string `qstring:"variable"`
	Days     int    `qstring:"days"`
}

// GetTimeSeries returns the daily readings of a variable for a float.
func (s *Service) GetTimeSeries(ctx context.Context, id string, q TimeSeriesQuery) (argo.TimeSeries, error) {
	variable, err := argo.ParseVariable(q.Variable)
	if err != nil {
		return argo.TimeSeries{}, errors.WithStack(err)
	}
	days := q.Days
	if days == 0 {
		days = DefaultTimeSeriesDays
	}
	return errors.WithStack2(s.store.TimeSeries(ctx, id, variable, days))
}

// GetStats returns dataset statistics.
func (s *Service) GetStats(ctx context.Context) (argo.Stats, error) {
	return errors.WithStack2(s.stats.Stats(ctx))
}

// GetQuality returns the data quality of a float.
func (s *Service) GetQuality(ctx context.Context, id string) (argo.Quality, error) {
	return errors.WithStack2(s.store.Quality(ctx, id))
}

type ExportQuery struct {
	Format string `qstring:"format"`
}

// Export the filtered floats as a file download.
func (s *Service) Export(ctx context.Context, q ExportQuery, filters FilterQuery) (floatchat.Attachment, error) {
	format, err := argo.ParseExportFormat(q.Format)
	if err != nil {
		return floatchat.Attachment{}, errors.WithStack(err)
	}
	floats, err := s.ListFloats(ctx, filters)
	if err != nil {
		return floatchat.Attachment{}, errors.WithStack(err)
	}
	w := &bytes.Buffer{}
	if err := argo.Export(w, format, floats); err != nil {
		return floatchat.Attachment{}, errors.WithStack(err)
	}
	return floatchat.Attachment{Reader: w, Filename: format.Filename(), MIMEType: format.MIMEType()}, nil
}

// translateError maps domain errors to API errors.
func translateError(err error) error {
	var apiErr floatchat.APIError
	switch {
	case err == nil:
		return nil

	case errors.As(err, &apiErr):
		return err

	case errors.Is(err, argo.ErrNotFound):
		return floatchat.APIErrorf(http.StatusNotFound, "%w", err)

	case errors.Is(err, argo.ErrInvalidVariable),
		errors.Is(err, argo.ErrInvalidRange),
		errors.Is(err, argo.ErrUnsupportedFormat),
		errors.Is(err, query.ErrInvalidQuery):
		return floatchat.APIErrorf(http.StatusBadRequest, "%w", err)
	}
	return err
}
