package dashboard

import (
	"context"
	"html/template"
	"time"

	"github.com/alecthomas/errors"
	"github.com/dustin/go-humanize"

	"github.com/floatchat/floatchat/argo"
)

// StatsSource is satisfied by [argo.Store] and [*argo.StatsCache].
type StatsSource interface {
	Stats(ctx context.Context) (argo.Stats, error)
}

func ago(then, now time.Time) string {
	if then.IsZero() {
		return "never"
	}
	return humanize.RelTime(then, now, "ago", "from now")
}

// Overview shows dataset statistics and data quality.
type Overview struct {
	stats StatsSource
	store argo.Store
	now   func() time.Time
}

var _ Panel = (*Overview)(nil)

func NewOverview(stats StatsSource, store argo.Store) *Overview {
	return &Overview{stats: stats, store: store, now: time.Now}
}

// WithClock overrides the clock used for relative times.
func (o *Overview) WithClock(now func() time.Time) *Overview {
	o.now = now
	return o
}

func (o *Overview) Detail() Detail {
	return Detail{Icon: "chart-line", Title: "Overview", Slug: "overview"}
}

func (o *Overview) Content(ctx context.Context) (template.HTML, error) {
	stats, err := o.stats.Stats(ctx)
	if err != nil {
		return "", errors.Errorf("failed to load stats: %w", err)
	}
	quality, err := o.store.Quality(ctx, "")
	if err != nil {
		return "", errors.Errorf("failed to load data quality: %w", err)
	}
	return renderTemplate(overviewTmpl, struct {
		Stats      argo.Stats
		Quality    argo.Quality
		LastUpdate string
	}{stats, quality, ago(stats.LastUpdate, o.now())})
}

// Floats lists every float with its latest readings.
type Floats struct {
	store argo.Store
	now   func() time.Time
}

var _ Panel = (*Floats)(nil)

func NewFloats(store argo.Store) *Floats {
	return &Floats{store: store, now: time.Now}
}

// WithClock overrides the clock used for relative times.
func (f *Floats) WithClock(now func() time.Time) *Floats {
	f.now = now
	return f
}

func (f *Floats) Detail() Detail {
	return Detail{Icon: "map-marker-alt", Title: "Floats", Slug: "floats"}
}

type floatRow struct {
	argo.Float
	Ago string
}

func (f *Floats) Content(ctx context.Context) (template.HTML, error) {
	floats, err := f.store.Floats(ctx, argo.Filter{})
	if err != nil {
		return "", errors.Errorf("failed to list floats: %w", err)
	}
	now := f.now()
	rows := make([]floatRow, 0, len(floats))
	for _, float := range floats {
		rows = append(rows, floatRow{Float: float, Ago: ago(float.LastContact, now)})
	}
	return renderTemplate(floatsTmpl, struct{ Floats []floatRow }{rows})
}

// Chat is the assistant panel, which posts questions and listens for broadcast replies.
type Chat struct {
	ChatURL   string
	EventsURL string
}

var _ Panel = Chat{}

func (c Chat) Detail() Detail {
	return Detail{Icon: "comments", Title: "Chat", Slug: "chat"}
}

func (c Chat) Content(ctx context.Context) (template.HTML, error) {
	return renderTemplate(chatTmpl, c)
}
