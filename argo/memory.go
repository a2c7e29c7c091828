package argo

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/errors"
)

// SeedFloats returns the floats used by the demo dataset.
func SeedFloats() []Float {
	at := func(s string) time.Time {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			panic(err)
		}
		return t
	}
	return []Float{
		{ID: "1902672", Lat: 15.5, Lon: 68.2, LastContact: at("2024-01-15T10:30:00Z"), Temperature: Bound(28.5), Salinity: Bound(35.4),
			Trajectory: []Position{{15.1, 67.9}, {15.3, 68.0}, {15.5, 68.2}}, Status: StatusActive},
		{ID: "1902677", Lat: 8.1, Lon: 72.3, LastContact: at("2024-01-14T15:45:00Z"), Temperature: Bound(29.2), Salinity: Bound(35.1),
			Trajectory: []Position{{7.8, 72.0}, {7.9, 72.1}, {8.1, 72.3}}, Status: StatusActive},
		{ID: "2900464", Lat: -2.1, Lon: 85.6, LastContact: at("2024-01-13T08:20:00Z"), Temperature: Bound(27.8), Salinity: Bound(35.7),
			Trajectory: []Position{{-2.4, 85.3}, {-2.2, 85.4}, {-2.1, 85.6}}, Status: StatusActive},
		{ID: "2900533", Lat: 22.4, Lon: 59.8, LastContact: at("2024-01-12T12:15:00Z"), Temperature: Bound(26.8), Salinity: Bound(36.1),
			Trajectory: []Position{{22.1, 59.5}, {22.2, 59.6}, {22.4, 59.8}}, Status: StatusActive},
		{ID: "2902201", Lat: 5.2, Lon: 95.4, LastContact: at("2024-01-11T09:30:00Z"), Temperature: Bound(28.9), Salinity: Bound(34.8),
			Trajectory: []Position{{5.0, 95.2}, {5.1, 95.3}, {5.2, 95.4}}, Status: StatusDelayed},
	}
}

var (
	seedDepths = []float64{0, 10, 20, 50, 100, 200, 500, 1000, 1500, 2000}
	seedValues = map[Variable][]float64{
		Temperature: {28.5, 28.2, 27.8, 26.5, 24.2, 18.5, 8.2, 4.1, 2.8, 2.1},
		Salinity:    {35.1, 35.2, 35.3, 35.4, 35.5, 35.3, 34.8, 34.6, 34.7, 34.8},
		Oxygen:      {245, 240, 235, 210, 180, 150, 120, 100, 90, 85},
	}
)

// SeedProfiles returns a standard profile of every [Variable] for the float.
func SeedProfiles(float Float) []Profile {
	out := make([]Profile, 0, len(Variables))
	for _, variable := range Variables {
		profile := Profile{
			FloatID:  float.ID,
			Variable: variable,
			Depth:    slices.Clone(seedDepths),
			Values:   slices.Clone(seedValues[variable]),
		}
		for range seedDepths {
			profile.Timestamps = append(profile.Timestamps, float.LastContact)
			profile.QualityFlags = append(profile.QualityFlags, QCGood)
		}
		out = append(out, profile)
	}
	return out
}

type profileKey struct {
	id       string
	variable Variable
}

// MemoryStore is an in-memory [Store].
type MemoryStore struct {
	lock     sync.RWMutex
	now      func() time.Time
	floats   map[string]Float
	profiles map[profileKey]Profile
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		floats:   map[string]Float{},
		profiles: map[profileKey]Profile{},
	}
}

// NewSeededMemoryStore creates an in-memory store containing the demo dataset.
func NewSeededMemoryStore() *MemoryStore {
	m := NewMemoryStore()
	for _, float := range SeedFloats() {
		m.floats[float.ID] = float
		for _, profile := range SeedProfiles(float) {
			m.profiles[profileKey{float.ID, profile.Variable}] = profile
		}
	}
	return m
}

// WithClock overrides the clock used to anchor time series.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Floats(ctx context.Context, filter Filter) ([]Float, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := []Float{}
	for _, float := range m.floats {
		if filter.Match(float) {
			out = append(out, float)
		}
	}
	slices.SortFunc(out, func(a, b Float) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryStore) Float(ctx context.Context, id string) (Float, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	float, ok := m.floats[id]
	if !ok {
		return Float{}, errors.Errorf("float %s: %w", id, ErrNotFound)
	}
	return float, nil
}

func (m *MemoryStore) Profile(ctx context.Context, id string, variable Variable) (Profile, error) {
	variable, err := ParseVariable(string(variable))
	if err != nil {
		return Profile{}, errors.WithStack(err)
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	profile, ok := m.profiles[profileKey{id, variable}]
	if !ok {
		return Profile{}, errors.Errorf("%s profile for float %s: %w", variable, id, ErrNotFound)
	}
	return profile, nil
}

// TimeSeries synthesises a daily series anchored at the current time.
func (m *MemoryStore) TimeSeries(ctx context.Context, id string, variable Variable, days int) (TimeSeries, error) {
	variable, err := ParseVariable(string(variable))
	if err != nil {
		return TimeSeries{}, errors.WithStack(err)
	}
	if err := checkDays(days); err != nil {
		return TimeSeries{}, errors.WithStack(err)
	}
	if _, err := m.Float(ctx, id); err != nil {
		return TimeSeries{}, errors.WithStack(err)
	}
	now := m.now()
	series := TimeSeries{FloatID: id, Variable: variable, Points: make([]Point, 0, days)}
	for i := range days {
		series.Points = append(series.Points, Point{
			Timestamp: now.AddDate(0, 0, -i),
			Value:     28.0 + float64(i)*0.1 + float64(i%3)*0.5,
			Depth:     10.0 + float64(i%5)*5.0,
		})
	}
	return series, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	stats := Stats{TotalFloats: len(m.floats)}
	for _, float := range m.floats {
		if float.Status == StatusActive {
			stats.ActiveFloats++
		}
		stats.TotalProfiles += len(float.Trajectory)
		if float.LastContact.After(stats.LastUpdate) {
			stats.LastUpdate = float.LastContact
		}
	}
	return stats, nil
}

func (m *MemoryStore) Quality(ctx context.Context, id string) (Quality, error) {
	if id != "" {
		if _, err := m.Float(ctx, id); err != nil {
			return Quality{}, errors.WithStack(err)
		}
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	samples := []qcSample{}
	for key, profile := range m.profiles {
		if id != "" && key.id != id {
			continue
		}
		for _, qc := range profile.QualityFlags {
			samples = append(samples, qcSample{variable: key.variable, qc: qc})
		}
	}
	return computeQuality(id, samples), nil
}

func (m *MemoryStore) PutFloat(ctx context.Context, float Float) error {
	if err := validateFloat(float); err != nil {
		return errors.WithStack(err)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	float.Trajectory = slices.Clone(float.Trajectory)
	m.floats[float.ID] = float
	return nil
}

func (m *MemoryStore) PutProfile(ctx context.Context, profile Profile) error {
	if err := validateProfile(profile); err != nil {
		return errors.WithStack(err)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.floats[profile.FloatID]; !ok {
		return errors.Errorf("float %s: %w", profile.FloatID, ErrNotFound)
	}
	m.profiles[profileKey{profile.FloatID, profile.Variable}] = profile
	return nil
}
