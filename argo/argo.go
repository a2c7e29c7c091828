// Package argo models ARGO profiling floats and the stores that serve them to the dashboard.
package argo

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/errors"
)

var (
	// ErrNotFound is returned when a float or profile does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidVariable is returned for unknown measured variables.
	ErrInvalidVariable = errors.New("invalid variable")
	// ErrInvalidRange is returned when a requested window is out of bounds.
	ErrInvalidRange = errors.New("invalid range")
)

// Variable is a measured ocean parameter.
type Variable string

const (
	Temperature Variable = "temperature"
	Salinity    Variable = "salinity"
	Oxygen      Variable = "oxygen"
)

// Variables lists every supported [Variable].
var Variables = []Variable{Temperature, Salinity, Oxygen}

// ParseVariable parses a variable name, defaulting to [Temperature] when empty.
func ParseVariable(s string) (Variable, error) {
	switch Variable(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return Temperature, nil
	case Temperature, "temp":
		return Temperature, nil
	case Salinity, "psal":
		return Salinity, nil
	case Oxygen:
		return Oxygen, nil
	default:
		return "", errors.Errorf("%q: %w", s, ErrInvalidVariable)
	}
}

// Unit of measurement for the variable.
func (v Variable) Unit() string {
	switch v {
	case Temperature:
		return "°C"
	case Salinity:
		return "PSU"
	case Oxygen:
		return "µmol/kg"
	default:
		return ""
	}
}

// Status of a float.
type Status string

const (
	StatusActive   Status = "active"
	StatusDelayed  Status = "delayed"
	StatusInactive Status = "inactive"
)

// Position is a [latitude, longitude] pair.
type Position [2]float64

func (p Position) Lat() float64 { return p[0] }
func (p Position) Lon() float64 { return p[1] }

// Float is a single ARGO profiling float and its latest surface readings.
type Float struct {
	ID          string     `json:"id"`
	Lat         float64    `json:"lat"`
	Lon         float64    `json:"lon"`
	LastContact time.Time  `json:"last_contact"`
	Temperature *float64   `json:"temperature,omitempty"`
	Salinity    *float64   `json:"salinity,omitempty"`
	Trajectory  []Position `json:"trajectory"`
	Status      Status     `json:"status"`
}

// Profile is a vertical profile of one variable measured by a float.
type Profile struct {
	FloatID      string      `json:"float_id"`
	Variable     Variable    `json:"variable"`
	Depth        []float64   `json:"depth"`
	Values       []float64   `json:"values"`
	Timestamps   []time.Time `json:"timestamps"`
	QualityFlags []int       `json:"quality_flags"`
}

// Point is a single sample in a [TimeSeries].
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Depth     float64   `json:"depth"`
}

// TimeSeries of one variable for a float, most recent first.
type TimeSeries struct {
	FloatID  string   `json:"float_id"`
	Variable Variable `json:"variable"`
	Points   []Point  `json:"data"`
}

// Stats summarises the dataset.
type Stats struct {
	TotalFloats   int       `json:"total_floats"`
	ActiveFloats  int       `json:"active_floats"`
	TotalProfiles int       `json:"total_profiles"`
	LastUpdate    time.Time `json:"last_update"`
}

// Quality summarises QC flags for a float, or for all floats when FloatID is empty.
type Quality struct {
	FloatID         string  `json:"float_id,omitempty"`
	Overall         float64 `json:"overall_quality"`
	Temperature     float64 `json:"temperature_quality"`
	Salinity        float64 `json:"salinity_quality"`
	MissingFraction float64 `json:"missing_data_percentage"`
	Details         string  `json:"details"`
}

// MaxTimeSeriesDays bounds the window of a [TimeSeries] request.
const MaxTimeSeriesDays = 366

func checkDays(days int) error {
	if days < 1 || days > MaxTimeSeriesDays {
		return errors.Errorf("days must be between 1 and %d, got %d: %w", MaxTimeSeriesDays, days, ErrInvalidRange)
	}
	return nil
}

// Store provides float data to the API and dashboard.
type Store interface {
	Floats(ctx context.Context, filter Filter) ([]Float, error)
	Float(ctx context.Context, id string) (Float, error)
	Profile(ctx context.Context, id string, variable Variable) (Profile, error)
	TimeSeries(ctx context.Context, id string, variable Variable, days int) (TimeSeries, error)
	Stats(ctx context.Context) (Stats, error)
	// Quality for a float, or for all floats if id is empty.
	Quality(ctx context.Context, id string) (Quality, error)
	PutFloat(ctx context.Context, float Float) error
	PutProfile(ctx context.Context, profile Profile) error
}

// ARGO QC flags.
const (
	QCGood    = 1
	QCMissing = 9
)

type qcSample struct {
	variable Variable
	qc       int
}

func computeQuality(id string, samples []qcSample) Quality {
	var total, good, missing int
	perVariable := map[Variable][2]int{}
	for _, s := range samples {
		total++
		counts := perVariable[s.variable]
		counts[0]++
		if s.qc == QCMissing {
			missing++
		} else if s.qc == QCGood {
			good++
			counts[1]++
		}
		perVariable[s.variable] = counts
	}
	ratio := func(n, d int) float64 {
		if d == 0 {
			return 0
		}
		return float64(n) / float64(d)
	}
	subject := "all floats"
	if id != "" {
		subject = "float " + id
	}
	return Quality{
		FloatID:         id,
		Overall:         ratio(good, total),
		Temperature:     ratio(perVariable[Temperature][1], perVariable[Temperature][0]),
		Salinity:        ratio(perVariable[Salinity][1], perVariable[Salinity][0]),
		MissingFraction: ratio(missing, total),
		Details:         "Quality assessment for " + subject + " completed",
	}
}

func validateFloat(f Float) error {
	if strings.TrimSpace(f.ID) == "" {
		return errors.New("float id is required")
	}
	if f.Lat < -90 || f.Lat > 90 {
		return errors.Errorf("%s: latitude %v out of range", f.ID, f.Lat)
	}
	if f.Lon < -180 || f.Lon > 180 {
		return errors.Errorf("%s: longitude %v out of range", f.ID, f.Lon)
	}
	return nil
}

func validateProfile(p Profile) error {
	if p.FloatID == "" {
		return errors.New("profile float id is required")
	}
	if !slices.Contains(Variables, p.Variable) {
		return errors.Errorf("%q: %w", p.Variable, ErrInvalidVariable)
	}
	n := len(p.Depth)
	if len(p.Values) != n || len(p.Timestamps) != n || len(p.QualityFlags) != n {
		return errors.Errorf("%s/%s: profile columns have mismatched lengths", p.FloatID, p.Variable)
	}
	return nil
}
