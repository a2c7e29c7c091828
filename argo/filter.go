package argo

import (
	"strconv"
	"strings"
	"time"
)

// Filter restricts the floats returned by [Store.Floats].
//
// Zero values are unconstrained.
type Filter struct {
	LatMin  *float64
	LatMax  *float64
	LonMin  *float64
	LonMax  *float64
	FloatID string
	Status  Status
	// Start and End bound the float's last contact.
	Start time.Time
	End   time.Time
}

// Bound is a convenience for constructing optional [Filter] bounds.
func Bound(v float64) *float64 { return &v }

// IsZero reports whether the filter is unconstrained.
func (f Filter) IsZero() bool {
	return f.LatMin == nil && f.LatMax == nil && f.LonMin == nil && f.LonMax == nil &&
		f.FloatID == "" && f.Status == "" && f.Start.IsZero() && f.End.IsZero()
}

// Merge returns f with any constraints set in other overriding it.
func (f Filter) Merge(other Filter) Filter {
	if other.LatMin != nil {
		f.LatMin = other.LatMin
	}
	if other.LatMax != nil {
		f.LatMax = other.LatMax
	}
	if other.LonMin != nil {
		f.LonMin = other.LonMin
	}
	if other.LonMax != nil {
		f.LonMax = other.LonMax
	}
	if other.FloatID != "" {
		f.FloatID = other.FloatID
	}
	if other.Status != "" {
		f.Status = other.Status
	}
	if !other.Start.IsZero() {
		f.Start = other.Start
	}
	if !other.End.IsZero() {
		f.End = other.End
	}
	return f
}

// Match reports whether float satisfies every constraint in the filter.
func (f Filter) Match(float Float) bool {
	switch {
	case f.LatMin != nil && float.Lat < *f.LatMin:
		return false
	case f.LatMax != nil && float.Lat > *f.LatMax:
		return false
	case f.LonMin != nil && float.Lon < *f.LonMin:
		return false
	case f.LonMax != nil && float.Lon > *f.LonMax:
		return false
	case f.FloatID != "" && float.ID != f.FloatID:
		return false
	case f.Status != "" && float.Status != f.Status:
		return false
	case !f.Start.IsZero() && float.LastContact.Before(f.Start):
		return false
	case !f.End.IsZero() && float.LastContact.After(f.End):
		return false
	}
	return true
}

// where builds a WHERE clause over the floats table using "?" placeholders.
func (f Filter) where() (string, []any) {
	clauses := []string{}
	args := []any{}
	add := func(clause string, arg any) {
		clauses = append(clauses, clause)
		args = append(args, arg)
	}
	if f.LatMin != nil {
		add("lat >= ?", *f.LatMin)
	}
	if f.LatMax != nil {
		add("lat <= ?", *f.LatMax)
	}
	if f.LonMin != nil {
		add("lon >= ?", *f.LonMin)
	}
	if f.LonMax != nil {
		add("lon <= ?", *f.LonMax)
	}
	if f.FloatID != "" {
		add("id = ?", f.FloatID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if !f.Start.IsZero() {
		add("last_contact >= ?", f.Start.UTC())
	}
	if !f.End.IsZero() {
		add("last_contact <= ?", f.End.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// SQL renders the filter as a literal query over the floats table, for display only.
func (f Filter) SQL() string {
	clause, args := f.where()
	for _, arg := range args {
		var literal string
		switch arg := arg.(type) {
		case float64:
			literal = strconv.FormatFloat(arg, 'f', -1, 64)
		case time.Time:
			literal = "'" + arg.Format(time.RFC3339) + "'"
		case string:
			literal = "'" + strings.ReplaceAll(arg, "'", "''") + "'"
		}
		clause = strings.Replace(clause, "?", literal, 1)
	}
	return "SELECT id, lat, lon, temperature, salinity FROM floats" + clause
}
