package argo

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/errors"
)

// ExportFormat is a supported export encoding.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ErrUnsupportedFormat is returned for unknown export formats.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseExportFormat parses an export format, defaulting to CSV when empty.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", errors.Errorf("%q: %w", s, ErrUnsupportedFormat)
	}
}

// Filename of the exported file.
func (f ExportFormat) Filename() string { return "argo_data." + string(f) }

// MIMEType of the exported file.
func (f ExportFormat) MIMEType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

var csvHeader = []string{"id", "lat", "lon", "last_contact", "temperature", "salinity", "trajectory", "status"}

// Export writes floats to w in the given format.
func Export(w io.Writer, format ExportFormat, floats []Float) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, floats)
	case FormatJSON:
		return errors.WithStack(json.NewEncoder(w).Encode(floats))
	default:
		return errors.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
}

// WriteCSV writes floats as CSV with a header row.
//
// Missing readings are written as empty cells and the trajectory as a JSON array.
func WriteCSV(w io.Writer, floats []Float) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.WithStack(err)
	}
	for _, float := range floats {
		trajectory, err := json.Marshal(float.Trajectory)
		if err != nil {
			return errors.WithStack(err)
		}
		err = cw.Write([]string{
			float.ID,
			formatFloat(&float.Lat),
			formatFloat(&float.Lon),
			float.LastContact.UTC().Format(time.RFC3339),
			formatFloat(float.Temperature),
			formatFloat(float.Salinity),
			string(trajectory),
			string(float.Status),
		})
		if err != nil {
			return errors.WithStack(err)
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
