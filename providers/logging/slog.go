// Package logging configures the process-wide [slog.Logger].
package logging

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

type SlogConfig struct {
	Level slog.Level `help:"The default logging level." default:"info" env:"FLOATCHAT_LOG_LEVEL"`
	JSON  bool       `help:"Enable JSON logging." env:"FLOATCHAT_LOG_JSON"`
}

// New creates a logger writing to w.
//
// Output is colourised by tint unless JSON is enabled.
func New(w io.Writer, config SlogConfig) *slog.Logger {
	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: config.Level,
		})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      config.Level,
			TimeFormat: "15:04:05",
		})
	}
	return slog.New(handler)
}
