package page

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/alecthomas/errors"
)

//go:embed templates/fallback.gohtml
var templates embed.FS

var fallbackTmpl = template.Must(template.ParseFS(templates, "templates/fallback.gohtml"))

const (
	// FallbackHeading is the heading of the [Fallback] view.
	FallbackHeading = "Error Loading Dashboard"
	// FallbackBody is the text under [FallbackHeading].
	FallbackBody = "Check console for details"
)

// Fallback is the fixed view served when the dashboard cannot be built.
//
// It carries nothing about the cause of the failure.
type Fallback struct {
	Heading string
	Body    string
}

var _ View = Fallback{}

// NewFallback returns the fallback view.
func NewFallback() Fallback {
	return Fallback{Heading: FallbackHeading, Body: FallbackBody}
}

// Render implements templ.Component.
func (f Fallback) Render(ctx context.Context, w io.Writer) error {
	return errors.WithStack(fallbackTmpl.Execute(w, f))
}
