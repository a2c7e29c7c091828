// Package dashboard renders the FloatChat dashboard page.
//
// The page is a shell with a sidebar linking to each [Panel], and the panels' content
// stacked in the main column. The whole page is rendered into memory by [Dashboard.Build]
// so that any failure surfaces before a single byte is written.
package dashboard

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"log/slog"

	"github.com/a-h/templ"
	"github.com/alecthomas/errors"

	"github.com/floatchat/floatchat/page"
)

type Detail struct {
	// Icon is the Font Awesome 5 icon shown in the sidebar.
	Icon string
	// Title of the panel in the sidebar.
	Title string
	// Slug is the panel's anchor in the page.
	Slug string
}

// Panel is a section of the dashboard.
type Panel interface {
	Detail() Detail
	// Content renders the panel's HTML.
	Content(ctx context.Context) (template.HTML, error)
}

type Panels []Panel

type Dashboard struct {
	logger *slog.Logger
	title  string
	panels Panels
}

var _ page.ViewFactory = (*Dashboard)(nil)

// New creates a new [Dashboard] instance.
func New(logger *slog.Logger, title string, panels Panels) *Dashboard {
	return &Dashboard{logger: logger, title: title, panels: panels}
}

type renderedPanel struct {
	Detail
	Content template.HTML
}

// Build renders every panel and the shell.
//
// The returned view writes the pre-rendered page.
func (d *Dashboard) Build(ctx context.Context) (templ.Component, error) {
	if len(d.panels) == 0 {
		return nil, errors.New("dashboard has no panels")
	}
	rendered := make([]renderedPanel, 0, len(d.panels))
	for _, panel := range d.panels {
		detail := panel.Detail()
		content, err := panel.Content(ctx)
		if err != nil {
			return nil, errors.Errorf("panel %s: %w", detail.Slug, err)
		}
		rendered = append(rendered, renderedPanel{Detail: detail, Content: content})
	}
	w := &bytes.Buffer{}
	err := indexTmpl.Execute(w, indexContext{Title: d.title, Panels: rendered})
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute base template")
	}
	d.logger.Debug("Built dashboard", "panels", len(rendered), "bytes", w.Len())
	html := w.Bytes()
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := w.Write(html)
		return errors.WithStack(err)
	}), nil
}

// renderTemplate executes a panel template into HTML.
func renderTemplate(tmpl *template.Template, data any) (template.HTML, error) {
	w := &bytes.Buffer{}
	if err := tmpl.Execute(w, data); err != nil {
		return "", errors.Errorf("failed to execute %s: %w", tmpl.Name(), err)
	}
	return template.HTML(w.String()), nil //nolint:gosec
}
