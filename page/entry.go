// Package page contains the entry point that mounts the dashboard page.
//
// An [Entry] delegates construction of its view to a [ViewFactory]. If the factory fails in any way the entry
// substitutes a [Fallback] view, so callers always receive something renderable.
package page

import (
	"context"
	"fmt"
	"net/http"
	"reflect"

	"github.com/a-h/templ"
	"github.com/alecthomas/errors"
)

// View is a renderable unit produced for display.
type View = templ.Component

// ViewFactory builds the view an [Entry] serves.
type ViewFactory interface {
	Build(ctx context.Context) (View, error)
}

// ViewFactoryFunc adapts a function to a [ViewFactory].
type ViewFactoryFunc func(ctx context.Context) (View, error)

func (f ViewFactoryFunc) Build(ctx context.Context) (View, error) { return f(ctx) }

// Logger is the diagnostic channel an [Entry] writes to.
//
// [*slog.Logger] satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// ChildRenderFailure is any failure raised while building the child view.
type ChildRenderFailure struct {
	Cause error
}

func (c ChildRenderFailure) Error() string {
	if c.Cause == nil {
		return "child view failed to build"
	}
	return "child view failed to build: " + c.Cause.Error()
}

func (c ChildRenderFailure) Unwrap() error { return c.Cause }

// Description of the underlying failure, with a placeholder for causes that carry no text.
func (c ChildRenderFailure) Description() string {
	if c.Cause == nil || c.Cause.Error() == "" {
		return noDescription
	}
	return c.Cause.Error()
}

const noDescription = "(no description)"

// Entry renders a page by delegating to a [ViewFactory], falling back to a fixed view on failure.
type Entry struct {
	name    string
	logger  Logger
	factory ViewFactory
}

// NewEntry creates a new [Entry] named name, used only in diagnostics.
func NewEntry(name string, logger Logger, factory ViewFactory) *Entry {
	return &Entry{name: name, logger: logger, factory: factory}
}

// Render returns the factory's view, or a [Fallback] if building it failed.
//
// It never returns nil.
func (e *Entry) Render(ctx context.Context) View {
	e.logger.Info("Rendering started", "page", e.name)
	view, err := e.build(ctx)
	if err != nil {
		var failure ChildRenderFailure
		if !errors.As(err, &failure) {
			failure = ChildRenderFailure{Cause: err}
		}
		e.logger.Error("Error rendering page", "page", e.name, "error", failure.Description())
		return NewFallback()
	}
	return view
}

// build runs the factory once, converting panics and nil or typed-nil views into a [ChildRenderFailure].
func (e *Entry) build(ctx context.Context) (view View, err error) {
	defer func() {
		if r := recover(); r != nil {
			view = nil
			if rerr, ok := r.(error); ok {
				err = ChildRenderFailure{Cause: rerr}
			} else {
				err = ChildRenderFailure{Cause: errors.New(fmt.Sprint(r))}
			}
		}
	}()
	view, err = e.factory.Build(ctx)
	if err != nil {
		return nil, ChildRenderFailure{Cause: err}
	}
	if isNil(view) {
		return nil, ChildRenderFailure{Cause: errors.Errorf("factory returned no view (%T)", view)}
	}
	return view, nil
}

// isNil reports whether view is nil, including typed nils such as a nil [templ.ComponentFunc].
func isNil(view View) bool {
	if view == nil {
		return true
	}
	v := reflect.ValueOf(view)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// ServeHTTP implements http.Handler.
func (e *Entry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	view := e.Render(r.Context())
	templ.Handler(view,
		templ.WithContentType("text/html; charset=utf-8"),
		templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
			e.logger.Error("Failed to write page", "page", e.name, "error", err)
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			})
		}),
	).ServeHTTP(w, r)
}
