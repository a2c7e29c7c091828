// Package loggingtest contains logging helpers for tests.
package loggingtest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

func NewForTesting() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Entry is a single captured log record.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// String renders the entry as "LEVEL message key=value ...".
func (e Entry) String() string {
	w := &strings.Builder{}
	fmt.Fprintf(w, "%s %s", e.Level, e.Message)
	for k, v := range e.Attrs {
		fmt.Fprintf(w, " %s=%s", k, v)
	}
	return w.String()
}

// Recorder captures log records in memory.
type Recorder struct {
	lock    *sync.Mutex
	entries *[]Entry
	attrs   []slog.Attr
}

var _ slog.Handler = (*Recorder)(nil)

// NewRecorder returns a [*slog.Logger] backed by a [Recorder] capturing every level.
func NewRecorder() (*slog.Logger, *Recorder) {
	r := &Recorder{lock: &sync.Mutex{}, entries: &[]Entry{}}
	return slog.New(r), r
}

func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *Recorder) Handle(_ context.Context, record slog.Record) error {
	entry := Entry{Level: record.Level, Message: record.Message, Attrs: map[string]string{}}
	for _, attr := range r.attrs {
		entry.Attrs[attr.Key] = attr.Value.String()
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.Attrs[attr.Key] = attr.Value.String()
		return true
	})
	r.lock.Lock()
	defer r.lock.Unlock()
	*r.entries = append(*r.entries, entry)
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Recorder{lock: r.lock, entries: r.entries, attrs: append(append([]slog.Attr{}, r.attrs...), attrs...)}
}

// WithGroup is a no-op, groups are flattened.
func (r *Recorder) WithGroup(string) slog.Handler { return r }

// Entries returns a copy of all captured entries.
func (r *Recorder) Entries() []Entry {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Entry{}, *r.entries...)
}

// Level returns the captured entries at exactly the given level.
func (r *Recorder) Level(level slog.Level) []Entry {
	out := []Entry{}
	for _, entry := range r.Entries() {
		if entry.Level == level {
			out = append(out, entry)
		}
	}
	return out
}
