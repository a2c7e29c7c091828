package logging

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"sync"
)

// Legacy creates a [log.Logger] that logs each line at level to the given [log/slog.Logger].
//
// It is used for [net/http.Server.ErrorLog].
func Legacy(logger *slog.Logger, level slog.Level) *log.Logger {
	return log.New(&slogWriter{logger: logger, level: level}, "", 0)
}

type slogWriter struct {
	mu     sync.Mutex
	logger *slog.Logger
	level  slog.Level
	// Partial line awaiting a newline.
	buffer string
}

func (w *slogWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer += string(p)
	if i := strings.LastIndexByte(w.buffer, '\n'); i != -1 {
		for line := range strings.SplitSeq(w.buffer[:i], "\n") {
			w.logger.Log(context.Background(), w.level, line)
		}
		w.buffer = w.buffer[i+1:]
	}
	return len(p), nil
}
