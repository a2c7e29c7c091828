// Package http runs the FloatChat HTTP server.
package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alecthomas/errors"

	"github.com/floatchat/floatchat/providers/logging"
)

type Config struct {
	Bind            string        `help:"The address to bind the server to." default:"127.0.0.1:8000" env:"FLOATCHAT_BIND"`
	ShutdownTimeout time.Duration `help:"How long to wait for in-flight requests on shutdown." default:"5s"`
}

// New creates a server for handler.
//
// Request contexts derive from ctx, so cancelling it also ends long-lived streams.
func New(ctx context.Context, logger *slog.Logger, config Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              config.Bind,
		Handler:           handler,
		BaseContext:       func(l net.Listener) context.Context { return ctx },
		ReadTimeout:       time.Second * 10,
		ReadHeaderTimeout: time.Second * 5,
		ErrorLog:          logging.Legacy(logger, slog.LevelError),
	}
}

// ListenAndServe serves on the configured address until ctx is cancelled, then shuts down gracefully.
//
// If the server does not drain within the shutdown timeout it is closed forcibly.
func ListenAndServe(ctx context.Context, logger *slog.Logger, config Config, server *http.Server) error {
	listener, err := net.Listen("tcp", config.Bind)
	if err != nil {
		return errors.Errorf("failed to listen on %s: %w", config.Bind, err)
	}
	return Serve(ctx, logger, config, server, listener)
}

// Serve is [ListenAndServe] on an existing listener.
func Serve(ctx context.Context, logger *slog.Logger, config Config, server *http.Server, listener net.Listener) error {
	errs := make(chan error, 1)
	go func() {
		logger.Info("Listening", "url", "http://"+listener.Addr().String())
		errs <- server.Serve(listener)
	}()
	select {
	case err := <-errs:
		return errors.Errorf("server failed: %w", err)

	case <-ctx.Done():
	}
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown did not complete", "timeout", config.ShutdownTimeout, "error", err)
		return errors.WithStack(server.Close())
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}
	return nil
}
