package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type (
	Config struct {
		Address         string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		IdleTimeout     time.Duration
		ShutdownTimeout time.Duration
	}

	// Server is an http.Server that stops within Config.ShutdownTimeout.
	Server struct {
		srv             *http.Server
		shutdownTimeout time.Duration
	}
)

const defaultShutdownTimeout = 30 * time.Second

func newServer(config Config, handler http.Handler) *Server {
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	return &Server{
		srv: &http.Server{
			Addr:         config.Address,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
			Handler:      handler,
		},
		shutdownTimeout: timeout,
	}
}

func (s *Server) Addr() string {
	return s.srv.Addr
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until the server fails or is shut down. A shutdown
// is not an error.
func (s *Server) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}

	return nil
}

// Shutdown stops accepting connections and waits for active ones, at most
// for the shutdown timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.srv.SetKeepAlivesEnabled(false)

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to gracefully shutdown server on %s: %w", s.srv.Addr, err)
	}

	return nil
}
