package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestNewHealth(t *testing.T) {
	tests := []struct {
		name    string
		pingers map[string]Pinger
		code    int
	}{
		{name: "no checks", code: http.StatusOK},
		{
			name:    "store up",
			pingers: map[string]Pinger{"store": pingerFunc(func(context.Context) error { return nil })},
			code:    http.StatusOK,
		},
		{
			name:    "store down",
			pingers: map[string]Pinger{"store": pingerFunc(func(context.Context) error { return errors.New("down") })},
			code:    http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHealth("admission", "test", tt.pingers)
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestNewObservability(t *testing.T) {
	var (
		registry = prometheus.NewRegistry()
		healthz  = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		decisions = promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "test_decisions_total",
			Help: "Decisions made in the test",
		})
	)

	decisions.Add(3)

	s := NewObservability(Config{Address: ":0"}, healthz, registry)
	assert.Equal(t, ":0", s.Addr())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_decisions_total 3")
	assert.NotContains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_Shutdown(t *testing.T) {
	s := NewObservability(Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second}, http.NotFoundHandler(), prometheus.NewRegistry())
	assert.Equal(t, time.Second, s.shutdownTimeout)

	done := make(chan error, 1)

	go func() { done <- s.ListenAndServe() }()

	require.Eventually(t, func() bool {
		return s.Shutdown() == nil
	}, time.Second, 10*time.Millisecond)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewServer_DefaultShutdownTimeout(t *testing.T) {
	s := newServer(Config{}, http.NotFoundHandler())
	assert.Equal(t, defaultShutdownTimeout, s.shutdownTimeout)
}
