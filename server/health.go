package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hellofresh/health-go/v4"
)

type Pinger interface {
	Ping(context.Context) error
}

const checkTimeout = 2 * time.Second

// NewHealth reports the service as healthy while every pinger answers.
func NewHealth(name, version string, pingers map[string]Pinger) (http.Handler, error) {
	checks := make([]health.Config, 0, len(pingers))

	for n, p := range pingers {
		checks = append(checks, health.Config{
			Name:    n,
			Timeout: checkTimeout,
			Check:   p.Ping,
		})
	}

	h, err := health.New(
		health.WithComponent(health.Component{Name: name, Version: version}),
		health.WithChecks(checks...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize health checks: %w", err)
	}

	return h.Handler(), nil
}
