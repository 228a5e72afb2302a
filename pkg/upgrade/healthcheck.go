// Package upgrade pkg/upgrade/healthcheck.go - post-install health
// verification. Cancellation is timeout-only.

package upgrade

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/obsforge/stackupgrade/pkg/config"
	"github.com/obsforge/stackupgrade/pkg/resilience"
)

const (
	defaultHealthTimeout = 60 * time.Second
	healthDialTimeout    = 5 * time.Second
	maxMetricsBodySize   = 4 << 20 // 4MB
)

// runHealthCheck polls the component's declared endpoint until it reports
// healthy or the overall timeout elapses. No declared check passes
// trivially.
func (p *Pipeline) runHealthCheck(ctx context.Context, comp *config.ComponentConfig) error {
	hc := comp.HealthCheck
	if hc == nil {
		return nil
	}

	if hc.Endpoint == "" {
		return fmt.Errorf("%w: %w: %s", ErrHealthCheckFailed, errNoHealthEndpoint, comp.Name)
	}

	timeout := time.Duration(hc.Timeout)
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}

	var probe func() error

	switch hc.Type {
	case "", "http":
		expected := hc.ExpectedStatus
		if expected == 0 {
			expected = http.StatusOK
		}

		probe = func() error { return httpProbe(ctx, p.httpClient, hc.Endpoint, expected) }
	case "tcp":
		probe = func() error { return tcpProbe(hc.Endpoint) }
	default:
		return fmt.Errorf("%w: %w: %s", ErrHealthCheckFailed, errUnknownCheckType, hc.Type)
	}

	if err := resilience.RetryUntil(ctx, timeout, probe); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrHealthCheckFailed, comp.Name, err)
	}

	return nil
}

func httpProbe(ctx context.Context, client *http.Client, endpoint string, expected int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != expected {
		return fmt.Errorf("%w: got %d, want %d", errUnexpectedStatus, resp.StatusCode, expected)
	}

	return nil
}

func tcpProbe(endpoint string) error {
	conn, err := net.DialTimeout("tcp", endpoint, healthDialTimeout)
	if err != nil {
		return err
	}

	return conn.Close()
}

// verifyMetrics checks the component exposes a non-empty metrics payload.
// Failure is logged by the caller and is non-fatal to the upgrade.
func (p *Pipeline) verifyMetrics(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetricsBodySize))
	if err != nil {
		return err
	}

	if len(body) == 0 {
		return errEmptyMetrics
	}

	return nil
}
