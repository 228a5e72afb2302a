// Package version pkg/version/release.go - release API client

package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/obsforge/stackupgrade/pkg/resilience"
)

const (
	releaseRequestTimeout    = 10 * time.Second
	defaultRequestsPerMinute = 30
	maxReleaseBodySize       = 1 << 20 // 1MB
)

// releaseResponse covers both GitHub-style ("tag_name") and plain
// ("version") release payloads.
type releaseResponse struct {
	TagName string `json:"tag_name"`
	Version string `json:"version"`
}

// HTTPReleaseClient queries a release endpoint over HTTP. Requests are
// rate limited and retried with backoff; repeated failures trip a
// per-component circuit breaker.
type HTTPReleaseClient struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	breakers *resilience.BreakerRegistry
	retryCfg resilience.RetryConfig
}

// NewHTTPReleaseClient creates a release client for baseURL. Lookups hit
// GET {baseURL}/{component}/releases/latest.
func NewHTTPReleaseClient(baseURL string, requestsPerMinute int) *HTTPReleaseClient {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}

	return &HTTPReleaseClient{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: releaseRequestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
		breakers: resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig()),
		retryCfg: resilience.DefaultRetryConfig(),
	}
}

// LatestRelease implements ReleaseClient.
func (c *HTTPReleaseClient) LatestRelease(ctx context.Context, component string) (string, error) {
	if !c.limiter.Allow() {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %w", errRateLimited, err)
		}
	}

	var ver string

	err := c.breakers.Execute("release:"+component, func() error {
		return resilience.Retry(ctx, c.retryCfg, func() error {
			v, err := c.fetchLatest(ctx, component)
			if err != nil {
				return err
			}

			ver = v

			return nil
		})
	})
	if err != nil {
		return "", err
	}

	return ver, nil
}

func (c *HTTPReleaseClient) fetchLatest(ctx context.Context, component string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/releases/latest", c.baseURL, url.PathEscape(component))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to build release request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("release request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", errReleaseStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReleaseBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read release response: %w", err)
	}

	var release releaseResponse
	if err := json.Unmarshal(body, &release); err != nil {
		return "", fmt.Errorf("failed to parse release response: %w", err)
	}

	ver := release.TagName
	if ver == "" {
		ver = release.Version
	}

	if ver == "" {
		return "", errEmptyRelease
	}

	return Normalize(ver), nil
}
