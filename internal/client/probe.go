// Package client provides the outbound HTTP client used by the startup probe.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"commproto/internal/config"
	"commproto/internal/metrics"
)

// ProbeClient sends probe requests to the configured target.
type ProbeClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewProbeClient creates a ProbeClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable latency recording.
func NewProbeClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProbeClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Probe.IdleConnections,
		MaxIdleConnsPerHost: cfg.Probe.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &ProbeClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "probe_client"),
		metrics: m,
	}
}

// Do executes an HTTP request and returns the raw response.
// The caller is responsible for closing the response body.
func (c *ProbeClient) Do(req *http.Request) (*http.Response, error) {
	c.logger.Debug("probe request",
		"method", req.Method,
		"url", req.URL.String(),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller
	if c.metrics != nil {
		c.metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("probe request: %w", err)
	}
	return resp, nil
}

// Post sends body to url with the given header. The context bounds the
// whole exchange in addition to the client timeout.
func (c *ProbeClient) Post(ctx context.Context, url string, header http.Header, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}
	req.Header = header

	return c.Do(req)
}
