// Package client provides the streaming HTTP client for upstream CDN hosts.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"igrelay/internal/allowlist"
	"igrelay/internal/config"
	"igrelay/internal/metrics"
	"igrelay/internal/model"
)

// ErrRedirectNotAllowed is returned when a redirect hop points outside the
// configured CDN allowlist.
type ErrRedirectNotAllowed struct {
	Host string
}

func (e *ErrRedirectNotAllowed) Error() string {
	return fmt.Sprintf("redirect to host %q is not allowed", e.Host)
}

// CDNClient performs streaming GETs against allowed CDN hosts.
//
// The timeout covers dial, TLS and response-header receipt only. Once
// headers have arrived there is no overall deadline: large video bodies
// may legitimately stream for minutes. Cancellation after that point
// comes from the request context.
type CDNClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewCDNClient creates a CDNClient with connection pooling and header
// timeouts. Every redirect hop is re-validated against the allowlist, so a
// permitted host cannot bounce the relay to an arbitrary one. The metrics
// parameter is optional; pass nil to disable upstream metrics recording.
func NewCDNClient(cfg *config.Config, guard *allowlist.Allowlist, logger *slog.Logger, m *metrics.Metrics) *CDNClient {
	fetchTimeout := time.Duration(cfg.Relay.FetchTimeoutSecs) * time.Second

	transport := &http.Transport{
		MaxIdleConns:          cfg.Relay.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Relay.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   fetchTimeout,
		ResponseHeaderTimeout: fetchTimeout,
		DialContext: (&net.Dialer{
			Timeout:   fetchTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	maxRedirects := cfg.Relay.MaxRedirects

	return &CDNClient{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				if !guard.Allows(req.URL.String()) {
					return &ErrRedirectNotAllowed{Host: req.URL.Hostname()}
				}
				return nil
			},
		},
		logger:  logger.With("component", "cdn_client"),
		metrics: m,
	}
}

// Fetch performs a streaming GET against targetURL with the given upstream
// headers. The response body is not buffered; the caller owns closing it.
// Canceling ctx (e.g. on client disconnect) aborts the transfer.
//
// Non-2xx upstream statuses are ordinary responses, not errors: the relay
// passes them through. Only a failure to complete the fetch at all
// (dial, DNS, TLS, header timeout) returns an error. One attempt, no
// retries.
func (c *CDNClient) Fetch(ctx context.Context, targetURL string, header http.Header) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	c.logger.Debug("upstream fetch",
		"host", req.URL.Hostname(),
		"has_range", req.Header.Get("Range") != "",
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamHeaderLatency.Observe(duration)
		}
		return nil, fmt.Errorf("upstream fetch: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamHeaderLatency.Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
