// Package service implements the core relay logic: allowlist gating,
// Range forwarding, fetching, and response-header mapping.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"igrelay/internal/allowlist"
	"igrelay/internal/metrics"
	"igrelay/internal/model"
)

// Typed failures inspected by the handler. An upstream non-2xx status is
// deliberately not among them: it is passed through, not treated as a
// relay fault.
var (
	// ErrMissingTarget is returned when no target URL was supplied.
	ErrMissingTarget = errors.New("missing target url")

	// ErrHostNotAllowed is returned when the target host fails the CDN
	// allowlist check. No fetch is attempted.
	ErrHostNotAllowed = errors.New("host not allowed")

	// ErrUpstreamUnreachable wraps network, DNS and timeout failures where
	// no upstream response was received at all.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)

// forwardableResponseHeaders are the only upstream headers forwarded to the
// client. Everything else (cookies, CDN-internal debugging, conflicting
// security headers) is dropped.
var forwardableResponseHeaders = []string{
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"ETag",
	"Last-Modified",
	"Cache-Control",
}

const (
	userAgent        = "igrelay/1.0"
	fallbackFilename = "file"
	fallbackType     = "application/octet-stream"
)

// Fetcher performs the upstream GET. *client.CDNClient is the production
// implementation; tests substitute doubles.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, header http.Header) (*model.UpstreamResponse, error)
}

// RelayService validates, fetches and shapes one CDN asset per call.
// It holds no per-request state and is safe for concurrent use.
type RelayService struct {
	fetcher Fetcher
	guard   *allowlist.Allowlist
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRelayService creates a RelayService. The metrics parameter is
// optional; pass nil to disable rejection counters.
func NewRelayService(f Fetcher, guard *allowlist.Allowlist, logger *slog.Logger, m *metrics.Metrics) *RelayService {
	return &RelayService{
		fetcher: f,
		guard:   guard,
		logger:  logger.With("component", "relay_service"),
		metrics: m,
	}
}

// Relay validates targetURL against the allowlist, fetches it with the
// client's Range header forwarded, and returns the upstream status, the
// whitelisted headers and the live body stream. The caller owns closing
// the returned body on every exit path.
//
// The allowlist runs on the raw target every call; prior decisions are
// never cached, since the target is attacker-influenced.
func (s *RelayService) Relay(ctx context.Context, targetURL string, clientHeader http.Header, forceDownload bool) (*model.RelayResponse, error) {
	if targetURL == "" {
		s.countRejection(metrics.ReasonMissingTarget)
		return nil, ErrMissingTarget
	}

	if !s.guard.Allows(targetURL) {
		s.countRejection(metrics.ReasonHostNotAllowed)
		s.logger.Warn("target host rejected")
		return nil, ErrHostNotAllowed
	}

	upstream, err := s.fetcher.Fetch(ctx, targetURL, buildUpstreamHeaders(clientHeader))
	if err != nil {
		s.countRejection(metrics.ReasonUpstreamUnreachable)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}

	header := s.buildResponseHeaders(upstream.Header, targetURL, forceDownload)

	return &model.RelayResponse{
		StatusCode: upstream.StatusCode,
		Header:     header,
		Body:       upstream.Body,
	}, nil
}

// buildUpstreamHeaders forwards the client's Range header verbatim and
// nothing else. Cookies, auth and browser identity never reach the CDN.
func buildUpstreamHeaders(clientHeader http.Header) http.Header {
	dst := make(http.Header)
	if clientHeader != nil {
		if rng := clientHeader.Get("Range"); rng != "" {
			dst.Set("Range", rng)
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

// buildResponseHeaders maps the upstream headers onto the client response:
// the fixed whitelist, a resolved Content-Type, and an attachment
// disposition only when forceDownload is set.
func (s *RelayService) buildResponseHeaders(upstream http.Header, targetURL string, forceDownload bool) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableResponseHeaders {
		if vals := upstream.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}

	name := deriveFilename(targetURL)
	dst.Set("Content-Type", resolveContentType(upstream.Get("Content-Type"), name))

	if forceDownload {
		dst.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}

	return dst
}

// resolveContentType picks the upstream Content-Type when present, then a
// guess from the filename extension, then a generic binary type.
func resolveContentType(upstreamType, filename string) string {
	if upstreamType != "" {
		return upstreamType
	}
	if guessed := mime.TypeByExtension(path.Ext(filename)); guessed != "" {
		return guessed
	}
	return fallbackType
}

// deriveFilename returns the basename of the target URL's path component,
// stripped of characters that would break a quoted disposition value.
func deriveFilename(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil {
		return fallbackFilename
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = ""
	}
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return -1
		}
		return r
	}, name)

	if name == "" {
		return fallbackFilename
	}
	return name
}

func (s *RelayService) countRejection(reason string) {
	if s.metrics != nil {
		s.metrics.RejectedTargets.WithLabelValues(reason).Inc()
	}
}
