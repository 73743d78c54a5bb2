package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"igrelay/internal/config"
	"igrelay/internal/metrics"
	"igrelay/internal/service"
)

// ProxyHandler streams allowed CDN assets back to the browser from the
// same origin, with Range support and an optional forced-download
// disposition.
type ProxyHandler struct {
	service    *service.RelayService
	logger     *slog.Logger
	metrics    *metrics.Metrics
	chunkBytes int
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is
// optional; pass nil to disable the streamed-bytes counter.
func NewProxyHandler(svc *service.RelayService, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service:    svc,
		logger:     logger.With("component", "proxy_handler"),
		metrics:    m,
		chunkBytes: cfg.Relay.ChunkBytes,
	}
}

// Handle serves GET /proxy?u=<cdn-url>&download=<0|1>.
//
// The upstream status is mirrored unchanged (200, 206 on Range fetches,
// or the CDN's own error status with its body). Local failures are all
// 400: a missing target, a host outside the allowlist, or an upstream
// that could not be reached at all.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	target := c.QueryParam("u")
	forceDownload := c.QueryParam("download") == "1"

	resp, err := h.service.Relay(req.Context(), target, req.Header, forceDownload)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the upstream body in fixed-size chunks so memory stays
	// bounded regardless of asset size. If the copy fails mid-stream
	// (client disconnect, upstream drop), the status has already been
	// sent; the client sees a truncated body. We log it and release both
	// connections — closing resp.Body tears down the upstream transfer.
	buf := make([]byte, h.chunkBytes)
	n, err := io.CopyBuffer(c.Response(), resp.Body, buf)
	if h.metrics != nil {
		h.metrics.BytesStreamed.Add(float64(n))
	}
	if err != nil {
		h.logger.Warn("streaming interrupted",
			"err", err,
			"bytes_sent", n,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrMissingTarget):
		return c.String(http.StatusBadRequest, "Missing url")
	case errors.Is(err, service.ErrHostNotAllowed):
		// Deliberately terse: no echo of the rejected host or why.
		return c.String(http.StatusBadRequest, "Host not allowed")
	case errors.Is(err, service.ErrUpstreamUnreachable):
		h.logger.Error("upstream fetch failed", "err", err)
		return c.String(http.StatusBadRequest, "Fetch failed")
	}

	h.logger.Error("relay error", "err", err)
	return c.String(http.StatusBadRequest, "Fetch failed")
}
