package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"igrelay/internal/model"
	"igrelay/internal/resolver"
)

// ResolveResponse is the JSON body of /api/resolve: one preview/download
// link pair per asset, split by kind, in display order.
type ResolveResponse struct {
	Images []model.MediaPair `json:"images"`
	Videos []model.MediaPair `json:"videos"`
	Note   string            `json:"note,omitempty"`
}

// ResolveHandler turns an Instagram post URL into relay link pairs.
type ResolveHandler struct {
	resolver resolver.Resolver
	logger   *slog.Logger
}

// NewResolveHandler creates a ResolveHandler.
func NewResolveHandler(r resolver.Resolver, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{
		resolver: r,
		logger:   logger.With("component", "resolve_handler"),
	}
}

// Handle serves GET /api/resolve?url=<post-url>.
func (h *ResolveHandler) Handle(c echo.Context) error {
	shortcode, err := resolver.ParseShortcode(c.QueryParam("url"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid URL.",
		})
	}

	assets, err := h.resolver.Resolve(c.Request().Context(), shortcode)
	if err != nil {
		return h.mapError(c, shortcode, err)
	}

	resp := ResolveResponse{
		Images: []model.MediaPair{},
		Videos: []model.MediaPair{},
	}
	for _, a := range assets {
		pair := resolver.MediaPair(a)
		switch a.Kind {
		case model.KindVideo:
			resp.Videos = append(resp.Videos, pair)
		default:
			resp.Images = append(resp.Images, pair)
		}
	}

	if len(assets) == 0 {
		resp.Note = "Could not obtain media URLs. Login may be required or rate-limited."
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *ResolveHandler) mapError(c echo.Context, shortcode string, err error) error {
	h.logger.Error("resolve failed", "shortcode", shortcode, "err", err)

	if errors.Is(err, resolver.ErrPostNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "Post not found.",
		})
	}
	if errors.Is(err, resolver.ErrLoginRequired) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "Could not obtain media URLs. Login may be required or rate-limited.",
		})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "Could not resolve post.",
	})
}
