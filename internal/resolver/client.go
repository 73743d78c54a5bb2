// Package resolver turns Instagram post URLs into the CDN asset lists the
// relay serves. It is the only part of the system that talks to Instagram
// itself; the relay core consumes its output as opaque CDN URLs.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"igrelay/internal/config"
	"igrelay/internal/model"
)

// Resolver supplies the deduplicated, ordered CDN assets of one post.
type Resolver interface {
	Resolve(ctx context.Context, shortcode string) ([]model.MediaAsset, error)
}

var (
	// ErrPostNotFound is returned when Instagram reports no media for the
	// shortcode.
	ErrPostNotFound = errors.New("post not found")

	// ErrLoginRequired is returned when Instagram refuses the request;
	// a session cookie is usually needed.
	ErrLoginRequired = errors.New("login required or rate-limited")
)

// shortcodeQueryHash identifies the web GraphQL query for media by shortcode.
const shortcodeQueryHash = "b3055c01b4b222b8a47dc12b090e4e64"

// Client resolves posts via Instagram's web GraphQL endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	sessionID  string
	userAgent  string
	logger     *slog.Logger
}

// NewClient creates a resolver Client from config. The session cookie is
// optional; without it only public posts resolve, and aggressively
// rate-limited at that.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Resolver.TimeoutSeconds) * time.Second,
		},
		baseURL:   cfg.Resolver.BaseURL,
		sessionID: cfg.Resolver.SessionID,
		userAgent: cfg.Resolver.UserAgent,
		logger:    logger.With("component", "resolver"),
	}
}

// Resolve fetches the post for shortcode and returns its CDN assets in
// display order, deduplicated, images and videos interleaved as Instagram
// reports them.
func (c *Client) Resolve(ctx context.Context, shortcode string) ([]model.MediaAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.postQueryURL(shortcode), nil)
	if err != nil {
		return nil, fmt.Errorf("build resolve request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.sessionID})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", shortcode, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPostNotFound
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrLoginRequired
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("resolve %s: unexpected status %d", shortcode, resp.StatusCode)
	}

	var pr postResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("resolve %s: decode response: %w", shortcode, err)
	}
	media := pr.Data.ShortcodeMedia
	if media == nil {
		return nil, ErrPostNotFound
	}

	assets := collectAssets(media)
	c.logger.Debug("resolved post", "shortcode", shortcode, "assets", len(assets))
	return assets, nil
}

// postQueryURL builds the GraphQL query URL for one shortcode.
func (c *Client) postQueryURL(shortcode string) string {
	params := url.Values{}
	params.Set("query_hash", shortcodeQueryHash)
	params.Set("variables", fmt.Sprintf(`{"shortcode":%q}`, shortcode))
	return fmt.Sprintf("%s/graphql/query/?%s", c.baseURL, params.Encode())
}

// collectAssets flattens a post into its CDN assets. Sidecar posts yield
// one asset per child; single posts yield one. Duplicate URLs are dropped
// while preserving first-seen order.
func collectAssets(media *shortcodeMedia) []model.MediaAsset {
	var assets []model.MediaAsset

	add := func(kind model.MediaKind, u string) {
		if u != "" {
			assets = append(assets, model.MediaAsset{Kind: kind, CDNURL: u})
		}
	}

	if media.Typename == sidecarTypename {
		for _, edge := range media.EdgeSidecarToChildren.Edges {
			if edge.Node.IsVideo {
				add(model.KindVideo, edge.Node.VideoURL)
			} else {
				add(model.KindImage, edge.Node.DisplayURL)
			}
		}
	} else if media.IsVideo {
		add(model.KindVideo, media.VideoURL)
	} else {
		add(model.KindImage, media.DisplayURL)
	}

	return dedup(assets)
}

// dedup removes assets with repeated CDN URLs, keeping first occurrence.
func dedup(assets []model.MediaAsset) []model.MediaAsset {
	seen := make(map[string]bool, len(assets))
	out := assets[:0]
	for _, a := range assets {
		if !seen[a.CDNURL] {
			seen[a.CDNURL] = true
			out = append(out, a)
		}
	}
	return out
}
