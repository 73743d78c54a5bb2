// Package model defines shared types for the relay.
package model

import (
	"io"
	"net/http"
)

// MediaKind distinguishes image and video CDN assets.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// MediaAsset is a single resolved CDN object belonging to a post or story.
// Assets are request-scoped; nothing is ever persisted.
type MediaAsset struct {
	Kind   MediaKind
	CDNURL string
}

// MediaPair holds the two same-origin relay links derived for one asset:
// an inline preview URL and a forced-download URL. The two differ only in
// the download flag.
type MediaPair struct {
	Preview  string `json:"preview"`
	Download string `json:"download"`
}

// UpstreamResponse is the raw CDN response handed from the fetcher to the
// relay. The body is a live stream; whoever receives an UpstreamResponse
// owns closing Body on every exit path.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// RelayResponse is the client-facing shape of one relayed asset: the
// upstream status, the whitelisted subset of upstream headers (plus the
// resolved Content-Type and optional Content-Disposition), and the same
// body stream, consumed exactly once.
type RelayResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
