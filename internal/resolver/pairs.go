package resolver

import (
	"net/url"

	"igrelay/internal/model"
)

// BuildMediaPairs derives the two same-origin relay links for each asset:
// a preview URL and a forced-download URL that differ only in the download
// flag. Input order is preserved.
func BuildMediaPairs(assets []model.MediaAsset) []model.MediaPair {
	pairs := make([]model.MediaPair, 0, len(assets))
	for _, a := range assets {
		pairs = append(pairs, MediaPair(a))
	}
	return pairs
}

// MediaPair derives the preview/download link pair for a single asset.
func MediaPair(a model.MediaAsset) model.MediaPair {
	return model.MediaPair{
		Preview:  proxyLink(a.CDNURL, false),
		Download: proxyLink(a.CDNURL, true),
	}
}

func proxyLink(cdnURL string, download bool) string {
	q := url.Values{}
	q.Set("u", cdnURL)
	if download {
		q.Set("download", "1")
	} else {
		q.Set("download", "0")
	}
	return "/proxy?" + q.Encode()
}
