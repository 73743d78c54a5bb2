package resolver

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidPostURL is returned when a user-supplied URL is not an
// Instagram post/reel/tv URL.
var ErrInvalidPostURL = errors.New("invalid post url")

// instagramHosts are the web hosts a post URL may use.
var instagramHosts = map[string]bool{
	"instagram.com":     true,
	"www.instagram.com": true,
}

// postPathKinds are the path segments that precede a shortcode.
var postPathKinds = map[string]bool{
	"p":     true,
	"reel":  true,
	"reels": true,
	"tv":    true,
}

// ParseShortcode extracts the shortcode from an Instagram post, reel or tv
// URL such as https://www.instagram.com/p/Cxyz123/ or
// https://www.instagram.com/<user>/reel/Cxyz123/.
func ParseShortcode(postURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(postURL))
	if err != nil {
		return "", ErrInvalidPostURL
	}
	if u.Scheme != "https" || !instagramHosts[strings.ToLower(u.Hostname())] {
		return "", ErrInvalidPostURL
	}

	segments := splitPath(u.Path)
	// The shortcode is the segment following p/reel/reels/tv.
	for i := 0; i < len(segments)-1; i++ {
		if postPathKinds[segments[i]] && validShortcode(segments[i+1]) {
			return segments[i+1], nil
		}
	}
	return "", ErrInvalidPostURL
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// validShortcode reports whether s looks like an Instagram shortcode:
// non-empty base64url-style token.
func validShortcode(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_') {
			return false
		}
	}
	return true
}
