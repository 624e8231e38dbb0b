package library

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	canonicalHost = "www.youtube.com"
	shortHost     = "youtu.be"
)

var youtubeHosts = map[string]struct{}{
	"youtube.com":       {},
	"www.youtube.com":   {},
	"m.youtube.com":     {},
	"music.youtube.com": {},
	"youtu.be":          {},
	"www.youtu.be":      {},
}

// Normalize turns any accepted YouTube video URL into its canonical
// https://www.youtube.com/watch?v=<id>[&t=<t>] form. Everything that is not a
// direct video link on a known host yields ErrInvalidURL.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if _, ok := youtubeHosts[host]; !ok {
		return "", fmt.Errorf("%w: host %q", ErrInvalidURL, host)
	}
	query := u.Query()

	var videoID string
	if strings.HasSuffix(host, shortHost) {
		videoID = firstSegment(u.Path)
	} else {
		if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			videoID = firstSegment(rest)
		}
		// An explicit v parameter wins over the shorts path segment.
		if v := query.Get("v"); v != "" {
			videoID = v
		}
	}
	if videoID == "" {
		return "", fmt.Errorf("%w: no video id", ErrInvalidURL)
	}
	return canonical(videoID, query.Get("t")), nil
}

// VideoID extracts the v parameter from a canonical URL. It returns false
// when the URL carries no video id.
func VideoID(canonicalURL string) (string, bool) {
	u, err := url.Parse(canonicalURL)
	if err != nil {
		return "", false
	}
	id := u.Query().Get("v")
	return id, id != ""
}

func canonical(videoID, timestamp string) string {
	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(canonicalHost)
	b.WriteString("/watch?v=")
	b.WriteString(url.QueryEscape(videoID))
	if timestamp != "" {
		b.WriteString("&t=")
		b.WriteString(url.QueryEscape(timestamp))
	}
	return b.String()
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
