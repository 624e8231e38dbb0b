package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	collyfetcher "github.com/JakeFAU/tubeshelf/internal/fetcher/colly"
	"github.com/JakeFAU/tubeshelf/internal/library"
)

const (
	videoTypeShort = "short"
	videoTypeLive  = "live"
	videoTypeVideo = "video"

	// Vertical clips at or under this length are classed as shorts when
	// the payload does not say so directly.
	shortMaxSeconds = 60
)

var errNoPlayerResponse = errors.New("player_response missing")

// playerResponse mirrors the parts of the embedded JSON blob we read. Every
// level is optional.
type playerResponse struct {
	VideoDetails *videoDetails `json:"videoDetails,omitempty"`
	Microformat  *struct {
		Renderer *microformatRenderer `json:"playerMicroformatRenderer,omitempty"`
	} `json:"microformat,omitempty"`
}

type videoDetails struct {
	Title         string        `json:"title,omitempty"`
	Author        string        `json:"author,omitempty"`
	LengthSeconds string        `json:"lengthSeconds,omitempty"`
	IsLiveContent bool          `json:"isLiveContent,omitempty"`
	Thumbnail     *thumbnailSet `json:"thumbnail,omitempty"`
}

type microformatRenderer struct {
	Title              *simpleText   `json:"title,omitempty"`
	OwnerChannelName   string        `json:"ownerChannelName,omitempty"`
	LengthSeconds      string        `json:"lengthSeconds,omitempty"`
	PublishDate        string        `json:"publishDate,omitempty"`
	IsShortsEligible   bool          `json:"isShortsEligible,omitempty"`
	AvailableCountries []string      `json:"availableCountries,omitempty"`
	Thumbnail          *thumbnailSet `json:"thumbnail,omitempty"`
	OwnerProfileImage  *thumbnailSet `json:"ownerProfileImage,omitempty"`
}

type simpleText struct {
	SimpleText string `json:"simpleText,omitempty"`
}

type thumbnailSet struct {
	Thumbnails []thumbnail `json:"thumbnails,omitempty"`
}

type thumbnail struct {
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// best returns the widest thumbnail URL. Ties and missing widths fall back to
// list order, where later entries are larger.
func (s *thumbnailSet) best() string {
	if s == nil {
		return ""
	}
	var (
		bestURL   string
		bestWidth = -1
	)
	for _, t := range s.Thumbnails {
		if t.URL == "" {
			continue
		}
		if t.Width >= bestWidth {
			bestURL, bestWidth = t.URL, t.Width
		}
	}
	return bestURL
}

func (f *Fetcher) fetchVideoInfo(ctx context.Context, videoID string) (library.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.VideoInfoTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("video_id", videoID)
	q.Set("el", "detailpage")
	resp, err := f.getter.Get(ctx, collyfetcher.Request{URL: f.cfg.VideoInfoEndpoint + "?" + q.Encode()})
	if err != nil {
		return library.Metadata{}, fmt.Errorf("video info request: %w", err)
	}
	return parseVideoInfo(resp.Body)
}

// parseVideoInfo decodes a query-string body carrying a player_response JSON
// blob.
func parseVideoInfo(body []byte) (library.Metadata, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return library.Metadata{}, fmt.Errorf("parse video info body: %w", err)
	}
	raw := values.Get("player_response")
	if raw == "" {
		return library.Metadata{}, errNoPlayerResponse
	}
	var player playerResponse
	if err := json.Unmarshal([]byte(raw), &player); err != nil {
		return library.Metadata{}, fmt.Errorf("decode player_response: %w", err)
	}
	return player.metadata(), nil
}

func (p playerResponse) metadata() library.Metadata {
	var (
		meta  library.Metadata
		micro *microformatRenderer
	)
	if p.Microformat != nil {
		micro = p.Microformat.Renderer
	}
	details := p.VideoDetails
	if details == nil {
		details = &videoDetails{}
	}

	meta.Title = details.Title
	meta.Author = details.Author
	meta.ThumbnailURL = details.Thumbnail.best()
	seconds := parseSeconds(details.LengthSeconds)

	if micro != nil {
		if meta.Title == "" && micro.Title != nil {
			meta.Title = micro.Title.SimpleText
		}
		if meta.Author == "" {
			meta.Author = micro.OwnerChannelName
		}
		if meta.ThumbnailURL == "" {
			meta.ThumbnailURL = micro.Thumbnail.best()
		}
		if seconds == 0 {
			seconds = parseSeconds(micro.LengthSeconds)
		}
		meta.ChannelAvatar = micro.OwnerProfileImage.best()
		meta.PublishDate = micro.PublishDate
	}

	meta.DurationSeconds = seconds
	meta.Duration = library.FormatDuration(seconds)
	if p.VideoDetails != nil || micro != nil {
		meta.VideoType = classify(details, micro, seconds)
	}
	return meta
}

func classify(details *videoDetails, micro *microformatRenderer, seconds int) string {
	switch {
	case details.IsLiveContent:
		return videoTypeLive
	case micro != nil && micro.IsShortsEligible:
		return videoTypeShort
	case micro != nil && containsFold(micro.AvailableCountries, "shorts"):
		return videoTypeShort
	case seconds > 0 && seconds <= shortMaxSeconds && portrait(details.Thumbnail):
		return videoTypeShort
	default:
		return videoTypeVideo
	}
}

func portrait(s *thumbnailSet) bool {
	if s == nil || len(s.Thumbnails) == 0 {
		return false
	}
	last := s.Thumbnails[len(s.Thumbnails)-1]
	return last.Height > last.Width
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func parseSeconds(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
