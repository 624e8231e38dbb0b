// Package metadata looks up titles, authors and artwork for canonical video
// URLs. Two sources are consulted per call: a fast oEmbed lookup and a richer
// video-info scrape whose non-empty fields override the first.
package metadata

import (
	"context"
	"time"

	collyfetcher "github.com/JakeFAU/tubeshelf/internal/fetcher/colly"
	"github.com/JakeFAU/tubeshelf/internal/library"
	"go.uber.org/zap"
)

const (
	// DefaultOEmbedEndpoint is the public oEmbed lookup.
	DefaultOEmbedEndpoint = "https://www.youtube.com/oembed"
	// DefaultVideoInfoEndpoint is the unofficial detail endpoint.
	DefaultVideoInfoEndpoint = "https://www.youtube.com/get_video_info"

	defaultOEmbedTimeout    = 4 * time.Second
	defaultVideoInfoTimeout = 5 * time.Second
)

// Getter performs a single GET.
type Getter interface {
	Get(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Config wires endpoints and per-source timeouts.
type Config struct {
	OEmbedEndpoint    string
	VideoInfoEndpoint string
	OEmbedTimeout     time.Duration
	VideoInfoTimeout  time.Duration
}

// Fetcher implements library.MetadataFetcher.
type Fetcher struct {
	cfg    Config
	getter Getter
	logger *zap.Logger
}

var _ library.MetadataFetcher = (*Fetcher)(nil)

// New builds a Fetcher, filling zero config values with defaults.
func New(cfg Config, getter Getter, logger *zap.Logger) *Fetcher {
	if cfg.OEmbedEndpoint == "" {
		cfg.OEmbedEndpoint = DefaultOEmbedEndpoint
	}
	if cfg.VideoInfoEndpoint == "" {
		cfg.VideoInfoEndpoint = DefaultVideoInfoEndpoint
	}
	if cfg.OEmbedTimeout <= 0 {
		cfg.OEmbedTimeout = defaultOEmbedTimeout
	}
	if cfg.VideoInfoTimeout <= 0 {
		cfg.VideoInfoTimeout = defaultVideoInfoTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, getter: getter, logger: logger}
}

// Fetch makes one attempt per source and merges the results. It never fails;
// a source that errors contributes nothing.
func (f *Fetcher) Fetch(ctx context.Context, canonicalURL string) library.Metadata {
	meta, err := f.fetchOEmbed(ctx, canonicalURL)
	if err != nil {
		f.logger.Debug("oembed lookup yielded nothing", zap.String("url", canonicalURL), zap.Error(err))
	}

	id, ok := library.VideoID(canonicalURL)
	if !ok {
		return meta
	}
	detail, err := f.fetchVideoInfo(ctx, id)
	if err != nil {
		f.logger.Debug("video info lookup yielded nothing", zap.String("url", canonicalURL), zap.Error(err))
		return meta
	}
	return overlay(meta, detail)
}

// overlay copies every non-empty field of top onto base.
func overlay(base, top library.Metadata) library.Metadata {
	if top.Title != "" {
		base.Title = top.Title
	}
	if top.Author != "" {
		base.Author = top.Author
	}
	if top.ThumbnailURL != "" {
		base.ThumbnailURL = top.ThumbnailURL
	}
	if top.ChannelAvatar != "" {
		base.ChannelAvatar = top.ChannelAvatar
	}
	if top.DurationSeconds > 0 {
		base.DurationSeconds = top.DurationSeconds
		base.Duration = top.Duration
	}
	if top.PublishDate != "" {
		base.PublishDate = top.PublishDate
	}
	if top.VideoType != "" {
		base.VideoType = top.VideoType
	}
	return base
}
