package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	collyfetcher "github.com/JakeFAU/tubeshelf/internal/fetcher/colly"
	"github.com/JakeFAU/tubeshelf/internal/library"
)

type oembedPayload struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (f *Fetcher) fetchOEmbed(ctx context.Context, canonicalURL string) (library.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.OEmbedTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("url", canonicalURL)
	q.Set("format", "json")
	resp, err := f.getter.Get(ctx, collyfetcher.Request{URL: f.cfg.OEmbedEndpoint + "?" + q.Encode()})
	if err != nil {
		return library.Metadata{}, fmt.Errorf("oembed request: %w", err)
	}

	var payload oembedPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return library.Metadata{}, fmt.Errorf("decode oembed: %w", err)
	}
	return library.Metadata{
		Title:        payload.Title,
		Author:       payload.AuthorName,
		ThumbnailURL: payload.ThumbnailURL,
	}, nil
}
