// Package feed renders the library as an Atom or RSS feed.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/JakeFAU/tubeshelf/internal/library"
)

// Format selects the feed flavor.
type Format string

// Supported formats.
const (
	FormatAtom Format = "atom"
	FormatRSS  Format = "rss"
)

const defaultLimit = 50

// Options controls which links end up in the feed.
type Options struct {
	// Category keeps only links filed under it. Empty keeps everything.
	Category string
	// Limit caps the number of items; <= 0 selects a default.
	Limit int
	// Now stamps the feed; zero uses the newest link's time.
	Now time.Time
}

// Render builds a feed of links, newest first. Links are expected in
// creation order, as returned by Library.ExportJSON.
func Render(links []library.Link, format Format, opts Options) (string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	updated := opts.Now
	title := "tubeshelf"
	if opts.Category != "" {
		title += " / " + opts.Category
	}
	f := &feeds.Feed{
		Title:       title,
		Description: "Saved YouTube videos",
		Link:        &feeds.Link{Href: "https://www.youtube.com/", Rel: "self", Type: "text/html"},
		Id:          "tag:tubeshelf," + strings.ToLower(strings.ReplaceAll(title, " ", "")),
	}
	for i := len(links) - 1; i >= 0 && len(f.Items) < limit; i-- {
		link := links[i]
		if opts.Category != "" && !link.HasCategory(opts.Category) {
			continue
		}
		f.Items = append(f.Items, item(link))
		if link.CreatedAt.After(updated) {
			updated = link.CreatedAt
		}
	}
	f.Created = updated
	f.Updated = updated

	var (
		out string
		err error
	)
	switch format {
	case FormatAtom:
		out, err = f.ToAtom()
	case FormatRSS:
		out, err = f.ToRss()
	default:
		return "", fmt.Errorf("unsupported feed format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("render %s feed: %w", format, err)
	}
	return out, nil
}

func item(link library.Link) *feeds.Item {
	title := link.Title
	if title == "" {
		title = link.NormalizedURL
	}
	it := &feeds.Item{
		Title:       title,
		Link:        &feeds.Link{Href: link.NormalizedURL, Rel: "alternate", Type: "text/html"},
		Id:          link.NormalizedURL,
		Description: describe(link),
		Created:     link.CreatedAt,
	}
	if link.Author != "" {
		it.Author = &feeds.Author{Name: link.Author}
	}
	if link.LastRefreshed != nil {
		it.Updated = *link.LastRefreshed
	}
	return it
}

func describe(link library.Link) string {
	parts := make([]string, 0, 3)
	if len(link.Categories) > 0 {
		parts = append(parts, "Categories: "+strings.Join(link.Categories, ", "))
	}
	if link.Duration != "" {
		parts = append(parts, "Duration: "+link.Duration)
	}
	if link.VideoType != "" {
		parts = append(parts, "Type: "+link.VideoType)
	}
	return strings.Join(parts, " | ")
}
