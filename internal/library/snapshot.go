package library

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// placeholder values written by earlier versions when a lookup failed.
const unknownPlaceholder = "(unknown)"

type snapshot struct {
	NextID     int64        `json:"next_id"`
	Categories []string     `json:"categories"`
	Links      []storedLink `json:"links"`
	Config     *Settings    `json:"config,omitempty"`
}

// storedLink accepts the single-category layout of older snapshots.
type storedLink struct {
	Link
	Category string `json:"category,omitempty"`
}

func encodeSnapshot(s snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

func (l *Library) snapshotLocked() snapshot {
	links := make([]storedLink, 0, len(l.order))
	for _, id := range l.order {
		links = append(links, storedLink{Link: *l.links[id]})
	}
	settings := cloneSettings(l.settings)
	return snapshot{
		NextID:     l.nextID,
		Categories: cloneStrings(l.categories),
		Links:      links,
		Config:     &settings,
	}
}

func (l *Library) restore(s snapshot) {
	if s.Config != nil {
		l.settings = overlaySettings(l.settings, *s.Config)
	}
	for _, c := range s.Categories {
		l.ensureCategory(c)
	}
	var maxID int64
	for _, stored := range s.Links {
		link := stored.Link
		migrateLink(&link, stored.Category)
		if link.NormalizedURL == "" {
			l.logger.Warn("skipping link without url in snapshot", zap.Int64("link_id", link.ID))
			continue
		}
		if id, dup := l.byURL[link.NormalizedURL]; dup {
			l.mergeStored(l.links[id], link)
			continue
		}
		if _, dup := l.links[link.ID]; dup {
			l.logger.Warn("skipping link with reused id in snapshot")
			continue
		}
		cp := link.clone()
		l.insert(&cp)
		for _, c := range cp.Categories {
			l.ensureCategory(c)
		}
		if link.ID > maxID {
			maxID = link.ID
		}
	}
	l.nextID = max(s.NextID, maxID+1, 1)
}

// mergeStored folds a repeated snapshot entry into the link that already owns
// its URL. Older snapshots kept one entry per category.
func (l *Library) mergeStored(survivor *Link, dup Link) {
	for _, c := range dup.Categories {
		if !survivor.HasCategory(c) {
			survivor.Categories = append(survivor.Categories, c)
		}
		l.ensureCategory(c)
	}
	for _, tag := range dup.Tags {
		if !containsString(survivor.Tags, tag) {
			survivor.Tags = append(survivor.Tags, tag)
		}
	}
	if survivor.PrimaryCategory == "" {
		survivor.PrimaryCategory = dup.PrimaryCategory
	}
	l.logger.Info("merged duplicate snapshot entry",
		zap.Int64("link_id", survivor.ID),
		zap.Int64("merged_id", dup.ID),
		zap.String("url", survivor.NormalizedURL),
	)
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func migrateLink(link *Link, legacyCategory string) {
	if len(link.Categories) == 0 && legacyCategory != "" {
		link.Categories = []string{legacyCategory}
	}
	if link.PrimaryCategory == "" && len(link.Categories) > 0 {
		link.PrimaryCategory = link.Categories[0]
	}
	if link.Tags == nil {
		link.Tags = []string{}
	}
	if link.Title == unknownPlaceholder {
		link.Title = ""
	}
	if link.Author == unknownPlaceholder {
		link.Author = ""
	}
	if link.Duration == "" && link.DurationSeconds > 0 {
		link.Duration = FormatDuration(link.DurationSeconds)
	}
	if link.MetadataStatus == "" {
		if link.Title != "" {
			link.MetadataStatus = StatusDone
		} else {
			link.MetadataStatus = StatusPending
		}
	}
}
