// Package library defines the link collection, its enrichment state and the
// types shared across the enrichment pipeline.
package library

import "time"

// MetadataStatus is the enrichment lifecycle state of a link.
type MetadataStatus string

// Link enrichment states.
const (
	StatusPending  MetadataStatus = "pending"
	StatusFetching MetadataStatus = "fetching"
	StatusDone     MetadataStatus = "done"
	StatusFailed   MetadataStatus = "failed"
)

// QueueStatus is the visibility state of a QueueItem.
type QueueStatus string

// Queue visibility states.
const (
	QueueWaiting  QueueStatus = "waiting"
	QueueFetching QueueStatus = "fetching"
	QueueDone     QueueStatus = "done"
	QueueFailed   QueueStatus = "failed"
)

// DuplicatePolicy decides what happens when a submitted URL already exists.
type DuplicatePolicy string

// Supported duplicate policies.
const (
	PolicyBlockCategory DuplicatePolicy = "block_category"
	PolicyWarnGlobal    DuplicatePolicy = "warn_global"
	PolicyAllowAll      DuplicatePolicy = "allow_all"
)

// Valid reports whether p is a known policy.
func (p DuplicatePolicy) Valid() bool {
	switch p {
	case PolicyBlockCategory, PolicyWarnGlobal, PolicyAllowAll:
		return true
	default:
		return false
	}
}

// Link is one bookmarked video.
type Link struct {
	ID              int64          `json:"id"`
	OriginalURL     string         `json:"original_url"`
	NormalizedURL   string         `json:"normalized_url"`
	Categories      []string       `json:"categories"`
	PrimaryCategory string         `json:"primary_category,omitempty"`
	Tags            []string       `json:"tags"`
	Title           string         `json:"title,omitempty"`
	Author          string         `json:"author,omitempty"`
	ThumbnailURL    string         `json:"thumbnail_url,omitempty"`
	ChannelAvatar   string         `json:"channel_avatar,omitempty"`
	Duration        string         `json:"duration,omitempty"`
	DurationSeconds int            `json:"duration_seconds,omitempty"`
	PublishDate     string         `json:"publish_date,omitempty"`
	VideoType       string         `json:"video_type,omitempty"`
	MetadataStatus  MetadataStatus `json:"metadata_status"`
	CreatedAt       time.Time      `json:"created_at"`
	LastRefreshed   *time.Time     `json:"last_refreshed,omitempty"`
}

// HasCategory reports whether the link is filed under category.
func (l Link) HasCategory(category string) bool {
	for _, c := range l.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func (l Link) clone() Link {
	cp := l
	cp.Categories = cloneStrings(l.Categories)
	cp.Tags = cloneStrings(l.Tags)
	if l.LastRefreshed != nil {
		ts := *l.LastRefreshed
		cp.LastRefreshed = &ts
	}
	return cp
}

// Metadata is a best-effort set of descriptive fields for a video. Empty
// fields mean "no data" and never overwrite stored values.
type Metadata struct {
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	ChannelAvatar   string `json:"channel_avatar,omitempty"`
	Duration        string `json:"duration,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	PublishDate     string `json:"publish_date,omitempty"`
	VideoType       string `json:"video_type,omitempty"`
}

// Empty reports whether no field was populated.
func (m Metadata) Empty() bool {
	return m == Metadata{}
}

// QueueItem is the visibility record for one enrichment attempt.
type QueueItem struct {
	LinkID        int64       `json:"link_id"`
	NormalizedURL string      `json:"url"`
	Status        QueueStatus `json:"status"`
	EnqueuedAt    time.Time   `json:"enqueued_at"`
}

// Task is what the work queue carries: a link id to re-resolve on dequeue.
type Task struct {
	LinkID     int64
	EnqueuedAt time.Time
}

// Settings are the runtime-mutable tunables read by the limiter and Submit.
type Settings struct {
	RateLimitPerSecond    int             `json:"rate_limit_per_second" mapstructure:"rate_limit_per_second"`
	RateLimitPerMinute    int             `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	DuplicatePolicy       DuplicatePolicy `json:"duplicate_policy" mapstructure:"duplicate_policy"`
	DefaultCategory       string          `json:"default_category" mapstructure:"default_category"`
	CategoryOrderStrategy string          `json:"category_order_strategy,omitempty" mapstructure:"category_order_strategy"`
	ViewDefaults          map[string]any  `json:"view_defaults,omitempty" mapstructure:"view_defaults"`
}

// SettingsPatch carries a partial settings update; nil fields are untouched.
type SettingsPatch struct {
	RateLimitPerSecond    *int             `json:"rate_limit_per_second"`
	RateLimitPerMinute    *int             `json:"rate_limit_per_minute"`
	DuplicatePolicy       *DuplicatePolicy `json:"duplicate_policy"`
	DefaultCategory       *string          `json:"default_category"`
	CategoryOrderStrategy *string          `json:"category_order_strategy"`
	ViewDefaults          map[string]any   `json:"view_defaults"`
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	Link        Link   `json:"link"`
	IsDuplicate bool   `json:"duplicate"`
	Warning     string `json:"warning,omitempty"`
}

// Draft is the whole externally visible state.
type Draft struct {
	NextID     int64       `json:"next_id"`
	Categories []string    `json:"categories"`
	Links      []Link      `json:"links"`
	Config     Settings    `json:"config"`
	Queue      []QueueItem `json:"queue"`
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
