package library

import (
	"fmt"
	"maps"
	"strings"
)

func validateSettings(s Settings) (Settings, error) {
	if s.RateLimitPerSecond <= 0 {
		return Settings{}, fmt.Errorf("%w: rate_limit_per_second must be > 0", ErrInvalidSettings)
	}
	if s.RateLimitPerMinute <= 0 {
		return Settings{}, fmt.Errorf("%w: rate_limit_per_minute must be > 0", ErrInvalidSettings)
	}
	if s.DuplicatePolicy == "" {
		s.DuplicatePolicy = PolicyBlockCategory
	}
	if !s.DuplicatePolicy.Valid() {
		return Settings{}, fmt.Errorf("%w: unknown duplicate_policy %q", ErrInvalidSettings, s.DuplicatePolicy)
	}
	s.DefaultCategory = strings.TrimSpace(s.DefaultCategory)
	if s.DefaultCategory == "" {
		return Settings{}, fmt.Errorf("%w: default_category is required", ErrInvalidSettings)
	}
	return s, nil
}

func applyPatch(s Settings, p SettingsPatch) Settings {
	if p.RateLimitPerSecond != nil {
		s.RateLimitPerSecond = *p.RateLimitPerSecond
	}
	if p.RateLimitPerMinute != nil {
		s.RateLimitPerMinute = *p.RateLimitPerMinute
	}
	if p.DuplicatePolicy != nil {
		s.DuplicatePolicy = *p.DuplicatePolicy
	}
	if p.DefaultCategory != nil {
		s.DefaultCategory = *p.DefaultCategory
	}
	if p.CategoryOrderStrategy != nil {
		s.CategoryOrderStrategy = *p.CategoryOrderStrategy
	}
	if p.ViewDefaults != nil {
		s.ViewDefaults = maps.Clone(p.ViewDefaults)
	}
	return s
}

// overlaySettings lays values saved in a snapshot over the configured defaults.
func overlaySettings(base Settings, saved Settings) Settings {
	if saved.RateLimitPerSecond > 0 {
		base.RateLimitPerSecond = saved.RateLimitPerSecond
	}
	if saved.RateLimitPerMinute > 0 {
		base.RateLimitPerMinute = saved.RateLimitPerMinute
	}
	if saved.DuplicatePolicy.Valid() {
		base.DuplicatePolicy = saved.DuplicatePolicy
	}
	if strings.TrimSpace(saved.DefaultCategory) != "" {
		base.DefaultCategory = strings.TrimSpace(saved.DefaultCategory)
	}
	if saved.CategoryOrderStrategy != "" {
		base.CategoryOrderStrategy = saved.CategoryOrderStrategy
	}
	if saved.ViewDefaults != nil {
		base.ViewDefaults = maps.Clone(saved.ViewDefaults)
	}
	return base
}

func cloneSettings(s Settings) Settings {
	s.ViewDefaults = maps.Clone(s.ViewDefaults)
	return s
}
