// Package store provides the CacheRepo interface and model for offline read fallback.
package store

import (
	"time"
)

// CachedResponse is a versioned copy of the last successful read response for
// a request key. Entries are replaced wholesale on update, never partially
// mutated, and entries tagged with a stale generation are purged on lifecycle
// activation rather than served.
type CachedResponse struct {
	Key         string    `json:"key"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Headers     string    `json:"headers"`
	Body        []byte    `json:"body"`
	Generation  string    `json:"generation"`
	StoredAt    time.Time `json:"stored_at"`
}

// CacheRepo defines the interface for the response cache.
type CacheRepo interface {
	// GetCachedResponse retrieves the cached response for a request key.
	// Returns (nil, nil) if absent.
	GetCachedResponse(key string) (*CachedResponse, error)

	// PutCachedResponse stores a response, replacing any previous entry for
	// the same key.
	PutCachedResponse(entry CachedResponse) error

	// PurgeCacheGenerations deletes every cached response whose generation
	// differs from keep, returning the number of purged entries. The outbox
	// is untouched.
	PurgeCacheGenerations(keep string) (int, error)
}

// SettingsRepo persists small agent settings (such as the active cache
// generation) so they survive restarts.
type SettingsRepo interface {
	// GetSetting returns the value for a settings key, or "" if unset.
	GetSetting(key string) (string, error)

	// PutSetting stores a settings value, replacing any previous one.
	PutSetting(key, value string) error
}

// SettingCacheGeneration is the settings key holding the active cache generation.
const SettingCacheGeneration = "cache_generation"
