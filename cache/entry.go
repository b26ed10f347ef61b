// Package cache implements the two-tier (memory + disk) CacheStore from
// SPEC_FULL.md §4.3: a bounded, LRU+priority evicted memory layer fronting
// an optional, pluggable disk layer (file_system or redis backed),
// adapted from the teacher's cache package (cache/filesystem_cache.go,
// cache/redis_cache.go, cache/async_cache.go, cache/transaction_registry*.go).
package cache

import (
	"time"

	"github.com/contentsquare/reqengine/request"
)

// Entry is a single cached response, matching the CacheEntry record in
// SPEC_FULL.md §3.
type Entry struct {
	Key        string
	Payload    []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Priority   request.Priority
	AccessCount uint64
	LastAccessedAt time.Time
	Tags       []string
	Compressed bool
	Obfuscated bool
	Size       int64
}

// Expired reports whether the entry is expired as of now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// ErrMissing is returned when a key is not present in a tier, matching the
// teacher's cache.ErrMissing sentinel.
var ErrMissing = missingError{}

type missingError struct{}

func (missingError) Error() string { return "cache: missing entry" }
