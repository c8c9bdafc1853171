// Package cache stores serialized catalogs and plan results between runs.
//
// Three backends share the [Cache] interface: [FileCache] for the CLI,
// [RedisCache] for the API server, and [NullCache] when caching is disabled.
// Keys are produced by a [Keyer] so that every caller derives the same key
// for the same catalog source or plan inputs.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the cached bytes and whether the key was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Default expiries for cached artifacts.
const (
	// CatalogTTL bounds how long an ingested catalog is reused.
	CatalogTTL = 7 * 24 * time.Hour
	// PlanTTL bounds how long a solved plan is reused.
	PlanTTL = 24 * time.Hour
)
