package catalog

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/overclock/pkg/cache"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/observability"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// Cached serves catalogs from a cache and falls back to an inner
// repository on a miss.
type Cached struct {
	Inner  Repository
	Cache  cache.Cache
	Keyer  cache.Keyer
	TTL    time.Duration
	Logger *log.Logger
	// Refresh bypasses cached entries and overwrites them.
	Refresh bool
}

// NewCached wraps inner. Nil cache and keyer select a NullCache and the
// default keyer.
func NewCached(inner Repository, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Cached {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Cached{Inner: inner, Cache: c, Keyer: keyer, TTL: cache.CatalogTTL, Logger: logger}
}

// Source returns the inner repository's source.
func (c *Cached) Source() string { return c.Inner.Source() }

// Key returns the cache key of the inner repository's current version.
func (c *Cached) Key(ctx context.Context) (string, error) {
	var version string
	if v, ok := c.Inner.(Versioner); ok {
		var err error
		if version, err = v.Version(ctx); err != nil {
			return "", err
		}
	}
	return c.Keyer.CatalogKey(c.Inner.Source(), version), nil
}

// Load returns the cached catalog, loading and storing it on a miss.
// Cache failures are logged and never fail the load.
func (c *Cached) Load(ctx context.Context) (recipe.Catalog, error) {
	key, err := c.Key(ctx)
	if err != nil {
		return nil, err
	}

	if !c.Refresh {
		data, hit, err := c.Cache.Get(ctx, key)
		if err != nil {
			c.Logger.Warn("catalog cache read failed", "err", err)
		}
		if hit {
			if cat, err := decodeCatalog(data); err == nil {
				observability.Cache().OnCacheHit(ctx, "catalog")
				c.Logger.Debug("catalog cache hit", "source", c.Source(), "recipes", len(cat))
				return cat, nil
			}
			c.Logger.Warn("discarding corrupt catalog cache entry", "source", c.Source())
		}
		observability.Cache().OnCacheMiss(ctx, "catalog")
	}

	cat, err := c.Inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := encodeCatalog(cat); err == nil {
		if err := c.Cache.Set(ctx, key, data, c.TTL); err != nil {
			c.Logger.Warn("catalog cache write failed", "err", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "catalog", len(data))
		}
	}
	return cat, nil
}

// Invalidate removes the cache entry for the current version.
func (c *Cached) Invalidate(ctx context.Context) error {
	key, err := c.Key(ctx)
	if err != nil {
		return err
	}
	return c.Cache.Delete(ctx, key)
}

// Save forwards to the inner repository and invalidates the cache.
func (c *Cached) Save(ctx context.Context, cat recipe.Catalog) error {
	s, ok := c.Inner.(Saver)
	if !ok {
		return errUnsupportedSave(c.Inner)
	}
	if err := c.Invalidate(ctx); err != nil {
		c.Logger.Warn("catalog cache invalidation failed", "err", err)
	}
	return s.Save(ctx, cat)
}

func errUnsupportedSave(r Repository) error {
	return errors.New(errors.ErrCodeUnsupported, "catalog source %s is read-only", r.Source())
}

func encodeCatalog(cat recipe.Catalog) ([]byte, error) {
	return json.Marshal(cat.Sorted())
}

func decodeCatalog(data []byte) (recipe.Catalog, error) {
	var recipes []*recipe.Recipe
	if err := json.Unmarshal(data, &recipes); err != nil {
		return nil, err
	}
	cat, err := recipe.NewCatalog(recipes...)
	if err != nil {
		return nil, err
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

var (
	_ Repository = (*Cached)(nil)
	_ Saver      = (*Cached)(nil)
)
