// Package cli implements the overclock command-line interface.
//
// Commands:
//   - plan: solve a production plan file and print or write the result
//   - catalog: list, graph, import and browse recipe catalogs
//   - cache: manage the local result cache
//   - serve: run the HTTP API
//
// All commands support --verbose (-v) for debug-level logging.
//
// # Environment
//
//   - OVERCLOCK_REDIS_ADDR: use Redis instead of the file cache
//   - OVERCLOCK_REDIS_PASSWORD, OVERCLOCK_REDIS_DB: Redis credentials and database
//   - OVERCLOCK_MONGO_URI: read catalogs from MongoDB instead of files
//   - OVERCLOCK_CACHE_PREFIX: scope cache keys, e.g. per deployment sharing one Redis
//   - XDG_CACHE_HOME: base directory of the file cache
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/overclock/pkg/buildinfo"
	"github.com/matzehuels/overclock/pkg/cache"
	"github.com/matzehuels/overclock/pkg/catalog"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/observability"
	"github.com/matzehuels/overclock/pkg/pipeline"
)

const appName = "overclock"

// Environment variables read by the CLI.
const (
	EnvRedisAddr     = "OVERCLOCK_REDIS_ADDR"
	EnvRedisPassword = "OVERCLOCK_REDIS_PASSWORD"
	EnvRedisDB       = "OVERCLOCK_REDIS_DB"
	EnvMongoURI      = "OVERCLOCK_MONGO_URI"
	EnvCachePrefix   = "OVERCLOCK_CACHE_PREFIX"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance logging to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// EnableTracing routes pipeline, cache and solver events to the logger at
// debug level.
func (c *CLI) EnableTracing() {
	hooks := observability.NewLoggingHooks(c.Logger)
	observability.SetPipelineHooks(hooks)
	observability.SetCacheHooks(hooks)
	observability.SetSolverHooks(hooks)
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Overclock plans factories down to buildings, clocks and power shards",
		Long:         `Overclock pins recipe clocks with an integer LP, prunes the recipe graph, and allocates buildings, clock speeds and power shards for a production plan.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.planCommand())
	root.AddCommand(c.catalogCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())
	return root
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, cache.Cache, error) {
	ch, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.NewRunner(ch, newKeyer(), c.Logger), ch, nil
}

// newKeyer scopes cache keys by OVERCLOCK_CACHE_PREFIX when it is set.
func newKeyer() cache.Keyer {
	if prefix := os.Getenv(EnvCachePrefix); prefix != "" {
		return cache.NewScopedKeyer(nil, prefix)
	}
	return cache.NewDefaultKeyer()
}

// newCache picks Redis when configured, the file cache otherwise.
func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		db, _ := strconv.Atoi(os.Getenv(EnvRedisDB))
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     addr,
			Password: os.Getenv(EnvRedisPassword),
			DB:       db,
			Prefix:   appName + ":",
		})
		if err != nil {
			return nil, err
		}
		c.Logger.Debug("using redis cache", "addr", addr)
		return rc, nil
	}
	dir, err := cacheDir()
	if err != nil {
		c.Logger.Warn("no cache directory, caching disabled", "err", err)
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// openCatalog returns the catalog repository for path, wrapped in ch.
// With OVERCLOCK_MONGO_URI set and no path, the MongoDB catalog is used.
// The returned close function releases the repository.
func (c *CLI) openCatalog(ctx context.Context, path string, ch cache.Cache) (catalog.Repository, func(), error) {
	if path == "" {
		uri := os.Getenv(EnvMongoURI)
		if uri == "" {
			return nil, nil, errors.New(errors.ErrCodeInvalidInput, "no catalog: pass --catalog, set it in the plan, or set %s", EnvMongoURI)
		}
		m, err := catalog.NewMongo(ctx, catalog.MongoOptions{URI: uri}, c.Logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := m.Close(context.Background()); err != nil {
				c.Logger.Warn("close mongodb", "err", err)
			}
		}
		return catalog.NewCached(m, ch, newKeyer(), c.Logger), closeFn, nil
	}
	return catalog.NewCached(catalog.NewFile(path, c.Logger), ch, newKeyer(), c.Logger), func() {}, nil
}

// cacheDir returns the cache directory using XDG standard (~/.cache/overclock/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// parseFormats parses a comma-separated format string into a slice.
func parseFormats(s string) []string {
	if s == "" {
		return []string{pipeline.FormatTable}
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
