package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/overclock/pkg/cache"
	"github.com/matzehuels/overclock/pkg/catalog"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/observability"
	"github.com/matzehuels/overclock/pkg/power"
	"github.com/matzehuels/overclock/pkg/prune"
	"github.com/matzehuels/overclock/pkg/rates"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use it so that plans run identically everywhere.
//
// The Runner is stateless except for its collaborators; it doesn't store
// results. Plans run synchronously on the calling goroutine.
type Runner struct {
	Cache     cache.Cache
	Keyer     cache.Keyer
	Logger    *log.Logger
	Pinner    *rates.Pinner
	Allocator *power.Allocator
}

// NewRunner creates a runner with gonum-backed solvers.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:     c,
		Keyer:     keyer,
		Logger:    logger,
		Pinner:    rates.NewPinner(nil, logger),
		Allocator: power.NewAllocator(nil, logger),
	}
}

// stage runs fn between the observability stage hooks and returns its
// duration.
func stage(ctx context.Context, name string, fn func() error) (time.Duration, error) {
	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, name)
	start := time.Now()
	err := fn()
	d := time.Since(start)
	hooks.OnStageComplete(ctx, name, d, err)
	return d, err
}

// Execute runs the complete catalog → prune → pin → allocate pipeline.
// A plan solved before against the same catalog content is served from
// the cache unless opts.Refresh is set.
func (r *Runner) Execute(ctx context.Context, repo catalog.Repository, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	result := &Result{
		ID:            uuid.NewString(),
		Name:          opts.Name,
		CreatedAt:     time.Now().UTC(),
		CatalogSource: repo.Source(),
		Mode:          opts.Power.ShardMode,
	}

	// Stage 1: Catalog
	var cat recipe.Catalog
	d, err := stage(ctx, StageCatalog, func() error {
		var err error
		cat, err = repo.Load(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageCatalog, err)
	}
	result.Stats.CatalogTime = d
	result.Stats.Recipes = len(cat)
	if result.CatalogHash, err = cache.HashJSON(cat.Sorted()); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "hash catalog")
	}

	key, keyErr := r.planKey(result.CatalogHash, &opts)
	if keyErr == nil {
		result.CacheInfo.Key = key
		if !opts.Refresh {
			if cached, ok := r.cached(ctx, key, cat); ok {
				cached.ID, cached.CreatedAt = result.ID, result.CreatedAt
				cached.CacheInfo = CacheInfo{PlanHit: true, Key: key}
				r.Logger.Info("plan cache hit", "plan", opts.Name, "key", key)
				return cached, nil
			}
		}
	}

	// Stage 2: Prune
	work := cat
	if opts.Prune.Enabled {
		var pruned *prune.Result
		d, err := stage(ctx, StagePrune, func() error {
			anchors, err := Anchors(cat, &opts)
			if err != nil {
				return err
			}
			pruned, err = prune.NewPruner(opts.PruneConfig(), r.Logger).Prune(ctx, cat, anchors)
			return err
		})
		if err != nil {
			return nil, err
		}
		result.Pruned = pruned
		result.Stats.PruneTime = d
		result.Stats.Pruned = len(pruned.Catalog)
		result.Warnings = append(result.Warnings, pruneWarnings(pruned)...)
		work = pruned.Catalog
	}

	// Stage 3: Pin
	d, err = stage(ctx, StagePin, func() error {
		var err error
		result.Pinned, err = r.Pinner.Pin(ctx, work, opts.PinOptions())
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Stats.PinTime = d
	result.Stats.Pinned = len(result.Pinned.Clocks)
	if result.Pruned != nil {
		result.Warnings = append(result.Warnings, compareSeeds(result.Pruned, result.Pinned)...)
	}

	// Stage 4: Allocate
	d, err = stage(ctx, StageAllocate, func() error {
		var err error
		result.Power, err = r.Allocator.Allocate(ctx, work, result.Pinned.Clocks, opts.AllocateOptions())
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Stats.AllocateTime = d
	result.Warnings = append(result.Warnings, result.Power.Warnings...)

	for _, w := range result.Warnings {
		opts.Logger.Warn(w.String(), "code", w.Code, "level", w.Level)
	}
	r.Logger.Info("plan solved",
		"plan", opts.Name,
		"buildings", result.Power.Actual.Buildings,
		"power_mw", result.Power.Actual.Power/1e6,
		"shards", result.Power.Actual.Shards,
		"warnings", len(result.Warnings))

	if keyErr == nil {
		r.store(ctx, key, result)
	}
	return result, nil
}

func (r *Runner) planKey(catalogHash string, opts *Options) (string, error) {
	h, err := opts.Hash()
	if err != nil {
		return "", err
	}
	return r.Keyer.PlanKey(catalogHash, h), nil
}

// cached loads a stored result and relinks it against cat.
func (r *Runner) cached(ctx context.Context, key string, cat recipe.Catalog) (*Result, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("plan cache read failed", "err", err)
	}
	if !hit {
		observability.Cache().OnCacheMiss(ctx, "plan")
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil || res.Power == nil || res.Pinned == nil {
		r.Logger.Warn("discarding corrupt plan cache entry", "key", key)
		return nil, false
	}
	if err := power.Relink(res.Power.Solved, cat); err != nil {
		r.Logger.Warn("discarding stale plan cache entry", "key", key, "err", err)
		return nil, false
	}
	if res.Pruned != nil {
		res.Pruned.Catalog, _ = cat.Subset(sortedKeys(res.Pruned.Clocks))
	}
	observability.Cache().OnCacheHit(ctx, "plan")
	return &res, true
}

func (r *Runner) store(ctx context.Context, key string, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		r.Logger.Warn("plan not cached", "err", err)
		return
	}
	if err := r.Cache.Set(ctx, key, data, cache.PlanTTL); err != nil {
		r.Logger.Warn("plan cache write failed", "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "plan", len(data))
}

// Anchors derives pruning anchors from a plan: fixed and minimum clocks
// anchor their recipes directly, and every minimum rate is split evenly
// over the producers of its resource.
func Anchors(cat recipe.Catalog, opts *Options) (map[string]float64, error) {
	anchors := make(map[string]float64)
	for _, clocks := range []map[string]float64{opts.FixedClocks, opts.MinClocks} {
		for name, c := range clocks {
			if _, ok := cat[name]; !ok {
				return nil, errors.New(errors.ErrCodeInvalidInput, "%s: unknown recipe %q", StagePrune, name)
			}
			anchors[name] = math.Max(anchors[name], c)
		}
	}
	for _, res := range sortedKeys(opts.MinRates) {
		rate := opts.MinRates[res]
		if rate <= 0 {
			continue
		}
		producers := cat.Producers(res)
		if len(producers) == 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "%s: no recipe produces %q", StagePrune, res)
		}
		share := rate / float64(len(producers))
		for _, p := range producers {
			rt, _ := p.Rate(res)
			anchors[p.Name] += rt.ClockFor(share)
		}
	}
	if len(anchors) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s: plan has no positive anchors", StagePrune)
	}
	return anchors, nil
}

// pruneWarnings reports where the pruning approximation fell short.
func pruneWarnings(p *prune.Result) []power.Warning {
	var out []power.Warning
	if len(p.Unproducible) > 0 {
		out = append(out, power.Warning{
			Level:   power.LevelWarn,
			Code:    errors.ErrCodeApproximationMismatch,
			Message: "pruning found resources without producers: " + strings.Join(p.Unproducible, ", "),
		})
	}
	if !p.Converged() {
		msg := "pruning ended with shortfalls: " + strings.Join(p.Shortfalls, ", ")
		if p.Repeated {
			msg += " (shortfall set repeated)"
		}
		out = append(out, power.Warning{Level: power.LevelWarn, Code: errors.ErrCodeApproximationMismatch, Message: msg})
	}
	if p.Truncated {
		out = append(out, power.Warning{
			Level:   power.LevelWarn,
			Code:    errors.ErrCodeApproximationMismatch,
			Message: fmt.Sprintf("pruning stopped after %d iterations", p.Iterations),
		})
	}
	return out
}

// compareSeeds warns about recipes the rate pinning needed at a clock the
// pruner's seed does not come close to. A seed within a factor of two is
// considered in agreement.
func compareSeeds(p *prune.Result, pinned *rates.Result) []power.Warning {
	var out []power.Warning
	for _, name := range pinned.Recipes() {
		seed, clock := p.Clocks[name], pinned.Clocks[name]
		if clock < 1 {
			continue
		}
		if seed*2 < clock || seed > clock*2 {
			out = append(out, power.Warning{
				Level:   power.LevelWarn,
				Code:    errors.ErrCodeApproximationMismatch,
				Message: fmt.Sprintf("pruning seeded %.1f%% but rate pinning chose %.0f%%", seed, clock),
				Recipe:  name,
			})
		}
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
