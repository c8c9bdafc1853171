// Package pipeline runs a production plan through every planning stage.
//
// This package implements the strict catalog → prune → pin → allocate
// sequence shared by the CLI and the API server. Each stage consumes the
// fully materialized output of the previous one.
//
// # Architecture
//
// The pipeline consists of four stages:
//
//  1. Catalog: load the recipe catalog from a [catalog.Repository]
//  2. Prune: optionally cut the catalog down to recipes upstream of the plan
//  3. Pin: solve the integer LP for per-recipe clock percentages
//  4. Allocate: solve building counts, clocks and shards, then distribute
//
// Plans are TOML files decoded into [Options]:
//
//	name = "plates"
//	catalog = "catalog.toml"
//
//	[fixed_clocks]
//	"Iron Plate" = 100
//
//	[power]
//	objective = "min-buildings"
//	shard_mode = "binary"
//	max_buildings = 50
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts, err := pipeline.LoadOptions("plan.toml")
//	result, err := runner.Execute(ctx, catalog.NewFile(opts.Catalog, logger), *opts)
//	fmt.Println(render.Table(result.Power, result.Pinned.Rates, render.TableOptions{}))
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/overclock/pkg/cache"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/power"
	"github.com/matzehuels/overclock/pkg/prune"
	"github.com/matzehuels/overclock/pkg/rates"
)

// Stage names reported to observability hooks.
const (
	StageCatalog  = "catalog"
	StagePrune    = prune.Stage
	StagePin      = rates.Stage
	StageAllocate = power.Stage
)

// PruneOptions configure the optional pruning stage.
type PruneOptions struct {
	Enabled  bool   `toml:"enabled" json:"enabled"`
	Strategy string `toml:"strategy" json:"strategy,omitempty"`
	// NoiseFloor is the smallest clock contribution kept, in percent.
	NoiseFloor float64 `toml:"noise_floor" json:"noise_floor,omitempty"`
	// CycleBreaker overrides the resource left out of mixed shortfalls.
	CycleBreaker   string `toml:"cycle_breaker" json:"cycle_breaker,omitempty"`
	NoCycleBreaker bool   `toml:"no_cycle_breaker" json:"no_cycle_breaker,omitempty"`
}

// Options is a production plan.
type Options struct {
	Name        string `toml:"name" json:"name,omitempty"`
	Description string `toml:"description" json:"description,omitempty"`
	// Catalog is the catalog file path, relative to the plan file.
	Catalog string `toml:"catalog" json:"catalog,omitempty"`

	// FixedClocks pins recipes to an exact clock percentage.
	FixedClocks map[string]float64 `toml:"fixed_clocks" json:"fixed_clocks,omitempty"`
	// MinClocks gives recipes a minimum clock percentage.
	MinClocks map[string]float64 `toml:"min_clocks" json:"min_clocks,omitempty"`
	// MinRates requires minimum net rates per second for resources.
	MinRates map[string]float64 `toml:"min_rates" json:"min_rates,omitempty"`

	Prune PruneOptions  `toml:"prune" json:"prune"`
	Power power.Options `toml:"power" json:"power"`

	// Runtime options (not serialized)
	Refresh bool        `toml:"-" json:"-"`
	Logger  *log.Logger `toml:"-" json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// ID identifies this run.
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// CatalogSource and CatalogHash identify the catalog the plan ran on.
	CatalogSource string `json:"catalog_source"`
	CatalogHash   string `json:"catalog_hash"`

	Pruned *prune.Result   `json:"pruned,omitempty"`
	Pinned *rates.Result   `json:"pinned"`
	Power  *power.Result   `json:"power"`
	Mode   power.ShardMode `json:"shard_mode"`

	// Warnings collects non-fatal findings of every stage.
	Warnings []power.Warning `json:"warnings,omitempty"`

	Stats     Stats     `json:"stats"`
	CacheInfo CacheInfo `json:"cache"`
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Recipes      int           `json:"recipes"`
	Pruned       int           `json:"pruned,omitempty"`
	Pinned       int           `json:"pinned"`
	CatalogTime  time.Duration `json:"catalog_time"`
	PruneTime    time.Duration `json:"prune_time,omitempty"`
	PinTime      time.Duration `json:"pin_time"`
	AllocateTime time.Duration `json:"allocate_time"`
}

// CacheInfo tracks whether the plan came from cache.
type CacheInfo struct {
	PlanHit bool   `json:"plan_hit"`
	Key     string `json:"key,omitempty"`
}

// ValidateAndSetDefaults checks the plan and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if len(o.FixedClocks) == 0 && len(o.MinClocks) == 0 && len(o.MinRates) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "plan needs fixed_clocks, min_clocks or min_rates")
	}
	for _, clocks := range []map[string]float64{o.FixedClocks, o.MinClocks} {
		for name, c := range clocks {
			if err := errors.ValidateName("recipe", name); err != nil {
				return err
			}
			if err := errors.ValidateClock(name, c); err != nil {
				return err
			}
		}
	}
	for res, rate := range o.MinRates {
		if err := errors.ValidateName("resource", res); err != nil {
			return err
		}
		if err := errors.ValidateFinite("minimum rate of "+res, rate); err != nil {
			return err
		}
	}
	if _, err := prune.ParseStrategy(o.Prune.Strategy); err != nil {
		return err
	}
	if o.Prune.NoiseFloor < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "negative noise floor %g", o.Prune.NoiseFloor)
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	o.validated = true
	return nil
}

// PinOptions returns the rate-pinning constraints of the plan.
func (o *Options) PinOptions() rates.Options {
	return rates.Options{Fixed: o.FixedClocks, Min: o.MinClocks, MinRates: o.MinRates}
}

// AllocateOptions returns the allocator settings of the plan. A rescaled
// allocation also carries the plan's minimum rates, so that the shared
// scale cannot shrink throughput below them. The larger minimum wins when
// both name a resource.
func (o *Options) AllocateOptions() power.Options {
	p := o.Power
	if !p.Rescale || len(o.MinRates) == 0 {
		return p
	}
	merged := make(map[string]float64, len(o.MinRates)+len(p.MinRates))
	for res, rate := range p.MinRates {
		merged[res] = rate
	}
	for res, rate := range o.MinRates {
		if cur, ok := merged[res]; !ok || rate > cur {
			merged[res] = rate
		}
	}
	p.MinRates = merged
	return p
}

// PruneConfig returns the pruner settings of the plan.
func (o *Options) PruneConfig() prune.Options {
	strategy, _ := prune.ParseStrategy(o.Prune.Strategy)
	return prune.Options{
		Strategy:       strategy,
		CycleBreaker:   o.Prune.CycleBreaker,
		NoCycleBreaker: o.Prune.NoCycleBreaker,
		NoiseFloor:     o.Prune.NoiseFloor,
	}
}

// Hash is a content hash of the plan inputs, used in cache keys.
func (o *Options) Hash() (string, error) {
	return cache.HashJSON(struct {
		Fixed    map[string]float64 `json:"fixed"`
		Min      map[string]float64 `json:"min"`
		MinRates map[string]float64 `json:"min_rates"`
		Prune    PruneOptions       `json:"prune"`
		Power    power.Options      `json:"power"`
	}{o.FixedClocks, o.MinClocks, o.MinRates, o.Prune, o.Power})
}
