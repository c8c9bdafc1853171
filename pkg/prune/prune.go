// Package prune approximates the transitive set of recipes needed to satisfy
// a set of anchor recipes, together with seed clock percentages.
//
// Pruning bounds the size of the rate-pinning and power problems: instead of
// handing every catalog recipe to the solvers, only recipes reachable
// upstream of the anchors through resource shortfalls are kept.
//
// The default breadth strategy runs a fixed point. Each round adds the
// pending clocks to running totals, collects the resources whose running
// net rate is negative, splits every deficit evenly over all recipes that
// output the resource, and converts each share into a clock by inverting
// the producer's rate curve. Shares below the noise floor are discarded.
// The loop ends when no new clocks are pending, or as soon as a shortfall
// set repeats, accepting a possibly infeasible approximation so that cyclic
// catalogs always terminate. When the cycle-breaker resource (Power by
// default) is short together with anything else, it is left out of that
// round.
//
// The result is approximate by construction and must still pass the rate
// pinning stage.
package prune

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/overclock/pkg/dag"
	"github.com/matzehuels/overclock/pkg/dag/transform"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// Stage names this component in errors and logs.
const Stage = "pruning"

// Defaults for Options.
const (
	DefaultNoiseFloor    = 0.5
	DefaultMaxIterations = 1000
	DefaultMaxDepth      = 64
)

// rateEpsilon is the magnitude below which a running net rate counts as zero.
const rateEpsilon = 1e-10

// Strategy selects the expansion algorithm.
type Strategy int

const (
	// StrategyBreadth is the fixed-point expansion with shortfall history.
	StrategyBreadth Strategy = iota
	// StrategyDepth recursively expands each deficit as soon as it appears,
	// rounding clocks up.
	StrategyDepth
)

func (s Strategy) String() string {
	if s == StrategyDepth {
		return "depth"
	}
	return "breadth"
}

// ParseStrategy parses "breadth" or "depth". The empty string is breadth.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "breadth":
		return StrategyBreadth, nil
	case "depth":
		return StrategyDepth, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidInput, "unknown pruning strategy %q", s)
}

// Options tune the pruner. Zero values select the defaults.
type Options struct {
	Strategy Strategy
	// CycleBreaker is the resource dropped from a round when it is short
	// alongside other resources. Empty means recipe.Power.
	CycleBreaker string
	// NoCycleBreaker disables the rule entirely.
	NoCycleBreaker bool
	// NoiseFloor is the smallest clock contribution kept, in percent.
	NoiseFloor float64
	// MaxIterations caps breadth rounds, or depth expansions.
	MaxIterations int
	// MaxDepth caps depth-strategy recursion.
	MaxDepth int
}

func (o Options) withDefaults() Options {
	if o.CycleBreaker == "" {
		o.CycleBreaker = recipe.Power
	}
	if o.NoiseFloor <= 0 {
		o.NoiseFloor = DefaultNoiseFloor
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

// Result is a pruned catalog with seed clocks.
type Result struct {
	// Catalog holds every recipe that received a clock.
	Catalog recipe.Catalog `json:"-"`
	// Clocks are the accumulated seed clock percentages per recipe.
	Clocks map[string]float64 `json:"clocks"`
	// Rates are the running net rates per second at the end.
	Rates map[string]float64 `json:"rates"`
	// Iterations counts breadth rounds or depth expansions.
	Iterations int `json:"iterations"`
	// Repeated is set when a shortfall set recurred and the loop was cut short.
	Repeated bool `json:"repeated"`
	// Truncated is set when MaxIterations or MaxDepth stopped the expansion.
	Truncated bool `json:"truncated"`
	// Shortfalls lists resources still net negative at the end, sorted.
	Shortfalls []string `json:"shortfalls,omitempty"`
	// Unproducible lists short resources without any producer, sorted.
	Unproducible []string `json:"unproducible,omitempty"`
	// Cycles counts dependency cycles among the kept recipes.
	Cycles int `json:"cycles"`
}

// Converged reports whether every resource ended net non-negative.
func (r *Result) Converged() bool { return len(r.Shortfalls) == 0 }

// Names returns the kept recipe names, sorted.
func (r *Result) Names() []string { return r.Catalog.Names() }

// Pruner runs pruning over a catalog.
type Pruner struct {
	Options Options
	Logger  *log.Logger
}

// NewPruner returns a pruner. A nil logger discards output.
func NewPruner(opts Options, logger *log.Logger) *Pruner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Pruner{Options: opts, Logger: logger}
}

type producer struct {
	recipe *recipe.Recipe
	rate   recipe.Rate
}

// state carries one pruning run.
type state struct {
	opts      Options
	cat       recipe.Catalog
	producers map[string][]producer
	clocks    map[string]float64
	rates     map[string]float64
	unprod    map[string]bool
	steps     int
	truncated bool
}

func newState(cat recipe.Catalog, opts Options) *state {
	s := &state{
		opts:      opts,
		cat:       cat,
		producers: make(map[string][]producer),
		clocks:    make(map[string]float64),
		rates:     make(map[string]float64),
		unprod:    make(map[string]bool),
	}
	for _, r := range cat.Sorted() {
		for _, rt := range r.Outputs() {
			s.producers[rt.Resource] = append(s.producers[rt.Resource], producer{r, rt})
		}
	}
	return s
}

// add accumulates clock into a recipe and its rates.
func (s *state) add(name string, clock float64) {
	s.clocks[name] += clock
	for _, rt := range s.cat[name].Rates {
		next := s.rates[rt.Resource] + rt.Scaled(clock)
		if math.Abs(next) > rateEpsilon {
			s.rates[rt.Resource] = next
		} else {
			delete(s.rates, rt.Resource)
		}
	}
}

func (s *state) shortfalls() []string {
	var out []string
	for res, rate := range s.rates {
		if rate < -rateEpsilon {
			out = append(out, res)
		}
	}
	sort.Strings(out)
	return out
}

// shares splits the deficit of res evenly over its producers and returns
// the clock each producer needs, or nil when nothing produces res.
func (s *state) shares(res string, deficit float64) []share {
	prods := s.producers[res]
	if len(prods) == 0 {
		s.unprod[res] = true
		return nil
	}
	per := deficit / float64(len(prods))
	out := make([]share, 0, len(prods))
	for _, p := range prods {
		if clock := p.rate.ClockFor(per); clock >= s.opts.NoiseFloor {
			out = append(out, share{p.recipe.Name, clock})
		}
	}
	return out
}

type share struct {
	name  string
	clock float64
}

// Prune expands anchors (recipe name to clock percentage) into the recipe
// subset and seed clocks needed to sustain them.
func (p *Pruner) Prune(ctx context.Context, cat recipe.Catalog, anchors map[string]float64) (*Result, error) {
	if len(anchors) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s: no anchor recipes", Stage)
	}
	names := make([]string, 0, len(anchors))
	for name, clock := range anchors {
		if _, ok := cat[name]; !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "%s: unknown anchor recipe %q", Stage, name)
		}
		if err := errors.ValidateClock(name, clock); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	opts := p.Options.withDefaults()
	s := newState(cat, opts)

	var repeated bool
	var err error
	switch opts.Strategy {
	case StrategyDepth:
		err = s.depth(ctx, names, anchors)
	default:
		repeated, err = s.breadth(ctx, names, anchors)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		Catalog:    make(recipe.Catalog),
		Clocks:     make(map[string]float64),
		Rates:      s.rates,
		Iterations: s.steps,
		Repeated:   repeated,
		Truncated:  s.truncated,
		Shortfalls: s.shortfalls(),
	}
	for name, clock := range s.clocks {
		if clock > 1e-3 {
			res.Catalog[name] = cat[name]
			res.Clocks[name] = clock
		}
	}
	for r := range s.unprod {
		res.Unproducible = append(res.Unproducible, r)
	}
	sort.Strings(res.Unproducible)
	res.Cycles = len(transform.FindBackEdges(dag.FromCatalog(res.Catalog), false))

	p.Logger.Info("pruned recipes",
		"strategy", opts.Strategy, "kept", len(res.Catalog), "of", len(cat),
		"iterations", res.Iterations, "repeated", res.Repeated, "shortfalls", len(res.Shortfalls))
	if res.Cycles > 0 {
		p.Logger.Debug("kept recipes contain dependency cycles", "cycles", res.Cycles)
	}
	return res, nil
}

// breadth runs the fixed-point expansion.
func (s *state) breadth(ctx context.Context, names []string, anchors map[string]float64) (bool, error) {
	pending := make(map[string]float64, len(anchors))
	for _, name := range names {
		pending[name] = anchors[name]
	}
	history := make(map[string]bool)

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if s.steps >= s.opts.MaxIterations {
			s.truncated = true
			return false, nil
		}
		s.steps++

		for _, name := range sortedKeys(pending) {
			s.add(name, pending[name])
		}

		missing := s.shortfalls()
		if !s.opts.NoCycleBreaker && len(missing) > 1 {
			if i := sort.SearchStrings(missing, s.opts.CycleBreaker); i < len(missing) && missing[i] == s.opts.CycleBreaker {
				missing = append(missing[:i:i], missing[i+1:]...)
			}
		}

		key := strings.Join(missing, "\x00")
		if history[key] {
			return true, nil
		}
		history[key] = true

		pending = make(map[string]float64)
		for _, res := range missing {
			for _, sh := range s.shares(res, -s.rates[res]) {
				pending[sh.name] += sh.clock
			}
		}
	}
	return false, nil
}

// depth runs the recursive expansion. Each input that drives its running
// rate negative is covered immediately by its producers, with clocks
// rounded up.
func (s *state) depth(ctx context.Context, names []string, anchors map[string]float64) error {
	var visit func(name string, clock float64, level int) error
	visit = func(name string, clock float64, level int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if level > s.opts.MaxDepth || s.steps >= s.opts.MaxIterations {
			s.truncated = true
			return nil
		}
		s.steps++
		s.clocks[name] += clock
		for _, rt := range s.cat[name].Rates {
			s.rates[rt.Resource] += rt.Scaled(clock)
			if !rt.IsInput() || s.rates[rt.Resource] >= 0 {
				continue
			}
			for _, sh := range s.shares(rt.Resource, -s.rates[rt.Resource]) {
				if err := visit(sh.name, math.Ceil(sh.clock), level+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, name := range names {
		if err := visit(name, anchors[name], 0); err != nil {
			return fmt.Errorf("%s: %w", Stage, err)
		}
	}
	for res, rate := range s.rates {
		if math.Abs(rate) <= rateEpsilon {
			delete(s.rates, res)
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
