// Package rates pins integer clock percentages to recipes so that every
// resource has a non-negative net flow.
//
// The [Pinner] turns a catalog into an integer linear program with one
// column per recipe (its clock percentage) and one row per resource (the
// net flow, scaled by 100 because clocks are percentages). It minimizes the
// total clock, subject to caller-pinned clocks, minimum clocks and minimum
// net rates, and decodes the optimum back into per-recipe clocks and
// per-resource net rates per second.
package rates

import (
	"context"
	"io"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
	"github.com/matzehuels/overclock/pkg/solver/lp"
)

// Stage names this component in errors and logs.
const Stage = "rate pinning"

// Options constrain a pinning run.
type Options struct {
	// Fixed pins recipes to an exact clock percentage.
	Fixed map[string]float64
	// Min gives recipes a minimum clock percentage.
	Min map[string]float64
	// MinRates requires a minimum net rate per second for resources.
	// Resources not listed must be net non-negative.
	MinRates map[string]float64
}

// Result is a decoded rate-pinning optimum.
type Result struct {
	// Clocks holds the clock percentage of every recipe with a non-zero clock.
	Clocks map[string]float64 `json:"clocks"`
	// Rates holds the net rate per second of every resource.
	Rates map[string]float64 `json:"rates"`
	// Objective is the total clock percentage.
	Objective float64 `json:"objective"`
}

// Recipes returns the names of recipes with a non-zero clock, sorted.
func (r *Result) Recipes() []string {
	names := make([]string, 0, len(r.Clocks))
	for name := range r.Clocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Surplus returns resources with a net rate above tol, sorted.
func (r *Result) Surplus(tol float64) []string {
	var out []string
	for res, rate := range r.Rates {
		if rate > tol {
			out = append(out, res)
		}
	}
	sort.Strings(out)
	return out
}

// Pinner builds and solves rate-pinning problems.
type Pinner struct {
	Engine lp.Engine
	Logger *log.Logger
}

// NewPinner returns a pinner backed by engine. A nil engine uses the gonum
// backend; a nil logger discards output.
func NewPinner(engine lp.Engine, logger *log.Logger) *Pinner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if engine == nil {
		engine = lp.NewGonumEngine(logger)
	}
	return &Pinner{Engine: engine, Logger: logger}
}

// layout remembers which row and column belong to which name.
type layout struct {
	resources []string
	recipes   []string
}

// Build converts the catalog and options into an integer program.
func (p *Pinner) Build(cat recipe.Catalog, opts Options) (*lp.Problem, error) {
	prob, _, err := p.build(cat, opts)
	return prob, err
}

func (p *Pinner) build(cat recipe.Catalog, opts Options) (*lp.Problem, layout, error) {
	if len(cat) == 0 {
		return nil, layout{}, errors.New(errors.ErrCodeInvalidInput, "%s: empty catalog", Stage)
	}
	if err := checkNames(cat, opts); err != nil {
		return nil, layout{}, err
	}

	lay := layout{resources: cat.Resources(), recipes: cat.Names()}
	prob := lp.NewProblem("rates", lp.Minimize)

	rowOf := make(map[string]int, len(lay.resources))
	for _, res := range lay.resources {
		rowOf[res] = prob.AddRow(res, lp.AtLeast(100*opts.MinRates[res]))
	}

	for _, name := range lay.recipes {
		r := cat[name]
		bounds := lp.AtLeast(0)
		if v, ok := opts.Min[name]; ok {
			bounds = lp.AtLeast(v)
		}
		if v, ok := opts.Fixed[name]; ok {
			bounds = lp.Exactly(v)
		}
		col := lp.Column{Name: name, Kind: lp.Integer, Bounds: bounds, Objective: 1}
		for _, rt := range r.Rates {
			col.Entries = append(col.Entries, lp.Entry{Row: rowOf[rt.Resource], Value: rt.PerSecond()})
		}
		prob.AddColumn(col)
	}
	return prob, lay, nil
}

func checkNames(cat recipe.Catalog, opts Options) error {
	for _, m := range []map[string]float64{opts.Fixed, opts.Min} {
		for name, clock := range m {
			if _, ok := cat[name]; !ok {
				return errors.New(errors.ErrCodeInvalidInput, "%s: unknown recipe %q", Stage, name)
			}
			if err := errors.ValidateClock(name, clock); err != nil {
				return err
			}
		}
	}
	resources := make(map[string]bool)
	for _, res := range cat.Resources() {
		resources[res] = true
	}
	for res, rate := range opts.MinRates {
		if !resources[res] {
			return errors.New(errors.ErrCodeInvalidInput, "%s: unknown resource %q", Stage, res)
		}
		if err := errors.ValidateFinite("minimum rate of "+res, rate); err != nil {
			return err
		}
	}
	return nil
}

// Pin solves for the cheapest sustainable integer clocks.
//
// It fails with SOLVER_INFEASIBLE when no assignment satisfies the
// constraints, and with SOLVER_ABNORMAL when the engine ends anywhere other
// than an optimal primal with a feasible dual.
func (p *Pinner) Pin(ctx context.Context, cat recipe.Catalog, opts Options) (*Result, error) {
	prob, lay, err := p.build(cat, opts)
	if err != nil {
		return nil, err
	}
	p.Logger.Debug("rate pinning problem", "rows", len(prob.Rows), "columns", len(prob.Columns))

	rel, err := p.Engine.Relax(ctx, prob)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSolverAbnormal, err, "%s: relaxation", Stage)
	}
	if rel.Primal == lp.StatusNoFeasible {
		return nil, errors.Infeasible(Stage)
	}
	sol, err := p.Engine.Solve(ctx, prob)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSolverAbnormal, err, "%s: integer search", Stage)
	}

	switch {
	case sol.Primal == lp.StatusNoFeasible || sol.Primal == lp.StatusInfeasible:
		return nil, errors.Infeasible(Stage)
	case !sol.Optimal():
		status := sol.Primal
		if sol.Primal == lp.StatusOptimal {
			status = sol.Dual
		}
		return nil, errors.Abnormal(Stage, status)
	}

	res := &Result{
		Clocks:    make(map[string]float64),
		Rates:     make(map[string]float64, len(lay.resources)),
		Objective: sol.Objective,
	}
	for i, name := range lay.resources {
		res.Rates[name] = sol.Row(i) / 100
	}
	for j, name := range lay.recipes {
		if clock := sol.Column(j); clock != 0 {
			res.Clocks[name] = clock
		}
	}

	p.Logger.Info("pinned rates", "recipes", len(res.Clocks), "total_clock", res.Objective)
	return res, nil
}
