// Package power allocates building counts, clocks and shards to a set of
// pinned recipes by solving a mixed-integer nonlinear program, and
// distributes the result over concrete buildings.
//
// Each recipe with a positive pinned clock gets an integer building count
// and a clock total, which is either the pinned value or the pinned value
// times one shared scale. Power follows the building law
// n^-0.6 · (clock/100)^1.6 · base, which equals n buildings each drawing
// base · (clock/n/100)^1.6. Shards are optional and approximated per
// [ShardMode].
//
// The solve runs a continuous relaxation first and warm-starts the discrete
// search from it. The rounded result is then recomputed from first
// principles and compared against the solver's estimates; disagreements
// become warnings on the result, never errors.
package power

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
	"github.com/matzehuels/overclock/pkg/solver/nlp"
	"github.com/matzehuels/overclock/pkg/solver/symbolic"
)

// Stage names this component in errors and logs.
const Stage = "power allocation"

// shardBigM bounds the gap the binary shard switch has to bridge.
const shardBigM = 6

// rescaleSlack is how far, in percent, a rescaled integer clock total may
// sit from the shared scale times its pinned clock.
const rescaleSlack = 1

// limitTolerance is the relative slack allowed when recomputed totals are
// checked against rate minimums and limits.
const limitTolerance = 1e-6

// State tracks an allocation through its solve protocol.
type State int

const (
	Unsolved State = iota
	ContinuousSolved
	DiscreteSolved
	Verified
)

func (s State) String() string {
	switch s {
	case ContinuousSolved:
		return "continuous-solved"
	case DiscreteSolved:
		return "discrete-solved"
	case Verified:
		return "verified"
	default:
		return "unsolved"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st := Unsolved; st <= Verified; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown allocation state %q", b)
}

// Warning levels.
const (
	LevelWarn  = "warn"
	LevelError = "error"
)

// Warning is a non-fatal finding of result verification.
type Warning struct {
	Level   string      `json:"level"`
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
	Recipe  string      `json:"recipe,omitempty"`
}

func (w Warning) String() string {
	if w.Recipe != "" {
		return fmt.Sprintf("%s: %s", w.Recipe, w.Message)
	}
	return w.Message
}

// Totals are factory-wide sums.
type Totals struct {
	Buildings float64 `json:"buildings"`
	Power     float64 `json:"power"`
	Shards    float64 `json:"shards"`
}

// Result is a verified allocation.
type Result struct {
	// Solved holds the distributed groups in recipe name order.
	Solved []SolvedRecipe `json:"solved"`
	// Estimate are the totals the solver computed.
	Estimate Totals `json:"estimate"`
	// Actual are the totals recomputed from Solved.
	Actual Totals `json:"actual"`
	// Scale is the shared clock multiplier, 1 unless rescaling.
	Scale     float64    `json:"scale"`
	Objective float64    `json:"objective"`
	Status    nlp.Status `json:"-"`
	Nodes     int        `json:"nodes"`
	Warnings  []Warning  `json:"warnings,omitempty"`
	State     State      `json:"state"`
}

// Allocator solves allocations with an NLP engine.
type Allocator struct {
	Engine nlp.Engine
	Logger *log.Logger
}

// NewAllocator returns an allocator. A nil engine selects the gonum engine
// and a nil logger discards output.
func NewAllocator(engine nlp.Engine, logger *log.Logger) *Allocator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if engine == nil {
		engine = nlp.NewGonumEngine(logger)
	}
	return &Allocator{Engine: engine, Logger: logger}
}

// entry holds the model expressions of one recipe.
type entry struct {
	recipe *recipe.Recipe
	n      symbolic.Expr
	clock  symbolic.Expr
	each   symbolic.Expr
	power  symbolic.Expr
	shards symbolic.Expr
}

// model is a built allocation problem.
type model struct {
	*nlp.Model
	entries []*entry
	scale   symbolic.Expr
	power   symbolic.Expr
	count   symbolic.Expr
	shards  symbolic.Expr
}

// Allocate solves for building counts and clocks given the pinned clock
// totals per recipe. Recipes with a zero clock are left out.
func (a *Allocator) Allocate(ctx context.Context, cat recipe.Catalog, clocks map[string]float64, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	m, err := buildModel(cat, clocks, opts)
	if err != nil {
		return nil, err
	}
	vars, ints, cons := m.Stats()
	a.Logger.Debug("allocation model", "recipes", len(m.entries), "vars", vars, "ints", ints,
		"constraints", cons, "objective", opts.Objective, "shards", opts.ShardMode)

	state := Unsolved
	advance := func(next State) {
		a.Logger.Debug("allocation state", "from", state, "to", next)
		state = next
	}

	relaxed, err := a.solve(ctx, m, nlp.InteriorPoint)
	if err != nil {
		return nil, err
	}
	advance(ContinuousSolved)

	m.WarmStart(relaxed.Values)
	discrete, err := a.solve(ctx, m, nlp.BranchAndBound)
	if err != nil {
		return nil, err
	}
	advance(DiscreteSolved)

	res, err := m.decode(discrete)
	if err != nil {
		return nil, err
	}
	res.Warnings = m.verify(res, discrete.Values, opts)
	for _, w := range res.Warnings {
		if w.Level == LevelError {
			a.Logger.Error(w.Message, "code", w.Code, "recipe", w.Recipe)
		} else {
			a.Logger.Warn(w.Message, "code", w.Code, "recipe", w.Recipe)
		}
	}
	advance(Verified)
	res.State = state

	a.Logger.Info("allocated buildings",
		"groups", len(res.Solved), "buildings", res.Actual.Buildings,
		"power", res.Actual.Power, "shards", res.Actual.Shards, "nodes", res.Nodes)
	return res, nil
}

func (a *Allocator) solve(ctx context.Context, m *model, alg nlp.Algorithm) (*nlp.Result, error) {
	res, err := a.Engine.Solve(ctx, m.Model, alg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrCodeSolverAbnormal, err, "%s (%s)", Stage, alg)
	}
	switch res.Status {
	case nlp.Converged:
		return res, nil
	case nlp.Infeasible:
		a.Logger.Debug("allocation infeasible", "algorithm", alg, "violated", res.Violated, "violation", res.MaxViolation)
		return nil, errors.Infeasible(Stage)
	default:
		return nil, errors.Abnormal(Stage, res.Status)
	}
}

func buildModel(cat recipe.Catalog, clocks map[string]float64, opts Options) (*model, error) {
	if err := validate(cat, clocks, opts); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(clocks))
	for name, c := range clocks {
		if c > 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, errors.New(errors.ErrCodeNoBuildings, "%s: no recipe has a positive clock", Stage)
	}
	sort.Strings(names)

	m := &model{Model: nlp.NewModel("allocation")}
	maxScale := 1.0
	if opts.Rescale {
		m.scale = m.Continuous("scale", 0, opts.MaxScale, 1)
		maxScale = opts.MaxScale
	}

	var powers, counts, shards []symbolic.Expr
	for _, name := range names {
		r := cat[name]
		c := clocks[name]
		e := &entry{recipe: r}

		lo := math.Max(1, math.Ceil(c/MaxClock))
		if opts.Rescale {
			lo = 1
		}
		hi := math.Max(lo, math.Ceil(c*maxScale))
		start := lo
		if fixed, ok := opts.FixedBuildings[name]; ok {
			lo, hi, start = float64(fixed), float64(fixed), float64(fixed)
		}
		e.n = m.Int("n["+name+"]", lo, hi, start)

		if opts.Rescale {
			e.clock = m.Int("clock["+name+"]", 1, math.Max(1, math.Ceil(c*maxScale)), c)
			scaled := symbolic.Product(m.scale, symbolic.Const(c))
			m.Constrain(
				symbolic.Ge("scale_lo["+name+"]", e.clock, symbolic.Sub(scaled, symbolic.Const(rescaleSlack))),
				symbolic.Le("scale_hi["+name+"]", e.clock, symbolic.Sum(scaled, symbolic.Const(rescaleSlack))),
			)
		} else {
			e.clock = symbolic.Const(c)
		}
		e.each = symbolic.Div(e.clock, e.n)
		m.Constrain(
			symbolic.Le("clock_max["+name+"]", e.each, symbolic.Const(MaxClock)),
			symbolic.Ge("clock_min["+name+"]", e.each, symbolic.Const(1)),
		)

		e.power = symbolic.Product(
			symbolic.Pow(e.n, recipe.BuildingExp),
			symbolic.Pow(symbolic.Div(e.clock, symbolic.Const(NominalClock)), recipe.ConsumerExp),
			symbolic.Const(r.BasePower),
		)

		if opts.ShardMode != ShardNone {
			e.shards = m.shardTerms(name, e, opts.ShardMode)
			shards = append(shards, symbolic.Product(e.shards, e.n))
		}

		powers = append(powers, e.power)
		counts = append(counts, e.n)
		m.entries = append(m.entries, e)
	}
	m.power = symbolic.Sum(powers...)
	m.count = symbolic.Sum(counts...)
	m.shards = symbolic.Sum(shards...)

	m.rateRows(opts.MinRates)

	if opts.MaxBuildings != nil {
		m.Constrain(symbolic.Le("max_buildings", m.count, symbolic.Const(float64(*opts.MaxBuildings))))
	}
	if opts.MaxPower != nil {
		m.Constrain(symbolic.Le("max_power", m.power, symbolic.Const(*opts.MaxPower)))
	}
	if opts.MaxShards != nil {
		m.Constrain(symbolic.Le("max_shards", m.shards, symbolic.Const(float64(*opts.MaxShards))))
	}

	switch opts.Objective.Goal {
	case MinimizeBuildings:
		m.Minimize(m.count)
	case MinimizeShards:
		m.Minimize(m.shards)
	case MaximizeRecipe:
		m.Maximize(m.entry(opts.Objective.Recipe).clock)
	case MinimizeRecipe:
		m.Minimize(m.entry(opts.Objective.Recipe).clock)
	default:
		m.Minimize(m.power)
	}
	return m, nil
}

// shardTerms declares the shard variable of one recipe and its constraints.
// The variable approximates max(0, ceil(clock_each/50) - 2) through
// s - 0.01 <= max(0, clock_each/50 - 2) < s + 0.99.
func (m *model) shardTerms(name string, e *entry, mode ShardMode) symbolic.Expr {
	above := symbolic.Sub(symbolic.Scale(1.0/ShardStep, e.each), symbolic.Const(2))
	if mode == ShardRelaxed {
		s := m.Continuous("s["+name+"]", 0, MaxShardsEach, 0)
		pos := symbolic.SmoothMax(symbolic.Const(0), above, 1e-4)
		m.Constrain(
			symbolic.Ge("shard_lo["+name+"]", s, symbolic.Sub(pos, symbolic.Const(0.01))),
			symbolic.Le("shard_hi["+name+"]", s, symbolic.Sum(pos, symbolic.Const(0.99))),
		)
		return s
	}

	s := m.Int("s["+name+"]", 0, MaxShardsEach, 0)
	z := m.Binary("z[" + name + "]")
	y := m.Continuous("y["+name+"]", 0, MaxShardsEach, 0)
	m.Constrain(
		symbolic.Ge("shard_pos["+name+"]", y, above),
		symbolic.Le("shard_on["+name+"]", y, symbolic.Sum(above, symbolic.Scale(shardBigM, symbolic.Sub(symbolic.Const(1), z)))),
		symbolic.Le("shard_off["+name+"]", y, symbolic.Scale(shardBigM, z)),
		symbolic.Ge("shard_lo["+name+"]", s, symbolic.Sub(y, symbolic.Const(0.01))),
		symbolic.Le("shard_hi["+name+"]", s, symbolic.Sum(y, symbolic.Const(0.99))),
	)
	return s
}

// rateRows requires every resource touched by the modelled recipes to net
// at least its minimum rate per second.
func (m *model) rateRows(minRates map[string]float64) {
	terms := make(map[string][]symbolic.Expr)
	for _, e := range m.entries {
		for _, rt := range e.recipe.Rates {
			terms[rt.Resource] = append(terms[rt.Resource], symbolic.Scale(rt.PerSecond()/NominalClock, e.clock))
		}
	}
	resources := make([]string, 0, len(terms))
	for res := range terms {
		resources = append(resources, res)
	}
	sort.Strings(resources)
	for _, res := range resources {
		m.Constrain(symbolic.Ge("rate["+res+"]", symbolic.Sum(terms[res]...), symbolic.Const(minRates[res])))
	}
}

func (m *model) entry(name string) *entry {
	for _, e := range m.entries {
		if e.recipe.Name == name {
			return e
		}
	}
	return nil
}

func validate(cat recipe.Catalog, clocks map[string]float64, opts Options) error {
	for name, c := range clocks {
		if _, ok := cat[name]; !ok {
			return errors.New(errors.ErrCodeInvalidInput, "%s: unknown recipe %q", Stage, name)
		}
		if err := errors.ValidateClock(name, c); err != nil {
			return err
		}
	}
	active := func(name string) bool { return clocks[name] > 0 }

	for name, n := range opts.FixedBuildings {
		if !active(name) {
			return errors.New(errors.ErrCodeInvalidInput, "%s: fixed buildings for inactive recipe %q", Stage, name)
		}
		if n < 1 {
			return errors.New(errors.ErrCodeInvalidInput, "%s: fixed building count for %q must be positive (got %d)", Stage, name, n)
		}
	}
	if len(opts.MinRates) > 0 {
		known := make(map[string]bool)
		for _, res := range cat.Resources() {
			known[res] = true
		}
		for res, rate := range opts.MinRates {
			if !known[res] {
				return errors.New(errors.ErrCodeInvalidInput, "%s: unknown resource %q", Stage, res)
			}
			if err := errors.ValidateFinite("minimum rate of "+res, rate); err != nil {
				return err
			}
		}
	}

	switch opts.Objective.Goal {
	case MinimizeShards:
		if opts.ShardMode == ShardNone {
			return errors.New(errors.ErrCodeInvalidInput, "%s: minimizing shards needs a shard mode", Stage)
		}
	case MaximizeRecipe, MinimizeRecipe:
		if !active(opts.Objective.Recipe) {
			return errors.New(errors.ErrCodeInvalidInput, "%s: objective recipe %q is not allocated", Stage, opts.Objective.Recipe)
		}
	}
	if opts.MaxShards != nil && opts.ShardMode == ShardNone {
		return errors.New(errors.ErrCodeInvalidInput, "%s: a shard limit needs a shard mode", Stage)
	}
	if opts.MaxBuildings != nil && *opts.MaxBuildings < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "%s: negative building limit", Stage)
	}
	if opts.MaxShards != nil && *opts.MaxShards < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "%s: negative shard limit", Stage)
	}
	if opts.MaxPower != nil {
		if err := errors.ValidateFinite("power limit", *opts.MaxPower); err != nil {
			return err
		}
	}
	return nil
}

// decode rounds the discrete solution and distributes it into groups.
func (m *model) decode(sol *nlp.Result) (*Result, error) {
	res := &Result{
		Scale:     1,
		Objective: sol.Objective,
		Status:    sol.Status,
		Nodes:     sol.Nodes,
		Estimate: Totals{
			Buildings: sol.Value(m.count),
			Power:     sol.Value(m.power),
			Shards:    sol.Value(m.shards),
		},
	}
	if m.scale != nil {
		res.Scale = sol.Value(m.scale)
	}
	for _, e := range m.entries {
		s := SolvedRecipe{
			Recipe:     e.recipe,
			N:          int(math.Round(sol.Value(e.n))),
			ClockTotal: int(math.Round(sol.Value(e.clock))),
		}
		if s.IsEmpty() {
			continue
		}
		groups, err := s.Distribute()
		if err != nil {
			return nil, err
		}
		res.Solved = append(res.Solved, groups...)
	}
	if len(res.Solved) == 0 {
		return nil, errors.New(errors.ErrCodeNoBuildings, "%s: solution allocates no buildings", Stage)
	}
	for _, s := range res.Solved {
		res.Actual.Buildings += float64(s.N)
		res.Actual.Power += s.PowerTotal()
		res.Actual.Shards += float64(s.ShardsTotal())
	}
	return res, nil
}

// verify compares the solver's estimates against figures recomputed from
// the distributed groups.
func (m *model) verify(res *Result, vals symbolic.Values, opts Options) []Warning {
	var out []Warning
	level := LevelWarn
	if opts.ShardMode == ShardBinary {
		level = LevelError
	}
	mismatch := func(name, format string, args ...any) {
		out = append(out, Warning{
			Level:   level,
			Code:    errors.ErrCodeApproximationMismatch,
			Message: fmt.Sprintf(format, args...),
			Recipe:  name,
		})
	}

	if relGap(res.Estimate.Power, res.Actual.Power) > opts.Tolerance {
		mismatch("", "estimated power %.4g W differs from actual %.4g W", res.Estimate.Power, res.Actual.Power)
	}
	if math.Round(res.Estimate.Buildings) != res.Actual.Buildings {
		mismatch("", "estimated %g buildings, distributed %g", res.Estimate.Buildings, res.Actual.Buildings)
	}

	if opts.ShardMode != ShardNone {
		shardMismatch := false
		if relGap(res.Estimate.Shards, res.Actual.Shards) > opts.Tolerance {
			mismatch("", "estimated %.4g shards, actual %g", res.Estimate.Shards, res.Actual.Shards)
			shardMismatch = true
		}
		for _, s := range res.Solved {
			e := m.entry(s.Recipe.Name)
			if est := int(math.Round(e.shards.Eval(vals))); est != s.ShardsEach() {
				mismatch(s.Recipe.Name, "estimated %d shards each at %d%%, actual %d", est, s.ClockEach(), s.ShardsEach())
				shardMismatch = true
			}
		}
		if shardMismatch && opts.ShardMode == ShardRelaxed {
			out = append(out, Warning{
				Level:   LevelWarn,
				Code:    errors.ErrCodeApproximationMismatch,
				Message: "relaxed shard estimates disagree with the result; consider the binary shard mode",
			})
		}
		if opts.ShardMode == ShardBinary && res.Actual.Shards > 0 {
			out = append(out, Warning{
				Level:   LevelWarn,
				Code:    errors.ErrCodeApproximationMismatch,
				Message: fmt.Sprintf("binary shard mode uses %g shards; the non-convex search risks a non-optimal result", res.Actual.Shards),
			})
		}
	}
	return append(out, violations(res, opts)...)
}

// violations recomputes net resource rates and the configured limits from
// the distributed groups and reports every one the result breaks.
func violations(res *Result, opts Options) []Warning {
	var out []Warning
	violated := func(format string, args ...any) {
		out = append(out, Warning{
			Level:   LevelError,
			Code:    errors.ErrCodeApproximationMismatch,
			Message: fmt.Sprintf(format, args...),
		})
	}

	net, gross := NetRates(res.Solved)
	for _, r := range sortedResources(net) {
		floor := opts.MinRates[r] - limitTolerance*math.Max(1, gross[r])
		if net[r] < floor {
			violated("resource %s nets %.6g/s, below the required %g/s", r, net[r], opts.MinRates[r])
		}
	}
	if opts.MaxBuildings != nil && res.Actual.Buildings > float64(*opts.MaxBuildings) {
		violated("%g buildings exceed the limit of %d", res.Actual.Buildings, *opts.MaxBuildings)
	}
	if opts.MaxPower != nil && res.Actual.Power > *opts.MaxPower+limitTolerance*math.Max(1, *opts.MaxPower) {
		violated("actual power %.6g W exceeds the limit of %.6g W", res.Actual.Power, *opts.MaxPower)
	}
	if opts.MaxShards != nil && res.Actual.Shards > float64(*opts.MaxShards) {
		violated("%g shards exceed the limit of %d", res.Actual.Shards, *opts.MaxShards)
	}
	return out
}

// NetRates sums the flow per second of every resource over the groups,
// returning the net rate and the total absolute flow per resource.
func NetRates(solved []SolvedRecipe) (net, gross map[string]float64) {
	net, gross = make(map[string]float64), make(map[string]float64)
	for _, s := range solved {
		for _, rt := range s.Recipe.Rates {
			flow := rt.Scaled(float64(s.ClockTotal))
			net[rt.Resource] += flow
			gross[rt.Resource] += math.Abs(flow)
		}
	}
	return net, gross
}

func sortedResources(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func relGap(est, actual float64) float64 {
	return math.Abs(est-actual) / math.Max(1, math.Abs(actual))
}
