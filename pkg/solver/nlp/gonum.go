package nlp

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/optimize"

	"github.com/matzehuels/overclock/pkg/observability"
	"github.com/matzehuels/overclock/pkg/solver/symbolic"
)

// Defaults for GonumEngine.
const (
	DefaultFeasibilityTolerance = 1e-6
	DefaultRelaxationTolerance  = 1e-3
	DefaultIntegerTolerance     = 1e-4
	DefaultNodeLimit            = 500
	DefaultEvaluations          = 20000
)

// penaltyWeights are the quadratic penalty weights tried in order; each
// subproblem starts from the previous one's minimizer.
var penaltyWeights = []float64{1e1, 1e3, 1e5, 1e7, 1e9}

// infeasibleValue replaces non-finite merit values so that Nelder-Mead
// always compares finite numbers.
const infeasibleValue = 1e300

// GonumEngine solves models with a sequence of quadratic penalty
// subproblems minimized by gonum's Nelder-Mead, and enforces integrality
// with depth-first branch-and-bound.
//
// Variables are projected onto their bounds before every evaluation, so
// expressions never see out-of-box values; the distance to the box is
// penalized instead. Constraint violations are measured relative to the
// magnitude of each constraint, and the objective is divided by its
// magnitude at the starting point.
//
// Incumbents must satisfy FeasibilityTolerance. Relaxations are only
// discarded as infeasible beyond the looser RelaxationTolerance, since a
// penalty method approaches active constraints from outside.
type GonumEngine struct {
	FeasibilityTolerance float64
	RelaxationTolerance  float64
	IntegerTolerance     float64
	NodeLimit            int
	Evaluations          int
	Logger               *log.Logger
}

// NewGonumEngine returns an engine with default tolerances.
func NewGonumEngine(logger *log.Logger) *GonumEngine {
	return &GonumEngine{Logger: logger}
}

func (e *GonumEngine) settings() GonumEngine {
	s := *e
	if s.FeasibilityTolerance <= 0 {
		s.FeasibilityTolerance = DefaultFeasibilityTolerance
	}
	if s.RelaxationTolerance <= 0 {
		s.RelaxationTolerance = DefaultRelaxationTolerance
	}
	if s.IntegerTolerance <= 0 {
		s.IntegerTolerance = DefaultIntegerTolerance
	}
	if s.NodeLimit <= 0 {
		s.NodeLimit = DefaultNodeLimit
	}
	if s.Evaluations <= 0 {
		s.Evaluations = DefaultEvaluations
	}
	if s.Logger == nil {
		s.Logger = log.New(io.Discard)
	}
	return s
}

// point is an evaluated candidate.
type point struct {
	x     []float64
	obj   float64
	viol  float64
	worst string
}

// Solve solves m with the given algorithm.
func (e *GonumEngine) Solve(ctx context.Context, m *Model, alg Algorithm) (*Result, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", m.Name, err)
	}
	s := e.settings()
	run := &solve{GonumEngine: s, model: m}

	n := len(m.Variables)
	lo, hi := make([]float64, n), make([]float64, n)
	x0 := make([]float64, n)
	for i, v := range m.Variables {
		lo[i], hi[i], x0[i] = v.Lower, v.Upper, v.Initial
		if alg == BranchAndBound && v.Integer {
			lo[i], hi[i] = math.Ceil(v.Lower), math.Floor(v.Upper)
		}
	}

	var (
		res *Result
		err error
	)
	if alg == BranchAndBound {
		res, err = run.branch(ctx, lo, hi, x0)
	} else {
		var p point
		p, err = run.relax(ctx, lo, hi, x0)
		if err == nil {
			res = run.result(p, Converged)
			if p.viol > s.RelaxationTolerance {
				res.Status = Infeasible
			}
		}
	}
	if err != nil {
		return nil, err
	}

	vars, ints, cons := m.Stats()
	s.Logger.Debug("nlp solve", "model", m.Name, "algorithm", alg, "vars", vars, "ints", ints,
		"constraints", cons, "status", res.Status, "objective", res.Objective, "violation", res.MaxViolation)
	observability.Solver().OnSolve(ctx, "nlp", alg.String(), vars, res.Status.String(), time.Since(start))
	return res, nil
}

// solve carries one engine invocation.
type solve struct {
	GonumEngine
	model *Model
	vals  symbolic.Values
}

func (s *solve) sense() float64 {
	if s.model.Sense == Maximize {
		return -1
	}
	return 1
}

func (s *solve) values(x []float64) symbolic.Values {
	if s.vals == nil {
		s.vals = make(symbolic.Values, len(x))
	}
	for i, v := range s.model.Variables {
		s.vals[v.Name] = x[i]
	}
	return s.vals
}

func (s *solve) evaluate(x []float64) point {
	obj, viol, worst := s.model.Evaluate(s.values(x))
	if math.IsNaN(obj) || math.IsInf(obj, 0) {
		viol = math.Inf(1)
		worst = "objective"
	}
	return point{x: x, obj: obj, viol: viol, worst: worst}
}

func (s *solve) result(p point, status Status) *Result {
	vals := make(symbolic.Values, len(p.x))
	for i, v := range s.model.Variables {
		vals[v.Name] = p.x[i]
	}
	return &Result{
		Status:       status,
		Values:       vals,
		Objective:    p.obj,
		MaxViolation: p.viol,
		Violated:     p.worst,
	}
}

// relax minimizes the continuous problem over the box [lo, hi] from start.
func (s *solve) relax(ctx context.Context, lo, hi, start []float64) (point, error) {
	n := len(lo)
	x := make([]float64, n)
	var free []int
	for i := range x {
		x[i] = clamp(start[i], lo[i], hi[i])
		if hi[i]-lo[i] > 1e-12 {
			free = append(free, i)
		} else {
			x[i] = lo[i]
		}
	}
	if len(free) == 0 {
		return s.evaluate(x), nil
	}

	scale := 1.0
	if f := s.model.Objective.Eval(s.values(x)); !math.IsNaN(f) && !math.IsInf(f, 0) {
		scale = math.Max(1, math.Abs(f))
	}
	sense := s.sense()

	full := make([]float64, n)
	place := func(y []float64) (box float64) {
		copy(full, x)
		for k, i := range free {
			c := clamp(y[k], lo[i], hi[i])
			d := y[k] - c
			box += d * d
			full[i] = c
		}
		return box
	}

	merit := func(mu float64) func([]float64) float64 {
		return func(y []float64) float64 {
			box := place(y)
			vals := s.values(full)
			obj := s.model.Objective.Eval(vals)
			pen := 0.0
			for _, c := range s.model.Constraints {
				v := c.Violation(vals)
				pen += v * v
			}
			f := sense*obj/scale + mu*(pen+box)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return infeasibleValue
			}
			return f
		}
	}

	y := make([]float64, len(free))
	for k, i := range free {
		y[k] = x[i]
	}
	var best point
	for stage, mu := range penaltyWeights {
		if err := ctx.Err(); err != nil {
			return point{}, err
		}
		settings := &optimize.Settings{
			FuncEvaluations: s.Evaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-12,
				Relative:   1e-12,
				Iterations: 20 * (len(free) + 1),
			},
		}
		method := &optimize.NelderMead{SimplexSize: 0.25}
		res, err := optimize.Minimize(optimize.Problem{Func: merit(mu)}, clone(y), settings, method)
		if res == nil {
			return point{}, fmt.Errorf("nelder-mead on %s: %w", s.model.Name, err)
		}
		y = clone(res.X)
		place(y)
		cand := s.evaluate(clone(full))
		if stage == 0 || better(cand, best, sense, s.FeasibilityTolerance) {
			best = cand
		}
		if cand.viol <= s.FeasibilityTolerance {
			break
		}
	}
	return best, nil
}

// better reports whether a beats b: feasibility first, then objective.
func better(a, b point, sense, tol float64) bool {
	af, bf := a.viol <= tol, b.viol <= tol
	switch {
	case af && !bf:
		return true
	case !af && bf:
		return false
	case !af && !bf:
		return a.viol < b.viol
	}
	return sense*a.obj < sense*b.obj
}

type bbNode struct {
	lo, hi, start []float64
}

// branch runs depth-first branch-and-bound over integer variables.
func (s *solve) branch(ctx context.Context, lo, hi, x0 []float64) (*Result, error) {
	sense := s.sense()
	var ints []int
	for i, v := range s.model.Variables {
		if v.Integer {
			ints = append(ints, i)
		}
	}

	var (
		best    *point
		root    *point
		nodes   int
		limited bool
		stack   = []bbNode{{lo: lo, hi: hi, start: x0}}
	)

	consider := func(p point) {
		if p.viol > s.FeasibilityTolerance {
			return
		}
		if best == nil || sense*p.obj < sense*best.obj {
			cp := p
			best = &cp
			s.Logger.Debug("nlp incumbent", "model", s.model.Name, "objective", p.obj, "node", nodes)
		}
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if nodes >= s.NodeLimit {
			limited = true
			break
		}
		nodes++

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		p, err := s.relax(ctx, nd.lo, nd.hi, nd.start)
		if err != nil {
			return nil, err
		}
		if root == nil {
			cp := p
			root = &cp
			rounded, err := s.polish(ctx, nd.lo, nd.hi, p.x, ints)
			if err != nil {
				return nil, err
			}
			consider(rounded)
		}
		if p.viol > s.RelaxationTolerance {
			continue
		}
		if best != nil && sense*p.obj >= sense*best.obj-1e-9*math.Max(1, math.Abs(best.obj)) {
			continue
		}

		branchVar, frac := -1, 0.0
		for _, i := range ints {
			f := p.x[i] - math.Floor(p.x[i])
			if d := math.Min(f, 1-f); d > s.IntegerTolerance && d > frac {
				branchVar, frac = i, d
			}
		}
		if branchVar < 0 {
			cand, err := s.polish(ctx, nd.lo, nd.hi, p.x, ints)
			if err != nil {
				return nil, err
			}
			consider(cand)
			continue
		}

		v := p.x[branchVar]
		down := bbNode{lo: nd.lo, hi: clone(nd.hi), start: p.x}
		down.hi[branchVar] = math.Floor(v)
		up := bbNode{lo: clone(nd.lo), hi: nd.hi, start: p.x}
		up.lo[branchVar] = math.Ceil(v)
		if v-math.Floor(v) < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}

	if limited {
		s.Logger.Warn("nlp node limit reached", "model", s.model.Name, "nodes", nodes)
	}
	if best == nil {
		status := Infeasible
		if limited {
			status = Failed
		}
		var p point
		if root != nil {
			p = *root
		} else {
			p = s.evaluate(clone(x0))
		}
		res := s.result(p, status)
		res.Nodes = nodes
		return res, nil
	}
	status := Converged
	if limited {
		status = IterationLimit
	}
	res := s.result(*best, status)
	res.Nodes = nodes
	return res, nil
}

// polish fixes every integer variable at its rounded value and re-solves
// the remaining continuous variables.
func (s *solve) polish(ctx context.Context, lo, hi, x []float64, ints []int) (point, error) {
	plo, phi := clone(lo), clone(hi)
	for _, i := range ints {
		r := clamp(math.Round(x[i]), lo[i], hi[i])
		plo[i], phi[i] = r, r
	}
	return s.relax(ctx, plo, phi, x)
}

func clone(s []float64) []float64 {
	return append([]float64(nil), s...)
}

var _ Engine = (*GonumEngine)(nil)
