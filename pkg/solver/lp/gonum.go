package lp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"
	glp "gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/matzehuels/overclock/pkg/observability"
)

// Defaults for GonumEngine.
const (
	DefaultPivotTolerance    = 1e-10
	DefaultIntegerTolerance  = 1e-6
	DefaultNodeLimit         = 10000
	fixedColumnWidth         = 1e-12
	relativeObjectiveEpsilon = 1e-9
)

// GonumEngine solves problems with gonum's dense simplex and a depth-first
// branch-and-bound over integer columns.
//
// Problems are converted to the standard form min c·x, Ax = b, x >= 0:
// column bounds become shifts and reflections, every bounded row gets its
// own slack column (so A always has full row rank), and fixed columns are
// folded into the right-hand side.
type GonumEngine struct {
	PivotTolerance   float64
	IntegerTolerance float64
	NodeLimit        int
	Logger           *log.Logger
}

// NewGonumEngine returns an engine with default tolerances.
func NewGonumEngine(logger *log.Logger) *GonumEngine {
	return &GonumEngine{Logger: logger}
}

func (e *GonumEngine) defaults() (pivot, intTol float64, nodes int, logger *log.Logger) {
	pivot, intTol, nodes, logger = e.PivotTolerance, e.IntegerTolerance, e.NodeLimit, e.Logger
	if pivot <= 0 {
		pivot = DefaultPivotTolerance
	}
	if intTol <= 0 {
		intTol = DefaultIntegerTolerance
	}
	if nodes <= 0 {
		nodes = DefaultNodeLimit
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return
}

// relaxation is the outcome of one continuous solve.
type relaxation struct {
	status Status // Optimal, NoFeasible or Unbounded
	x      []float64
	obj    float64
}

// Relax solves the continuous relaxation of p.
func (e *GonumEngine) Relax(ctx context.Context, p *Problem) (*Solution, error) {
	start := time.Now()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	pivot, _, _, _ := e.defaults()
	lo, hi := columnIntervals(p)
	r, err := relax(p, lo, hi, pivot)
	if err != nil {
		return nil, err
	}
	sol := e.solution(p, r)
	observability.Solver().OnSolve(ctx, "lp", "relax", len(p.Columns), sol.Primal.String(), time.Since(start))
	return sol, nil
}

func (e *GonumEngine) solution(p *Problem, r relaxation) *Solution {
	sol := &Solution{Primal: r.status}
	switch r.status {
	case StatusOptimal:
		sol.Dual = StatusOptimal
		sol.Columns = r.x
		sol.Rows = p.Activity(r.x)
		sol.Objective = r.obj
	case StatusUnbounded:
		sol.Dual = StatusNoFeasible
	default:
		sol.Dual = StatusUndefined
	}
	return sol
}

type node struct {
	lo, hi []float64
}

// Solve runs the relaxation, then branch-and-bound on integer columns.
func (e *GonumEngine) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	start := time.Now()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	pivot, intTol, limit, logger := e.defaults()

	lo, hi := columnIntervals(p)
	var ints []int
	for j, c := range p.Columns {
		if c.Kind == Integer {
			ints = append(ints, j)
			lo[j] = math.Ceil(lo[j] - intTol)
			hi[j] = math.Floor(hi[j] + intTol)
		}
	}

	root, err := relax(p, lo, hi, pivot)
	if err != nil {
		return nil, err
	}
	if root.status != StatusOptimal || len(ints) == 0 {
		sol := e.solution(p, root)
		observability.Solver().OnSolve(ctx, "lp", "integer", len(p.Columns), sol.Primal.String(), time.Since(start))
		return sol, nil
	}

	sense := 1.0
	if p.Direction == Maximize {
		sense = -1
	}

	var (
		best      []float64
		bestValue = math.Inf(1)
		nodes     int
		limited   bool
		stack     = []node{{lo: lo, hi: hi}}
		cached    = &root
	)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if nodes >= limit {
			limited = true
			break
		}
		nodes++

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var r relaxation
		if cached != nil {
			r, cached = *cached, nil
		} else if r, err = relax(p, n.lo, n.hi, pivot); err != nil {
			return nil, err
		}
		if r.status != StatusOptimal {
			continue
		}
		value := sense * r.obj
		if best != nil && value >= bestValue-relativeObjectiveEpsilon*math.Max(1, math.Abs(bestValue)) {
			continue
		}

		branch, frac := -1, 0.0
		for _, j := range ints {
			f := r.x[j] - math.Floor(r.x[j])
			dist := math.Min(f, 1-f)
			if dist > intTol && dist > frac {
				branch, frac = j, dist
			}
		}

		if branch < 0 {
			x := append([]float64(nil), r.x...)
			for _, j := range ints {
				x[j] = math.Round(x[j])
			}
			best, bestValue = x, sense*p.ObjectiveValue(x)
			logger.Debug("integer incumbent", "problem", p.Name, "objective", p.ObjectiveValue(x), "node", nodes)
			continue
		}

		v := r.x[branch]
		down := node{lo: n.lo, hi: clone(n.hi)}
		down.hi[branch] = math.Floor(v)
		up := node{lo: clone(n.lo), hi: n.hi}
		up.lo[branch] = math.Ceil(v)

		if v-math.Floor(v) < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}

	sol := &Solution{Nodes: nodes}
	switch {
	case best == nil && limited:
		sol.Primal, sol.Dual = StatusUndefined, StatusUndefined
	case best == nil:
		sol.Primal, sol.Dual = StatusNoFeasible, StatusUndefined
	default:
		sol.Primal, sol.Dual = StatusOptimal, StatusFeasible
		if limited {
			sol.Primal = StatusFeasible
		}
		sol.Columns = best
		sol.Rows = p.Activity(best)
		sol.Objective = p.ObjectiveValue(best)
	}
	if limited {
		logger.Warn("branch-and-bound node limit reached", "problem", p.Name, "nodes", nodes)
	}
	observability.Solver().OnSolve(ctx, "lp", "integer", len(p.Columns), sol.Primal.String(), time.Since(start))
	return sol, nil
}

func columnIntervals(p *Problem) (lo, hi []float64) {
	lo = make([]float64, len(p.Columns))
	hi = make([]float64, len(p.Columns))
	for j, c := range p.Columns {
		lo[j], hi[j] = c.Bounds.Interval()
	}
	return lo, hi
}

// term expresses part of a column as coef * standard variable.
type term struct {
	v    int
	coef float64
}

// relax solves the continuous problem with column bounds [lo, hi].
func relax(p *Problem, lo, hi []float64, pivot float64) (relaxation, error) {
	n := len(p.Columns)
	sense := 1.0
	if p.Direction == Maximize {
		sense = -1
	}

	// Column j = offset[j] + sum(coef * v) over its terms.
	offset := make([]float64, n)
	terms := make([][]term, n)
	var upper []term // v <= coef
	nv := 0
	for j := 0; j < n; j++ {
		l, h := lo[j], hi[j]
		finL, finH := !math.IsInf(l, 0), !math.IsInf(h, 0)
		switch {
		case finL && finH && h < l-fixedColumnWidth:
			return relaxation{status: StatusNoFeasible}, nil
		case finL && finH && h-l <= fixedColumnWidth:
			offset[j] = l
		case finL:
			offset[j] = l
			terms[j] = []term{{nv, 1}}
			if finH {
				upper = append(upper, term{nv, h - l})
			}
			nv++
		case finH:
			offset[j] = h
			terms[j] = []term{{nv, -1}}
			nv++
		default:
			terms[j] = []term{{nv, 1}, {nv + 1, -1}}
			nv += 2
		}
	}

	cost := make([]float64, nv)
	for j, c := range p.Columns {
		for _, t := range terms[j] {
			cost[t.v] += sense * c.Objective * t.coef
		}
	}

	// Row activity = constant[i] + sum(rowCoef[i][v] * v).
	constant := make([]float64, len(p.Rows))
	rowCoef := make([]map[int]float64, len(p.Rows))
	for j, c := range p.Columns {
		for _, e := range c.Entries {
			constant[e.Row] += e.Value * offset[j]
			if len(terms[j]) == 0 {
				continue
			}
			if rowCoef[e.Row] == nil {
				rowCoef[e.Row] = make(map[int]float64)
			}
			for _, t := range terms[j] {
				rowCoef[e.Row][t.v] += e.Value * t.coef
			}
		}
	}

	type constraint struct {
		coef  map[int]float64
		slack float64
		rhs   float64
	}
	var cons []constraint
	for i, row := range p.Rows {
		rlo, rhi := row.Bounds.Interval()
		if !math.IsInf(rlo, 0) {
			cons = append(cons, constraint{rowCoef[i], -1, rlo - constant[i]})
		}
		if !math.IsInf(rhi, 0) {
			cons = append(cons, constraint{rowCoef[i], 1, rhi - constant[i]})
		}
	}
	for _, u := range upper {
		cons = append(cons, constraint{map[int]float64{u.v: 1}, 1, u.coef})
	}

	// Standard variables that appear in no constraint are set by their cost.
	used := make([]bool, nv)
	for _, c := range cons {
		for v, a := range c.coef {
			if a != 0 {
				used[v] = true
			}
		}
	}
	index := make([]int, nv)
	cols := 0
	for v := 0; v < nv; v++ {
		if !used[v] {
			if cost[v] < 0 {
				return relaxation{status: StatusUnbounded}, nil
			}
			index[v] = -1
			continue
		}
		index[v] = cols
		cols++
	}

	values := make([]float64, nv)
	m := len(cons)
	if m > 0 {
		width := cols + m
		a := mat.NewDense(m, width, nil)
		b := make([]float64, m)
		c := make([]float64, width)
		for v := 0; v < nv; v++ {
			if index[v] >= 0 {
				c[index[v]] = cost[v]
			}
		}
		for k, con := range cons {
			sign := 1.0
			if con.rhs < 0 {
				sign = -1
			}
			for v, coef := range con.coef {
				if index[v] >= 0 {
					a.Set(k, index[v], sign*coef)
				}
			}
			a.Set(k, cols+k, sign*con.slack)
			b[k] = sign * con.rhs
		}

		_, x, err := glp.Simplex(c, a, b, pivot, nil)
		switch {
		case errors.Is(err, glp.ErrInfeasible):
			return relaxation{status: StatusNoFeasible}, nil
		case errors.Is(err, glp.ErrUnbounded):
			return relaxation{status: StatusUnbounded}, nil
		case err != nil:
			return relaxation{}, fmt.Errorf("simplex on %q: %w", p.Name, err)
		}
		for v := 0; v < nv; v++ {
			if index[v] >= 0 {
				values[v] = x[index[v]]
			}
		}
	}

	out := make([]float64, n)
	for j := 0; j < n; j++ {
		out[j] = offset[j]
		for _, t := range terms[j] {
			out[j] += t.coef * values[t.v]
		}
	}
	return relaxation{status: StatusOptimal, x: out, obj: p.ObjectiveValue(out)}, nil
}

func clone(s []float64) []float64 {
	return append([]float64(nil), s...)
}

var _ Engine = (*GonumEngine)(nil)
