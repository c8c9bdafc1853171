// Package lp defines the boundary to linear and mixed-integer linear
// programming engines.
//
// A [Problem] is a sparse matrix of named rows and columns with bounds,
// integrality markers and a linear objective. An [Engine] solves it and
// reports a [Solution] carrying primal and dual status plus indexed
// row and column values. [GonumEngine] is the bundled backend.
package lp

import (
	"fmt"
	"math"
)

// BoundKind classifies the bounds of a row or column.
type BoundKind int

const (
	// Free is unbounded in both directions.
	Free BoundKind = iota
	// Lower is bounded below only.
	Lower
	// Upper is bounded above only.
	Upper
	// Double is bounded on both sides.
	Double
	// Fixed pins the value to a single point.
	Fixed
)

// Bounds on a row activity or column value.
type Bounds struct {
	Kind  BoundKind
	Lower float64
	Upper float64
}

// Unbounded returns free bounds.
func Unbounded() Bounds { return Bounds{Kind: Free} }

// AtLeast returns the bounds [lb, +inf).
func AtLeast(lb float64) Bounds { return Bounds{Kind: Lower, Lower: lb} }

// AtMost returns the bounds (-inf, ub].
func AtMost(ub float64) Bounds { return Bounds{Kind: Upper, Upper: ub} }

// Between returns the bounds [lb, ub]. Equal ends give Fixed bounds.
func Between(lb, ub float64) Bounds {
	if lb == ub {
		return Exactly(lb)
	}
	return Bounds{Kind: Double, Lower: lb, Upper: ub}
}

// Exactly returns the bounds [v, v].
func Exactly(v float64) Bounds { return Bounds{Kind: Fixed, Lower: v, Upper: v} }

// Interval returns the bounds as a closed interval with infinite ends.
func (b Bounds) Interval() (lo, hi float64) {
	switch b.Kind {
	case Lower:
		return b.Lower, math.Inf(1)
	case Upper:
		return math.Inf(-1), b.Upper
	case Double:
		return b.Lower, b.Upper
	case Fixed:
		return b.Lower, b.Lower
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

// Contains reports whether v lies within the bounds, up to tol.
func (b Bounds) Contains(v, tol float64) bool {
	lo, hi := b.Interval()
	return v >= lo-tol && v <= hi+tol
}

// Direction of optimization.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

// ColumnKind marks whether a column must take an integer value.
type ColumnKind int

const (
	Continuous ColumnKind = iota
	Integer
)

// Row is a named constraint on the activity sum(a_ij * x_j).
type Row struct {
	Name   string
	Bounds Bounds
}

// Entry is a non-zero coefficient of a column in a row.
type Entry struct {
	Row   int
	Value float64
}

// Column is a named structural variable.
type Column struct {
	Name      string
	Kind      ColumnKind
	Bounds    Bounds
	Objective float64
	Entries   []Entry
}

// Problem is a sparse linear program.
type Problem struct {
	Name      string
	Direction Direction
	Rows      []Row
	Columns   []Column
}

// NewProblem returns an empty problem.
func NewProblem(name string, dir Direction) *Problem {
	return &Problem{Name: name, Direction: dir}
}

// AddRow appends a row and returns its index.
func (p *Problem) AddRow(name string, b Bounds) int {
	p.Rows = append(p.Rows, Row{Name: name, Bounds: b})
	return len(p.Rows) - 1
}

// AddColumn appends a column and returns its index.
func (p *Problem) AddColumn(c Column) int {
	p.Columns = append(p.Columns, c)
	return len(p.Columns) - 1
}

// SetCoef sets the coefficient of column j in row i, replacing any
// existing entry.
func (p *Problem) SetCoef(i, j int, v float64) {
	col := &p.Columns[j]
	for k := range col.Entries {
		if col.Entries[k].Row == i {
			col.Entries[k].Value = v
			return
		}
	}
	col.Entries = append(col.Entries, Entry{Row: i, Value: v})
}

// Validate checks indices, bound consistency and finiteness.
func (p *Problem) Validate() error {
	for i, r := range p.Rows {
		if err := checkBounds(r.Bounds); err != nil {
			return fmt.Errorf("row %d (%s): %w", i, r.Name, err)
		}
	}
	for j, c := range p.Columns {
		if err := checkBounds(c.Bounds); err != nil {
			return fmt.Errorf("column %d (%s): %w", j, c.Name, err)
		}
		if math.IsNaN(c.Objective) || math.IsInf(c.Objective, 0) {
			return fmt.Errorf("column %d (%s): non-finite objective", j, c.Name)
		}
		for _, e := range c.Entries {
			if e.Row < 0 || e.Row >= len(p.Rows) {
				return fmt.Errorf("column %d (%s): entry row %d out of range", j, c.Name, e.Row)
			}
			if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
				return fmt.Errorf("column %d (%s): non-finite coefficient", j, c.Name)
			}
		}
	}
	return nil
}

func checkBounds(b Bounds) error {
	lo, hi := b.Interval()
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return fmt.Errorf("NaN bound")
	}
	if lo > hi {
		return fmt.Errorf("lower bound %g above upper bound %g", lo, hi)
	}
	return nil
}

// Activity returns sum(a_ij * x_j) for every row at the given column values.
func (p *Problem) Activity(x []float64) []float64 {
	act := make([]float64, len(p.Rows))
	for j, c := range p.Columns {
		for _, e := range c.Entries {
			act[e.Row] += e.Value * x[j]
		}
	}
	return act
}

// ObjectiveValue returns sum(c_j * x_j).
func (p *Problem) ObjectiveValue(x []float64) float64 {
	v := 0.0
	for j, c := range p.Columns {
		v += c.Objective * x[j]
	}
	return v
}
