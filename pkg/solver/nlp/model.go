// Package nlp defines the boundary to nonlinear and mixed-integer nonlinear
// programming engines.
//
// A [Model] holds named variables with bounds and integrality, symbolic
// constraints and a symbolic objective. An [Engine] solves it either as a
// continuous relaxation ([InteriorPoint]) or as a discrete problem
// ([BranchAndBound]). Models carry initial values, so a continuous solve
// can warm-start the discrete one.
package nlp

import (
	"context"
	"fmt"
	"math"

	"github.com/matzehuels/overclock/pkg/solver/symbolic"
)

// Variable is a named decision variable.
type Variable struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
	Initial float64
}

// Sense of optimization.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Model is a nonlinear program over symbolic expressions.
type Model struct {
	Name        string
	Variables   []Variable
	Constraints []symbolic.Constraint
	Objective   symbolic.Expr
	Sense       Sense

	index map[string]int
}

// NewModel returns an empty minimization model.
func NewModel(name string) *Model {
	return &Model{Name: name, Objective: symbolic.Const(0), index: make(map[string]int)}
}

// AddVar declares a variable and returns an expression referencing it.
// The initial value is clamped into the bounds.
func (m *Model) AddVar(v Variable) symbolic.Expr {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	v.Initial = clamp(v.Initial, v.Lower, v.Upper)
	m.index[v.Name] = len(m.Variables)
	m.Variables = append(m.Variables, v)
	return symbolic.Var(v.Name)
}

// Continuous declares a continuous variable on [lo, hi].
func (m *Model) Continuous(name string, lo, hi, initial float64) symbolic.Expr {
	return m.AddVar(Variable{Name: name, Lower: lo, Upper: hi, Initial: initial})
}

// Int declares an integer variable on [lo, hi].
func (m *Model) Int(name string, lo, hi, initial float64) symbolic.Expr {
	return m.AddVar(Variable{Name: name, Lower: lo, Upper: hi, Integer: true, Initial: initial})
}

// Binary declares a 0/1 variable.
func (m *Model) Binary(name string) symbolic.Expr {
	return m.Int(name, 0, 1, 0)
}

// Var returns the declared variable with the given name.
func (m *Model) Var(name string) (Variable, bool) {
	i, ok := m.index[name]
	if !ok {
		return Variable{}, false
	}
	return m.Variables[i], true
}

// Constrain appends constraints.
func (m *Model) Constrain(cs ...symbolic.Constraint) {
	m.Constraints = append(m.Constraints, cs...)
}

// Minimize sets the objective to minimize e.
func (m *Model) Minimize(e symbolic.Expr) {
	m.Objective, m.Sense = e, Minimize
}

// Maximize sets the objective to maximize e.
func (m *Model) Maximize(e symbolic.Expr) {
	m.Objective, m.Sense = e, Maximize
}

// WarmStart replaces the initial values of the named variables.
func (m *Model) WarmStart(values symbolic.Values) {
	for name, v := range values {
		if i, ok := m.index[name]; ok {
			vr := &m.Variables[i]
			vr.Initial = clamp(v, vr.Lower, vr.Upper)
		}
	}
}

// Initial returns the current initial assignment.
func (m *Model) Initial() symbolic.Values {
	vals := make(symbolic.Values, len(m.Variables))
	for _, v := range m.Variables {
		vals[v.Name] = v.Initial
	}
	return vals
}

// Validate checks that every referenced variable is declared, bounds are
// consistent and integer bounds contain an integer.
func (m *Model) Validate() error {
	for _, v := range m.Variables {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || v.Lower > v.Upper {
			return fmt.Errorf("variable %s: invalid bounds [%g, %g]", v.Name, v.Lower, v.Upper)
		}
		if v.Integer && math.Ceil(v.Lower) > math.Floor(v.Upper) {
			return fmt.Errorf("integer variable %s: no integer in [%g, %g]", v.Name, v.Lower, v.Upper)
		}
	}
	check := func(what string, e symbolic.Expr) error {
		for _, name := range symbolic.Vars(e) {
			if _, ok := m.index[name]; !ok {
				return fmt.Errorf("%s references undeclared variable %q", what, name)
			}
		}
		return nil
	}
	if err := check("objective", m.Objective); err != nil {
		return err
	}
	for _, c := range m.Constraints {
		if err := check("constraint "+c.Name, symbolic.Sum(c.Left, c.Right)); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes the model size.
func (m *Model) Stats() (vars, ints, cons int) {
	for _, v := range m.Variables {
		if v.Integer {
			ints++
		}
	}
	return len(m.Variables), ints, len(m.Constraints)
}

// Algorithm selects how an engine treats integer variables.
type Algorithm int

const (
	// InteriorPoint solves the continuous relaxation, ignoring integrality.
	// GonumEngine implements it as quadratic penalty subproblems minimized
	// with Nelder-Mead, not as a barrier method.
	InteriorPoint Algorithm = iota
	// BranchAndBound enforces integrality.
	BranchAndBound
)

func (a Algorithm) String() string {
	if a == BranchAndBound {
		return "branch-and-bound"
	}
	return "interior-point"
}

// Status of an NLP solve.
type Status int

const (
	// Converged means a feasible point satisfying integrality was found
	// and the search completed.
	Converged Status = iota
	// Infeasible means no feasible point was found.
	Infeasible
	// IterationLimit means a feasible point was found but the search was cut short.
	IterationLimit
	// Failed means the engine stopped without any feasible point.
	Failed
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "CONVERGED"
	case Infeasible:
		return "INFEASIBLE"
	case IterationLimit:
		return "ITERATION_LIMIT"
	default:
		return "FAILED"
	}
}

// Result is an engine's answer to a Model.
type Result struct {
	Status       Status
	Values       symbolic.Values
	Objective    float64
	MaxViolation float64
	// Violated names the worst constraint when the result is infeasible.
	Violated string
	Nodes    int
}

// Value evaluates an expression at the result's point.
func (r *Result) Value(e symbolic.Expr) float64 {
	return e.Eval(r.Values)
}

// Engine solves nonlinear models.
type Engine interface {
	Solve(ctx context.Context, m *Model, alg Algorithm) (*Result, error)
}

// Evaluate returns the objective, the largest scaled constraint violation and
// the name of the worst constraint at the given point.
func (m *Model) Evaluate(vals symbolic.Values) (obj, worst float64, name string) {
	obj = m.Objective.Eval(vals)
	for _, c := range m.Constraints {
		if v := c.Violation(vals); v > worst {
			worst, name = v, c.Name
		}
	}
	return obj, worst, name
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
