package lp

import "context"

// Status of a primal or dual solution.
type Status int

const (
	// StatusUndefined means the engine did not determine the status.
	StatusUndefined Status = iota
	// StatusFeasible means a feasible but not proven optimal point was found.
	StatusFeasible
	// StatusInfeasible means the current point is infeasible.
	StatusInfeasible
	// StatusNoFeasible means the problem has no feasible point.
	StatusNoFeasible
	// StatusUnbounded means the objective is unbounded.
	StatusUnbounded
	// StatusOptimal means the point is proven optimal.
	StatusOptimal
)

var statusNames = [...]string{
	StatusUndefined:  "UNDEFINED",
	StatusFeasible:   "FEASIBLE",
	StatusInfeasible: "INFEASIBLE",
	StatusNoFeasible: "NO_FEASIBLE",
	StatusUnbounded:  "UNBOUNDED",
	StatusOptimal:    "OPTIMAL",
}

// String returns the status name.
func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// Solution is an engine's answer to a Problem.
type Solution struct {
	Primal    Status
	Dual      Status
	Objective float64
	// Rows and Columns hold row activities and column values,
	// indexed like the problem's rows and columns.
	Rows    []float64
	Columns []float64
	// Nodes counts branch-and-bound nodes explored (0 for pure LPs).
	Nodes int
}

// Row returns the activity of row i.
func (s *Solution) Row(i int) float64 { return s.Rows[i] }

// Column returns the value of column j.
func (s *Solution) Column(j int) float64 { return s.Columns[j] }

// Optimal reports whether the primal is optimal and the dual is feasible.
func (s *Solution) Optimal() bool {
	return s.Primal == StatusOptimal && (s.Dual == StatusOptimal || s.Dual == StatusFeasible)
}

// Engine solves linear and mixed-integer problems.
//
// Solve returns a non-nil Solution whenever the engine ran to a conclusion,
// including infeasible or unbounded outcomes, which are reported through
// the statuses. An error means the engine itself broke down.
type Engine interface {
	// Relax solves the continuous relaxation, ignoring integrality.
	Relax(ctx context.Context, p *Problem) (*Solution, error)
	// Solve solves the problem honoring integer columns.
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}
