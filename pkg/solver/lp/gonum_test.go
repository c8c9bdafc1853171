package lp

import (
	"context"
	"math"
	"testing"
)

const eps = 1e-7

func TestRelaxSimpleMinimum(t *testing.T) {
	// min x + y  s.t.  x + y >= 2, x - y <= 1, x, y >= 0
	p := NewProblem("simple", Minimize)
	r0 := p.AddRow("sum", AtLeast(2))
	r1 := p.AddRow("diff", AtMost(1))
	x := p.AddColumn(Column{Name: "x", Bounds: AtLeast(0), Objective: 1})
	y := p.AddColumn(Column{Name: "y", Bounds: AtLeast(0), Objective: 1})
	p.SetCoef(r0, x, 1)
	p.SetCoef(r0, y, 1)
	p.SetCoef(r1, x, 1)
	p.SetCoef(r1, y, -1)

	sol, err := NewGonumEngine(nil).Relax(context.Background(), p)
	if err != nil {
		t.Fatalf("Relax: %v", err)
	}
	if !sol.Optimal() {
		t.Fatalf("status = %v/%v, want optimal", sol.Primal, sol.Dual)
	}
	if math.Abs(sol.Objective-2) > eps {
		t.Errorf("Objective = %v, want 2", sol.Objective)
	}
	if sol.Row(r0) < 2-eps {
		t.Errorf("Row(sum) = %v, want >= 2", sol.Row(r0))
	}
}

func TestRelaxMaximizeWithUpperBounds(t *testing.T) {
	// max 3x + 2y  s.t.  x + y <= 4, x in [0, 3], y in [0, 10]
	p := NewProblem("max", Maximize)
	r := p.AddRow("cap", AtMost(4))
	x := p.AddColumn(Column{Name: "x", Bounds: Between(0, 3), Objective: 3})
	y := p.AddColumn(Column{Name: "y", Bounds: Between(0, 10), Objective: 2})
	p.SetCoef(r, x, 1)
	p.SetCoef(r, y, 1)

	sol, err := NewGonumEngine(nil).Relax(context.Background(), p)
	if err != nil {
		t.Fatalf("Relax: %v", err)
	}
	if sol.Primal != StatusOptimal {
		t.Fatalf("Primal = %v", sol.Primal)
	}
	if math.Abs(sol.Column(x)-3) > eps || math.Abs(sol.Column(y)-1) > eps {
		t.Errorf("x, y = %v, %v, want 3, 1", sol.Column(x), sol.Column(y))
	}
	if math.Abs(sol.Objective-11) > eps {
		t.Errorf("Objective = %v, want 11", sol.Objective)
	}
}

func TestFixedColumnIsExact(t *testing.T) {
	// min y  s.t.  y - 0.5x >= 0, x fixed at 100
	p := NewProblem("fixed", Minimize)
	r := p.AddRow("balance", AtLeast(0))
	x := p.AddColumn(Column{Name: "x", Kind: Integer, Bounds: Exactly(100)})
	y := p.AddColumn(Column{Name: "y", Kind: Integer, Bounds: AtLeast(0), Objective: 1})
	p.SetCoef(r, x, -0.5)
	p.SetCoef(r, y, 1)

	sol, err := NewGonumEngine(nil).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Column(x) != 100 {
		t.Errorf("fixed column = %v, want exactly 100", sol.Column(x))
	}
	if sol.Column(y) != 50 {
		t.Errorf("y = %v, want 50", sol.Column(y))
	}
}

func TestIntegerBranching(t *testing.T) {
	// min x  s.t.  2x >= 3, x integer >= 0  ->  x = 2
	p := NewProblem("branch", Minimize)
	r := p.AddRow("r", AtLeast(3))
	x := p.AddColumn(Column{Name: "x", Kind: Integer, Bounds: AtLeast(0), Objective: 1})
	p.SetCoef(r, x, 2)

	eng := NewGonumEngine(nil)
	relaxed, err := eng.Relax(context.Background(), p)
	if err != nil {
		t.Fatalf("Relax: %v", err)
	}
	if math.Abs(relaxed.Column(x)-1.5) > eps {
		t.Errorf("relaxed x = %v, want 1.5", relaxed.Column(x))
	}

	sol, err := eng.Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !sol.Optimal() {
		t.Fatalf("status = %v/%v", sol.Primal, sol.Dual)
	}
	if sol.Column(x) != 2 {
		t.Errorf("x = %v, want 2", sol.Column(x))
	}
	if sol.Nodes < 2 {
		t.Errorf("Nodes = %d, want branching", sol.Nodes)
	}
}

func TestIntegerKnapsack(t *testing.T) {
	// max 5a + 4b + 3c  s.t.  2a + 3b + c <= 5, 4a + b + 2c <= 11, 3a + 4b + 2c <= 8
	// a, b, c integer >= 0. Optimum 13 at (2, 0, 1).
	p := NewProblem("knapsack", Maximize)
	rows := []int{p.AddRow("r1", AtMost(5)), p.AddRow("r2", AtMost(11)), p.AddRow("r3", AtMost(8))}
	coefs := [][]float64{{2, 4, 3}, {3, 1, 4}, {1, 2, 2}}
	obj := []float64{5, 4, 3}
	for j := range obj {
		col := p.AddColumn(Column{Kind: Integer, Bounds: AtLeast(0), Objective: obj[j]})
		for i, r := range rows {
			p.SetCoef(r, col, coefs[j][i])
		}
	}

	sol, err := NewGonumEngine(nil).Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(sol.Objective-13) > eps {
		t.Errorf("Objective = %v, want 13", sol.Objective)
	}
	for j, v := range sol.Columns {
		if v != math.Round(v) {
			t.Errorf("column %d = %v, not integral", j, v)
		}
	}
}

func TestInfeasible(t *testing.T) {
	p := NewProblem("infeasible", Minimize)
	r := p.AddRow("r", AtLeast(3))
	x := p.AddColumn(Column{Name: "x", Bounds: Between(0, 1), Objective: 1})
	p.SetCoef(r, x, 1)

	for name, solve := range map[string]func(context.Context, *Problem) (*Solution, error){
		"relax": NewGonumEngine(nil).Relax,
		"solve": NewGonumEngine(nil).Solve,
	} {
		sol, err := solve(context.Background(), p)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if sol.Primal != StatusNoFeasible {
			t.Errorf("%s: Primal = %v, want NO_FEASIBLE", name, sol.Primal)
		}
		if sol.Optimal() {
			t.Errorf("%s: Optimal() = true", name)
		}
	}
}

func TestUnbounded(t *testing.T) {
	p := NewProblem("unbounded", Maximize)
	r := p.AddRow("r", AtLeast(1))
	x := p.AddColumn(Column{Name: "x", Bounds: AtLeast(0), Objective: 1})
	p.SetCoef(r, x, 1)

	sol, err := NewGonumEngine(nil).Relax(context.Background(), p)
	if err != nil {
		t.Fatalf("Relax: %v", err)
	}
	if sol.Primal != StatusUnbounded {
		t.Errorf("Primal = %v, want UNBOUNDED", sol.Primal)
	}
}

func TestFreeColumn(t *testing.T) {
	// min x  s.t.  x >= -4, x free.
	p := NewProblem("free", Minimize)
	r := p.AddRow("r", AtLeast(-4))
	x := p.AddColumn(Column{Name: "x", Bounds: Unbounded(), Objective: 1})
	p.SetCoef(r, x, 1)

	sol, err := NewGonumEngine(nil).Relax(context.Background(), p)
	if err != nil {
		t.Fatalf("Relax: %v", err)
	}
	if math.Abs(sol.Column(x)+4) > eps {
		t.Errorf("x = %v, want -4", sol.Column(x))
	}
}

func TestCancelledContext(t *testing.T) {
	p := NewProblem("cancel", Minimize)
	r := p.AddRow("r", AtLeast(3))
	x := p.AddColumn(Column{Name: "x", Kind: Integer, Bounds: AtLeast(0), Objective: 1})
	p.SetCoef(r, x, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewGonumEngine(nil).Solve(ctx, p); err == nil {
		t.Error("Solve with cancelled context should fail")
	}
}

func TestValidateRejectsBadProblems(t *testing.T) {
	p := NewProblem("bad", Minimize)
	p.AddColumn(Column{Name: "x", Bounds: Bounds{Kind: Double, Lower: 2, Upper: 1}})
	if err := p.Validate(); err == nil {
		t.Error("Validate should reject inverted bounds")
	}

	q := NewProblem("bad-row", Minimize)
	q.AddColumn(Column{Name: "x", Entries: []Entry{{Row: 3, Value: 1}}})
	if err := q.Validate(); err == nil {
		t.Error("Validate should reject out-of-range entries")
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		StatusOptimal:    "OPTIMAL",
		StatusNoFeasible: "NO_FEASIBLE",
		StatusUndefined:  "UNDEFINED",
		Status(42):       "UNKNOWN",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
