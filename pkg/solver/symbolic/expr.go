// Package symbolic provides a small expression tree for building nonlinear
// models independently of any solver engine.
//
// Expressions are immutable values built from constants, named variables
// and the operators sum, product, quotient, real power and max. They
// evaluate against a [Values] assignment and render deterministically.
package symbolic

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Values assigns a value to each variable name.
type Values map[string]float64

// Expr is a node of an expression tree.
type Expr interface {
	// Eval computes the value of the expression. Unknown variables evaluate to 0.
	Eval(v Values) float64
	// String renders the expression in infix form.
	String() string

	collect(set map[string]struct{})
}

// Vars returns the sorted names of the variables e depends on.
func Vars(e Expr) []string {
	set := make(map[string]struct{})
	e.collect(set)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsConst reports whether e is a constant and returns its value.
func IsConst(e Expr) (float64, bool) {
	c, ok := e.(constant)
	return float64(c), ok
}

type constant float64

// Const returns a constant expression.
func Const(v float64) Expr { return constant(v) }

func (c constant) Eval(Values) float64         { return float64(c) }
func (c constant) collect(map[string]struct{}) {}
func (c constant) String() string {
	return strconv.FormatFloat(float64(c), 'g', -1, 64)
}

type variable string

// Var returns a reference to the named variable.
func Var(name string) Expr { return variable(name) }

func (v variable) Eval(vals Values) float64       { return vals[string(v)] }
func (v variable) collect(set map[string]struct{}) { set[string(v)] = struct{}{} }
func (v variable) String() string                  { return string(v) }

type sum []Expr

// Sum adds terms. Constant terms are folded together.
func Sum(terms ...Expr) Expr {
	var out sum
	folded := 0.0
	for _, t := range terms {
		if c, ok := IsConst(t); ok {
			folded += c
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return Const(folded)
	}
	if folded != 0 {
		out = append(out, Const(folded))
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (s sum) Eval(v Values) float64 {
	total := 0.0
	for _, t := range s {
		total += t.Eval(v)
	}
	return total
}

func (s sum) collect(set map[string]struct{}) {
	for _, t := range s {
		t.collect(set)
	}
}

func (s sum) String() string { return join(s, " + ") }

type product []Expr

// Product multiplies factors. Constant factors are folded together and a
// zero constant collapses the product.
func Product(factors ...Expr) Expr {
	var out product
	folded := 1.0
	for _, f := range factors {
		if c, ok := IsConst(f); ok {
			folded *= c
			continue
		}
		out = append(out, f)
	}
	if folded == 0 || len(out) == 0 {
		return Const(folded)
	}
	if folded != 1 {
		out = append(product{Const(folded)}, out...)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (p product) Eval(v Values) float64 {
	total := 1.0
	for _, f := range p {
		total *= f.Eval(v)
	}
	return total
}

func (p product) collect(set map[string]struct{}) {
	for _, f := range p {
		f.collect(set)
	}
}

func (p product) String() string { return join(p, " * ") }

type quotient struct{ num, den Expr }

// Div returns num / den.
func Div(num, den Expr) Expr {
	if c, ok := IsConst(den); ok && c == 1 {
		return num
	}
	return quotient{num, den}
}

func (q quotient) Eval(v Values) float64 { return q.num.Eval(v) / q.den.Eval(v) }
func (q quotient) collect(set map[string]struct{}) {
	q.num.collect(set)
	q.den.collect(set)
}
func (q quotient) String() string { return "(" + q.num.String() + ") / (" + q.den.String() + ")" }

type power struct {
	base Expr
	exp  float64
}

// Pow returns base^exp for a real exponent. A zero base with a negative
// exponent evaluates to +Inf; a negative base with a fractional exponent
// evaluates to NaN.
func Pow(base Expr, exp float64) Expr {
	switch exp {
	case 0:
		return Const(1)
	case 1:
		return base
	}
	if c, ok := IsConst(base); ok {
		return Const(math.Pow(c, exp))
	}
	return power{base, exp}
}

func (p power) Eval(v Values) float64          { return math.Pow(p.base.Eval(v), p.exp) }
func (p power) collect(set map[string]struct{}) { p.base.collect(set) }
func (p power) String() string {
	return "(" + p.base.String() + ")^" + strconv.FormatFloat(p.exp, 'g', -1, 64)
}

type maximum struct{ a, b Expr }

// Max returns the larger of a and b. It is not differentiable where a == b;
// see SmoothMax for a differentiable variant.
func Max(a, b Expr) Expr { return maximum{a, b} }

func (m maximum) Eval(v Values) float64 { return math.Max(m.a.Eval(v), m.b.Eval(v)) }
func (m maximum) collect(set map[string]struct{}) {
	m.a.collect(set)
	m.b.collect(set)
}
func (m maximum) String() string { return "max(" + m.a.String() + ", " + m.b.String() + ")" }

// SmoothMax approximates max(a, b) by (a + b + sqrt((a-b)^2 + eps)) / 2.
// It overestimates the true max by at most sqrt(eps)/2.
func SmoothMax(a, b Expr, eps float64) Expr {
	diff := Sub(a, b)
	root := Pow(Sum(Product(diff, diff), Const(eps)), 0.5)
	return Scale(0.5, Sum(a, b, root))
}

// Neg returns -e.
func Neg(e Expr) Expr { return Scale(-1, e) }

// Sub returns a - b.
func Sub(a, b Expr) Expr { return Sum(a, Neg(b)) }

// Scale returns k * e.
func Scale(k float64, e Expr) Expr { return Product(Const(k), e) }

func join(es []Expr, sep string) string {
	parts := make([]string, len(es))
	for i, e := range es {
		s := e.String()
		switch e.(type) {
		case sum:
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}

// Relation between the two sides of a constraint.
type Relation int

const (
	LessEq Relation = iota
	GreaterEq
	Equal
)

func (r Relation) String() string {
	switch r {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	default:
		return "=="
	}
}

// Constraint relates two expressions.
type Constraint struct {
	Name  string
	Left  Expr
	Rel   Relation
	Right Expr
}

// Le returns the constraint left <= right.
func Le(name string, left, right Expr) Constraint {
	return Constraint{Name: name, Left: left, Rel: LessEq, Right: right}
}

// Ge returns the constraint left >= right.
func Ge(name string, left, right Expr) Constraint {
	return Constraint{Name: name, Left: left, Rel: GreaterEq, Right: right}
}

// Eq returns the constraint left == right.
func Eq(name string, left, right Expr) Constraint {
	return Constraint{Name: name, Left: left, Rel: Equal, Right: right}
}

// Violation returns how far v is from satisfying the constraint, scaled by
// the magnitude of its sides so that constraints over watts and over
// building counts are comparable. Satisfied constraints return 0 and
// non-finite sides return +Inf.
func (c Constraint) Violation(v Values) float64 {
	l, r := c.Left.Eval(v), c.Right.Eval(v)
	if math.IsNaN(l) || math.IsNaN(r) || math.IsInf(l, 0) || math.IsInf(r, 0) {
		return math.Inf(1)
	}
	var gap float64
	switch c.Rel {
	case LessEq:
		gap = l - r
	case GreaterEq:
		gap = r - l
	default:
		gap = math.Abs(l - r)
	}
	if gap <= 0 {
		return 0
	}
	return gap / math.Max(1, math.Max(math.Abs(l), math.Abs(r)))
}

// Vars returns the sorted variable names used by either side.
func (c Constraint) Vars() []string {
	return Vars(Sum(c.Left, c.Right))
}

// String renders the constraint as "name: left <= right".
func (c Constraint) String() string {
	s := fmt.Sprintf("%s %s %s", c.Left, c.Rel, c.Right)
	if c.Name != "" {
		s = c.Name + ": " + s
	}
	return s
}
