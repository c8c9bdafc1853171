package prune

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

func catalog(t *testing.T, recipes ...*recipe.Recipe) recipe.Catalog {
	t.Helper()
	c, err := recipe.NewCatalog(recipes...)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

// rec builds a recipe with a one-second cycle from resource/quantity pairs.
func rec(name string, flows ...any) *recipe.Recipe {
	r := &recipe.Recipe{Name: name, Building: "Constructor", Time: 1}
	for i := 0; i < len(flows); i += 2 {
		r.Rates = append(r.Rates, recipe.Rate{Resource: flows[i].(string), Quantity: flows[i+1].(float64), Time: 1})
	}
	return r
}

func ironChain(t *testing.T) recipe.Catalog {
	return catalog(t,
		&recipe.Recipe{Name: "Iron Ore", Building: "Miner Mk.1", Kind: recipe.Ore, Time: 1,
			Rates: []recipe.Rate{{Resource: "Iron Ore", Quantity: 1, Time: 1}}},
		&recipe.Recipe{Name: "Iron Ingot", Building: "Smelter", Time: 2,
			Rates: []recipe.Rate{
				{Resource: "Iron Ingot", Quantity: 1, Time: 2},
				{Resource: "Iron Ore", Quantity: -1, Time: 2},
			}},
		&recipe.Recipe{Name: "Iron Plate", Building: "Constructor", Time: 6,
			Rates: []recipe.Rate{
				{Resource: "Iron Plate", Quantity: 2, Time: 6},
				{Resource: "Iron Ingot", Quantity: -3, Time: 6},
			}},
		rec("Iron Rod", "Iron Rod", 1.0, "Iron Ingot", -1.0),
	)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestPruneIronChain(t *testing.T) {
	for _, strategy := range []Strategy{StrategyBreadth, StrategyDepth} {
		t.Run(strategy.String(), func(t *testing.T) {
			p := NewPruner(Options{Strategy: strategy}, nil)
			res, err := p.Prune(context.Background(), ironChain(t), map[string]float64{"Iron Plate": 100})
			if err != nil {
				t.Fatalf("Prune: %v", err)
			}
			want := map[string]float64{"Iron Plate": 100, "Iron Ingot": 100, "Iron Ore": 50}
			if len(res.Clocks) != len(want) {
				t.Fatalf("Clocks = %v, want %v", res.Clocks, want)
			}
			for name, clock := range want {
				if !near(res.Clocks[name], clock) {
					t.Errorf("Clocks[%s] = %v, want %v", name, res.Clocks[name], clock)
				}
			}
			if _, ok := res.Catalog["Iron Rod"]; ok {
				t.Error("Iron Rod should be pruned")
			}
			if !res.Converged() {
				t.Errorf("Shortfalls = %v, want none", res.Shortfalls)
			}
			if res.Cycles != 0 {
				t.Errorf("Cycles = %d, want 0", res.Cycles)
			}
		})
	}
}

func TestPruneBreadthIterations(t *testing.T) {
	res, err := NewPruner(Options{}, nil).Prune(context.Background(), ironChain(t), map[string]float64{"Iron Plate": 100})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", res.Iterations)
	}
	if res.Repeated || res.Truncated {
		t.Errorf("Repeated = %v, Truncated = %v", res.Repeated, res.Truncated)
	}
}

func TestPruneEqualShare(t *testing.T) {
	// Two ingot producers split a 1/s deficit evenly, regardless of their rates.
	cat := catalog(t,
		rec("Plate", "Plate", 1.0, "Ingot", -1.0),
		rec("Slow Ingot", "Ingot", 0.5),
		rec("Fast Ingot", "Ingot", 2.0),
	)
	res, err := NewPruner(Options{}, nil).Prune(context.Background(), cat, map[string]float64{"Plate": 100})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !near(res.Clocks["Slow Ingot"], 100) || !near(res.Clocks["Fast Ingot"], 25) {
		t.Errorf("Clocks = %v, want slow 100 and fast 25", res.Clocks)
	}
}

func TestPruneNoiseFloor(t *testing.T) {
	res, err := NewPruner(Options{}, nil).Prune(context.Background(), ironChain(t), map[string]float64{"Iron Plate": 0.2})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if got := res.Names(); !reflect.DeepEqual(got, []string{"Iron Plate"}) {
		t.Errorf("Names() = %v, want only the anchor", got)
	}
	if !reflect.DeepEqual(res.Shortfalls, []string{"Iron Ingot"}) {
		t.Errorf("Shortfalls = %v, want [Iron Ingot]", res.Shortfalls)
	}
}

func TestPruneCycleTerminates(t *testing.T) {
	// A needs two B per A, B needs one A per B: the deficit never closes.
	cat := catalog(t,
		rec("A", "a", 1.0, "b", -2.0),
		rec("B", "b", 1.0, "a", -1.0),
	)
	res, err := NewPruner(Options{}, nil).Prune(context.Background(), cat, map[string]float64{"A": 100})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !res.Repeated {
		t.Error("Repeated = false, want the shortfall history to stop the loop")
	}
	if res.Iterations > len(cat)+1 {
		t.Errorf("Iterations = %d, want at most %d", res.Iterations, len(cat)+1)
	}
	if !reflect.DeepEqual(res.Shortfalls, []string{"b"}) {
		t.Errorf("Shortfalls = %v, want [b]", res.Shortfalls)
	}
	if res.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", res.Cycles)
	}
}

func TestPruneDepthCycleTruncates(t *testing.T) {
	cat := catalog(t,
		rec("A", "a", 1.0, "b", -2.0),
		rec("B", "b", 1.0, "a", -1.0),
	)
	p := NewPruner(Options{Strategy: StrategyDepth, MaxDepth: 8}, nil)
	res, err := p.Prune(context.Background(), cat, map[string]float64{"A": 100})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want the depth guard to stop recursion")
	}
}

func powerLoop(t *testing.T) recipe.Catalog {
	return catalog(t,
		rec("Plate", "Plate", 1.0, "Ingot", -1.0, recipe.Power, -1.0),
		rec("Ingot", "Ingot", 1.0),
		rec("Generator", recipe.Power, 10.0, "Fuel", -1.0),
		rec("Refinery", "Fuel", 1.0, recipe.Power, -1.0),
	)
}

func TestPrunePowerCycleBreaker(t *testing.T) {
	anchors := map[string]float64{"Plate": 100}

	res, err := NewPruner(Options{}, nil).Prune(context.Background(), powerLoop(t), anchors)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !near(res.Clocks["Generator"], 10) {
		t.Errorf("Generator clock = %v, want 10", res.Clocks["Generator"])
	}
	if !reflect.DeepEqual(res.Shortfalls, []string{recipe.Power}) {
		t.Errorf("Shortfalls = %v, want [Power]", res.Shortfalls)
	}

	res, err = NewPruner(Options{NoCycleBreaker: true}, nil).Prune(context.Background(), powerLoop(t), anchors)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !near(res.Clocks["Generator"], 11) {
		t.Errorf("Generator clock without breaker = %v, want 11", res.Clocks["Generator"])
	}
	if !reflect.DeepEqual(res.Shortfalls, []string{"Fuel"}) {
		t.Errorf("Shortfalls without breaker = %v, want [Fuel]", res.Shortfalls)
	}
}

func TestPruneUnproducible(t *testing.T) {
	cat := ironChain(t)
	delete(cat, "Iron Ore")
	res, err := NewPruner(Options{}, nil).Prune(context.Background(), cat, map[string]float64{"Iron Plate": 100})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !reflect.DeepEqual(res.Unproducible, []string{"Iron Ore"}) {
		t.Errorf("Unproducible = %v", res.Unproducible)
	}
	if res.Converged() {
		t.Error("Converged() = true with an unproducible input")
	}
}

func TestPruneInvalidAnchors(t *testing.T) {
	p := NewPruner(Options{}, nil)
	tests := []struct {
		name    string
		anchors map[string]float64
	}{
		{"none", nil},
		{"unknown", map[string]float64{"Steel Beam": 100}},
		{"negative", map[string]float64{"Iron Plate": -1}},
		{"nan", map[string]float64{"Iron Plate": math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Prune(context.Background(), ironChain(t), tt.anchors)
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("err = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyBreadth, false},
		{"Breadth", StrategyBreadth, false},
		{"depth", StrategyDepth, false},
		{"sideways", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, %v", tt.in, got, err)
		}
	}
}
