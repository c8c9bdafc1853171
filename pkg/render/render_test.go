package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/overclock/pkg/power"
	"github.com/matzehuels/overclock/pkg/recipe"
)

func plate() *recipe.Recipe {
	return &recipe.Recipe{
		Name:      "Iron Plate",
		Building:  "Constructor",
		Time:      6,
		BasePower: 4e6,
		Rates: []recipe.Rate{
			{Resource: "Iron Plate", Quantity: 2, Time: 6},
			{Resource: "Iron Ingot", Quantity: -3, Time: 6},
		},
	}
}

func ingot() *recipe.Recipe {
	return &recipe.Recipe{
		Name:      "Iron Ingot",
		Building:  "Smelter",
		Time:      2,
		BasePower: 4e6,
		Rates: []recipe.Rate{
			{Resource: "Iron Ingot", Quantity: 1, Time: 2},
			{Resource: "Iron Ore", Quantity: -1, Time: 2},
		},
	}
}

func result() *power.Result {
	return &power.Result{
		Solved: []power.SolvedRecipe{
			{Recipe: ingot(), N: 2, ClockTotal: 300},
			{Recipe: plate(), N: 1, ClockTotal: 100},
			{Recipe: plate(), N: 0, ClockTotal: 0},
		},
		Estimate: power.Totals{Buildings: 3, Power: 19.3e6, Shards: 2},
		Actual:   power.Totals{Buildings: 3, Power: 19.3e6, Shards: 2},
		Scale:    1,
	}
}

func TestSecsPerExtra(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0.5, "2.0"},
		{0.25, "4.0"},
		{0, "∞"},
		{1e-7, "∞"},
		{-1, "∞"},
	}
	for _, tt := range tests {
		if got := SecsPerExtra(plate(), map[string]float64{"Iron Plate": tt.rate}); got != tt.want {
			t.Errorf("SecsPerExtra(%g) = %q, want %q", tt.rate, got, tt.want)
		}
	}
	if got := SecsPerExtra(plate(), nil); got != "∞" {
		t.Errorf("SecsPerExtra(nil) = %q, want ∞", got)
	}
}

func TestRows(t *testing.T) {
	rows := Rows(result(), map[string]float64{"Iron Plate": 0.5}, power.ShardNone)
	if len(rows) != 4 {
		t.Fatalf("len(rows) = %d, want 4 (empty group skipped)", len(rows))
	}

	want := [][]string{
		{"Iron Ingot", "150", "2", "", "", "1", "2", "1.3", "0.7", "∞"},
		{"Iron Plate", "100", "1", "4.00", "4.00", "0", "0", "3.0", "3.0", "2.0"},
	}
	for i, w := range want {
		for col, cell := range w {
			if cell == "" {
				continue
			}
			if rows[i][col] != cell {
				t.Errorf("rows[%d][%s] = %q, want %q", i, Headers[col], rows[i][col], cell)
			}
		}
	}

	approx, actual := rows[2], rows[3]
	if approx[0] != TotalApprox || actual[0] != TotalActual {
		t.Errorf("total labels = %q, %q", approx[0], actual[0])
	}
	if approx[4] != "19.30" {
		t.Errorf("approx power = %q, want 19.30", approx[4])
	}
	if approx[6] != "" {
		t.Errorf("approx shards = %q, want blank without shard modelling", approx[6])
	}
	if actual[6] != "2" {
		t.Errorf("actual shards = %q, want 2", actual[6])
	}

	rows = Rows(result(), nil, power.ShardBinary)
	if got := rows[len(rows)-2][6]; got != "2" {
		t.Errorf("approx shards = %q, want 2", got)
	}
}

func TestTable(t *testing.T) {
	out := Table(result(), map[string]float64{"Iron Plate": 0.5}, TableOptions{Plain: true})
	for _, want := range append(Headers, "Iron Ingot", "Iron Plate", TotalApprox, TotalActual, "19.30") {
		if !strings.Contains(out, want) {
			t.Errorf("Table missing %q:\n%s", want, out)
		}
	}
}

func TestSolutionGraph(t *testing.T) {
	g := SolutionGraph(result().Solved)
	// Two groups plus Iron Plate, Iron Ingot and Iron Ore.
	if got := g.NodeCount(); got != 5 {
		t.Errorf("NodeCount = %d, want 5", got)
	}
	if got := g.EdgeCount(); got != 4 {
		t.Errorf("EdgeCount = %d, want 4", got)
	}
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(SolutionGraph(result().Solved), GraphOptions{Title: "iron"})
	for _, want := range []string{
		"digraph G {",
		`label="iron"`,
		`color="` + BuildingColor + `"`,
		`color="` + ResourceColor + `"`,
		"s/1",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT missing %q:\n%s", want, dot)
		}
	}
	if again := ToDOT(SolutionGraph(result().Solved), GraphOptions{Title: "iron"}); again != dot {
		t.Error("ToDOT should be deterministic")
	}
}

func TestToDOTRanked(t *testing.T) {
	wire := &recipe.Recipe{Name: "Wire", Building: "Constructor", Time: 4, Rates: []recipe.Rate{
		{Resource: "Wire", Quantity: 2, Time: 4},
		{Resource: "Copper Ingot", Quantity: -1, Time: 4},
	}}
	cat, err := recipe.NewCatalog(plate(), wire)
	if err != nil {
		t.Fatal(err)
	}
	dot := ToDOT(CatalogGraph(cat), GraphOptions{Ranked: true})
	for _, want := range []string{
		`{ rank=same; "Copper Ingot"; "Iron Ingot"; }`,
		`{ rank=same; "Iron Plate"; "Wire"; }`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT missing %q:\n%s", want, dot)
		}
	}
	if plain := ToDOT(CatalogGraph(cat), GraphOptions{}); strings.Contains(plain, "rank=same") {
		t.Error("unranked output should not pin ranks")
	}
}

func TestCatalogGraph(t *testing.T) {
	cat, err := recipe.NewCatalog(plate(), ingot())
	if err != nil {
		t.Fatal(err)
	}
	dot := ToDOT(CatalogGraph(cat), GraphOptions{Detailed: true})
	if !strings.Contains(dot, `"Iron Ingot" -> "Iron Plate"`) {
		t.Errorf("ToDOT missing ingot edge:\n%s", dot)
	}
	if !strings.Contains(dot, `"Iron Ore" -> "Iron Ingot"`) {
		t.Errorf("ToDOT missing ore edge:\n%s", dot)
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(SolutionGraph(result().Solved), GraphOptions{}))
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !bytes.Contains(svg, []byte("<svg")) {
		t.Errorf("RenderSVG output is not SVG: %.80s", svg)
	}
}
