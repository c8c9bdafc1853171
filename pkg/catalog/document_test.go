package catalog

import (
	"math"
	"strings"
	"testing"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

const ironDoc = `
[buildings]
"Smelter" = 4e6
"Constructor" = 4e6
"Miner Mk.1" = 5e6
"Miner Mk.2" = 12e6
"Miner Mk.3" = 30e6

[[recipe]]
name = "Iron Ingot"
building = "Smelter"
tier = "Tier 0"
time = 2
  [[recipe.rate]]
  resource = "Iron Ingot"
  quantity = 1
  [[recipe.rate]]
  resource = "Iron Ore"
  quantity = -1

[[recipe]]
name = "Iron Plate"
building = "Constructor"
tier = "Tier 0"
time = 6
  [[recipe.rate]]
  resource = "Iron Plate"
  quantity = 2
  [[recipe.rate]]
  resource = "Iron Ingot"
  quantity = -3

[[recipe]]
name = "Screw"
building = "Constructor"
tier = "Tier 2"
time = 6
  [[recipe.rate]]
  resource = "Screw"
  quantity = 4
  [[recipe.rate]]
  resource = "Iron Rod"
  quantity = -1

[[recipe]]
name = "Pure Iron Ingot"
building = "Smelter"
tier = "Tier 0"
time = 12
alternate = true
  [[recipe.rate]]
  resource = "Iron Ingot"
  quantity = 13
  [[recipe.rate]]
  resource = "Iron Ore"
  quantity = -7

[[recipe]]
name = "Plastic"
building = "Refinery"
tier = "Tier 5"
time = 6
  [[recipe.rate]]
  resource = "Plastic"
  quantity = 2

[[ore]]
resource = "Iron Ore"
extractor = "Miner"
tier = "Tier 0"

[[ore]]
resource = "Coal"
extractor = "Miner"
tier = "Tier 0"
marks = [1]

[[ore]]
resource = "Caterium Ore"
extractor = "Miner"
tier = "Tier 0"

[[generator]]
building = "Coal Generator"
tier = "Tier 0"
power = 75e6
  [[generator.fuel]]
  resource = "Coal"
  energy = 300
  [[generator.fuel]]
  resource = "Fuel"
  energy = 750
`

func build(t *testing.T, edit func(*Document)) (recipe.Catalog, *Report) {
	t.Helper()
	doc, err := Decode([]byte(ironDoc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if edit != nil {
		edit(doc)
	}
	cat, report, err := Build(doc, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return cat, report
}

func TestBuild(t *testing.T) {
	cat, report := build(t, nil)

	if report.Recipes != 3 {
		t.Errorf("Recipes = %d, want 3", report.Recipes)
	}
	// Iron Ore: 3 purities x 3 marks. Coal: 3 purities x Mk.1.
	if report.Ores != 12 {
		t.Errorf("Ores = %d, want 12", report.Ores)
	}
	if report.Generators != 1 {
		t.Errorf("Generators = %d, want 1", report.Generators)
	}
	if len(cat) != 16 {
		t.Errorf("len(cat) = %d, want 16", len(cat))
	}

	wantSkipped := []string{"Caterium Ore", "Fuel", "Plastic", "Pure Iron Ingot"}
	if len(report.Skipped) != len(wantSkipped) {
		t.Fatalf("Skipped = %q, want %d entries", report.Skipped, len(wantSkipped))
	}
	for _, want := range wantSkipped {
		found := false
		for _, s := range report.Skipped {
			if strings.Contains(s, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("Skipped = %q, missing %q", report.Skipped, want)
		}
	}
}

func TestBuildOreRecipes(t *testing.T) {
	cat, _ := build(t, nil)

	r, ok := cat["Iron Ore from Miner Mk.2 on Pure node"]
	if !ok {
		t.Fatalf("ore recipe missing, have %v", cat.Names())
	}
	if r.Kind != recipe.Ore {
		t.Errorf("Kind = %v, want ore", r.Kind)
	}
	if r.Ore == nil || r.Ore.Mark != 2 || r.Ore.Purity != recipe.Pure {
		t.Errorf("Ore = %+v, want Mk.2 Pure", r.Ore)
	}
	rt, _ := r.Rate("Iron Ore")
	if got := rt.PerSecond(); math.Abs(got-4) > 1e-9 {
		t.Errorf("PerSecond = %g, want 4", got)
	}
	if r.BasePower != 12e6 {
		t.Errorf("BasePower = %g, want 12e6", r.BasePower)
	}
	if got, want := r.BuildingName(), "Miner Mk.2 on Pure node"; got != want {
		t.Errorf("BuildingName = %q, want %q", got, want)
	}

	if _, ok := cat["Coal from Miner Mk.2 on Pure node"]; ok {
		t.Error("coal was restricted to Mk.1")
	}
}

func TestBuildGenerator(t *testing.T) {
	cat, _ := build(t, nil)

	r, ok := cat["Coal Generator powered by Coal"]
	if !ok {
		t.Fatalf("generator recipe missing, have %v", cat.Names())
	}
	if r.Kind != recipe.Generator {
		t.Errorf("Kind = %v, want generator", r.Kind)
	}
	fuel, _ := r.Rate("Coal")
	if fuel.Quantity != -1 || fuel.Time != 4 || fuel.Exp != recipe.GeneratorExp {
		t.Errorf("fuel rate = %+v", fuel)
	}
	power, _ := r.Rate(recipe.Power)
	if power.Quantity != 75e6 || power.Time != 1 {
		t.Errorf("power rate = %+v", power)
	}
}

func TestBuildPowerRates(t *testing.T) {
	cat, _ := build(t, func(d *Document) { d.Settings.PowerRates = true })

	rt, ok := cat["Iron Plate"].Rate(recipe.Power)
	if !ok {
		t.Fatal("Iron Plate has no power rate")
	}
	if rt.Quantity != -4e6 || rt.Exp != recipe.ConsumerExp {
		t.Errorf("power rate = %+v", rt)
	}
	if _, ok := cat["Iron Ore from Miner Mk.1 on Normal node"].Rate(recipe.Power); !ok {
		t.Error("ore recipe has no power rate")
	}
	if !cat["Coal Generator powered by Coal"].Produces(recipe.Power) {
		t.Error("generator should produce power")
	}
}

func TestBuildSettings(t *testing.T) {
	cat, report := build(t, func(d *Document) {
		d.Settings.Tiers = []string{"Tier 0"}
		d.Settings.Alternates = true
	})
	if _, ok := cat["Screw"]; ok {
		t.Error("Screw is outside the tier filter")
	}
	if _, ok := cat["Pure Iron Ingot"]; !ok {
		t.Error("alternates were enabled")
	}
	if report.Recipes != 3 {
		t.Errorf("Recipes = %d, want 3", report.Recipes)
	}
}

func TestBuildWithoutPowerTable(t *testing.T) {
	cat, _ := build(t, func(d *Document) { d.Buildings = nil })
	if _, ok := cat["Plastic"]; !ok {
		t.Error("without a power table every building is kept")
	}
	if cat["Iron Plate"].BasePower != 0 {
		t.Errorf("BasePower = %g, want 0", cat["Iron Plate"].BasePower)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Document)
	}{
		{"no name", func(d *Document) { d.Recipes[0].Name = "" }},
		{"no building", func(d *Document) { d.Recipes[0].Building = "" }},
		{"zero time", func(d *Document) { d.Recipes[0].Time = 0 }},
		{"zero quantity", func(d *Document) { d.Recipes[0].Rates[0].Quantity = 0 }},
		{"no output", func(d *Document) { d.Recipes[1].Rates = d.Recipes[1].Rates[1:] }},
		{"duplicate", func(d *Document) { d.Recipes[1].Name = "Iron Ingot" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode([]byte(ironDoc))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			tt.edit(doc)
			_, _, err = Build(doc, nil)
			if !errors.Is(err, errors.ErrCodeDataIngestion) {
				t.Errorf("Build error = %v, want DATA_INGESTION", err)
			}
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode([]byte("[[recipe]\nname = "))
	if !errors.Is(err, errors.ErrCodeDataIngestion) {
		t.Errorf("Decode error = %v, want DATA_INGESTION", err)
	}
}
