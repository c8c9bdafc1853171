package power

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

func TestShardsFor(t *testing.T) {
	tests := []struct {
		clock float64
		want  int
	}{
		{0, 0},
		{100, 0},
		{101, 1},
		{150, 1},
		{151, 2},
		{200, 2},
		{249, 3},
		{250, 3},
	}
	for _, tt := range tests {
		if got := ShardsFor(tt.clock); got != tt.want {
			t.Errorf("ShardsFor(%v) = %d, want %d", tt.clock, got, tt.want)
		}
	}
}

func TestDistribute(t *testing.T) {
	tests := []struct {
		name  string
		clock float64
		n     int
		want  []Group
	}{
		{"even", 300, 3, []Group{{N: 3, Clock: 100}}},
		{"remainder", 250, 3, []Group{{N: 2, Clock: 83}, {N: 1, Clock: 84}}},
		{"rounds total", 100.4, 1, []Group{{N: 1, Clock: 100}}},
		{"more buildings than percent", 2, 3, []Group{{N: 1, Clock: 0}, {N: 2, Clock: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distribute(tt.clock, tt.n)
			if err != nil {
				t.Fatalf("Distribute: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Distribute(%v, %d) = %v, want %v", tt.clock, tt.n, got, tt.want)
			}
			n, total := 0, 0
			for _, g := range got {
				n += g.N
				total += g.N * g.Clock
			}
			if n != tt.n || total != int(math.Round(tt.clock)) {
				t.Errorf("groups sum to n=%d clock=%d, want n=%d clock=%v", n, total, tt.n, math.Round(tt.clock))
			}
		})
	}
}

func TestDistributeErrors(t *testing.T) {
	tests := []struct {
		name  string
		clock float64
		n     int
		code  errors.Code
	}{
		{"zero buildings", 100, 0, errors.ErrCodeNoBuildings},
		{"negative buildings", 100, -1, errors.ErrCodeInvalidInput},
		{"nan", math.NaN(), 1, errors.ErrCodeInvalidInput},
		{"negative clock", -5, 1, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		if _, err := Distribute(tt.clock, tt.n); !errors.Is(err, tt.code) {
			t.Errorf("%s: err = %v, want %s", tt.name, err, tt.code)
		}
	}
}

func plate() *recipe.Recipe {
	return &recipe.Recipe{Name: "Iron Plate", Building: "Constructor", Time: 6, BasePower: 4e6,
		Rates: []recipe.Rate{
			{Resource: "Iron Plate", Quantity: 2, Time: 6},
			{Resource: "Iron Ingot", Quantity: -3, Time: 6},
		}}
}

func TestSolvedRecipeDerived(t *testing.T) {
	s := SolvedRecipe{Recipe: plate(), N: 2, ClockTotal: 300}

	if got := s.ClockEach(); got != 150 {
		t.Errorf("ClockEach() = %d, want 150", got)
	}
	wantEach := 4e6 * math.Pow(1.5, 1.6)
	if got := s.PowerEach(); math.Abs(got-wantEach) > 1e-6 {
		t.Errorf("PowerEach() = %v, want %v", got, wantEach)
	}
	if got := s.PowerTotal(); math.Abs(got-2*wantEach) > 1e-6 {
		t.Errorf("PowerTotal() = %v, want %v", got, 2*wantEach)
	}
	if s.ShardsEach() != 1 || s.ShardsTotal() != 2 {
		t.Errorf("shards = %d each, %d total, want 1 and 2", s.ShardsEach(), s.ShardsTotal())
	}
	if got := s.SecsPerOutputTotal(); math.Abs(got-1) > 1e-9 {
		t.Errorf("SecsPerOutputTotal() = %v, want 1", got)
	}
	if got := s.SecsPerOutputEach(); math.Abs(got-2) > 1e-9 {
		t.Errorf("SecsPerOutputEach() = %v, want 2", got)
	}
	if got := s.String(); got != "Iron Plate ×2" {
		t.Errorf("String() = %q", got)
	}
}

func TestSolvedRecipeEmpty(t *testing.T) {
	s := SolvedRecipe{Recipe: plate(), N: 0, ClockTotal: 0}
	if !s.IsEmpty() {
		t.Error("IsEmpty() = false for zero buildings")
	}
	if s.ClockEach() != 0 {
		t.Errorf("ClockEach() = %d, want 0", s.ClockEach())
	}
	if !math.IsInf(s.SecsPerOutputTotal(), 1) {
		t.Errorf("SecsPerOutputTotal() = %v, want +Inf", s.SecsPerOutputTotal())
	}
	groups, err := s.Distribute()
	if err != nil || groups != nil {
		t.Errorf("Distribute() = %v, %v, want nothing", groups, err)
	}
}

func TestSolvedRecipeDistributeNoBuildings(t *testing.T) {
	s := SolvedRecipe{Recipe: plate(), N: 0, ClockTotal: 100}
	if _, err := s.Distribute(); !errors.Is(err, errors.ErrCodeNoBuildings) {
		t.Errorf("err = %v, want NO_BUILDINGS", err)
	}
}

func TestSolvedRecipeJSON(t *testing.T) {
	cat, err := recipe.NewCatalog(plate())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	in := []SolvedRecipe{{Recipe: cat["Iron Plate"], N: 2, ClockTotal: 300}}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var wire []map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal wire: %v", err)
	}
	if wire[0]["clock_each"] != float64(150) || wire[0]["building"] != "Constructor" {
		t.Errorf("wire = %v", wire[0])
	}

	var out []SolvedRecipe
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := Relink(out, cat); err != nil {
		t.Fatalf("Relink: %v", err)
	}
	if out[0].Recipe != cat["Iron Plate"] || out[0].N != 2 || out[0].ClockTotal != 300 {
		t.Errorf("decoded = %+v", out[0])
	}

	delete(cat, "Iron Plate")
	if err := Relink(out, cat); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Relink with missing recipe: err = %v, want NOT_FOUND", err)
	}
}
