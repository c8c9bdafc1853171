package power

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// Clock limits per building, in percent.
const (
	MaxClock      = 250
	NominalClock  = 100
	ShardStep     = 50
	MaxShardsEach = 3
)

// SolvedRecipe is n identical buildings running one recipe at a combined
// clock percentage. Every other figure derives from these three fields.
type SolvedRecipe struct {
	Recipe     *recipe.Recipe
	N          int
	ClockTotal int
}

// IsEmpty reports whether the entry has no buildings or no clock.
func (s SolvedRecipe) IsEmpty() bool { return s.N < 1 || s.ClockTotal < 1 }

// ClockEach is the per-building clock, rounded down.
func (s SolvedRecipe) ClockEach() int {
	if s.N < 1 {
		return 0
	}
	return s.ClockTotal / s.N
}

// PowerEach is the draw of one building in watts.
func (s SolvedRecipe) PowerEach() float64 {
	return s.Recipe.BasePower * math.Pow(float64(s.ClockEach())/NominalClock, recipe.ConsumerExp)
}

// PowerTotal is the draw of all buildings in watts.
func (s SolvedRecipe) PowerTotal() float64 { return s.PowerEach() * float64(s.N) }

// ShardsEach is the number of shards one building needs for its clock.
func (s SolvedRecipe) ShardsEach() int { return ShardsFor(float64(s.ClockEach())) }

// ShardsTotal is the number of shards across all buildings.
func (s SolvedRecipe) ShardsTotal() int { return s.ShardsEach() * s.N }

// SecsPerOutputTotal is the time between two units of the first output
// across all buildings.
func (s SolvedRecipe) SecsPerOutputTotal() float64 {
	out, ok := s.Recipe.FirstOutput()
	if !ok || s.ClockTotal == 0 {
		return math.Inf(1)
	}
	return 1 / out.Scaled(float64(s.ClockTotal))
}

// SecsPerOutputEach is the time between two units of the first output of
// one building.
func (s SolvedRecipe) SecsPerOutputEach() float64 {
	return s.SecsPerOutputTotal() * float64(s.N)
}

// String renders "Iron Plate ×2".
func (s SolvedRecipe) String() string {
	return fmt.Sprintf("%s ×%d", s.Recipe.Name, s.N)
}

// Distribute splits the entry into groups running integer clocks. Empty
// entries yield nothing.
func (s SolvedRecipe) Distribute() ([]SolvedRecipe, error) {
	if s.ClockTotal < 1 {
		return nil, nil
	}
	groups, err := Distribute(float64(s.ClockTotal), s.N)
	if err != nil {
		return nil, errors.Wrap(errors.GetCode(err), err, "recipe %q", s.Recipe.Name)
	}
	out := make([]SolvedRecipe, len(groups))
	for i, g := range groups {
		out[i] = SolvedRecipe{Recipe: s.Recipe, N: g.N, ClockTotal: g.N * g.Clock}
	}
	return out, nil
}

// ShardsFor returns the shards one building needs to run at clock:
// max(0, ceil(clock/50) - 2).
func ShardsFor(clock float64) int {
	return max(0, int(math.Ceil(clock/ShardStep))-2)
}

// Group is n buildings at one integer clock each.
type Group struct {
	N     int `json:"n"`
	Clock int `json:"clock"`
}

// Distribute splits a total clock over n buildings into at most two groups
// of integer clocks: with q, r = divmod(round(clockTotal), n), n-r buildings
// run at q and r buildings run at q+1. The groups reproduce n and the
// rounded total exactly. n == 0 fails with NO_BUILDINGS.
func Distribute(clockTotal float64, n int) ([]Group, error) {
	switch {
	case n == 0:
		return nil, errors.New(errors.ErrCodeNoBuildings, "no buildings to distribute %g%% over", clockTotal)
	case n < 0:
		return nil, errors.New(errors.ErrCodeInvalidInput, "negative building count %d", n)
	case math.IsNaN(clockTotal) || math.IsInf(clockTotal, 0) || clockTotal < 0:
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid clock total %g", clockTotal)
	}
	clock := int(math.Round(clockTotal))
	q, r := clock/n, clock%n
	if r == 0 {
		return []Group{{N: n, Clock: q}}, nil
	}
	return []Group{{N: n - r, Clock: q}, {N: r, Clock: q + 1}}, nil
}

// solvedJSON is the wire form of a SolvedRecipe. Derived figures are
// included for consumers and ignored when decoding.
type solvedJSON struct {
	Recipe      string  `json:"recipe"`
	Building    string  `json:"building,omitempty"`
	N           int     `json:"n"`
	ClockTotal  int     `json:"clock_total"`
	ClockEach   int     `json:"clock_each"`
	PowerEach   float64 `json:"power_each"`
	PowerTotal  float64 `json:"power_total"`
	ShardsEach  int     `json:"shards_each"`
	ShardsTotal int     `json:"shards_total"`
}

// MarshalJSON encodes the recipe by name along with derived figures.
func (s SolvedRecipe) MarshalJSON() ([]byte, error) {
	return json.Marshal(solvedJSON{
		Recipe:      s.Recipe.Name,
		Building:    s.Recipe.BuildingName(),
		N:           s.N,
		ClockTotal:  s.ClockTotal,
		ClockEach:   s.ClockEach(),
		PowerEach:   s.PowerEach(),
		PowerTotal:  s.PowerTotal(),
		ShardsEach:  s.ShardsEach(),
		ShardsTotal: s.ShardsTotal(),
	})
}

// UnmarshalJSON decodes the recipe as a name-only placeholder; call Relink
// to resolve it against a catalog.
func (s *SolvedRecipe) UnmarshalJSON(data []byte) error {
	var w solvedJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = SolvedRecipe{Recipe: &recipe.Recipe{Name: w.Recipe}, N: w.N, ClockTotal: w.ClockTotal}
	return nil
}

// Relink replaces decoded recipe placeholders with catalog recipes.
func Relink(solved []SolvedRecipe, cat recipe.Catalog) error {
	for i := range solved {
		r, ok := cat[solved[i].Recipe.Name]
		if !ok {
			return errors.New(errors.ErrCodeNotFound, "solved recipe %q not in catalog", solved[i].Recipe.Name)
		}
		solved[i].Recipe = r
	}
	return nil
}
