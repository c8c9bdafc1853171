package power

import (
	"strings"

	"github.com/matzehuels/overclock/pkg/errors"
)

// ShardMode selects how shard counts are modelled.
type ShardMode int

const (
	// ShardNone adds no shard accounting; clocks above 100 are free.
	ShardNone ShardMode = iota
	// ShardRelaxed models shards with a continuous variable and a smooth
	// max. Solver friendly, but the estimate can disagree with the rounded
	// result.
	ShardRelaxed
	// ShardBinary models shards exactly with an integer variable and a
	// binary switch for the max. Exact, but the problem becomes non-convex
	// and branch-and-bound gives no optimality guarantee.
	ShardBinary
)

var shardModeNames = [...]string{
	ShardNone:    "none",
	ShardRelaxed: "relaxed",
	ShardBinary:  "binary",
}

func (m ShardMode) String() string {
	if m >= 0 && int(m) < len(shardModeNames) {
		return shardModeNames[m]
	}
	return "unknown"
}

// ParseShardMode parses "none", "relaxed" or "binary".
func ParseShardMode(s string) (ShardMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ShardNone, nil
	case "relaxed", "mpec":
		return ShardRelaxed, nil
	case "binary":
		return ShardBinary, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidInput, "unknown shard mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m ShardMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ShardMode) UnmarshalText(b []byte) error {
	v, err := ParseShardMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Goal is what an objective optimizes.
type Goal int

const (
	MinimizePower Goal = iota
	MinimizeBuildings
	MinimizeShards
	MaximizeRecipe
	MinimizeRecipe
)

// Objective is a goal, with the recipe it targets for recipe goals.
type Objective struct {
	Goal   Goal
	Recipe string
}

// String renders the objective in the form ParseObjective accepts.
func (o Objective) String() string {
	switch o.Goal {
	case MinimizeBuildings:
		return "min-buildings"
	case MinimizeShards:
		return "min-shards"
	case MaximizeRecipe:
		return "max:" + o.Recipe
	case MinimizeRecipe:
		return "min:" + o.Recipe
	default:
		return "min-power"
	}
}

// ParseObjective parses "min-power", "min-buildings", "min-shards",
// "max:<recipe>" or "min:<recipe>". The empty string is min-power.
func ParseObjective(s string) (Objective, error) {
	s = strings.TrimSpace(s)
	if name, ok := strings.CutPrefix(s, "max:"); ok && strings.TrimSpace(name) != "" {
		return Objective{Goal: MaximizeRecipe, Recipe: strings.TrimSpace(name)}, nil
	}
	if name, ok := strings.CutPrefix(s, "min:"); ok && strings.TrimSpace(name) != "" {
		return Objective{Goal: MinimizeRecipe, Recipe: strings.TrimSpace(name)}, nil
	}
	switch strings.ToLower(s) {
	case "", "min-power", "power":
		return Objective{Goal: MinimizePower}, nil
	case "min-buildings", "buildings":
		return Objective{Goal: MinimizeBuildings}, nil
	case "min-shards", "shards":
		return Objective{Goal: MinimizeShards}, nil
	}
	return Objective{}, errors.New(errors.ErrCodeInvalidInput, "unknown objective %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Objective) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Objective) UnmarshalText(b []byte) error {
	v, err := ParseObjective(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Defaults for Options.
const (
	DefaultMaxScale  = 10
	DefaultTolerance = 1e-2
)

// Options configure an allocation.
type Options struct {
	Objective Objective `toml:"objective" json:"objective"`
	ShardMode ShardMode `toml:"shard_mode" json:"shard_mode"`

	// Rescale multiplies every clock total by one shared continuous scale
	// in [0, MaxScale], so that objectives can grow or shrink the whole
	// factory while keeping its proportions.
	Rescale  bool    `toml:"rescale" json:"rescale,omitempty"`
	MaxScale float64 `toml:"max_scale" json:"max_scale,omitempty"`

	// Limits; nil means unlimited.
	MaxBuildings *int     `toml:"max_buildings" json:"max_buildings,omitempty"`
	MaxPower     *float64 `toml:"max_power" json:"max_power,omitempty"`
	MaxShards    *int     `toml:"max_shards" json:"max_shards,omitempty"`

	// FixedBuildings pins building counts per recipe.
	FixedBuildings map[string]int `toml:"fixed_buildings" json:"fixed_buildings,omitempty"`
	// MinRates requires a minimum net rate per second per resource;
	// unlisted resources must be net non-negative.
	MinRates map[string]float64 `toml:"min_rates" json:"min_rates,omitempty"`

	// Tolerance is the relative gap between estimated and recomputed power
	// that raises an approximation warning.
	Tolerance float64 `toml:"tolerance" json:"tolerance,omitempty"`
}

func (o Options) withDefaults() Options {
	if o.MaxScale <= 0 {
		o.MaxScale = DefaultMaxScale
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	return o
}
