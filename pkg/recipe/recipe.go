// Package recipe defines the production catalog data model: signed resource
// rates, recipes built from them, and the catalog that indexes recipes by name.
//
// Rates follow a single sign convention: positive quantities are produced,
// negative quantities are consumed. Every rate is expressed per recipe cycle
// and converts to a per-second rate at the nominal clock of 100%.
//
// Recipes are immutable after ingestion, with one exception: BasePower is
// attached afterwards from a building power table (see [Catalog.AttachPower]).
package recipe

import (
	"fmt"
	"math"

	"github.com/matzehuels/overclock/pkg/errors"
)

// Power is the resource name used for electrical power flows.
const Power = "Power"

// Exponents of the clock to power law.
const (
	// ConsumerExp is the exponent of power consumption against clock.
	ConsumerExp = 1.6
	// GeneratorExp is the exponent of generator output against clock.
	GeneratorExp = 0.77
	// BuildingExp is the exponent of the building-count discount on power.
	BuildingExp = -0.6
)

// Rate is a signed resource flow of one recipe.
//
// Quantity units are moved every Time seconds at a clock of 100%. Exp is
// the scaling exponent of the flow against clock (zero means linear).
type Rate struct {
	Resource string  `json:"resource" toml:"resource" bson:"resource"`
	Quantity float64 `json:"quantity" toml:"quantity" bson:"quantity"`
	Time     float64 `json:"time" toml:"time" bson:"time"`
	Exp      float64 `json:"exp,omitempty" toml:"exp,omitempty" bson:"exp,omitempty"`
}

// Exponent returns the clock scaling exponent, defaulting to 1.
func (r Rate) Exponent() float64 {
	if r.Exp == 0 {
		return 1
	}
	return r.Exp
}

// PerSecond returns the nominal flow in units per second at 100% clock.
func (r Rate) PerSecond() float64 {
	return r.Quantity / r.Time
}

// IsOutput reports whether the rate produces its resource.
func (r Rate) IsOutput() bool { return r.Quantity > 0 }

// IsInput reports whether the rate consumes its resource.
func (r Rate) IsInput() bool { return r.Quantity < 0 }

// Scaled returns the flow per second at the given clock percentage,
// scaled linearly with clock.
func (r Rate) Scaled(clock float64) float64 {
	return clock / 100 * r.PerSecond()
}

// ClockFor returns the clock percentage at which this rate delivers the given
// flow per second, inverting rate = PerSecond * (clock/100)^Exponent.
func (r Rate) ClockFor(rate float64) float64 {
	return math.Pow(rate/r.PerSecond(), 1/r.Exponent()) * 100
}

// String renders the rate as "+1 Iron Ingot / 2s".
func (r Rate) String() string {
	return fmt.Sprintf("%+g %s / %gs", r.Quantity, r.Resource, r.Time)
}

// Validate checks that the rate describes a real, finite flow.
func (r Rate) Validate() error {
	if err := errors.ValidateName("resource", r.Resource); err != nil {
		return err
	}
	if r.Time <= 0 || math.IsInf(r.Time, 0) || math.IsNaN(r.Time) {
		return errors.New(errors.ErrCodeDataIngestion, "rate of %q has invalid time %g", r.Resource, r.Time)
	}
	if r.Quantity == 0 || math.IsInf(r.Quantity, 0) || math.IsNaN(r.Quantity) {
		return errors.New(errors.ErrCodeDataIngestion, "rate of %q has invalid quantity %g", r.Resource, r.Quantity)
	}
	if r.Exp < 0 || math.IsNaN(r.Exp) {
		return errors.New(errors.ErrCodeDataIngestion, "rate of %q has invalid exponent %g", r.Resource, r.Exp)
	}
	return nil
}

// Recipe is a named transformation performed in one building type.
type Recipe struct {
	Name     string `json:"name"`
	Building string `json:"building"`
	Kind     Kind   `json:"kind"`
	Tier     string `json:"tier,omitempty"`
	// Time is the cycle length in seconds.
	Time float64 `json:"time"`
	// Rates in declaration order, at most one per resource.
	Rates []Rate `json:"rates"`
	// BasePower is the power draw in watts of one building at 100% clock.
	BasePower float64 `json:"base_power,omitempty"`
	// Ore is set for extraction recipes expanded from a resource node.
	Ore *OreNode `json:"ore,omitempty"`
}

// Rate returns the rate for a resource and whether the recipe touches it.
func (r *Recipe) Rate(resource string) (Rate, bool) {
	for _, rt := range r.Rates {
		if rt.Resource == resource {
			return rt, true
		}
	}
	return Rate{}, false
}

// FirstOutput returns the first produced rate in declaration order.
// The choice is deterministic for a given recipe.
func (r *Recipe) FirstOutput() (Rate, bool) {
	for _, rt := range r.Rates {
		if rt.IsOutput() {
			return rt, true
		}
	}
	return Rate{}, false
}

// Outputs returns the produced rates in declaration order.
func (r *Recipe) Outputs() []Rate {
	var out []Rate
	for _, rt := range r.Rates {
		if rt.IsOutput() {
			out = append(out, rt)
		}
	}
	return out
}

// Inputs returns the consumed rates in declaration order.
func (r *Recipe) Inputs() []Rate {
	var in []Rate
	for _, rt := range r.Rates {
		if rt.IsInput() {
			in = append(in, rt)
		}
	}
	return in
}

// Produces reports whether the recipe outputs the resource.
func (r *Recipe) Produces(resource string) bool {
	rt, ok := r.Rate(resource)
	return ok && rt.IsOutput()
}

// BuildingName is a short display label for the building running the recipe.
// Extraction recipes are labelled by their node, e.g. "Miner Mk.2 on Pure node".
func (r *Recipe) BuildingName() string {
	if r.Ore != nil {
		return fmt.Sprintf("%s on %s node", r.Building, r.Ore.Purity)
	}
	return r.Building
}

// Validate checks the recipe invariants: a valid name, at least one output,
// unique resources and well-formed rates.
func (r *Recipe) Validate() error {
	if err := errors.ValidateName("recipe", r.Name); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		return errors.New(errors.ErrCodeDataIngestion, "recipe %q has unknown kind %d", r.Name, int(r.Kind))
	}
	if r.BasePower < 0 || math.IsNaN(r.BasePower) {
		return errors.New(errors.ErrCodeDataIngestion, "recipe %q has invalid base power %g", r.Name, r.BasePower)
	}
	seen := make(map[string]bool, len(r.Rates))
	for _, rt := range r.Rates {
		if err := rt.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeDataIngestion, err, "recipe %q", r.Name)
		}
		if seen[rt.Resource] {
			return errors.New(errors.ErrCodeDataIngestion, "recipe %q lists %q twice", r.Name, rt.Resource)
		}
		seen[rt.Resource] = true
	}
	if _, ok := r.FirstOutput(); !ok {
		return errors.New(errors.ErrCodeDataIngestion, "recipe %q has no output", r.Name)
	}
	return nil
}

// Clone returns a deep copy of the recipe.
func (r *Recipe) Clone() *Recipe {
	c := *r
	c.Rates = append([]Rate(nil), r.Rates...)
	if r.Ore != nil {
		ore := *r.Ore
		c.Ore = &ore
	}
	return &c
}
