package catalog

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// Document is the TOML catalog format.
//
//	[settings]
//	tiers = ["Tier 0", "Tier 1"]
//	power_rates = true
//
//	[buildings]
//	"Constructor" = 4e6
//
//	[[recipe]]
//	name = "Iron Plate"
//	building = "Constructor"
//	tier = "Tier 0"
//	time = 6
//	  [[recipe.rate]]
//	  resource = "Iron Plate"
//	  quantity = 2
//	  [[recipe.rate]]
//	  resource = "Iron Ingot"
//	  quantity = -3
//
//	[[ore]]
//	resource = "Iron Ore"
//	extractor = "Miner"
//
//	[[generator]]
//	building = "Coal Generator"
//	power = 75e6
//	  [[generator.fuel]]
//	  resource = "Coal"
//	  energy = 300
type Document struct {
	Settings   Settings           `toml:"settings"`
	Buildings  map[string]float64 `toml:"buildings"`
	Recipes    []RecipeEntry      `toml:"recipe"`
	Ores       []OreEntry         `toml:"ore"`
	Generators []GeneratorEntry   `toml:"generator"`
}

// Settings control how entries expand into recipes.
type Settings struct {
	// Tiers keeps only entries whose tier contains one of the listed
	// strings. Empty keeps everything.
	Tiers []string `toml:"tiers"`
	// Alternates keeps recipes flagged as alternates.
	Alternates bool `toml:"alternates"`
	// PowerRates adds a Power input rate to every powered recipe, so that
	// rate pinning must also balance generators against consumers.
	PowerRates bool `toml:"power_rates"`
}

// RecipeEntry is a production recipe.
type RecipeEntry struct {
	Name      string      `toml:"name"`
	Building  string      `toml:"building"`
	Tier      string      `toml:"tier"`
	Time      float64     `toml:"time"`
	Alternate bool        `toml:"alternate"`
	Rates     []RateEntry `toml:"rate"`
}

// RateEntry is one resource flow. Time defaults to the recipe time.
type RateEntry struct {
	Resource string  `toml:"resource"`
	Quantity float64 `toml:"quantity"`
	Time     float64 `toml:"time"`
	Exp      float64 `toml:"exp"`
}

// OreEntry expands into one extraction recipe per node purity and
// extractor mark.
type OreEntry struct {
	Resource  string `toml:"resource"`
	Extractor string `toml:"extractor"`
	Tier      string `toml:"tier"`
	// Quantity and Time give the base yield of a Mk.1 extractor on a
	// normal node; both default to 1.
	Quantity float64 `toml:"quantity"`
	Time     float64 `toml:"time"`
	// Marks and Purities restrict the expansion; empty means all.
	Marks    []int    `toml:"marks"`
	Purities []string `toml:"purities"`
}

// GeneratorEntry expands into one recipe per fuel.
type GeneratorEntry struct {
	Building string      `toml:"building"`
	Tier     string      `toml:"tier"`
	Power    float64     `toml:"power"`
	Fuels    []FuelEntry `toml:"fuel"`
}

// FuelEntry is a fuel burnt by a generator.
type FuelEntry struct {
	Resource string `toml:"resource"`
	// Energy per unit of fuel in MJ.
	Energy float64 `toml:"energy"`
}

// Report summarizes what Build kept and skipped.
type Report struct {
	Recipes    int      `json:"recipes"`
	Ores       int      `json:"ores"`
	Generators int      `json:"generators"`
	Skipped    []string `json:"skipped,omitempty"`
}

// Decode parses a TOML catalog document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataIngestion, err, "decode catalog")
	}
	return &doc, nil
}

// Build expands the document into a catalog.
//
// Production recipes are essential: a malformed one aborts the build.
// Ore variants and generator fuels are optional: malformed or unused ones
// are logged and skipped. When a building power table is given, recipes
// whose building has no entry are skipped as out of reach.
func Build(doc *Document, logger *log.Logger) (recipe.Catalog, *Report, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	b := &builder{doc: doc, logger: logger, cat: make(recipe.Catalog), report: &Report{}}
	if err := b.recipes(); err != nil {
		return nil, nil, err
	}
	b.ores()
	b.generators()

	if len(doc.Buildings) > 0 {
		b.cat.AttachPower(doc.Buildings)
	}
	if err := b.cat.Validate(); err != nil {
		return nil, nil, err
	}
	sort.Strings(b.report.Skipped)
	return b.cat, b.report, nil
}

type builder struct {
	doc    *Document
	logger *log.Logger
	cat    recipe.Catalog
	report *Report
}

func (b *builder) skip(what string, args ...any) {
	msg := fmt.Sprintf(what, args...)
	b.report.Skipped = append(b.report.Skipped, msg)
	b.logger.Debug("skipped catalog entry", "reason", msg)
}

// inTier reports whether an entry's tier passes the tier filter.
func (b *builder) inTier(tier string) bool {
	if len(b.doc.Settings.Tiers) == 0 {
		return true
	}
	for _, t := range b.doc.Settings.Tiers {
		if strings.Contains(tier, t) {
			return true
		}
	}
	return false
}

// powered reports whether a building has a known power draw, and that draw.
func (b *builder) powered(building string) (float64, bool) {
	if len(b.doc.Buildings) == 0 {
		return 0, true
	}
	w, ok := b.doc.Buildings[building]
	return w, ok
}

func (b *builder) add(r *recipe.Recipe) error {
	if _, dup := b.cat[r.Name]; dup {
		return errors.New(errors.ErrCodeDataIngestion, "duplicate recipe %q", r.Name)
	}
	b.cat[r.Name] = r
	return nil
}

func (b *builder) powerRate(watts float64) recipe.Rate {
	return recipe.Rate{Resource: recipe.Power, Quantity: -watts, Time: 1, Exp: recipe.ConsumerExp}
}

func (b *builder) recipes() error {
	for i, e := range b.doc.Recipes {
		if e.Alternate && !b.doc.Settings.Alternates {
			b.skip("recipe %q: alternate", e.Name)
			continue
		}
		if !b.inTier(e.Tier) {
			b.skip("recipe %q: tier %q", e.Name, e.Tier)
			continue
		}
		if e.Name == "" {
			return errors.New(errors.ErrCodeDataIngestion, "recipe #%d has no name", i+1)
		}
		if e.Building == "" {
			return errors.New(errors.ErrCodeDataIngestion, "recipe %q has no building", e.Name)
		}
		if e.Time <= 0 {
			return errors.New(errors.ErrCodeDataIngestion, "recipe %q has invalid time %g", e.Name, e.Time)
		}
		watts, ok := b.powered(e.Building)
		if !ok {
			b.skip("recipe %q: building %q has no power entry", e.Name, e.Building)
			continue
		}

		r := &recipe.Recipe{Name: e.Name, Building: e.Building, Kind: recipe.Production, Tier: e.Tier, Time: e.Time}
		for _, re := range e.Rates {
			t := re.Time
			if t == 0 {
				t = e.Time
			}
			r.Rates = append(r.Rates, recipe.Rate{Resource: re.Resource, Quantity: re.Quantity, Time: t, Exp: re.Exp})
		}
		if b.doc.Settings.PowerRates && watts > 0 {
			if _, has := r.Rate(recipe.Power); !has {
				r.Rates = append(r.Rates, b.powerRate(watts))
			}
		}
		if err := r.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeDataIngestion, err, "recipe #%d", i+1)
		}
		if err := b.add(r); err != nil {
			return err
		}
		b.report.Recipes++
	}
	return nil
}

func (b *builder) ores() {
	consumed := make(map[string]bool)
	for _, r := range b.cat {
		for _, rt := range r.Inputs() {
			consumed[rt.Resource] = true
		}
	}
	for _, g := range b.doc.Generators {
		for _, f := range g.Fuels {
			consumed[f.Resource] = true
		}
	}

	for _, e := range b.doc.Ores {
		if e.Resource == "" || e.Extractor == "" {
			b.skip("ore entry without resource or extractor")
			continue
		}
		if !consumed[e.Resource] {
			b.skip("ore %q: not consumed by any recipe", e.Resource)
			continue
		}
		if !b.inTier(e.Tier) {
			b.skip("ore %q: tier %q", e.Resource, e.Tier)
			continue
		}
		quantity, t := e.Quantity, e.Time
		if quantity == 0 {
			quantity = 1
		}
		if t == 0 {
			t = 1
		}
		if quantity < 0 || t < 0 {
			b.skip("ore %q: negative yield", e.Resource)
			continue
		}

		marks := e.Marks
		if len(marks) == 0 {
			marks = recipe.MinerMarks
		}
		purities := recipe.Purities
		if len(e.Purities) > 0 {
			purities = nil
			for _, p := range e.Purities {
				purities = append(purities, recipe.Purity(p))
			}
		}

		for _, purity := range purities {
			if purity != recipe.Impure && purity != recipe.Normal && purity != recipe.Pure {
				b.skip("ore %q: unknown purity %q", e.Resource, purity)
				continue
			}
			for _, mark := range marks {
				if mark < 1 || mark > 3 {
					b.skip("ore %q: unknown extractor mark %d", e.Resource, mark)
					continue
				}
				b.ore(e, quantity, t, purity, mark)
			}
		}
	}
}

func (b *builder) ore(e OreEntry, quantity, t float64, purity recipe.Purity, mark int) {
	node := &recipe.OreNode{Mark: mark, Purity: purity}
	building := fmt.Sprintf("%s Mk.%d", e.Extractor, mark)
	name := fmt.Sprintf("%s from %s on %s node", e.Resource, building, purity)

	watts, ok := b.powered(building)
	if !ok {
		b.skip("ore %q: building %q has no power entry", name, building)
		return
	}
	cycle := t / node.Multiplier()
	r := &recipe.Recipe{
		Name:     name,
		Building: building,
		Kind:     recipe.Ore,
		Tier:     e.Tier,
		Time:     cycle,
		Rates:    []recipe.Rate{{Resource: e.Resource, Quantity: quantity, Time: cycle}},
		Ore:      node,
	}
	if b.doc.Settings.PowerRates && watts > 0 {
		r.Rates = append(r.Rates, b.powerRate(watts))
	}
	if err := r.Validate(); err != nil {
		b.skip("ore %q: %v", name, err)
		return
	}
	if err := b.add(r); err != nil {
		b.skip("ore %q: %v", name, err)
		return
	}
	b.report.Ores++
}

func (b *builder) generators() {
	produced := make(map[string]bool)
	for _, r := range b.cat {
		for _, rt := range r.Outputs() {
			produced[rt.Resource] = true
		}
	}

	for _, g := range b.doc.Generators {
		if g.Building == "" || g.Power <= 0 {
			b.skip("generator %q: missing building or power", g.Building)
			continue
		}
		if !b.inTier(g.Tier) {
			b.skip("generator %q: tier %q", g.Building, g.Tier)
			continue
		}
		for _, f := range g.Fuels {
			name := fmt.Sprintf("%s powered by %s", g.Building, f.Resource)
			if f.Energy <= 0 {
				b.skip("generator %q: invalid fuel energy %g", name, f.Energy)
				continue
			}
			if !produced[f.Resource] {
				b.skip("generator %q: fuel not produced by any recipe", name)
				continue
			}
			r := &recipe.Recipe{
				Name:     name,
				Building: g.Building,
				Kind:     recipe.Generator,
				Tier:     g.Tier,
				Time:     1,
				Rates: []recipe.Rate{
					{Resource: f.Resource, Quantity: -1, Time: f.Energy * 1e6 / g.Power, Exp: recipe.GeneratorExp},
					{Resource: recipe.Power, Quantity: g.Power, Time: 1, Exp: recipe.GeneratorExp},
				},
			}
			if err := b.add(r); err != nil {
				b.skip("generator %q: %v", name, err)
				continue
			}
			b.report.Generators++
		}
	}
}
