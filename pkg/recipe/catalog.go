package recipe

import (
	"sort"

	"github.com/matzehuels/overclock/pkg/errors"
)

// Catalog maps recipe names to recipes.
type Catalog map[string]*Recipe

// NewCatalog builds a catalog from recipes, rejecting duplicate names.
func NewCatalog(recipes ...*Recipe) (Catalog, error) {
	c := make(Catalog, len(recipes))
	for _, r := range recipes {
		if _, dup := c[r.Name]; dup {
			return nil, errors.New(errors.ErrCodeDataIngestion, "duplicate recipe %q", r.Name)
		}
		c[r.Name] = r
	}
	return c, nil
}

// Names returns recipe names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sorted returns the recipes ordered by name.
func (c Catalog) Sorted() []*Recipe {
	out := make([]*Recipe, 0, len(c))
	for _, name := range c.Names() {
		out = append(out, c[name])
	}
	return out
}

// Resources returns every resource touched by any recipe, sorted.
func (c Catalog) Resources() []string {
	set := make(map[string]struct{})
	for _, r := range c {
		for _, rt := range r.Rates {
			set[rt.Resource] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for res := range set {
		out = append(out, res)
	}
	sort.Strings(out)
	return out
}

// Producers returns the recipes that output the resource, sorted by name.
func (c Catalog) Producers(resource string) []*Recipe {
	var out []*Recipe
	for _, r := range c.Sorted() {
		if r.Produces(resource) {
			out = append(out, r)
		}
	}
	return out
}

// ProducerIndex maps each resource to the names of the recipes producing it.
func (c Catalog) ProducerIndex() map[string][]string {
	idx := make(map[string][]string)
	for _, r := range c.Sorted() {
		for _, rt := range r.Outputs() {
			idx[rt.Resource] = append(idx[rt.Resource], r.Name)
		}
	}
	return idx
}

// Subset returns a catalog restricted to the named recipes.
// Unknown names are reported as NOT_FOUND.
func (c Catalog) Subset(names []string) (Catalog, error) {
	out := make(Catalog, len(names))
	for _, name := range names {
		r, ok := c[name]
		if !ok {
			return nil, errors.New(errors.ErrCodeNotFound, "recipe %q not in catalog", name)
		}
		out[name] = r
	}
	return out, nil
}

// AttachPower sets BasePower on every recipe whose building appears in the
// table of watts per building. It returns the number of recipes updated.
func (c Catalog) AttachPower(table map[string]float64) int {
	n := 0
	for _, r := range c {
		if w, ok := table[r.Building]; ok {
			r.BasePower = w
			n++
		}
	}
	return n
}

// Validate checks every recipe, returning the first failure in name order.
func (c Catalog) Validate() error {
	for _, r := range c.Sorted() {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for name, r := range c {
		out[name] = r.Clone()
	}
	return out
}
