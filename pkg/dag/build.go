package dag

import (
	"fmt"

	"github.com/matzehuels/overclock/pkg/recipe"
)

// FromCatalog builds the resource dependency graph of a catalog: one node
// per resource, and an edge from every input resource of a recipe to that
// recipe's first output. Edges are labelled with seconds per unit consumed
// at nominal clock.
func FromCatalog(cat recipe.Catalog) *DAG {
	g := New(Metadata{"recipes": len(cat)})
	for _, res := range cat.Resources() {
		_ = g.AddNode(Node{ID: res, Kind: NodeKindResource})
	}
	for _, r := range cat.Sorted() {
		out, ok := r.FirstOutput()
		if !ok {
			continue
		}
		for _, in := range r.Inputs() {
			secs := -1 / in.PerSecond()
			_ = g.AddEdge(Edge{
				From:  in.Resource,
				To:    out.Resource,
				Label: fmt.Sprintf("%.2f s/1", secs),
				Meta:  Metadata{"recipe": r.Name, MetaSecsPerOne: secs},
			})
		}
	}
	return g
}

// Group is a set of identical buildings running one recipe.
type Group struct {
	Recipe     *recipe.Recipe
	N          int
	ClockTotal float64
}

// FromFlows builds the bipartite solution graph of building groups: one
// node per group and per touched resource, with edges from input resources
// to groups and from groups to output resources. Edge labels give seconds
// per unit at the group's total throughput. Empty groups are skipped.
func FromFlows(groups []Group) *DAG {
	g := New(nil)
	for i, grp := range groups {
		if grp.N < 1 || grp.ClockTotal < 1 {
			continue
		}
		id := fmt.Sprintf("g%d", i)
		clockEach := grp.ClockTotal / float64(grp.N)
		_ = g.AddNode(Node{
			ID:    id,
			Label: fmt.Sprintf("%s\n%.0f%% × %d", grp.Recipe.BuildingName(), clockEach, grp.N),
			Kind:  NodeKindRecipe,
			Meta: Metadata{
				"recipe":     grp.Recipe.Name,
				MetaBuilding: grp.Recipe.BuildingName(),
				MetaClock:    clockEach,
				MetaCount:    grp.N,
			},
		})
		for _, rt := range grp.Recipe.Rates {
			g.EnsureNode(Node{ID: "r:" + rt.Resource, Label: rt.Resource, Kind: NodeKindResource})
			from, to := id, "r:"+rt.Resource
			if rt.IsInput() {
				from, to = to, from
			}
			throughput := rt.Scaled(grp.ClockTotal)
			if throughput < 0 {
				throughput = -throughput
			}
			_ = g.AddEdge(Edge{
				From:  from,
				To:    to,
				Label: fmt.Sprintf("%.2f s/1", 1/throughput),
				Meta:  Metadata{MetaThroughput: throughput, MetaSecsPerOne: 1 / throughput},
			})
		}
	}
	return g
}
