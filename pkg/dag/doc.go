// Package dag provides the production graph: recipes and the resources
// flowing between them.
//
// # Overview
//
// A production graph is bipartite. Resource nodes feed recipe nodes through
// input edges, and recipe nodes feed resource nodes through output edges.
// The builders in this package derive graphs from a recipe catalog
// ([FromCatalog]) or from a solved plan ([FromFlows]); the render package
// turns them into DOT and SVG.
//
// # Basic Usage
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "Iron Ore", Kind: dag.NodeKindResource})
//	g.AddNode(dag.Node{ID: "Iron Ingot", Kind: dag.NodeKindRecipe})
//	g.AddEdge(dag.Edge{From: "Iron Ore", To: "Iron Ingot"})
//
// # Cycles
//
// Real catalogs are not acyclic: generators burn fuel refined with power
// they produce, and alternate recipes feed each other. [DAG.Validate]
// reports cycles, and the [transform] subpackage breaks them and assigns
// layers for ranked drawings.
//
// # Concurrency
//
// DAG instances are not safe for concurrent use.
//
// [transform]: github.com/matzehuels/overclock/pkg/dag/transform
package dag
