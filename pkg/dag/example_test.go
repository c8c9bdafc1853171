package dag_test

import (
	"fmt"

	"github.com/matzehuels/overclock/pkg/dag"
)

func ExampleDAG_traversal() {
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "Iron Ore"})
	_ = g.AddNode(dag.Node{ID: "Iron Ingot"})
	_ = g.AddNode(dag.Node{ID: "Iron Rod"})
	_ = g.AddEdge(dag.Edge{From: "Iron Ore", To: "Iron Ingot"})
	_ = g.AddEdge(dag.Edge{From: "Iron Ingot", To: "Iron Rod"})

	fmt.Println("Children of ore:", g.Children("Iron Ore"))
	fmt.Println("Sinks:", dag.NodeIDs(g.Sinks()))
	fmt.Println("Acyclic:", g.Validate() == nil)
	// Output:
	// Children of ore: [Iron Ingot]
	// Sinks: [Iron Rod]
	// Acyclic: true
}
