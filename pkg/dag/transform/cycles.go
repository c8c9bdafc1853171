package transform

import "github.com/matzehuels/overclock/pkg/dag"

// BackEdge is an edge removed by BreakCycles.
type BackEdge struct {
	From, To string
}

// BreakCycles removes back edges found by depth-first search until the graph
// is acyclic and returns the number of edges removed.
//
// The search starts from source nodes, then from any node still unvisited
// (nodes that only sit on cycles), both in ID order, so the same graph always
// loses the same edges.
func BreakCycles(g *dag.DAG) int {
	return len(FindBackEdges(g, true))
}

// FindBackEdges returns the back edges of a depth-first search, removing
// them from g when remove is set. Each back edge closes one cycle.
func FindBackEdges(g *dag.DAG, remove bool) []BackEdge {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int)
	var back []BackEdge

	var dfs func(node string)
	dfs = func(node string) {
		color[node] = gray
		for _, child := range g.Children(node) {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				back = append(back, BackEdge{node, child})
			}
		}
		color[node] = black
	}

	for _, n := range g.Sources() {
		if color[n.ID] == white {
			dfs(n.ID)
		}
	}
	for _, n := range g.Nodes() {
		if color[n.ID] == white {
			dfs(n.ID)
		}
	}

	if remove {
		for _, e := range back {
			g.RemoveEdge(e.From, e.To)
		}
	}
	return back
}
