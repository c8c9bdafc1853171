package transform

import "github.com/matzehuels/overclock/pkg/dag"

// AssignLayers places every node one row below its deepest parent, with
// sources at row 0, using Kahn's algorithm.
//
// Nodes on a cycle never reach zero in-degree and stay at row 0; run
// [BreakCycles] first. Existing rows are overwritten.
func AssignLayers(g *dag.DAG) {
	nodes := g.Nodes()
	inDegree := make(map[string]int, len(nodes))
	rows := make(map[string]int, len(nodes))
	queue := make([]string, 0, len(nodes))

	for _, n := range nodes {
		rows[n.ID] = 0
		degree := g.InDegree(n.ID)
		inDegree[n.ID] = degree
		if degree == 0 {
			queue = append(queue, n.ID)
		}
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, child := range g.Children(curr) {
			if row := rows[curr] + 1; row > rows[child] {
				rows[child] = row
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	g.SetRows(rows)
}

// Layered breaks cycles and assigns layers, returning the number of edges
// removed.
func Layered(g *dag.DAG) int {
	removed := BreakCycles(g)
	AssignLayers(g)
	return removed
}
