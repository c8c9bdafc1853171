package render

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/overclock/pkg/dag"
	"github.com/matzehuels/overclock/pkg/dag/transform"
	"github.com/matzehuels/overclock/pkg/power"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// Node colors.
const (
	BuildingColor = "#FF7F00"
	ResourceColor = "#77B5E7"
)

// GraphOptions configure DOT output.
type GraphOptions struct {
	// Title is set as the graph label.
	Title string
	// Detailed appends node metadata to labels.
	Detailed bool
	// Ranked pins every production depth to one rank, so raw resources
	// line up on the left and end products on the right.
	Ranked bool
}

// SolutionGraph builds the bipartite graph of building groups and the
// resources they move. Empty groups are left out.
func SolutionGraph(solved []power.SolvedRecipe) *dag.DAG {
	groups := make([]dag.Group, 0, len(solved))
	for _, s := range solved {
		if s.IsEmpty() {
			continue
		}
		groups = append(groups, dag.Group{Recipe: s.Recipe, N: s.N, ClockTotal: float64(s.ClockTotal)})
	}
	return dag.FromFlows(groups)
}

// CatalogGraph builds the resource dependency graph of a catalog.
func CatalogGraph(cat recipe.Catalog) *dag.DAG {
	return dag.FromCatalog(cat)
}

// ToDOT converts a graph to Graphviz DOT. Nodes are emitted sorted by ID
// and edges in insertion order, so equal graphs give equal output.
func ToDOT(g *dag.DAG, opts GraphOptions) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	if opts.Title != "" {
		fmt.Fprintf(&buf, "  label=%q;\n", opts.Title)
	}
	buf.WriteString("  node [style=\"rounded,filled\", fillcolor=white, penwidth=2, fontsize=14];\n")
	buf.WriteString("  edge [fontsize=10];\n\n")

	for _, n := range g.Nodes() {
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(nodeAttrs(*n, opts.Detailed), ", "))
	}
	if opts.Ranked {
		for _, row := range rankGroups(g) {
			ids := make([]string, len(row))
			for i, id := range row {
				ids[i] = fmt.Sprintf("%q", id)
			}
			fmt.Fprintf(&buf, "  { rank=same; %s; }\n", strings.Join(ids, "; "))
		}
	}
	buf.WriteString("\n")
	for _, e := range g.Edges() {
		if e.Label != "" {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.From, e.To, e.Label)
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}
	buf.WriteString("}\n")
	return buf.String()
}

// rankGroups layers a copy of g and returns the node IDs of every layer
// holding more than one node. Cycles are broken on the copy only.
func rankGroups(g *dag.DAG) [][]string {
	layered := dag.New(nil)
	for _, n := range g.Nodes() {
		_ = layered.AddNode(dag.Node{ID: n.ID, Kind: n.Kind})
	}
	for _, e := range g.Edges() {
		_ = layered.AddEdge(dag.Edge{From: e.From, To: e.To})
	}
	transform.Layered(layered)

	var groups [][]string
	for _, row := range layered.RowIDs() {
		if nodes := layered.NodesInRow(row); len(nodes) > 1 {
			groups = append(groups, dag.NodeIDs(nodes))
		}
	}
	return groups
}

func nodeAttrs(n dag.Node, detailed bool) []string {
	label := n.DisplayLabel()
	if detailed && len(n.Meta) > 0 {
		var parts []string
		for _, k := range slices.Sorted(maps.Keys(n.Meta)) {
			parts = append(parts, fmt.Sprintf("%s: %v", k, n.Meta[k]))
		}
		label += "\n" + strings.Join(parts, "\n")
	}
	if n.IsRecipe() {
		return []string{fmt.Sprintf("label=%q", label), "shape=box", fmt.Sprintf("color=%q", BuildingColor)}
	}
	return []string{fmt.Sprintf("label=%q", label), "shape=ellipse", fmt.Sprintf("color=%q", ResourceColor)}
}

// RenderSVG lays out a DOT graph and renders it as SVG.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	return renderDOT(ctx, dot, graphviz.SVG)
}

// RenderPNG lays out a DOT graph and renders it as PNG.
func RenderPNG(ctx context.Context, dot string) ([]byte, error) {
	return renderDOT(ctx, dot, graphviz.PNG)
}

func renderDOT(ctx context.Context, dot string, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
