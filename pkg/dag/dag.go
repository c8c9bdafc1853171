package dag

import (
	"errors"
	"maps"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [DAG.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [DAG.AddNode] when a node with the
	// same ID already exists in the graph.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [DAG.AddEdge] when the From node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [DAG.AddEdge] when the To node
	// does not exist in the graph.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrGraphHasCycle is returned by [DAG.Validate] when a cycle is detected.
	// Production graphs often contain cycles (power feeding the generators
	// that make it); run transform.BreakCycles before layering.
	ErrGraphHasCycle = errors.New("graph contains a cycle")
)

// Metadata stores arbitrary key-value pairs attached to nodes, edges or the
// graph. Metadata maps are never nil after AddNode/AddEdge/New.
type Metadata map[string]any

// Metadata keys set by the graph builders.
const (
	MetaBuilding   = "building"
	MetaClock      = "clock"
	MetaCount      = "count"
	MetaThroughput = "throughput"
	MetaSecsPerOne = "secs_per_unit"
)

// NodeKind distinguishes recipe (building) nodes from resource nodes.
type NodeKind int

const (
	// NodeKindResource is a material, fluid or power flow.
	NodeKindResource NodeKind = iota
	// NodeKindRecipe is a recipe, or a group of buildings running it.
	NodeKindRecipe
)

func (k NodeKind) String() string {
	if k == NodeKindRecipe {
		return "recipe"
	}
	return "resource"
}

// Node is a vertex of the production graph.
type Node struct {
	ID    string   // Unique identifier
	Label string   // Display label; ID when empty
	Row   int      // Layer assigned by transform.AssignLayers
	Kind  NodeKind // Recipe or resource
	Meta  Metadata // Never nil after AddNode
}

// DisplayLabel returns Label, falling back to ID.
func (n Node) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// IsRecipe reports whether the node stands for a recipe.
func (n Node) IsRecipe() bool { return n.Kind == NodeKindRecipe }

// Edge is a directed flow from From to To.
type Edge struct {
	From  string
	To    string
	Label string
	Meta  Metadata // Never nil after AddEdge
}

// DAG is a directed graph of recipes and resources.
//
// Despite the name, cycles are allowed while building; [DAG.Validate]
// reports them and transform.BreakCycles removes them. Node iteration is
// sorted by ID so that renderings are stable.
//
// The zero value is not usable; use New. A DAG is not safe for concurrent
// use without external synchronization.
type DAG struct {
	nodes    map[string]*Node
	edges    []Edge
	outgoing map[string][]string
	incoming map[string][]string
	meta     Metadata
}

// New creates an empty graph with optional graph-level metadata.
func New(meta Metadata) *DAG {
	if meta == nil {
		meta = Metadata{}
	}
	return &DAG{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		meta:     meta,
	}
}

// Meta returns the graph-level metadata map.
func (d *DAG) Meta() Metadata { return d.meta }

// AddNode adds a node to the graph.
func (d *DAG) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := d.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	if n.Meta == nil {
		n.Meta = Metadata{}
	}
	d.nodes[n.ID] = &n
	return nil
}

// EnsureNode adds n unless a node with its ID exists, and returns the node
// stored in the graph.
func (d *DAG) EnsureNode(n Node) *Node {
	if existing, ok := d.nodes[n.ID]; ok {
		return existing
	}
	_ = d.AddNode(n)
	return d.nodes[n.ID]
}

// AddEdge adds a directed edge between two existing nodes.
// Multiple edges between the same nodes are allowed.
func (d *DAG) AddEdge(e Edge) error {
	if _, ok := d.nodes[e.From]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := d.nodes[e.To]; !ok {
		return ErrUnknownTargetNode
	}
	if e.Meta == nil {
		e.Meta = Metadata{}
	}
	d.edges = append(d.edges, e)
	d.outgoing[e.From] = append(d.outgoing[e.From], e.To)
	d.incoming[e.To] = append(d.incoming[e.To], e.From)
	return nil
}

// RemoveEdge removes the first edge from→to if it exists.
func (d *DAG) RemoveEdge(from, to string) {
	if i := slices.IndexFunc(d.edges, func(e Edge) bool { return e.From == from && e.To == to }); i >= 0 {
		d.edges = slices.Delete(d.edges, i, i+1)
	}
	if i := slices.Index(d.outgoing[from], to); i >= 0 {
		d.outgoing[from] = slices.Delete(d.outgoing[from], i, i+1)
	}
	if i := slices.Index(d.incoming[to], from); i >= 0 {
		d.incoming[to] = slices.Delete(d.incoming[to], i, i+1)
	}
}

// Nodes returns all nodes sorted by ID. The pointers refer to the graph's
// own nodes.
func (d *DAG) Nodes() []*Node {
	nodes := make([]*Node, 0, len(d.nodes))
	for _, id := range slices.Sorted(maps.Keys(d.nodes)) {
		nodes = append(nodes, d.nodes[id])
	}
	return nodes
}

// NodesOfKind returns the nodes of one kind sorted by ID.
func (d *DAG) NodesOfKind(k NodeKind) []*Node {
	var out []*Node
	for _, n := range d.Nodes() {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

// Edges returns a copy of all edges in insertion order.
func (d *DAG) Edges() []Edge { return slices.Clone(d.edges) }

// NodeCount returns the number of nodes in the graph.
func (d *DAG) NodeCount() int { return len(d.nodes) }

// EdgeCount returns the number of edges in the graph.
func (d *DAG) EdgeCount() int { return len(d.edges) }

// Children returns the IDs the node has edges to. The slice is read-only.
func (d *DAG) Children(id string) []string { return d.outgoing[id] }

// Parents returns the IDs with edges to the node. The slice is read-only.
func (d *DAG) Parents(id string) []string { return d.incoming[id] }

// InDegree returns the number of incoming edges to the node.
func (d *DAG) InDegree(id string) int { return len(d.incoming[id]) }

// OutDegree returns the number of outgoing edges from the node.
func (d *DAG) OutDegree(id string) int { return len(d.outgoing[id]) }

// Node returns the node with the given ID.
func (d *DAG) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// SetRows updates row assignments. Nodes missing from rows keep theirs.
func (d *DAG) SetRows(rows map[string]int) {
	for id, row := range rows {
		if n, ok := d.nodes[id]; ok {
			n.Row = row
		}
	}
}

// NodesInRow returns the nodes in a row, sorted by ID.
func (d *DAG) NodesInRow(row int) []*Node {
	var out []*Node
	for _, n := range d.Nodes() {
		if n.Row == row {
			out = append(out, n)
		}
	}
	return out
}

// RowIDs returns the distinct row indices in ascending order.
func (d *DAG) RowIDs() []int {
	set := make(map[int]struct{})
	for _, n := range d.nodes {
		set[n.Row] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Sources returns nodes with no incoming edges, sorted by ID.
func (d *DAG) Sources() []*Node {
	var sources []*Node
	for _, n := range d.Nodes() {
		if len(d.incoming[n.ID]) == 0 {
			sources = append(sources, n)
		}
	}
	return sources
}

// Sinks returns nodes with no outgoing edges, sorted by ID.
func (d *DAG) Sinks() []*Node {
	var sinks []*Node
	for _, n := range d.Nodes() {
		if len(d.outgoing[n.ID]) == 0 {
			sinks = append(sinks, n)
		}
	}
	return sinks
}

// Validate returns ErrGraphHasCycle if the graph has a directed cycle.
func (d *DAG) Validate() error {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(d.nodes))
	var hasCycle bool

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		for _, child := range d.outgoing[id] {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				hasCycle = true
			}
			if hasCycle {
				return
			}
		}
		color[id] = black
	}

	for _, n := range d.Nodes() {
		if color[n.ID] == white {
			dfs(n.ID)
			if hasCycle {
				return ErrGraphHasCycle
			}
		}
	}
	return nil
}

// NodeIDs extracts the ID from each node in a slice.
func NodeIDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
