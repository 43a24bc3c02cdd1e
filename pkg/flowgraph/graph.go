package flowgraph

import (
	"fmt"
	"sort"

	ybgraph "github.com/yourbasic/graph"
)

// Diagnostic records a statement that was skipped during construction.
type Diagnostic struct {
	Line      int    `json:"line"`
	Construct string `json:"construct"`
	Message   string `json:"message"`
}

// FlowGraph is the dependence graph of a single function.
type FlowGraph struct {
	Name string

	entry *EntryNode
	nodes map[int]Node

	Sinks              []Node      // value/effect frontier of the function body
	StatementSinks     []Node      // last statements that may fall through
	StatementSources   []Node      // first statements of the body
	VariableReferences []*DataNode // usages with no reaching definition
	Diagnostics        []Diagnostic
}

func newFlowGraph(name string) *FlowGraph {
	return &FlowGraph{Name: name, nodes: make(map[int]Node)}
}

// Entry returns the entry node.
func (g *FlowGraph) Entry() *EntryNode { return g.entry }

// Len returns the number of nodes.
func (g *FlowGraph) Len() int { return len(g.nodes) }

// Node returns the node with the given statement number, or nil.
func (g *FlowGraph) Node(id int) Node { return g.nodes[id] }

// Nodes returns all nodes ordered by statement number.
func (g *FlowGraph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Edges returns all edges ordered by source, target and label.
func (g *FlowGraph) Edges() []*Edge {
	var out []*Edge
	for _, n := range g.Nodes() {
		out = append(out, n.OutEdges()...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.From.ID() != b.From.ID() {
			return a.From.ID() < b.From.ID()
		}
		if a.To.ID() != b.To.ID() {
			return a.To.ID() < b.To.ID()
		}
		return a.Label < b.Label
	})
	return out
}

// EdgesLabelled returns the edges carrying the given label.
func (g *FlowGraph) EdgesLabelled(label EdgeLabel) []*Edge {
	var out []*Edge
	for _, e := range g.Edges() {
		if e.Label == label {
			out = append(out, e)
		}
	}
	return out
}

func (g *FlowGraph) setEntry(e *EntryNode) error {
	if g.entry != nil {
		return fmt.Errorf("%w: %s already has entry %d", ErrDuplicateEntry, g.Name, g.entry.ID())
	}
	g.entry = e
	g.nodes[e.ID()] = e
	return nil
}

func (g *FlowGraph) addNode(n Node) {
	g.nodes[n.ID()] = n
}

// removeNode deletes n and detaches all of its edges.
func (g *FlowGraph) removeNode(n Node) {
	for _, e := range append([]*Edge(nil), n.InEdges()...) {
		removeEdge(e)
	}
	for _, e := range append([]*Edge(nil), n.OutEdges()...) {
		removeEdge(e)
	}
	delete(g.nodes, n.ID())
	if n == Node(g.entry) {
		g.entry = nil
	}
}

// Validate checks that the control and dependence edges form a DAG.
func (g *FlowGraph) Validate() error {
	nodes := g.Nodes()
	index := make(map[int]int, len(nodes))
	for i, n := range nodes {
		index[n.ID()] = i
	}
	dag := ybgraph.New(len(nodes))
	for _, n := range nodes {
		for _, e := range n.OutEdges() {
			if e.Label != LabelControl && e.Label != LabelDependence {
				continue
			}
			if e.From == e.To {
				return fmt.Errorf("self loop on node %d (%s)", n.ID(), e.Label)
			}
			dag.Add(index[e.From.ID()], index[e.To.ID()])
		}
	}
	if !ybgraph.Acyclic(dag) {
		return fmt.Errorf("control/dependence edges of %s contain a cycle", g.Name)
	}
	return nil
}

// findEdge returns an existing edge with the same endpoints, label and, for
// control edges, branch kind.
func findEdge(from, to Node, label EdgeLabel, kind bool) *Edge {
	for _, e := range from.OutEdges() {
		if e.To != to || e.Label != label {
			continue
		}
		if label == LabelControl && e.BranchKind != kind {
			continue
		}
		return e
	}
	return nil
}

// addEdge links from -> to unless an equivalent edge already exists. It
// reports whether a new edge was created.
func addEdge(from, to Node, label EdgeLabel, kind, closure bool) bool {
	if from == to || findEdge(from, to, label, kind) != nil {
		return false
	}
	e := &Edge{From: from, To: to, Label: label, FromClosure: closure}
	if label == LabelControl {
		e.BranchKind = kind
	}
	fb, tb := from.base(), to.base()
	fb.out = append(fb.out, e)
	tb.in = append(tb.in, e)
	return true
}

func removeEdge(e *Edge) {
	fb, tb := e.From.base(), e.To.base()
	fb.out = dropEdge(fb.out, e)
	tb.in = dropEdge(tb.in, e)
}

func dropEdge(edges []*Edge, e *Edge) []*Edge {
	out := edges[:0]
	for _, x := range edges {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}

// hasControlFrom reports whether any control edge runs from -> to.
func hasControlFrom(from, to Node) bool {
	for _, e := range from.OutEdges() {
		if e.To == to && e.Label == LabelControl {
			return true
		}
	}
	return false
}

func inEdgesLabelled(n Node, label EdgeLabel) []*Edge {
	var out []*Edge
	for _, e := range n.InEdges() {
		if e.Label == label {
			out = append(out, e)
		}
	}
	return out
}
