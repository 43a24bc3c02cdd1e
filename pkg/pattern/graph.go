package pattern

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ErrNotDAG is returned when a graph's edges contain a cycle.
var ErrNotDAG = errors.New("pattern graph is not acyclic")

type pair struct{ from, to int }

// Graph is an immutable directed acyclic graph with at most one bundled edge
// per ordered vertex pair. Vertices and edges returned by its accessors must
// not be modified.
type Graph struct {
	name     string
	vertices []*Vertex
	byID     map[int]*Vertex
	edges    map[pair]*MultipleEdge
	succ     map[int][]int
	pred     map[int][]int
}

// Document is the plain serialisable form of a Graph.
type Document struct {
	Name     string         `json:"name" msgpack:"name"`
	Vertices []Vertex       `json:"vertices" msgpack:"vertices"`
	Edges    []MultipleEdge `json:"edges" msgpack:"edges"`
}

// NewGraph validates and freezes the given vertices and edges. Bundles given
// twice for the same pair are merged.
func NewGraph(name string, vertices []Vertex, edges []MultipleEdge) (*Graph, error) {
	g := &Graph{
		name:  name,
		byID:  make(map[int]*Vertex, len(vertices)),
		edges: make(map[pair]*MultipleEdge, len(edges)),
		succ:  make(map[int][]int),
		pred:  make(map[int][]int),
	}
	for _, v := range vertices {
		if _, dup := g.byID[v.ID]; dup {
			return nil, fmt.Errorf("graph %s: duplicate vertex %d", name, v.ID)
		}
		c := v.clone()
		g.byID[v.ID] = c
		g.vertices = append(g.vertices, c)
	}
	sort.Slice(g.vertices, func(i, j int) bool { return g.vertices[i].ID < g.vertices[j].ID })

	for _, e := range edges {
		if g.byID[e.From] == nil || g.byID[e.To] == nil {
			return nil, fmt.Errorf("graph %s: edge %d->%d references a missing vertex", name, e.From, e.To)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("%w: %s has a self loop on %d", ErrNotDAG, name, e.From)
		}
		if len(e.Edges) == 0 {
			continue
		}
		key := pair{e.From, e.To}
		if prev, ok := g.edges[key]; ok {
			e.Edges = append(append([]SubEdge(nil), prev.Edges...), e.Edges...)
		} else {
			g.succ[e.From] = append(g.succ[e.From], e.To)
			g.pred[e.To] = append(g.pred[e.To], e.From)
		}
		g.edges[key] = e.normalize()
	}
	for _, ids := range g.succ {
		sort.Ints(ids)
	}
	for _, ids := range g.pred {
		sort.Ints(ids)
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// FromDocument rebuilds a graph from its serialised form.
func FromDocument(d Document) (*Graph, error) {
	return NewGraph(d.Name, d.Vertices, d.Edges)
}

func (g *Graph) checkAcyclic() error {
	dg := simple.NewDirectedGraph()
	for _, v := range g.vertices {
		dg.AddNode(simple.Node(v.ID))
	}
	for p := range g.edges {
		dg.SetEdge(simple.Edge{F: simple.Node(p.from), T: simple.Node(p.to)})
	}
	if _, err := topo.Sort(dg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotDAG, g.name, err)
	}
	return nil
}

// Name returns the graph name, usually the function it was built from.
func (g *Graph) Name() string { return g.name }

// Len returns the number of vertices.
func (g *Graph) Len() int { return len(g.vertices) }

// EdgeCount returns the number of bundled edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Vertices returns the vertices ordered by id.
func (g *Graph) Vertices() []*Vertex {
	return append([]*Vertex(nil), g.vertices...)
}

// Vertex returns the vertex with the given id, or nil.
func (g *Graph) Vertex(id int) *Vertex { return g.byID[id] }

// Edge returns the bundle from -> to, or nil.
func (g *Graph) Edge(from, to int) *MultipleEdge { return g.edges[pair{from, to}] }

// Edges returns all bundles ordered by source then target.
func (g *Graph) Edges() []*MultipleEdge {
	out := make([]*MultipleEdge, 0, len(g.edges))
	for _, v := range g.vertices {
		for _, to := range g.succ[v.ID] {
			out = append(out, g.edges[pair{v.ID, to}])
		}
	}
	return out
}

// Successors returns the ids of the direct successors of id in ascending order.
func (g *Graph) Successors(id int) []int { return g.succ[id] }

// Predecessors returns the ids of the direct predecessors of id in ascending order.
func (g *Graph) Predecessors(id int) []int { return g.pred[id] }

// Document returns a deep copy of the graph in serialisable form.
func (g *Graph) Document() Document {
	d := Document{Name: g.name}
	for _, v := range g.vertices {
		d.Vertices = append(d.Vertices, *v.clone())
	}
	for _, e := range g.Edges() {
		d.Edges = append(d.Edges, MultipleEdge{From: e.From, To: e.To, Edges: append([]SubEdge(nil), e.Edges...)})
	}
	return d
}

// WithLabels returns a copy of g where the given variable vertices carry a
// labels group. Ids that are not variables are rejected.
func (g *Graph) WithLabels(groups map[int]LabelsGroup) (*Graph, error) {
	d := g.Document()
	for i := range d.Vertices {
		v := &d.Vertices[i]
		lg, ok := groups[v.ID]
		if !ok {
			continue
		}
		if !v.IsVariable() {
			return nil, fmt.Errorf("graph %s: vertex %d (%s) is not a variable", g.name, v.ID, v.Label)
		}
		lg = lg.clone()
		v.Labels = &lg
	}
	for id := range groups {
		if g.byID[id] == nil {
			return nil, fmt.Errorf("graph %s: no vertex %d", g.name, id)
		}
	}
	return FromDocument(d)
}

// WithPart returns a copy of g with every vertex assigned to part p.
func (g *Graph) WithPart(p Part) *Graph {
	d := g.Document()
	for i := range d.Vertices {
		d.Vertices[i].Part = p
	}
	out, err := FromDocument(d)
	if err != nil {
		// The document comes from a valid graph.
		panic(err)
	}
	return out
}

// LabelGroups returns the labels groups of the variable vertices that have one.
func (g *Graph) LabelGroups() map[int]LabelsGroup {
	out := make(map[int]LabelsGroup)
	for _, v := range g.vertices {
		if v.Labels != nil {
			out[v.ID] = v.Labels.clone()
		}
	}
	return out
}
