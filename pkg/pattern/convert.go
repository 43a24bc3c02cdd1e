package pattern

import (
	"fmt"
	"strconv"

	"github.com/l3aro/go-pattern-miner/pkg/flowgraph"
)

type convertConfig struct {
	dropEntry bool
	part      Part
}

// ConvertOption configures FromFlowGraph.
type ConvertOption func(*convertConfig)

// DropEntry leaves the entry node, and the edges leaving it, out of the graph.
func DropEntry() ConvertOption {
	return func(c *convertConfig) { c.dropEntry = true }
}

// AsPart assigns every vertex to the given part. The default is PartBefore.
func AsPart(p Part) ConvertOption {
	return func(c *convertConfig) { c.part = p }
}

// FromFlowGraph converts a built flow graph into a pattern graph with one
// vertex per node and one bundle per connected pair.
func FromFlowGraph(fg *flowgraph.FlowGraph, opts ...ConvertOption) (*Graph, error) {
	cfg := convertConfig{part: PartBefore}
	for _, opt := range opts {
		opt(&cfg)
	}

	var vertices []Vertex
	keep := make(map[int]bool)
	for _, n := range fg.Nodes() {
		if _, entry := n.(*flowgraph.EntryNode); entry && cfg.dropEntry {
			continue
		}
		v := vertexOf(n)
		v.Part = cfg.part
		vertices = append(vertices, v)
		keep[n.ID()] = true
	}

	bundles := make(map[pair]*MultipleEdge)
	var order []pair
	for _, e := range fg.Edges() {
		from, to := e.From.ID(), e.To.ID()
		if !keep[from] || !keep[to] {
			continue
		}
		key := pair{from, to}
		b, ok := bundles[key]
		if !ok {
			b = &MultipleEdge{From: from, To: to}
			bundles[key] = b
			order = append(order, key)
		}
		b.Edges = append(b.Edges, SubEdge{
			Label:       string(e.Label),
			FromClosure: e.FromClosure,
			BranchKind:  e.BranchKind,
		})
	}
	edges := make([]MultipleEdge, 0, len(order))
	for _, key := range order {
		edges = append(edges, *bundles[key])
	}

	g, err := NewGraph(fg.Name, vertices, edges)
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", fg.Name, err)
	}
	return g, nil
}

func vertexOf(n flowgraph.Node) Vertex {
	v := Vertex{ID: n.ID(), OriginalLabel: n.Label()}
	if ast := n.Syntax(); ast != nil {
		v.Metadata = map[string]string{
			"line":   strconv.Itoa(ast.Line()),
			"syntax": ast.Type(),
		}
	}
	switch n := n.(type) {
	case *flowgraph.DataNode:
		v.Kind = Kind(n.Kind)
		switch n.Kind {
		case flowgraph.DataDecl, flowgraph.DataUsage:
			v.Label = LabelVariable
		case flowgraph.DataLiteral:
			v.Label = LabelLiteral
		case flowgraph.DataSubscript:
			v.Label = LabelSubscript
		default:
			v.Label = n.Label()
		}
	case *flowgraph.OperationNode:
		v.Kind = KindOperation
		v.Label = n.Label()
	case *flowgraph.ControlNode:
		v.Kind = KindControl
		v.Label = string(n.Kind)
	case *flowgraph.EntryNode:
		v.Kind = KindEntry
		v.Label = LabelEntry
	default:
		v.Kind = KindOperation
		v.Label = n.Label()
	}
	return v
}
