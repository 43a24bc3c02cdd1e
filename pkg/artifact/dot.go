// Package artifact reads and writes pattern directories: one DOT file per
// sample graph, an optional fix graph and a labels.json sidecar holding the
// generalization of the representative's variables.
package artifact

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	dotfmt "gonum.org/v1/gonum/graph/formats/dot"
	"gonum.org/v1/gonum/graph/formats/dot/ast"
	"gonum.org/v1/gonum/graph/multi"

	"github.com/l3aro/go-pattern-miner/pkg/pattern"
)

const metaPrefix = "meta_"

var (
	partColors = map[pattern.Part]string{
		pattern.PartBefore: "red2",
		pattern.PartAfter:  "green4",
	}
	kindShapes = map[pattern.Kind]string{
		pattern.KindOperation: "box",
		pattern.KindControl:   "diamond",
		pattern.KindEntry:     "doubleoctagon",
	}
)

// dotVertex adapts a pattern vertex to gonum's DOT encoder.
type dotVertex struct {
	v *pattern.Vertex
}

func (n dotVertex) ID() int64 { return int64(n.v.ID) }
func (n dotVertex) DOTID() string { return strconv.Itoa(n.v.ID) }

func (n dotVertex) Attributes() []encoding.Attribute {
	shape, ok := kindShapes[n.v.Kind]
	if !ok {
		shape = "ellipse"
	}
	attrs := []encoding.Attribute{
		quoted("label", n.v.String()),
		quoted("original_label", n.v.OriginalLabel),
		quoted("kind", string(n.v.Kind)),
		quoted("color", partColors[n.v.Part]),
		quoted("shape", shape),
	}
	keys := make([]string, 0, len(n.v.Metadata))
	for k := range n.v.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, quoted(metaPrefix+k, n.v.Metadata[k]))
	}
	return attrs
}

// dotLine is one sub-edge of a bundle.
type dotLine struct {
	from, to dotVertex
	uid      int64
	sub      pattern.SubEdge
}

func (l dotLine) From() graph.Node { return l.from }
func (l dotLine) To() graph.Node { return l.to }
func (l dotLine) ID() int64 { return l.uid }

func (l dotLine) ReversedLine() graph.Line {
	l.from, l.to = l.to, l.from
	return l
}

func (l dotLine) Attributes() []encoding.Attribute {
	attrs := []encoding.Attribute{
		quoted("xlabel", l.sub.Label),
		quoted("from_closure", strconv.FormatBool(l.sub.FromClosure)),
	}
	if l.sub.Label == "control" || l.sub.BranchKind {
		attrs = append(attrs, quoted("branch_kind", strconv.FormatBool(l.sub.BranchKind)))
	}
	if l.sub.FromClosure {
		attrs = append(attrs, quoted("style", "dotted"))
	}
	return attrs
}

// quoted pre-quotes values so that the encoder writes them verbatim and
// the decoder can reverse them with a single strconv.Unquote.
func quoted(key, value string) encoding.Attribute {
	return encoding.Attribute{Key: key, Value: strconv.Quote(value)}
}

// MarshalGraph encodes g as a DOT digraph.
func MarshalGraph(g *pattern.Graph) ([]byte, error) {
	mg := multi.NewDirectedGraph()
	nodes := make(map[int]dotVertex, g.Len())
	for _, v := range g.Vertices() {
		n := dotVertex{v: v}
		nodes[v.ID] = n
		mg.AddNode(n)
	}
	var uid int64
	for _, e := range g.Edges() {
		for _, sub := range e.Edges {
			mg.SetLine(dotLine{from: nodes[e.From], to: nodes[e.To], uid: uid, sub: sub})
			uid++
		}
	}
	b, err := dot.MarshalMulti(mg, strconv.Quote(g.Name()), "", "\t")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", g.Name(), err)
	}
	return append(b, '\n'), nil
}

// UnmarshalGraph decodes a DOT digraph written by MarshalGraph.
func UnmarshalGraph(data []byte) (*pattern.Graph, error) {
	file, err := dotfmt.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing dot: %w", err)
	}
	if len(file.Graphs) != 1 {
		return nil, fmt.Errorf("expected one graph, got %d", len(file.Graphs))
	}
	src := file.Graphs[0]
	if !src.Directed {
		return nil, fmt.Errorf("graph %s is not directed", src.ID)
	}
	name, err := unquote(src.ID)
	if err != nil {
		return nil, fmt.Errorf("graph name: %w", err)
	}

	var (
		vertices []pattern.Vertex
		edges    []pattern.MultipleEdge
	)
	for _, stmt := range src.Stmts {
		switch s := stmt.(type) {
		case *ast.NodeStmt:
			v, err := decodeVertex(s)
			if err != nil {
				return nil, err
			}
			vertices = append(vertices, v)
		case *ast.EdgeStmt:
			e, err := decodeEdge(s)
			if err != nil {
				return nil, err
			}
			edges = append(edges, e)
		default:
			return nil, fmt.Errorf("unexpected statement %v", stmt)
		}
	}
	return pattern.NewGraph(name, vertices, edges)
}

func decodeVertex(s *ast.NodeStmt) (pattern.Vertex, error) {
	id, err := strconv.Atoi(s.Node.ID)
	if err != nil {
		return pattern.Vertex{}, fmt.Errorf("node id %q: %w", s.Node.ID, err)
	}
	attrs, err := attributes(s.Attrs)
	if err != nil {
		return pattern.Vertex{}, fmt.Errorf("node %d: %w", id, err)
	}

	v := pattern.Vertex{
		ID:            id,
		OriginalLabel: attrs["original_label"],
		Kind:          pattern.Kind(attrs["kind"]),
		Part:          pattern.PartBefore,
	}
	v.Label = strings.TrimSuffix(attrs["label"], " ("+v.OriginalLabel+")")
	for part, color := range partColors {
		if attrs["color"] == color {
			v.Part = part
		}
	}
	for k, val := range attrs {
		if !strings.HasPrefix(k, metaPrefix) {
			continue
		}
		if v.Metadata == nil {
			v.Metadata = make(map[string]string)
		}
		v.Metadata[strings.TrimPrefix(k, metaPrefix)] = val
	}
	return v, nil
}

func decodeEdge(s *ast.EdgeStmt) (pattern.MultipleEdge, error) {
	from, ok := s.From.(*ast.Node)
	if !ok || s.To == nil || s.To.To != nil {
		return pattern.MultipleEdge{}, fmt.Errorf("unsupported edge %v", s)
	}
	to, ok := s.To.Vertex.(*ast.Node)
	if !ok {
		return pattern.MultipleEdge{}, fmt.Errorf("unsupported edge %v", s)
	}
	f, err := strconv.Atoi(from.ID)
	if err != nil {
		return pattern.MultipleEdge{}, fmt.Errorf("edge source %q: %w", from.ID, err)
	}
	t, err := strconv.Atoi(to.ID)
	if err != nil {
		return pattern.MultipleEdge{}, fmt.Errorf("edge target %q: %w", to.ID, err)
	}
	attrs, err := attributes(s.Attrs)
	if err != nil {
		return pattern.MultipleEdge{}, fmt.Errorf("edge %d -> %d: %w", f, t, err)
	}

	sub := pattern.SubEdge{Label: attrs["xlabel"]}
	if sub.FromClosure, err = boolAttr(attrs, "from_closure"); err != nil {
		return pattern.MultipleEdge{}, fmt.Errorf("edge %d -> %d: %w", f, t, err)
	}
	if sub.BranchKind, err = boolAttr(attrs, "branch_kind"); err != nil {
		return pattern.MultipleEdge{}, fmt.Errorf("edge %d -> %d: %w", f, t, err)
	}
	return pattern.MultipleEdge{From: f, To: t, Edges: []pattern.SubEdge{sub}}, nil
}

func attributes(list []*ast.Attr) (map[string]string, error) {
	out := make(map[string]string, len(list))
	for _, a := range list {
		val, err := unquote(a.Val)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Key, err)
		}
		out[a.Key] = val
	}
	return out, nil
}

func boolAttr(attrs map[string]string, key string) (bool, error) {
	s, ok := attrs[key]
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("attribute %s: %w", key, err)
	}
	return b, nil
}

func unquote(s string) (string, error) {
	if strings.HasPrefix(s, `"`) {
		return strconv.Unquote(s)
	}
	return s, nil
}
