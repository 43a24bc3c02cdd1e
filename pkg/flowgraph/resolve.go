package flowgraph

// ResolveDependences turns provisional dependence edges into control edges.
//
// A statement whose predecessors all sit under the same branch of a control
// node deeper than its own governor is re-parented to that branch. This is
// what places the code after an early return under the implicit else. Empty
// placeholders and all dependence edges are removed afterwards.
func ResolveDependences(g *FlowGraph) {
	r := &resolver{graph: g, effective: make(map[Node]BranchStack)}
	for _, n := range g.Nodes() {
		r.resolve(n)
	}

	for _, n := range g.Nodes() {
		if e, ok := n.(*EmptyNode); ok {
			spliceOut(g, e)
		}
	}
	for _, n := range g.Nodes() {
		for _, e := range append([]*Edge(nil), n.OutEdges()...) {
			if e.Label == LabelDependence {
				removeEdge(e)
			}
		}
	}

	g.Sinks = alive(g, g.Sinks)
	g.StatementSinks = alive(g, g.StatementSinks)
	g.StatementSources = alive(g, g.StatementSources)
}

type resolver struct {
	graph     *FlowGraph
	effective map[Node]BranchStack
}

// resolve returns the effective branch stack of n, re-parenting n first when
// its dependence predecessors agree on a deeper branch.
func (r *resolver) resolve(n Node) BranchStack {
	if s, ok := r.effective[n]; ok {
		return s
	}
	own := n.BranchStack()
	r.effective[n] = own

	preds := inEdgesLabelled(n, LabelDependence)
	if len(preds) == 0 {
		return own
	}
	stacks := make([]BranchStack, 0, len(preds))
	for _, e := range preds {
		stacks = append(stacks, r.resolve(e.From))
	}

	frame, depth, ok := deepestCommonFrame(stacks)
	if !ok || frame.ID() <= own.Innermost().ID() {
		return own
	}

	for _, e := range inEdgesLabelled(n, LabelControl) {
		removeEdge(e)
	}
	var governor Node = r.graph.Entry()
	if frame.Control != nil {
		governor = frame.Control
	}
	addEdge(governor, n, LabelControl, frame.Kind, false)

	eff := stacks[0][:depth+1].clone()
	r.effective[n] = eff
	return eff
}

// deepestCommonFrame finds the innermost frame present, with the same branch
// kind, in every stack.
func deepestCommonFrame(stacks []BranchStack) (BranchFrame, int, bool) {
	first := stacks[0]
	for i := len(first) - 1; i >= 0; i-- {
		frame := first[i]
		shared := true
		for _, s := range stacks[1:] {
			if s.index(frame) < 0 {
				shared = false
				break
			}
		}
		if shared {
			return frame, i, true
		}
	}
	return BranchFrame{}, 0, false
}

// spliceOut removes an empty node, reconnecting predecessors to successors
// through edges of the same label.
func spliceOut(g *FlowGraph, e *EmptyNode) {
	for _, in := range e.InEdges() {
		for _, out := range e.OutEdges() {
			if in.Label != out.Label || in.From == out.To {
				continue
			}
			addEdge(in.From, out.To, in.Label, out.BranchKind, in.FromClosure || out.FromClosure)
		}
	}
	g.removeNode(e)
}

func alive(g *FlowGraph, nodes []Node) []Node {
	var out []Node
	for _, n := range nodes {
		if g.Node(n.ID()) == n {
			out = append(out, n)
		}
	}
	return out
}
