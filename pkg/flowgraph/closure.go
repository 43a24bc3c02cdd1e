package flowgraph

// BuildClosure adds derived edges so that pattern matching can skip over
// intermediate variables and control nodes. It returns the number of edges
// added; running it again on the same graph adds none.
func BuildClosure(g *FlowGraph) int {
	return dataClosure(g) + controlClosure(g) + controlDataClosure(g)
}

// dataClosure connects the definitions behind a data operand, and the values
// those definitions were assigned from, directly to the consumer.
func dataClosure(g *FlowGraph) int {
	memo := make(map[*DataNode][]Node)
	added := 0
	for _, n := range g.Nodes() {
		if len(inEdgesLabelled(n, LabelDefinition)) > 0 {
			continue
		}
		for _, e := range append([]*Edge(nil), n.InEdges()...) {
			u, ok := e.From.(*DataNode)
			if !ok || e.Label == LabelControl || e.Label == LabelDependence {
				continue
			}
			for _, src := range reachingValues(u, memo, map[*DataNode]bool{}) {
				if src.ID() >= n.ID() {
					continue
				}
				if addEdge(src, n, e.Label, e.BranchKind, true) {
					added++
				}
			}
		}
	}
	return added
}

// reachingValues lists the declarations reaching u and, transitively, the
// nodes assigned to those declarations.
func reachingValues(u *DataNode, memo map[*DataNode][]Node, visiting map[*DataNode]bool) []Node {
	if v, ok := memo[u]; ok {
		return v
	}
	if visiting[u] {
		return nil
	}
	visiting[u] = true

	seen := make(map[Node]bool)
	var out []Node
	push := func(n Node) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, ref := range inEdgesLabelled(u, LabelReference) {
		decl, ok := ref.From.(*DataNode)
		if !ok {
			continue
		}
		push(decl)
		for _, def := range inEdgesLabelled(decl, LabelDefinition) {
			push(def.From)
			if du, ok := def.From.(*DataNode); ok {
				for _, n := range reachingValues(du, memo, visiting) {
					push(n)
				}
			}
		}
	}
	memo[u] = out
	return out
}

type controlSource struct {
	node Node
	kind bool
}

// controlClosure gives every control node a direct edge from each construct
// that governs one of its governors.
func controlClosure(g *FlowGraph) int {
	memo := make(map[*ControlNode][]controlSource)
	var ancestors func(c *ControlNode) []controlSource
	ancestors = func(c *ControlNode) []controlSource {
		if v, ok := memo[c]; ok {
			return v
		}
		memo[c] = nil
		var out []controlSource
		for _, e := range inEdgesLabelled(c, LabelControl) {
			out = append(out, controlSource{e.From, e.BranchKind})
			if parent, ok := e.From.(*ControlNode); ok {
				out = append(out, ancestors(parent)...)
			}
		}
		memo[c] = out
		return out
	}

	var controls []*ControlNode
	for _, n := range g.Nodes() {
		if c, ok := n.(*ControlNode); ok {
			controls = append(controls, c)
			ancestors(c)
		}
	}

	added := 0
	for _, c := range controls {
		for _, src := range memo[c] {
			if src.node == Node(c) || hasControlFrom(src.node, c) {
				continue
			}
			if addEdge(src.node, c, LabelControl, src.kind, true) {
				added++
			}
		}
	}
	return added
}

// controlDataClosure links the operations feeding a governing condition, and
// the governors of that condition, straight to the governed statement.
func controlDataClosure(g *FlowGraph) int {
	added := 0
	for _, s := range g.Nodes() {
		if !s.IsStatement() {
			continue
		}
		added += closeStatement(s)
	}
	return added
}

type queuedControl struct {
	control *ControlNode
	kind    bool
}

func closeStatement(s Node) int {
	var queue []queuedControl
	queued := make(map[*ControlNode]bool)
	for _, e := range inEdgesLabelled(s, LabelControl) {
		if c, ok := e.From.(*ControlNode); ok && !queued[c] {
			queued[c] = true
			queue = append(queue, queuedControl{c, e.BranchKind})
		}
	}

	added := 0
	found := make(map[Node]bool)
	candidate := func(a Node, kind bool) {
		if a == s || a.ID() >= s.ID() || found[a] {
			return
		}
		found[a] = true
		if !hasControlFrom(a, s) && addEdge(a, s, LabelControl, kind, true) {
			added++
		}
		if c, ok := a.(*ControlNode); ok && !queued[c] {
			queued[c] = true
			queue = append(queue, queuedControl{c, kind})
		}
	}

	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]

		visited := make(map[Node]bool)
		var walk func(n Node)
		walk = func(n Node) {
			if visited[n] {
				return
			}
			visited[n] = true
			for _, e := range n.InEdges() {
				switch e.Label {
				case LabelCondition, LabelParameter, LabelReceiver, LabelQualifier:
				default:
					continue
				}
				if _, ok := e.From.(*OperationNode); ok {
					candidate(e.From, q.kind)
				}
				walk(e.From)
			}
		}
		walk(q.control)

		for _, e := range inEdgesLabelled(q.control, LabelControl) {
			parent, ok := e.From.(*ControlNode)
			if !ok {
				continue
			}
			kind, known := s.BranchStack().Lookup(parent)
			if !known {
				kind, known = q.control.BranchStack().Lookup(parent)
			}
			if !known {
				kind = e.BranchKind
			}
			candidate(parent, kind)
		}
	}
	return added
}
