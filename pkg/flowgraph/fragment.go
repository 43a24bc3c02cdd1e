package flowgraph

import "sort"

type nodeSet map[int]Node

func newNodeSet(nodes ...Node) nodeSet {
	s := make(nodeSet, len(nodes))
	for _, n := range nodes {
		s[n.ID()] = n
	}
	return s
}

func (s nodeSet) with(other nodeSet) nodeSet {
	out := make(nodeSet, len(s)+len(other))
	for id, n := range s {
		out[id] = n
	}
	for id, n := range other {
		out[id] = n
	}
	return out
}

func (s nodeSet) sorted() []Node {
	out := make([]Node, 0, len(s))
	for _, n := range s {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// fragment is the result of visiting one syntax subtree. Fragments are never
// modified after they are returned; merges build new ones.
type fragment struct {
	nodes            nodeSet
	sinks            nodeSet
	statementSinks   nodeSet
	statementSources nodeSet
	refs             []*DataNode
	// exits is set when every path through the fragment leaves the function.
	exits bool
}

func emptyFragment() *fragment {
	return &fragment{
		nodes:            nodeSet{},
		sinks:            nodeSet{},
		statementSinks:   nodeSet{},
		statementSources: nodeSet{},
	}
}

// single wraps one freshly created node.
func single(n Node) *fragment {
	f := emptyFragment()
	f.nodes = newNodeSet(n)
	f.sinks = newNodeSet(n)
	if n.IsStatement() {
		f.statementSinks = newNodeSet(n)
		f.statementSources = newNodeSet(n)
	}
	return f
}

func (f *fragment) hasStatements() bool {
	return len(f.statementSources) > 0 || len(f.statementSinks) > 0
}

// withoutRefs is used when operands already merged elsewhere feed a second
// consumer, so their unresolved references are reported once.
func (f *fragment) withoutRefs() *fragment {
	out := *f
	out.refs = nil
	return &out
}

func (f *fragment) withRefs(refs ...*DataNode) *fragment {
	out := *f
	out.refs = append(append([]*DataNode(nil), f.refs...), refs...)
	return &out
}

// terminated drops the frontier after return, raise, break or continue.
func (f *fragment) terminated() *fragment {
	out := *f
	out.sinks = nodeSet{}
	out.statementSinks = nodeSet{}
	return &out
}

// exiting marks a terminated fragment that also leaves the function.
func (f *fragment) exiting() *fragment {
	out := f.terminated()
	out.exits = true
	return out
}

// withoutStatementSinks is used after loops and try blocks, whose bodies may
// run any number of times.
func (f *fragment) withoutStatementSinks() *fragment {
	out := *f
	out.statementSinks = nodeSet{}
	return &out
}

// sequentialMerge chains g after f. When link is set every sink of f feeds it
// through an edge labelled label.
func (f *fragment) sequentialMerge(g *fragment, link Node, label EdgeLabel) *fragment {
	out := &fragment{
		nodes: f.nodes.with(g.nodes),
		refs:  append(append([]*DataNode(nil), f.refs...), g.refs...),
		sinks: g.sinks.with(nil),
		exits: f.exits || g.exits,
	}
	if link != nil {
		for _, s := range f.sinks.sorted() {
			addEdge(s, link, label, true, false)
		}
	}
	for _, s := range f.statementSinks.sorted() {
		for _, t := range g.statementSources.sorted() {
			addEdge(s, t, LabelDependence, false, false)
		}
	}
	if g.hasStatements() {
		out.statementSinks = g.statementSinks.with(nil)
	} else {
		out.statementSinks = f.statementSinks.with(nil)
	}
	if len(f.statementSources) > 0 {
		out.statementSources = f.statementSources.with(nil)
	} else {
		out.statementSources = g.statementSources.with(nil)
	}
	return out
}

// parallelMerge unions independently evaluated fragments after f. With an
// operation label the sinks of f also feed the operation nodes already present
// among each fragment's sinks.
func (f *fragment) parallelMerge(gs []*fragment, opLabel EdgeLabel) *fragment {
	if len(gs) == 0 {
		return f
	}
	out := &fragment{
		nodes:          f.nodes.with(nil),
		refs:           append([]*DataNode(nil), f.refs...),
		sinks:          nodeSet{},
		statementSinks: nodeSet{},
		exits:          true,
	}
	sources := nodeSet{}
	for _, g := range gs {
		out.exits = out.exits && g.exits
		out.nodes = out.nodes.with(g.nodes)
		out.refs = append(out.refs, g.refs...)
		if opLabel != "" {
			for _, op := range g.sinks.sorted() {
				if _, ok := op.(*OperationNode); !ok {
					continue
				}
				for _, s := range f.sinks.sorted() {
					addEdge(s, op, opLabel, true, false)
				}
			}
		}
		for _, s := range f.statementSinks.sorted() {
			for _, t := range g.statementSources.sorted() {
				addEdge(s, t, LabelDependence, false, false)
			}
		}
		out.sinks = out.sinks.with(g.sinks)
		if g.hasStatements() {
			out.statementSinks = out.statementSinks.with(g.statementSinks)
		} else {
			out.statementSinks = out.statementSinks.with(f.statementSinks)
		}
		sources = sources.with(g.statementSources)
	}
	if len(f.statementSources) > 0 {
		out.statementSources = f.statementSources.with(nil)
	} else {
		out.statementSources = sources
	}
	out.exits = out.exits || f.exits
	return out
}
