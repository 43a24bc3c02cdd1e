package flowgraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

func TestBuildEarlyReturnScenario(t *testing.T) {
	g := buildSource(t, "def f(a,b):\n if a>b:\n  return a\n return b\n")

	var ifs []*ControlNode
	for _, n := range g.Nodes() {
		if c, ok := n.(*ControlNode); ok {
			ifs = append(ifs, c)
		}
	}
	require.Len(t, ifs, 1)
	ctrl := ifs[0]
	assert.Equal(t, ControlIf, ctrl.Kind)

	returns := nodesLabelled(g, "return")
	require.Len(t, returns, 2)

	var controls []*Edge
	for _, e := range ctrl.OutEdges() {
		if e.Label == LabelControl {
			controls = append(controls, e)
		}
	}
	require.Len(t, controls, 2)
	assert.Equal(t, returns[0], controls[0].To)
	assert.True(t, controls[0].BranchKind)
	assert.Equal(t, returns[1], controls[1].To)
	assert.False(t, controls[1].BranchKind)

	for _, name := range []string{"a", "b"} {
		decls := dataNodes(g, name, DataDecl)
		require.Len(t, decls, 1, name)
		usages := dataNodes(g, name, DataUsage)
		require.Len(t, usages, 2, name)
		for _, u := range usages {
			assert.True(t, hasEdge(decls[0], u, LabelReference), "%s decl -> usage %d", name, u.ID())
		}
	}

	gt := nodesLabelled(g, ">")
	require.Len(t, gt, 1)
	assert.True(t, hasEdge(gt[0], ctrl, LabelCondition))
	assert.True(t, hasEdge(dataNodes(g, "a", DataUsage)[1], returns[0], LabelParameter))
	assert.True(t, hasEdge(dataNodes(g, "b", DataUsage)[1], returns[1], LabelParameter))
}

func TestBuildIsDeterministic(t *testing.T) {
	for name, src := range corpus {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, describe(buildSource(t, src)), describe(buildSource(t, src)))
		})
	}
}

func TestResolutionConverges(t *testing.T) {
	for name, src := range corpus {
		t.Run(name, func(t *testing.T) {
			g := buildSource(t, src)
			assert.Empty(t, g.EdgesLabelled(LabelDependence))
			for _, n := range g.Nodes() {
				_, empty := n.(*EmptyNode)
				assert.False(t, empty, "empty node %d left", n.ID())
			}
			assert.NoError(t, g.Validate())
			assert.Empty(t, g.Diagnostics)
		})
	}
}

func TestRawGraphKeepsScaffolding(t *testing.T) {
	g := buildSource(t, "def f(a):\n    if a:\n        a = 1\n    return a\n", WithoutResolution())

	var empties int
	for _, n := range g.Nodes() {
		if _, ok := n.(*EmptyNode); ok {
			empties++
		}
	}
	assert.Equal(t, 1, empties)
	assert.NotEmpty(t, g.EdgesLabelled(LabelDependence))
	assert.NoError(t, g.Validate())
}

func TestEntryGovernsTopLevelStatements(t *testing.T) {
	g := buildSource(t, "def f(a):\n    b = a\n    return b\n")

	entry := g.Entry()
	require.NotNil(t, entry)
	assert.Equal(t, 0, entry.ID())
	assert.Equal(t, "f", entry.Label())
	assert.Empty(t, entry.InEdges())

	for _, n := range g.Nodes() {
		if !n.IsStatement() {
			continue
		}
		assert.True(t, hasEdge(entry, n, LabelControl), "node %d %s", n.ID(), n.Label())
	}
}

func TestStatementNumbersIncreaseAlongEdges(t *testing.T) {
	for name, src := range corpus {
		t.Run(name, func(t *testing.T) {
			g := buildSource(t, src)
			for _, e := range g.Edges() {
				assert.Less(t, e.From.ID(), e.To.ID(), "%s %d->%d", e.Label, e.From.ID(), e.To.ID())
			}
		})
	}
}

func TestDestructuringPairsLeaves(t *testing.T) {
	g := buildSource(t, `def f(x0, y0):
    x, y = y0, x0
    first, *rest = 1, 2, 3
`)

	x := dataNodes(g, "x", DataDecl)[0]
	y := dataNodes(g, "y", DataDecl)[0]
	y0 := dataNodes(g, "y0", DataUsage)[0]
	x0 := dataNodes(g, "x0", DataUsage)[0]
	assert.True(t, hasEdge(y0, x, LabelDefinition))
	assert.True(t, hasEdge(x0, y, LabelDefinition))
	assert.False(t, hasEdge(x0, x, LabelDefinition))

	first := dataNodes(g, "first", DataDecl)[0]
	one := nodesLabelled(g, "1")[0]
	assert.True(t, hasEdge(one, first, LabelDefinition))

	rest := dataNodes(g, "rest", DataDecl)[0]
	defs := inEdgesLabelled(rest, LabelDefinition)
	require.Len(t, defs, 1)
	coll, ok := defs[0].From.(*OperationNode)
	require.True(t, ok)
	assert.Equal(t, OpCollection, coll.Kind)
	assert.Equal(t, "list", coll.Label())
	assert.Len(t, inEdgesLabelled(coll, LabelParameter), 2)
}

func TestDestructuringFromSingleValue(t *testing.T) {
	g := buildSource(t, "def f(p):\n    (m, n), k = p\n")

	p := dataNodes(g, "p", DataUsage)[0]
	for _, name := range []string{"m", "n", "k"} {
		decl := dataNodes(g, name, DataDecl)[0]
		assert.True(t, hasEdge(p, decl, LabelDefinition), name)
	}
}

func TestAugmentedAssignment(t *testing.T) {
	g := buildSource(t, "def f():\n    x = 1\n    x += 2\n    return x\n")

	decls := dataNodes(g, "x", DataDecl)
	require.Len(t, decls, 2)
	plus := nodesLabelled(g, "+")
	require.Len(t, plus, 1)
	assert.True(t, hasEdge(plus[0], decls[1], LabelDefinition))

	usages := dataNodes(g, "x", DataUsage)
	require.Len(t, usages, 2)
	assert.True(t, hasEdge(decls[0], usages[0], LabelReference))
	assert.True(t, hasEdge(decls[1], usages[1], LabelReference))
	assert.False(t, hasEdge(decls[0], usages[1], LabelReference))
}

func TestAugmentedSubscriptEvaluatesTargetOnce(t *testing.T) {
	g := buildSource(t, "def f(a):\n    a[0] += 1\n    return a\n")

	require.Len(t, dataNodes(g, "a", DataUsage), 2)
	zeros := dataNodes(g, "0", DataLiteral)
	require.Len(t, zeros, 1)
	subs := dataNodes(g, "a[0]", DataSubscript)
	require.Len(t, subs, 2)
	read, write := subs[0], subs[1]
	assert.False(t, read.IsStatement())
	assert.True(t, write.IsStatement())

	obj := dataNodes(g, "a", DataUsage)[0]
	for _, sub := range subs {
		assert.True(t, hasEdge(obj, sub, LabelQualifier), "object -> %d", sub.ID())
		assert.True(t, hasEdge(zeros[0], sub, LabelParameter), "index -> %d", sub.ID())
	}
	plus := nodesLabelled(g, "+")
	require.Len(t, plus, 1)
	assert.True(t, hasEdge(read, plus[0], LabelParameter))
	assert.True(t, hasEdge(plus[0], write, LabelDefinition))
}

func TestAugmentedAttributeEvaluatesObjectOnce(t *testing.T) {
	g := buildSource(t, "def f(self):\n    self.count += 1\n")

	require.Len(t, dataNodes(g, "self", DataUsage), 1)
	require.Len(t, dataNodes(g, "self.count", DataUsage), 1)
	require.Len(t, dataNodes(g, "self.count", DataDecl), 1)
	require.Len(t, g.VariableReferences, 1)
	assert.Equal(t, "self.count", g.VariableReferences[0].Label())
}

func TestChainedAssignment(t *testing.T) {
	g := buildSource(t, "def f(p):\n    a = b = p\n")
	p := dataNodes(g, "p", DataUsage)[0]
	assert.True(t, hasEdge(p, dataNodes(g, "a", DataDecl)[0], LabelDefinition))
	assert.True(t, hasEdge(p, dataNodes(g, "b", DataDecl)[0], LabelDefinition))
}

func TestBranchDefinitionsMerge(t *testing.T) {
	g := buildSource(t, corpus["if"])

	decls := dataNodes(g, "c", DataDecl)
	require.Len(t, decls, 2)
	usage := dataNodes(g, "c", DataUsage)
	require.Len(t, usage, 1)
	for _, d := range decls {
		assert.True(t, hasEdge(d, usage[0], LabelReference))
	}

	// The final return only runs when the else branch did not return, so it
	// stays under the entry rather than any single branch.
	returns := nodesLabelled(g, "return")
	require.Len(t, returns, 2)
	assert.True(t, hasEdge(g.Entry(), returns[1], LabelControl))
}

func TestLoopDefinitions(t *testing.T) {
	g := buildSource(t, `def f(xs):
    total = 0
    for x in xs:
        total = total + x
    return total
`)

	decls := dataNodes(g, "total", DataDecl)
	require.Len(t, decls, 2)
	usages := dataNodes(g, "total", DataUsage)
	require.Len(t, usages, 2)

	// Inside the body only the initial definition reaches.
	assert.True(t, hasEdge(decls[0], usages[0], LabelReference))
	assert.False(t, hasEdge(decls[1], usages[0], LabelReference))
	// After the loop both do.
	assert.True(t, hasEdge(decls[0], usages[1], LabelReference))
	assert.True(t, hasEdge(decls[1], usages[1], LabelReference))

	loops := nodesLabelled(g, "for")
	require.Len(t, loops, 1)
	x := dataNodes(g, "x", DataDecl)[0]
	assert.True(t, hasEdge(dataNodes(g, "xs", DataUsage)[0], x, LabelDefinition))
	assert.True(t, hasEdge(loops[0], decls[1], LabelControl))

	ret := nodesLabelled(g, "return")[0]
	assert.True(t, hasEdge(g.Entry(), ret, LabelControl))
	assert.False(t, hasEdge(loops[0], ret, LabelControl))
}

func TestBreakPlacesFollowingCodeUnderElse(t *testing.T) {
	g := buildSource(t, `def f(xs):
    for x in xs:
        if x:
            break
        y = x
`)
	ctrl := nodesLabelled(g, "if")[0]
	y := dataNodes(g, "y", DataDecl)[0]
	edges := edgesBetween(ctrl, y, LabelControl)
	require.Len(t, edges, 1)
	assert.False(t, edges[0].BranchKind)
	assert.False(t, edges[0].FromClosure)

	// The loop still governs y, but only through the closure.
	loop := edgesBetween(nodesLabelled(g, "for")[0], y, LabelControl)
	require.Len(t, loop, 1)
	assert.True(t, loop[0].FromClosure)
	assert.True(t, loop[0].BranchKind)
}

func TestTerminalInvalidatesBranchDefinitions(t *testing.T) {
	g := buildSource(t, `def f(c):
    x = 0
    if c:
        x = 1
        return x
    return x
`)
	decls := dataNodes(g, "x", DataDecl)
	require.Len(t, decls, 2)
	usages := dataNodes(g, "x", DataUsage)
	require.Len(t, usages, 2)
	assert.True(t, hasEdge(decls[1], usages[0], LabelReference))
	assert.True(t, hasEdge(decls[0], usages[1], LabelReference))
	assert.False(t, hasEdge(decls[1], usages[1], LabelReference))
}

func TestExitingArmDoesNotReachFollowingCode(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"if", `def f(c):
    x = 1
    if c:
        return 0
    else:
        x = 2
    return x
`},
		{"try", `def f():
    x = 1
    try:
        x = g()
    except ValueError:
        raise
    return x
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildSource(t, tt.src)
			decls := dataNodes(g, "x", DataDecl)
			require.Len(t, decls, 2)
			usages := dataNodes(g, "x", DataUsage)
			require.Len(t, usages, 1)
			assert.False(t, hasEdge(decls[0], usages[0], LabelReference))
			assert.True(t, hasEdge(decls[1], usages[0], LabelReference))
		})
	}
}

func TestEveryArmExiting(t *testing.T) {
	g := buildSource(t, `def f(c):
    x = 1
    if c:
        x = 2
        return x
    else:
        raise ValueError()
    return x
`)
	decls := dataNodes(g, "x", DataDecl)
	require.Len(t, decls, 2)
	usages := dataNodes(g, "x", DataUsage)
	require.Len(t, usages, 2)
	// The trailing return is unreachable but still resolves.
	assert.True(t, hasEdge(decls[0], usages[1], LabelReference))
}

func TestTryHandlers(t *testing.T) {
	g := buildSource(t, corpus["try"])

	tries := nodesLabelled(g, "try")
	require.Len(t, tries, 1)
	excepts := nodesLabelled(g, "except")
	require.Len(t, excepts, 2)
	for _, e := range excepts {
		edges := edgesBetween(tries[0], e, LabelControl)
		require.Len(t, edges, 1)
		assert.False(t, edges[0].BranchKind)
	}

	errDecl := dataNodes(g, "err", DataDecl)
	require.Len(t, errDecl, 1)
	tuple := nodesLabelled(g, "tuple")
	require.NotEmpty(t, tuple)
	assert.True(t, hasEdge(tuple[0], excepts[0], LabelCondition))
	assert.True(t, hasEdge(tuple[0], errDecl[0], LabelDefinition))

	usage := dataNodes(g, "data", DataUsage)
	require.Len(t, usage, 1)
	for _, d := range dataNodes(g, "data", DataDecl) {
		assert.True(t, hasEdge(d, usage[0], LabelReference), "decl %d", d.ID())
	}
	assert.NotEmpty(t, nodesLabelled(g, "cleanup"))
}

func TestLambdaAndComprehensionScopes(t *testing.T) {
	g := buildSource(t, corpus["scopes"])

	base := dataNodes(g, "base", DataDecl)[0]
	baseUses := dataNodes(g, "base", DataUsage)
	require.Len(t, baseUses, 2)
	for _, u := range baseUses {
		assert.True(t, hasEdge(base, u, LabelReference))
	}

	y := dataNodes(g, "y", DataDecl)
	require.Len(t, y, 1)
	assert.False(t, y[0].IsStatement())
	assert.Empty(t, inEdgesLabelled(y[0], LabelControl))

	x := dataNodes(g, "x", DataDecl)
	require.Len(t, x, 1)
	for _, u := range dataNodes(g, "x", DataUsage) {
		assert.True(t, hasEdge(x[0], u, LabelReference))
	}

	assert.Len(t, nodesLabelled(g, "listcomp"), 1)
	assert.Len(t, nodesLabelled(g, "dictcomp"), 1)
	assert.Len(t, nodesLabelled(g, "lambda"), 1)

	fh := dataNodes(g, "fh", DataDecl)
	require.Len(t, fh, 1)
	open := nodesLabelled(g, "open")
	require.Len(t, open, 1)
	assert.True(t, hasEdge(open[0], fh[0], LabelDefinition))

	n := dataNodes(g, "n", DataDecl)
	require.Len(t, n, 1)
}

func TestLambdaLocalsDoNotLeak(t *testing.T) {
	g := buildSource(t, "def f():\n    g = lambda y: y\n    return y\n")

	decl := dataNodes(g, "y", DataDecl)
	require.Len(t, decl, 1)
	usages := dataNodes(g, "y", DataUsage)
	require.Len(t, usages, 2)
	assert.True(t, hasEdge(decl[0], usages[0], LabelReference))
	assert.Empty(t, inEdgesLabelled(usages[1], LabelReference))
	require.Len(t, g.VariableReferences, 1)
	assert.Equal(t, usages[1], g.VariableReferences[0])
}

func TestUnresolvedReferences(t *testing.T) {
	g := buildSource(t, "def f():\n    return len(items)\n")
	require.Len(t, g.VariableReferences, 1)
	assert.Equal(t, "items", g.VariableReferences[0].Key)
}

func TestAttributeReferences(t *testing.T) {
	g := buildSource(t, `def f(self):
    self.count = self.count + 1
    return self.count
`)
	decl := dataNodes(g, "self.count", DataDecl)
	require.Len(t, decl, 1)
	usages := dataNodes(g, "self.count", DataUsage)
	require.Len(t, usages, 2)
	assert.False(t, hasEdge(decl[0], usages[0], LabelReference))
	assert.True(t, hasEdge(decl[0], usages[1], LabelReference))

	self := dataNodes(g, "self", DataUsage)
	require.NotEmpty(t, self)
	assert.True(t, hasEdge(self[0], usages[0], LabelQualifier))
}

func TestMethodCallReceiver(t *testing.T) {
	g := buildSource(t, "def f(out, x):\n    out.append(x)\n")
	call := nodesLabelled(g, "append")
	require.Len(t, call, 1)
	op := call[0].(*OperationNode)
	assert.Equal(t, OpMethodCall, op.Kind)
	assert.True(t, hasEdge(dataNodes(g, "out", DataUsage)[0], op, LabelReceiver))
	assert.True(t, hasEdge(dataNodes(g, "x", DataUsage)[0], op, LabelParameter))
}

func TestUnsupportedStatementIsSkipped(t *testing.T) {
	g := buildSource(t, `def f():
    x = 1
    import os
    global y
    def inner():
        pass
    return x
`)
	require.Len(t, g.Diagnostics, 3)
	assert.Equal(t, "import_statement", g.Diagnostics[0].Construct)
	assert.Equal(t, 3, g.Diagnostics[0].Line)
	assert.Equal(t, "global_statement", g.Diagnostics[1].Construct)
	assert.Equal(t, "function_definition", g.Diagnostics[2].Construct)

	decl := dataNodes(g, "x", DataDecl)[0]
	usage := dataNodes(g, "x", DataUsage)[0]
	assert.True(t, hasEdge(decl, usage, LabelReference))
}

func TestParseErrorsAreSkipped(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		absent func(g *FlowGraph) []Node
	}{
		{
			name:   "dangling operator",
			src:    "def f(a):\n    z = 0\n    x = a +\n    return x\n",
			absent: func(g *FlowGraph) []Node { return nodesLabelled(g, "+") },
		},
		{
			name:   "unclosed call",
			src:    "def f(a):\n    z = 0\n    y = foo(a\n    return y\n",
			absent: func(g *FlowGraph) []Node { return nodesLabelled(g, "foo") },
		},
		{
			name:   "if without colon",
			src:    "def f(a):\n    z = 0\n    if a\n        return 1\n",
			absent: controlNodes,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildSource(t, tt.src)

			var found bool
			for _, d := range g.Diagnostics {
				if strings.Contains(d.Message, "parse error") {
					found = true
				}
			}
			assert.True(t, found, "diagnostics: %v", g.Diagnostics)
			assert.Empty(t, tt.absent(g))
			assert.Len(t, dataNodes(g, "z", DataDecl), 1)
			assert.NoError(t, g.Validate())
		})
	}
}

func controlNodes(g *FlowGraph) []Node {
	var out []Node
	for _, n := range g.Nodes() {
		if _, ok := n.(*ControlNode); ok {
			out = append(out, n)
		}
	}
	return out
}

// stubNode is a hand-made syntax node for broken shapes the parser does not
// produce predictably.
type stubNode struct {
	typ      string
	text     string
	broken   bool
	children []syntax.Node
	fields   map[string]syntax.Node
}

func (s *stubNode) Type() string                  { return s.typ }
func (s *stubNode) Text() string                  { return s.text }
func (s *stubNode) Line() int                     { return 1 }
func (s *stubNode) IsNamed() bool                 { return true }
func (s *stubNode) HasError() bool                { return s.broken }
func (s *stubNode) Children() []syntax.Node       { return s.children }
func (s *stubNode) NamedChildren() []syntax.Node  { return s.children }
func (s *stubNode) FieldAll(string) []syntax.Node { return nil }

func (s *stubNode) Field(name string) syntax.Node {
	if n, ok := s.fields[name]; ok {
		return n
	}
	return nil
}

func TestSignatureParseErrorIsFatal(t *testing.T) {
	body := &stubNode{typ: "block", children: []syntax.Node{&stubNode{typ: "pass_statement"}}}
	name := &stubNode{typ: "identifier", text: "f"}
	params := &stubNode{typ: "parameters", broken: true, children: []syntax.Node{
		&stubNode{typ: "identifier", text: "a"},
		&stubNode{typ: "ERROR", text: "1", broken: true},
	}}
	tests := []struct {
		name   string
		fields map[string]syntax.Node
	}{
		{"name", map[string]syntax.Node{
			"name": &stubNode{typ: "identifier", text: "f", broken: true},
			"body": body,
		}},
		{"parameters", map[string]syntax.Node{
			"name":       name,
			"parameters": params,
			"body":       body,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(&stubNode{typ: "function_definition", broken: true, fields: tt.fields})
			require.Error(t, err)
			assert.True(t, IsUnsupported(err))
			assert.Contains(t, err.Error(), "signature")
		})
	}

	g, err := Build(&stubNode{typ: "function_definition", fields: map[string]syntax.Node{"name": name, "body": body}})
	require.NoError(t, err)
	assert.Empty(t, g.Diagnostics)
}

func TestBuildRejectsNonFunction(t *testing.T) {
	_, err := Build(nil)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
}

func TestLoopElseIsReported(t *testing.T) {
	g := buildSource(t, "def f(xs):\n    for x in xs:\n        pass\n    else:\n        done()\n")
	require.Len(t, g.Diagnostics, 1)
	assert.Equal(t, "else_clause", g.Diagnostics[0].Construct)
	assert.Empty(t, nodesLabelled(g, "done"))
}
