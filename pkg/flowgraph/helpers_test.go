package flowgraph

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

func buildSource(t *testing.T, src string, opts ...Option) *FlowGraph {
	t.Helper()
	tree, err := syntax.ParsePython(context.Background(), []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	fn, err := tree.FirstFunction()
	require.NoError(t, err)
	g, err := Build(fn.Node, opts...)
	require.NoError(t, err)
	return g
}

func nodesLabelled(g *FlowGraph, label string) []Node {
	var out []Node
	for _, n := range g.Nodes() {
		if n.Label() == label {
			out = append(out, n)
		}
	}
	return out
}

func dataNodes(g *FlowGraph, label string, kind DataKind) []*DataNode {
	var out []*DataNode
	for _, n := range g.Nodes() {
		if d, ok := n.(*DataNode); ok && d.Label() == label && d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func edgesBetween(from, to Node, label EdgeLabel) []*Edge {
	var out []*Edge
	for _, e := range from.OutEdges() {
		if e.To == to && e.Label == label {
			out = append(out, e)
		}
	}
	return out
}

func hasEdge(from, to Node, label EdgeLabel) bool {
	return len(edgesBetween(from, to, label)) > 0
}

// describe renders a graph as sorted text for equality checks.
func describe(g *FlowGraph) string {
	var sb strings.Builder
	for _, n := range g.Nodes() {
		fmt.Fprintf(&sb, "%d %T %s\n", n.ID(), n, n.Label())
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(&sb, "%d -%s(%v,%v)-> %d\n", e.From.ID(), e.Label, e.BranchKind, e.FromClosure, e.To.ID())
	}
	return sb.String()
}

// corpus covers every construct the builder models.
var corpus = map[string]string{
	"literals": `def f():
    return [1, 2.5, "s", None, True, ...]
`,
	"operators": `def f(a, b):
    c = -a + b * 2
    d = not (a and b or c)
    return a < b <= c, a not in d, a is not None
`,
	"calls": `def f(items, key=None):
    out = sorted(items, key=key, reverse=True)
    out.append(len(items))
    return self.helper.run(*items, **kw)
`,
	"subscripts": `def f(xs, i):
    xs[i] = xs[i - 1] + xs[1:i]
    return xs[::2], xs[i]
`,
	"collections": `def f(a):
    d = {"k": a, **other}
    s = {a, 1}
    return (a,), [a, *s], d
`,
	"assignments": `def f(p):
    a = b = p
    x, y = y0, x0
    first, *rest = 1, 2, 3
    (m, n), k = p
    a += 1
    p.attr = a
    total: int = 0
    return a, b, x, y, first, rest, m, n, k, total
`,
	"if": `def f(a, b):
    if a > b:
        c = a
    elif a == b:
        c = 0
    else:
        return b
    return c
`,
	"loops": `def f(xs):
    total = 0
    for i, x in enumerate(xs):
        if x < 0:
            continue
        if x > 100:
            break
        total += x
    while total > 10:
        total = total - 1
    return total
`,
	"try": `def f(path):
    try:
        fh = open(path)
        data = fh.read()
    except (IOError, OSError) as err:
        raise ValueError(err)
    except Exception:
        data = None
    else:
        fh.close()
    finally:
        cleanup()
    return data
`,
	"scopes": `def f(xs, base):
    g = lambda y, z=1: y + base + z
    squares = [g(x) for x in xs if x]
    pairs = {k: v for k, v in zip(xs, squares)}
    with open(base) as fh:
        fh.write(str(pairs))
    return (n := len(squares))
`,
}

func parsePython(t *testing.T, src string) *syntax.Tree {
	t.Helper()
	tree, err := syntax.ParsePython(context.Background(), []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}
