package syntax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `import os

def top(a, b=1):
    # leading comment
    return a + b

class Box:
    @property
    def size(self):
        return len(self.items)

    def put(self, item):
        self.items.append(item)
`

func parse(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := ParsePython(context.Background(), []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func TestFunctions(t *testing.T) {
	tree := parse(t, sample)

	fns := tree.Functions()
	require.Len(t, fns, 3)

	tests := []struct {
		name      string
		qualified string
		line      int
	}{
		{"top", "top", 3},
		{"size", "Box.size", 9},
		{"put", "Box.put", 12},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.name, fns[i].Name)
		assert.Equal(t, tt.qualified, fns[i].Qualified)
		assert.Equal(t, tt.line, fns[i].Line)
		assert.Equal(t, "function_definition", fns[i].Node.Type())
	}
}

func TestFunctionLookup(t *testing.T) {
	tree := parse(t, sample)

	fn, err := tree.Function("Box.put")
	require.NoError(t, err)
	assert.Equal(t, "put", fn.Name)

	fn, err = tree.Function("top")
	require.NoError(t, err)
	assert.Equal(t, "top", fn.Qualified)

	_, err = tree.Function("missing")
	assert.Error(t, err)

	first, err := tree.FirstFunction()
	require.NoError(t, err)
	assert.Equal(t, "top", first.Name)
}

func TestNamedChildrenSkipComments(t *testing.T) {
	tree := parse(t, sample)
	fn, err := tree.Function("top")
	require.NoError(t, err)

	body := fn.Node.Field("body")
	require.NotNil(t, body)
	stmts := body.NamedChildren()
	require.Len(t, stmts, 1)
	assert.Equal(t, "return_statement", stmts[0].Type())
}

func TestFieldAccessors(t *testing.T) {
	tree := parse(t, `def f(x):
    if x:
        pass
    elif x > 1:
        pass
    else:
        pass
    return g(x, *rest)
`)
	fn, err := tree.FirstFunction()
	require.NoError(t, err)
	stmts := fn.Node.Field("body").NamedChildren()
	require.Len(t, stmts, 2)

	ifStmt := stmts[0]
	assert.Nil(t, ifStmt.Field("missing_field"))
	alternatives := ifStmt.FieldAll("alternative")
	require.Len(t, alternatives, 2)
	assert.Equal(t, "elif_clause", alternatives[0].Type())
	assert.Equal(t, "else_clause", alternatives[1].Type())

	call := NamedChild(stmts[1], 0)
	require.NotNil(t, call)
	assert.Equal(t, "call", call.Type())
	args := CallArguments(call)
	require.Len(t, args, 2)
	assert.Equal(t, "x", args[0].Text())
	assert.Equal(t, "list_splat", args[1].Type())
	assert.False(t, IsQualified(call.Field("function")))
}

func TestUnwrap(t *testing.T) {
	tree := parse(t, "def f():\n    return ((a.b))\n")
	fn, err := tree.FirstFunction()
	require.NoError(t, err)
	ret := NamedChild(fn.Node.Field("body"), 0)
	expr := Unwrap(NamedChild(ret, 0))
	require.NotNil(t, expr)
	assert.True(t, IsQualified(expr))
	assert.Equal(t, "a.b", expr.Text())
}
