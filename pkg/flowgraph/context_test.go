package flowgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decl(id int, key string, stack BranchStack) *DataNode {
	d := &DataNode{Kind: DataDecl, Key: key}
	d.id = id
	d.label = key
	d.stack = stack
	return d
}

func TestBuildingContext(t *testing.T) {
	entry := BranchStack{{Kind: true}}
	ctrl := &ControlNode{Kind: ControlIf}
	ctrl.id = 3
	inside := append(entry.clone(), BranchFrame{Control: ctrl, Kind: true})

	x1 := decl(1, "x", entry)
	x4 := decl(4, "x", inside)
	y5 := decl(5, "y", inside)

	t.Run("define replaces", func(t *testing.T) {
		c := NewBuildingContext()
		c.Define(x1)
		c.Define(x4)
		assert.Equal(t, []*DataNode{x4}, c.Definitions("x"))
	})

	t.Run("fork is independent", func(t *testing.T) {
		c := NewBuildingContext()
		c.Define(x1)
		f := c.Fork()
		f.Define(x4)
		assert.Equal(t, []*DataNode{x1}, c.Definitions("x"))
		assert.Equal(t, []*DataNode{x4}, f.Definitions("x"))
	})

	t.Run("union dedups and sorts", func(t *testing.T) {
		a := NewBuildingContext()
		a.Define(x4)
		b := NewBuildingContext()
		b.Define(x1)
		c := NewBuildingContext()
		c.Define(x4)
		c.Define(y5)
		u := Union(a, nil, b, c)
		assert.Equal(t, []*DataNode{x1, x4}, u.Definitions("x"))
		assert.Equal(t, []string{"x", "y"}, u.Keys())
	})

	t.Run("remove variables under branch", func(t *testing.T) {
		c := Union(func() *BuildingContext { c := NewBuildingContext(); c.Define(x1); return c }(),
			func() *BuildingContext { c := NewBuildingContext(); c.Define(x4); c.Define(y5); return c }())
		c.RemoveVariables(inside)
		assert.Equal(t, []*DataNode{x1}, c.Definitions("x"))
		assert.Empty(t, c.Definitions("y"))
		assert.Equal(t, []string{"x"}, c.Keys())
	})
}

func TestBranchStack(t *testing.T) {
	c1 := &ControlNode{Kind: ControlIf}
	c1.id = 2
	c2 := &ControlNode{Kind: ControlFor}
	c2.id = 5
	s := BranchStack{{Kind: true}, {Control: c1, Kind: false}, {Control: c2, Kind: true}}

	assert.Equal(t, 5, s.Innermost().ID())
	assert.Equal(t, 0, BranchStack(nil).Innermost().ID())
	assert.True(t, s.HasPrefix(s[:2]))
	assert.False(t, s[:2].HasPrefix(s))
	assert.False(t, s.HasPrefix(BranchStack{{Kind: true}, {Control: c1, Kind: true}}))

	kind, ok := s.Lookup(c1)
	assert.True(t, ok)
	assert.False(t, kind)
	_, ok = s[:1].Lookup(c2)
	assert.False(t, ok)
}

func TestDuplicateEntry(t *testing.T) {
	g := newFlowGraph("f")
	first := &EntryNode{}
	require.NoError(t, g.setEntry(first))

	second := &EntryNode{}
	second.id = 1
	err := g.setEntry(second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateEntry))
	assert.Same(t, first, g.Entry())
}

func TestAddEdgeDedupes(t *testing.T) {
	a, b := &OperationNode{}, &OperationNode{}
	a.id, b.id = 1, 2

	assert.True(t, addEdge(a, b, LabelParameter, true, false))
	assert.False(t, addEdge(a, b, LabelParameter, false, true))
	assert.True(t, addEdge(a, b, LabelControl, true, false))
	assert.True(t, addEdge(a, b, LabelControl, false, false))
	assert.False(t, addEdge(a, b, LabelControl, false, true))
	assert.False(t, addEdge(a, a, LabelControl, true, false))
	assert.Len(t, a.OutEdges(), 3)
	assert.Len(t, b.InEdges(), 3)
	assert.False(t, a.OutEdges()[0].BranchKind, "non-control edges carry no branch kind")
}

func TestRollbackRestoresState(t *testing.T) {
	tree := parsePython(t, "def f(a):\n    b = a\n")
	fn, err := tree.FirstFunction()
	require.NoError(t, err)

	b, err := newBuilder("f", fn.Node)
	require.NoError(t, err)
	_, err = b.visitParameters(fn.Node.Field("parameters"), true)
	require.NoError(t, err)

	cp := b.checkpoint()
	before := describe(b.graph)

	ctrl := b.newControl(ControlIf, fn.Node)
	b.enterBranch(ctrl, true, b.context().Fork())
	b.pushScope()
	b.context().Define(b.newData(DataDecl, "z", "z", fn.Node, true))

	b.rollback(cp)
	assert.Equal(t, before, describe(b.graph))
	assert.Len(t, b.contexts, 1)
	assert.Empty(t, b.context().Definitions("z"))
	assert.Len(t, b.context().Definitions("a"), 1)
	assert.Equal(t, BranchStack{{Kind: true}}, b.branches)
	assert.Len(t, b.graph.Entry().OutEdges(), 1)
	assert.Equal(t, cp.nextID, b.nextID)
}
