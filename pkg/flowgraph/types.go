// Package flowgraph builds typed control/data dependence graphs for Python
// functions and post-processes them for pattern matching.
package flowgraph

import (
	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

// EdgeLabel is the relation carried by an edge.
type EdgeLabel string

const (
	LabelDefinition EdgeLabel = "definition" // value -> declared variable
	LabelReceiver   EdgeLabel = "receiver"   // object -> method call
	LabelReference  EdgeLabel = "reference"  // declaration -> usage
	LabelParameter  EdgeLabel = "parameter"  // operand -> operation
	LabelCondition  EdgeLabel = "condition"  // predicate -> control node
	LabelQualifier  EdgeLabel = "qualifier"  // object -> attribute or subscript
	LabelControl    EdgeLabel = "control"    // governing construct -> statement
	LabelDependence EdgeLabel = "dependence" // provisional statement ordering
)

// DataKind classifies data nodes.
type DataKind string

const (
	DataDecl      DataKind = "decl"
	DataUsage     DataKind = "usage"
	DataSubscript DataKind = "subscript"
	DataLiteral   DataKind = "literal"
	DataKeyword   DataKind = "keyword"
)

// OperationKind classifies operation nodes.
type OperationKind string

const (
	OpCall          OperationKind = "call"
	OpMethodCall    OperationKind = "method-call"
	OpOperator      OperationKind = "operator"
	OpCollection    OperationKind = "collection"
	OpComprehension OperationKind = "comprehension"
	OpLambda        OperationKind = "lambda"
	OpTerminal      OperationKind = "terminal"
	OpBuiltin       OperationKind = "builtin"
)

// ControlKind classifies control nodes.
type ControlKind string

const (
	ControlIf     ControlKind = "if"
	ControlFor    ControlKind = "for"
	ControlWhile  ControlKind = "while"
	ControlTry    ControlKind = "try"
	ControlExcept ControlKind = "except"
)

// Node is one of *DataNode, *OperationNode, *ControlNode, *EntryNode or *EmptyNode.
type Node interface {
	// ID is the creation-order statement number, unique within a graph.
	ID() int
	Label() string
	Syntax() syntax.Node
	InEdges() []*Edge
	OutEdges() []*Edge
	// BranchStack is the snapshot of governing constructs taken at creation.
	BranchStack() BranchStack
	// IsStatement reports whether the node takes part in statement ordering.
	IsStatement() bool

	base() *nodeBase
}

type nodeBase struct {
	id        int
	label     string
	ast       syntax.Node
	in        []*Edge
	out       []*Edge
	stack     BranchStack
	statement bool
}

func (n *nodeBase) ID() int                  { return n.id }
func (n *nodeBase) Label() string            { return n.label }
func (n *nodeBase) Syntax() syntax.Node      { return n.ast }
func (n *nodeBase) InEdges() []*Edge         { return n.in }
func (n *nodeBase) OutEdges() []*Edge        { return n.out }
func (n *nodeBase) BranchStack() BranchStack { return n.stack }
func (n *nodeBase) IsStatement() bool        { return n.statement }
func (n *nodeBase) base() *nodeBase          { return n }

// DataNode is a variable declaration or usage, a subscript, or a constant.
type DataNode struct {
	nodeBase
	Kind DataKind
	Key  string // structural key used for reference resolution
}

// OperationNode is a call, operator, constructor or terminal statement.
type OperationNode struct {
	nodeBase
	Kind OperationKind
}

// ControlNode governs the statements of its branches.
type ControlNode struct {
	nodeBase
	Kind ControlKind
}

// EntryNode is the unique root of a function graph.
type EntryNode struct {
	nodeBase
}

// EmptyNode is a placeholder statement removed by ResolveDependences.
type EmptyNode struct {
	nodeBase
}

// Edge connects two nodes. Control edges also carry the branch they govern.
type Edge struct {
	From        Node
	To          Node
	Label       EdgeLabel
	BranchKind  bool
	FromClosure bool
}

// BranchFrame is one level of nesting: the governing control node (nil for the
// function entry) and the branch taken.
type BranchFrame struct {
	Control *ControlNode
	Kind    bool
}

// ID returns the statement number of the governing node, 0 for the entry.
func (f BranchFrame) ID() int {
	if f.Control == nil {
		return 0
	}
	return f.Control.ID()
}

// BranchStack lists the frames from outermost to innermost.
type BranchStack []BranchFrame

func (s BranchStack) clone() BranchStack {
	if s == nil {
		return nil
	}
	out := make(BranchStack, len(s))
	copy(out, s)
	return out
}

// Innermost returns the deepest frame, or the entry frame for an empty stack.
func (s BranchStack) Innermost() BranchFrame {
	if len(s) == 0 {
		return BranchFrame{Kind: true}
	}
	return s[len(s)-1]
}

// HasPrefix reports whether p is an outer part of s.
func (s BranchStack) HasPrefix(p BranchStack) bool {
	if len(p) > len(s) {
		return false
	}
	for i := range p {
		if s[i] != p[i] {
			return false
		}
	}
	return true
}

// Lookup returns the branch kind under which c governs this stack.
func (s BranchStack) Lookup(c *ControlNode) (kind bool, ok bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Control == c {
			return s[i].Kind, true
		}
	}
	return false, false
}

func (s BranchStack) index(f BranchFrame) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == f {
			return i
		}
	}
	return -1
}
