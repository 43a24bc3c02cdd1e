// Package syntax defines the parser-neutral view of a syntax tree consumed by the
// flow-graph builder, and a tree-sitter backed implementation for Python.
package syntax

// Node is a single syntax tree element.
//
// Implementations never return a nil interface wrapping a nil pointer: accessors
// that find nothing return a plain nil Node.
type Node interface {
	// Type is the grammar type tag, e.g. "if_statement" or "identifier".
	Type() string
	// Text is the source text covered by the node.
	Text() string
	// Line is the 1-based line the node starts on.
	Line() int
	// IsNamed reports whether the node is a named grammar node (as opposed to
	// an anonymous token such as "+" or "if").
	IsNamed() bool
	// Children returns all children in source order, including tokens.
	Children() []Node
	// NamedChildren returns the named children in source order, without comments.
	NamedChildren() []Node
	// Field returns the first child stored under the given field name.
	Field(name string) Node
	// FieldAll returns every child stored under the given field name.
	FieldAll(name string) []Node
	// HasError reports whether the subtree contains a parse error.
	HasError() bool
}

// Function is a function definition found in a parsed file.
type Function struct {
	Name      string
	Qualified string // Class-qualified name for methods, e.g. "Foo.bar"
	Line      int
	Node      Node
}

// NamedChild returns the i-th named child or nil.
func NamedChild(n Node, i int) Node {
	children := n.NamedChildren()
	if i < 0 || i >= len(children) {
		return nil
	}
	return children[i]
}

// ChildrenOfType returns the named children of n with the given type.
func ChildrenOfType(n Node, typ string) []Node {
	var out []Node
	for _, c := range n.NamedChildren() {
		if c.Type() == typ {
			out = append(out, c)
		}
	}
	return out
}

// FirstOfType returns the first named child with the given type or nil.
func FirstOfType(n Node, typ string) Node {
	for _, c := range n.NamedChildren() {
		if c.Type() == typ {
			return c
		}
	}
	return nil
}

// IsQualified reports whether n is a dotted reference such as a.b.c.
func IsQualified(n Node) bool {
	return n != nil && n.Type() == "attribute"
}

// CallArguments returns the argument expressions of a call node. A bare
// generator argument, as in f(x for x in y), is returned as a single argument.
func CallArguments(call Node) []Node {
	args := call.Field("arguments")
	if args == nil {
		return nil
	}
	if args.Type() == "generator_expression" {
		return []Node{args}
	}
	return args.NamedChildren()
}

// Unwrap strips redundant parentheses around an expression.
func Unwrap(n Node) Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		inner := NamedChild(n, 0)
		if inner == nil {
			return n
		}
		n = inner
	}
	return n
}
