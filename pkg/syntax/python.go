package syntax

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Tree is a parsed Python source file.
type Tree struct {
	content []byte
	tree    *sitter.Tree
}

// ParsePython parses Python source code.
func ParsePython(ctx context.Context, content []byte) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing python source: %w", err)
	}
	return &Tree{content: content, tree: tree}, nil
}

// ParsePythonFile reads and parses a Python file.
func ParsePythonFile(ctx context.Context, path string) (*Tree, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return ParsePython(ctx, content)
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
	}
}

// Root returns the module node.
func (t *Tree) Root() Node {
	return wrap(t.tree.RootNode(), t.content)
}

// Functions lists module-level functions and class methods in source order.
func (t *Tree) Functions() []Function {
	var out []Function
	collectFunctions(t.Root(), "", &out)
	return out
}

// Function returns the function with the given name. Methods can be addressed
// either by bare name or as "Class.method".
func (t *Tree) Function(name string) (Function, error) {
	for _, fn := range t.Functions() {
		if fn.Name == name || fn.Qualified == name {
			return fn, nil
		}
	}
	return Function{}, fmt.Errorf("function %q not found", name)
}

// FirstFunction returns the first function in the file.
func (t *Tree) FirstFunction() (Function, error) {
	fns := t.Functions()
	if len(fns) == 0 {
		return Function{}, fmt.Errorf("no function definition found")
	}
	return fns[0], nil
}

func collectFunctions(n Node, class string, out *[]Function) {
	for _, child := range n.NamedChildren() {
		def := child
		if def.Type() == "decorated_definition" {
			def = def.Field("definition")
			if def == nil {
				continue
			}
		}
		switch def.Type() {
		case "function_definition":
			nameNode := def.Field("name")
			if nameNode == nil {
				continue
			}
			name := nameNode.Text()
			qualified := name
			if class != "" {
				qualified = class + "." + name
			}
			*out = append(*out, Function{Name: name, Qualified: qualified, Line: def.Line(), Node: def})
		case "class_definition":
			nameNode := def.Field("name")
			body := def.Field("body")
			if nameNode == nil || body == nil {
				continue
			}
			collectFunctions(body, nameNode.Text(), out)
		}
	}
}

// tsNode adapts a tree-sitter node.
type tsNode struct {
	n       *sitter.Node
	content []byte
}

func wrap(n *sitter.Node, content []byte) Node {
	if n == nil || n.IsNull() {
		return nil
	}
	return &tsNode{n: n, content: content}
}

func (t *tsNode) Type() string { return t.n.Type() }

func (t *tsNode) Text() string {
	start, end := t.n.StartByte(), t.n.EndByte()
	if int(end) > len(t.content) || start > end {
		return ""
	}
	return string(t.content[start:end])
}

func (t *tsNode) Line() int { return int(t.n.StartPoint().Row) + 1 }

func (t *tsNode) IsNamed() bool { return t.n.IsNamed() }

func (t *tsNode) HasError() bool { return t.n.HasError() }

func (t *tsNode) Children() []Node {
	count := int(t.n.ChildCount())
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		if c := wrap(t.n.Child(i), t.content); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (t *tsNode) NamedChildren() []Node {
	count := int(t.n.NamedChildCount())
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		c := t.n.NamedChild(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, wrap(c, t.content))
	}
	return out
}

func (t *tsNode) Field(name string) Node {
	return wrap(t.n.ChildByFieldName(name), t.content)
}

func (t *tsNode) FieldAll(name string) []Node {
	var out []Node
	cursor := sitter.NewTreeCursor(t.n)
	defer cursor.Close()
	if !cursor.GoToFirstChild() {
		return nil
	}
	for {
		if cursor.CurrentFieldName() == name {
			if c := wrap(cursor.CurrentNode(), t.content); c != nil {
				out = append(out, c)
			}
		}
		if !cursor.GoToNextSibling() {
			break
		}
	}
	return out
}
