package flowgraph

import (
	"strings"

	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

// valueTree mirrors a destructuring target: when the right-hand side is a
// literal sequence shaped like the target, each element is kept separately so
// target leaves can be paired with their own value.
type valueTree struct {
	frag     *fragment
	elements []syntax.Node
	children []*valueTree
}

func isSequencePattern(n syntax.Node) bool {
	switch n.Type() {
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list":
		return true
	}
	return false
}

func isSequenceLiteral(n syntax.Node) bool {
	switch n.Type() {
	case "tuple", "list", "expression_list":
		return true
	}
	return false
}

func isStarred(n syntax.Node) bool {
	return n.Type() == "list_splat_pattern" || n.Type() == "list_splat"
}

// starIndex returns the position of the starred leaf, or -1.
func starIndex(leaves []syntax.Node) int {
	for i, l := range leaves {
		if isStarred(l) {
			return i
		}
	}
	return -1
}

// shapeMatches reports whether value elements can be paired with target leaves.
func shapeMatches(leaves, elements []syntax.Node) bool {
	for _, e := range elements {
		if isStarred(e) {
			return false
		}
	}
	if star := starIndex(leaves); star >= 0 {
		return len(elements) >= len(leaves)-1
	}
	return len(elements) == len(leaves)
}

// leafFor returns the index of the target leaf receiving element j.
func leafFor(j int, leaves, elements []syntax.Node) int {
	star := starIndex(leaves)
	if star < 0 || j < star {
		return j
	}
	rest := len(elements) - (len(leaves) - 1)
	if j < star+rest {
		return star
	}
	return j - rest + 1
}

// plan evaluates the right-hand side, splitting literal sequences that match
// the target's shape.
func (b *builder) plan(target, value syntax.Node) (*valueTree, error) {
	target, value = syntax.Unwrap(target), syntax.Unwrap(value)
	if target != nil && value != nil && isSequencePattern(target) && isSequenceLiteral(value) {
		leaves := target.NamedChildren()
		elements := value.NamedChildren()
		if shapeMatches(leaves, elements) {
			tree := &valueTree{elements: elements}
			frags := make([]*fragment, 0, len(elements))
			for j, e := range elements {
				leaf := leaves[leafFor(j, leaves, elements)]
				if isStarred(leaf) {
					leaf = nil
				}
				child, err := b.plan(leaf, e)
				if err != nil {
					return nil, err
				}
				tree.children = append(tree.children, child)
				frags = append(frags, child.frag)
			}
			tree.frag = emptyFragment().parallelMerge(frags, "")
			return tree, nil
		}
	}
	f, err := b.visitExpression(value)
	if err != nil {
		return nil, err
	}
	return &valueTree{frag: f}, nil
}

// bindTree declares the leaves of target from a planned value.
func (b *builder) bindTree(target syntax.Node, tree *valueTree, statement bool) (*fragment, error) {
	target = syntax.Unwrap(target)
	if tree.children == nil {
		return b.bind(target, tree.frag.sinks, statement)
	}
	leaves := target.NamedChildren()
	out := emptyFragment()
	for i, leaf := range leaves {
		var members []*valueTree
		for j := range tree.elements {
			if leafFor(j, leaves, tree.elements) == i {
				members = append(members, tree.children[j])
			}
		}
		var (
			f   *fragment
			err error
		)
		if isStarred(leaf) {
			// The starred leaf captures the remaining elements as a list.
			parts := make([]part, 0, len(members))
			for _, m := range members {
				parts = append(parts, part{m.frag, LabelParameter})
			}
			coll := b.consume(b.newOperation(OpCollection, "list", leaf), parts...)
			var decl *fragment
			decl, err = b.bind(leaf, coll.sinks, statement)
			if err == nil {
				f = coll.sequentialMerge(decl, nil, "")
			}
		} else if len(members) == 1 {
			f, err = b.bindTree(leaf, members[0], statement)
		} else {
			err = unsupported(leaf, "destructuring arity")
		}
		if err != nil {
			return nil, err
		}
		out = out.sequentialMerge(f, nil, "")
	}
	return out, nil
}

// bind declares target as defined by the given value sinks. Each declaration
// becomes the only reaching definition of its key.
func (b *builder) bind(target syntax.Node, sources nodeSet, statement bool) (*fragment, error) {
	target = syntax.Unwrap(target)
	if target == nil {
		return nil, unsupported(target, "missing assignment target")
	}
	switch target.Type() {
	case "identifier":
		decl := b.newData(DataDecl, target.Text(), target.Text(), target, statement)
		b.define(decl, sources)
		return single(decl), nil
	case "attribute", "subscript":
		parts, err := b.qualifiers(target)
		if err != nil {
			return nil, err
		}
		return b.bindQualified(target, parts, sources, statement), nil
	case "list_splat_pattern", "list_splat":
		return b.bind(syntax.NamedChild(target, 0), sources, statement)
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list":
		out := emptyFragment()
		for _, leaf := range target.NamedChildren() {
			f, err := b.bind(leaf, sources, statement)
			if err != nil {
				return nil, err
			}
			out = out.sequentialMerge(f, nil, "")
		}
		return out, nil
	default:
		return nil, unsupported(target, "assignment target")
	}
}

// bindQualified declares an attribute or subscript target whose qualifiers
// have already been visited.
func (b *builder) bindQualified(target syntax.Node, parts []part, sources nodeSet, statement bool) *fragment {
	key := referenceKey(target)
	decl := b.newData(qualifiedKind(target, true), key, key, target, statement)
	f := b.consume(decl, parts...)
	b.define(decl, sources)
	return f
}

func (b *builder) define(decl *DataNode, sources nodeSet) {
	for _, s := range sources.sorted() {
		addEdge(s, decl, LabelDefinition, true, false)
	}
	b.context().Define(decl)
}

// visitAssignment handles plain, chained, annotated and destructuring
// assignments. The right-hand side is evaluated before any target.
func (b *builder) visitAssignment(n syntax.Node) (*fragment, error) {
	targets := []syntax.Node{n.Field("left")}
	value := n.Field("right")
	for value != nil && value.Type() == "assignment" {
		targets = append(targets, value.Field("left"))
		value = value.Field("right")
	}
	if value == nil {
		// Annotation without value declares nothing at runtime.
		return emptyFragment(), nil
	}

	if len(targets) == 1 {
		tree, err := b.plan(targets[0], value)
		if err != nil {
			return nil, err
		}
		tf, err := b.bindTree(targets[0], tree, true)
		if err != nil {
			return nil, err
		}
		return tree.frag.sequentialMerge(tf, nil, ""), nil
	}

	vf, err := b.visitExpression(value)
	if err != nil {
		return nil, err
	}
	out := vf
	for _, t := range targets {
		tf, err := b.bind(t, vf.sinks, true)
		if err != nil {
			return nil, err
		}
		out = out.sequentialMerge(tf, nil, "")
	}
	return out, nil
}

// visitAugmentedAssignment models x += v as x = x + v. The object and indexes
// of an attribute or subscript target are evaluated once and shared by the
// read and the write.
func (b *builder) visitAugmentedAssignment(n syntax.Node) (*fragment, error) {
	left, right, operator := syntax.Unwrap(n.Field("left")), n.Field("right"), n.Field("operator")
	if left == nil || right == nil || operator == nil {
		return nil, unsupported(n, "malformed augmented assignment")
	}
	var (
		current *fragment
		shared  []part
		err     error
	)
	if t := left.Type(); t == "attribute" || t == "subscript" {
		shared, err = b.qualifiers(left)
		if err != nil {
			return nil, err
		}
		current = b.qualifiedUse(left, shared)
	} else {
		current, err = b.visitExpression(left)
		if err != nil {
			return nil, err
		}
	}
	value, err := b.visitExpression(right)
	if err != nil {
		return nil, err
	}
	label := strings.TrimSuffix(operator.Text(), "=")
	op := b.newOperation(OpOperator, label, n)
	calc := b.consume(op, part{current, LabelParameter}, part{value, LabelParameter})

	if shared == nil {
		tf, err := b.bind(left, calc.sinks, true)
		if err != nil {
			return nil, err
		}
		return calc.sequentialMerge(tf, nil, ""), nil
	}
	parts := make([]part, len(shared))
	for i, p := range shared {
		parts[i] = part{p.frag.withoutRefs(), p.label}
	}
	return calc.sequentialMerge(b.bindQualified(left, parts, calc.sinks, true), nil, ""), nil
}
