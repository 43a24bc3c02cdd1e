package flowgraph

import (
	"strings"

	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

// part is an operand fragment together with the label linking it to its consumer.
type part struct {
	frag  *fragment
	label EdgeLabel
}

// consume merges independently evaluated operands in parallel and chains the
// consuming node n after them, linking each operand's sinks with its label.
func (b *builder) consume(n Node, parts ...part) *fragment {
	frags := make([]*fragment, 0, len(parts))
	for _, p := range parts {
		frags = append(frags, p.frag)
	}
	merged := emptyFragment().parallelMerge(frags, "")
	for _, p := range parts {
		for _, s := range p.frag.sinks.sorted() {
			addEdge(s, n, p.label, true, false)
		}
	}
	return merged.sequentialMerge(single(n), nil, "")
}

func (b *builder) visitOperands(nodes []syntax.Node, label EdgeLabel) ([]part, error) {
	parts := make([]part, 0, len(nodes))
	for _, n := range nodes {
		f, err := b.visitExpression(n)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{f, label})
	}
	return parts, nil
}

func (b *builder) visitExpression(n syntax.Node) (*fragment, error) {
	if n == nil {
		return nil, unsupported(n, "missing expression")
	}
	switch n.Type() {
	case "identifier":
		return b.use(DataUsage, n.Text(), n.Text(), n), nil
	case "attribute", "subscript":
		return b.visitQualified(n)
	case "integer", "float", "string", "concatenated_string", "ellipsis":
		return single(b.newData(DataLiteral, n.Text(), "", n, false)), nil
	case "true", "false", "none":
		return single(b.newData(DataKeyword, n.Text(), "", n, false)), nil
	case "parenthesized_expression":
		return b.visitExpression(syntax.NamedChild(n, 0))
	case "call":
		return b.visitCall(n)
	case "binary_operator", "boolean_operator":
		return b.visitOperator(n, n.Field("operator"), n.Field("left"), n.Field("right"))
	case "unary_operator":
		return b.visitOperator(n, n.Field("operator"), n.Field("argument"))
	case "not_operator":
		parts, err := b.visitOperands([]syntax.Node{n.Field("argument")}, LabelParameter)
		if err != nil {
			return nil, err
		}
		return b.consume(b.newOperation(OpOperator, "not", n), parts...), nil
	case "comparison_operator":
		return b.visitComparison(n)
	case "list", "tuple", "set", "expression_list":
		return b.visitCollection(n, collectionLabel(n.Type()), n.NamedChildren())
	case "dictionary":
		return b.visitDictionary(n)
	case "list_comprehension", "set_comprehension", "generator_expression", "dictionary_comprehension":
		return b.visitComprehension(n)
	case "lambda":
		return b.visitLambda(n)
	case "conditional_expression":
		return b.visitConditional(n)
	case "named_expression":
		return b.visitNamedExpression(n)
	case "keyword_argument":
		return b.visitExpression(n.Field("value"))
	case "list_splat":
		return b.visitBuiltinExpr(n, "*", n.NamedChildren())
	case "dictionary_splat":
		return b.visitBuiltinExpr(n, "**", n.NamedChildren())
	case "await":
		return b.visitBuiltinExpr(n, "await", n.NamedChildren())
	case "yield":
		label := "yield"
		if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(n.Text(), "yield")), "from") {
			label = "yield from"
		}
		return b.visitBuiltinExpr(n, label, n.NamedChildren())
	case "slice":
		return b.visitBuiltinExpr(n, "slice", n.NamedChildren())
	default:
		return nil, unsupported(n, "")
	}
}

// use creates a usage node and resolves it against the current context.
func (b *builder) use(kind DataKind, label, key string, ast syntax.Node) *fragment {
	n := b.newData(kind, label, key, ast, false)
	f := single(n)
	if !b.resolveReference(n) {
		f = f.withRefs(n)
	}
	return f
}

func referenceKey(n syntax.Node) string {
	return strings.Join(strings.Fields(n.Text()), "")
}

// qualifiers visits what an attribute or subscript is taken from: the object,
// and for subscripts the indexes.
func (b *builder) qualifiers(n syntax.Node) ([]part, error) {
	if n.Type() == "attribute" {
		obj, err := b.visitExpression(n.Field("object"))
		if err != nil {
			return nil, err
		}
		return []part{{obj, LabelQualifier}}, nil
	}
	value, err := b.visitExpression(n.Field("value"))
	if err != nil {
		return nil, err
	}
	idx, err := b.visitOperands(n.FieldAll("subscript"), LabelParameter)
	if err != nil {
		return nil, err
	}
	return append([]part{{value, LabelQualifier}}, idx...), nil
}

// qualifiedKind is the data kind of an attribute or subscript node.
func qualifiedKind(n syntax.Node, decl bool) DataKind {
	switch {
	case n.Type() == "subscript":
		return DataSubscript
	case decl:
		return DataDecl
	}
	return DataUsage
}

// qualifiedUse reads an attribute or subscript from already visited qualifiers.
func (b *builder) qualifiedUse(n syntax.Node, parts []part) *fragment {
	key := referenceKey(n)
	node := b.newData(qualifiedKind(n, false), key, key, n, false)
	f := b.consume(node, parts...)
	if !b.resolveReference(node) {
		f = f.withRefs(node)
	}
	return f
}

func (b *builder) visitQualified(n syntax.Node) (*fragment, error) {
	parts, err := b.qualifiers(n)
	if err != nil {
		return nil, err
	}
	return b.qualifiedUse(n, parts), nil
}

func (b *builder) visitCall(n syntax.Node) (*fragment, error) {
	fn := syntax.Unwrap(n.Field("function"))
	if fn == nil {
		return nil, unsupported(n, "call without callee")
	}

	var (
		receiver *fragment
		label    string
		kind     = OpCall
		err      error
	)
	switch fn.Type() {
	case "identifier":
		label = fn.Text()
	case "attribute":
		receiver, err = b.visitExpression(fn.Field("object"))
		if err != nil {
			return nil, err
		}
		label = fn.Field("attribute").Text()
		kind = OpMethodCall
	default:
		receiver, err = b.visitExpression(fn)
		if err != nil {
			return nil, err
		}
		label = "call"
	}

	argParts, err := b.visitOperands(syntax.CallArguments(n), LabelParameter)
	if err != nil {
		return nil, err
	}
	args := make([]*fragment, 0, len(argParts))
	for _, p := range argParts {
		args = append(args, p.frag)
	}

	op := b.newOperation(kind, label, n)
	call := emptyFragment().parallelMerge(args, "").sequentialMerge(single(op), op, LabelParameter)
	if receiver != nil {
		call = receiver.parallelMerge([]*fragment{call}, LabelReceiver)
	}
	return call, nil
}

func (b *builder) visitOperator(n, operator syntax.Node, operands ...syntax.Node) (*fragment, error) {
	if operator == nil {
		return nil, unsupported(n, "operator without token")
	}
	parts, err := b.visitOperands(operands, LabelParameter)
	if err != nil {
		return nil, err
	}
	return b.consume(b.newOperation(OpOperator, operator.Text(), n), parts...), nil
}

// visitComparison splits a comparison chain such as a < b <= c into one
// operation per operator, joined by "and" when there is more than one.
func (b *builder) visitComparison(n syntax.Node) (*fragment, error) {
	var (
		operands  []syntax.Node
		operators []string
		pending   []string
	)
	for _, c := range n.Children() {
		if c.Type() == "comment" {
			continue
		}
		if c.IsNamed() {
			if len(pending) > 0 {
				operators = append(operators, strings.Join(pending, " "))
				pending = nil
			}
			operands = append(operands, c)
			continue
		}
		pending = append(pending, c.Text())
	}
	if len(operands) < 2 || len(operators) != len(operands)-1 {
		return nil, unsupported(n, "malformed comparison")
	}

	left, err := b.visitExpression(operands[0])
	if err != nil {
		return nil, err
	}
	var comparisons []*fragment
	for i, operator := range operators {
		right, err := b.visitExpression(operands[i+1])
		if err != nil {
			return nil, err
		}
		op := b.newOperation(OpOperator, operator, n)
		comparisons = append(comparisons, b.consume(op, part{left, LabelParameter}, part{right, LabelParameter}))
		left = right
	}
	if len(comparisons) == 1 {
		return comparisons[0], nil
	}
	parts := make([]part, 0, len(comparisons))
	for _, c := range comparisons {
		parts = append(parts, part{c, LabelParameter})
	}
	return b.consume(b.newOperation(OpOperator, "and", n), parts...), nil
}

func collectionLabel(typ string) string {
	switch typ {
	case "list":
		return "list"
	case "set":
		return "set"
	default:
		return "tuple"
	}
}

func (b *builder) visitCollection(n syntax.Node, label string, elements []syntax.Node) (*fragment, error) {
	parts, err := b.visitOperands(elements, LabelParameter)
	if err != nil {
		return nil, err
	}
	return b.consume(b.newOperation(OpCollection, label, n), parts...), nil
}

func (b *builder) visitDictionary(n syntax.Node) (*fragment, error) {
	var parts []part
	for _, c := range n.NamedChildren() {
		if c.Type() == "pair" {
			kv, err := b.visitOperands([]syntax.Node{c.Field("key"), c.Field("value")}, LabelParameter)
			if err != nil {
				return nil, err
			}
			parts = append(parts, kv...)
			continue
		}
		f, err := b.visitExpression(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{f, LabelParameter})
	}
	return b.consume(b.newOperation(OpCollection, "dict", n), parts...), nil
}

func (b *builder) visitBuiltinExpr(n syntax.Node, label string, operands []syntax.Node) (*fragment, error) {
	parts, err := b.visitOperands(operands, LabelParameter)
	if err != nil {
		return nil, err
	}
	return b.consume(b.newOperation(OpBuiltin, label, n), parts...), nil
}

func (b *builder) visitConditional(n syntax.Node) (*fragment, error) {
	children := n.NamedChildren()
	if len(children) != 3 {
		return nil, unsupported(n, "malformed conditional expression")
	}
	body, err := b.visitExpression(children[0])
	if err != nil {
		return nil, err
	}
	cond, err := b.visitExpression(children[1])
	if err != nil {
		return nil, err
	}
	orelse, err := b.visitExpression(children[2])
	if err != nil {
		return nil, err
	}
	op := b.newOperation(OpBuiltin, "ifexp", n)
	return b.consume(op, part{body, LabelParameter}, part{cond, LabelCondition}, part{orelse, LabelParameter}), nil
}

func (b *builder) visitNamedExpression(n syntax.Node) (*fragment, error) {
	name := n.Field("name")
	if name == nil || name.Type() != "identifier" {
		return nil, unsupported(n, "assignment expression target")
	}
	value, err := b.visitExpression(n.Field("value"))
	if err != nil {
		return nil, err
	}
	decl := b.newData(DataDecl, name.Text(), name.Text(), name, false)
	f := b.consume(decl, part{value, LabelDefinition})
	b.context().Define(decl)
	return f, nil
}

func (b *builder) visitLambda(n syntax.Node) (*fragment, error) {
	b.pushScope()
	params := emptyFragment()
	if p := n.Field("parameters"); p != nil {
		pf, err := b.visitParameters(p, false)
		if err != nil {
			return nil, err
		}
		params = pf
	}
	body, err := b.visitExpression(n.Field("body"))
	if err != nil {
		return nil, err
	}
	op := b.newOperation(OpLambda, "lambda", n)
	f := params.sequentialMerge(b.consume(op, part{body, LabelParameter}), nil, "")
	return b.popScope(f), nil
}

func comprehensionLabel(typ string) string {
	switch typ {
	case "list_comprehension":
		return "listcomp"
	case "set_comprehension":
		return "setcomp"
	case "dictionary_comprehension":
		return "dictcomp"
	default:
		return "genexp"
	}
}

func (b *builder) visitComprehension(n syntax.Node) (*fragment, error) {
	body := n.Field("body")
	if body == nil {
		return nil, unsupported(n, "comprehension without body")
	}
	b.pushScope()

	clauses := emptyFragment()
	var conditions []part
	for _, c := range n.NamedChildren() {
		switch c.Type() {
		case "for_in_clause":
			iterParts, err := b.visitOperands(c.FieldAll("right"), LabelParameter)
			if err != nil {
				return nil, err
			}
			iters := make([]*fragment, 0, len(iterParts))
			for _, p := range iterParts {
				iters = append(iters, p.frag)
			}
			iter := emptyFragment().parallelMerge(iters, "")
			target, err := b.bind(c.Field("left"), iter.sinks, false)
			if err != nil {
				return nil, err
			}
			clauses = clauses.sequentialMerge(iter, nil, "").sequentialMerge(target, nil, "")
		case "if_clause":
			cond, err := b.visitExpression(syntax.NamedChild(c, 0))
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, part{cond, LabelCondition})
		}
	}

	var (
		value []part
		err   error
	)
	if body.Type() == "pair" {
		value, err = b.visitOperands([]syntax.Node{body.Field("key"), body.Field("value")}, LabelParameter)
	} else {
		value, err = b.visitOperands([]syntax.Node{body}, LabelParameter)
	}
	if err != nil {
		return nil, err
	}
	op := b.newOperation(OpComprehension, comprehensionLabel(n.Type()), n)
	f := clauses.sequentialMerge(b.consume(op, append(value, conditions...)...), nil, "")
	return b.popScope(f), nil
}

// visitParameters declares the function or lambda parameters. Parameters with
// defaults are modelled as assignments of the default value.
func (b *builder) visitParameters(params syntax.Node, statement bool) (*fragment, error) {
	out := emptyFragment()
	for _, p := range params.NamedChildren() {
		var (
			name  syntax.Node
			value syntax.Node
		)
		switch p.Type() {
		case "identifier":
			name = p
		case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			name = parameterName(p)
		case "default_parameter", "typed_default_parameter":
			name = parameterName(p.Field("name"))
			value = p.Field("value")
		case "keyword_separator", "positional_separator":
			continue
		default:
			return nil, unsupported(p, "parameter")
		}
		if name == nil {
			return nil, unsupported(p, "parameter without name")
		}

		var pf *fragment
		if value != nil {
			vf, err := b.visitExpression(value)
			if err != nil {
				return nil, err
			}
			decl := b.newData(DataDecl, name.Text(), name.Text(), name, statement)
			pf = b.consume(decl, part{vf, LabelDefinition})
			b.context().Define(decl)
		} else {
			decl := b.newData(DataDecl, name.Text(), name.Text(), name, statement)
			pf = single(decl)
			b.context().Define(decl)
		}
		out = out.sequentialMerge(pf, nil, "")
	}
	return out, nil
}

func parameterName(n syntax.Node) syntax.Node {
	for n != nil && n.Type() != "identifier" {
		n = syntax.NamedChild(n, 0)
	}
	return n
}
