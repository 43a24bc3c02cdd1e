package flowgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/l3aro/go-pattern-miner/internal/log"
	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

// Option configures Build.
type Option func(*builder)

// WithLogger sets the logger used for skipped statements.
func WithLogger(l log.Logger) Option {
	return func(b *builder) { b.logger = l }
}

// WithoutResolution returns the raw graph, with provisional dependence edges
// and empty nodes still present. It implies WithoutClosure.
func WithoutResolution() Option {
	return func(b *builder) {
		b.resolve = false
		b.closure = false
	}
}

// WithoutClosure skips the transitive closure pass.
func WithoutClosure() Option {
	return func(b *builder) { b.closure = false }
}

type builder struct {
	graph    *FlowGraph
	nextID   int
	contexts []*BuildingContext
	branches BranchStack
	logger   log.Logger
	resolve  bool
	closure  bool

	parseErrors int
}

// Build constructs the flow graph of a function_definition node. Statements
// the builder cannot model are skipped and recorded in Diagnostics; problems
// with the function signature itself abort the build.
func Build(fn syntax.Node, opts ...Option) (*FlowGraph, error) {
	if fn == nil || fn.Type() != "function_definition" {
		return nil, unsupported(fn, "expected a function definition")
	}
	nameNode, body := fn.Field("name"), fn.Field("body")
	if nameNode == nil || body == nil {
		return nil, unsupported(fn, "function without name or body")
	}
	name := nameNode.Text()
	params := fn.Field("parameters")
	if malformed(nameNode) || (params != nil && malformed(params)) {
		return nil, unsupported(fn, "parse error in signature")
	}

	b, err := newBuilder(name, fn, opts...)
	if err != nil {
		return nil, err
	}

	frag := emptyFragment()
	if params != nil {
		pf, err := b.visitParameters(params, true)
		if err != nil {
			return nil, fmt.Errorf("building %s: %w", name, err)
		}
		frag = frag.sequentialMerge(pf, nil, "")
	}

	bf, err := b.visitBlock(body)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", name, err)
	}
	frag = frag.sequentialMerge(bf, nil, "")
	if b.parseErrors == 0 && (fn.HasError() || len(body.NamedChildren()) == 0) {
		// The parser dropped part of the body without leaving an error node
		// among its statements.
		b.skip(&UnsupportedError{Type: body.Type(), Line: body.Line(), Reason: "parse error"})
	}

	g := b.graph
	g.Sinks = frag.sinks.sorted()
	g.StatementSinks = frag.statementSinks.sorted()
	g.StatementSources = frag.statementSources.sorted()
	for _, ref := range frag.refs {
		if g.Node(ref.ID()) != nil {
			g.VariableReferences = append(g.VariableReferences, ref)
		}
	}

	if err := b.finish(g); err != nil {
		return nil, fmt.Errorf("building %s: %w", name, err)
	}
	return g, nil
}

// finish resolves the provisional dependences of g, checks that the result is
// acyclic and adds the closure edges.
func (b *builder) finish(g *FlowGraph) error {
	if !b.resolve {
		return nil
	}
	ResolveDependences(g)
	if err := g.Validate(); err != nil {
		return err
	}
	if b.closure {
		BuildClosure(g)
	}
	return nil
}

func newBuilder(name string, fn syntax.Node, opts ...Option) (*builder, error) {
	b := &builder{
		graph:    newFlowGraph(name),
		contexts: []*BuildingContext{NewBuildingContext()},
		logger:   log.Nop(),
		resolve:  true,
		closure:  true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.addEntry(name, fn); err != nil {
		return nil, err
	}
	b.branches = BranchStack{{Kind: true}}
	return b, nil
}

func (b *builder) addEntry(name string, fn syntax.Node) error {
	e := &EntryNode{}
	e.id = b.nextID
	e.label = name
	e.ast = fn
	if err := b.graph.setEntry(e); err != nil {
		return err
	}
	b.nextID++
	return nil
}

// register assigns the next statement number, snapshots the branch stack and,
// for statements, links the innermost governing construct.
func (b *builder) register(n Node, label string, ast syntax.Node, statement bool) {
	nb := n.base()
	nb.id = b.nextID
	b.nextID++
	nb.label = label
	nb.ast = ast
	nb.statement = statement
	nb.stack = b.branches.clone()
	b.graph.addNode(n)

	if !statement {
		return
	}
	frame := b.branches.Innermost()
	var governor Node = b.graph.Entry()
	if frame.Control != nil {
		governor = frame.Control
	}
	addEdge(governor, n, LabelControl, frame.Kind, false)
}

func (b *builder) newData(kind DataKind, label, key string, ast syntax.Node, statement bool) *DataNode {
	n := &DataNode{Kind: kind, Key: key}
	b.register(n, label, ast, statement)
	return n
}

func (b *builder) newOperation(kind OperationKind, label string, ast syntax.Node) *OperationNode {
	n := &OperationNode{Kind: kind}
	b.register(n, label, ast, true)
	return n
}

func (b *builder) newControl(kind ControlKind, ast syntax.Node) *ControlNode {
	n := &ControlNode{Kind: kind}
	b.register(n, string(kind), ast, true)
	return n
}

func (b *builder) newEmpty(ast syntax.Node) *EmptyNode {
	n := &EmptyNode{}
	b.register(n, "empty", ast, true)
	return n
}

func (b *builder) context() *BuildingContext {
	return b.contexts[len(b.contexts)-1]
}

func (b *builder) setContext(c *BuildingContext) {
	b.contexts[len(b.contexts)-1] = c
}

// pushScope forks the current context for a lambda or comprehension.
func (b *builder) pushScope() {
	b.contexts = append(b.contexts, b.context().Fork())
}

// popScope leaves a nested scope and retries its unresolved references
// against the enclosing one.
func (b *builder) popScope(f *fragment) *fragment {
	b.contexts = b.contexts[:len(b.contexts)-1]
	var pending []*DataNode
	for _, ref := range f.refs {
		if !b.resolveReference(ref) {
			pending = append(pending, ref)
		}
	}
	out := *f
	out.refs = pending
	return &out
}

// enterBranch pushes a frame and installs ctx for the branch body.
func (b *builder) enterBranch(c *ControlNode, kind bool, ctx *BuildingContext) {
	b.branches = append(b.branches.clone(), BranchFrame{Control: c, Kind: kind})
	b.setContext(ctx)
}

// leaveBranch pops the frame and returns the context the body ended with.
func (b *builder) leaveBranch() *BuildingContext {
	b.branches = b.branches[:len(b.branches)-1].clone()
	return b.context()
}

// resolveReference links every earlier reaching definition of ref's key.
func (b *builder) resolveReference(ref *DataNode) bool {
	found := false
	for _, d := range b.context().Definitions(ref.Key) {
		if d.ID() < ref.ID() {
			addEdge(d, ref, LabelReference, false, false)
			found = true
		}
	}
	return found
}

type checkpoint struct {
	nextID   int
	depth    int
	context  *BuildingContext
	branches BranchStack
}

func (b *builder) checkpoint() checkpoint {
	return checkpoint{
		nextID:   b.nextID,
		depth:    len(b.contexts),
		context:  b.context().Fork(),
		branches: b.branches.clone(),
	}
}

// rollback removes everything a failed statement created.
func (b *builder) rollback(cp checkpoint) {
	for _, n := range b.graph.Nodes() {
		if n.ID() >= cp.nextID {
			b.graph.removeNode(n)
		}
	}
	b.nextID = cp.nextID
	b.contexts = b.contexts[:cp.depth]
	b.setContext(cp.context)
	b.branches = cp.branches
}

func (b *builder) skip(err *UnsupportedError) {
	b.graph.Diagnostics = append(b.graph.Diagnostics, Diagnostic{
		Line:      err.Line,
		Construct: err.Type,
		Message:   err.Error(),
	})
	b.logger.Debug("skipping statement", "function", b.graph.Name, "line", err.Line, "construct", err.Type)
}

// visitBlock visits the statements of a block in order, skipping the ones
// that cannot be modelled.
func (b *builder) visitBlock(block syntax.Node) (*fragment, error) {
	frag := emptyFragment()
	if block == nil {
		return frag, nil
	}
	for _, stmt := range block.NamedChildren() {
		cp := b.checkpoint()
		var (
			sf  *fragment
			err error
		)
		if malformed(stmt) {
			b.parseErrors++
			err = unsupported(stmt, "parse error")
		} else {
			sf, err = b.visitStatement(stmt)
		}
		if err != nil {
			var u *UnsupportedError
			if errors.As(err, &u) {
				b.rollback(cp)
				b.skip(u)
				continue
			}
			return nil, err
		}
		frag = frag.sequentialMerge(sf, nil, "")
	}
	return frag, nil
}

// malformed reports whether n holds a parse error outside its nested blocks.
// Errors inside a block belong to the statements of that block.
func malformed(n syntax.Node) bool {
	if n.Type() == "ERROR" {
		return true
	}
	if !n.HasError() || n.Type() == "block" {
		return false
	}
	children := n.Children()
	if len(children) == 0 {
		// Missing token inserted by the parser.
		return true
	}
	for _, c := range children {
		if malformed(c) {
			return true
		}
	}
	return false
}

func (b *builder) visitStatement(n syntax.Node) (*fragment, error) {
	switch n.Type() {
	case "expression_statement":
		return b.visitExpressionStatement(n)
	case "return_statement":
		return b.visitTerminal(n, "return", n.NamedChildren())
	case "raise_statement":
		return b.visitTerminal(n, "raise", n.NamedChildren())
	case "break_statement":
		return b.visitTerminal(n, "break", nil)
	case "continue_statement":
		return b.visitTerminal(n, "continue", nil)
	case "pass_statement":
		return emptyFragment(), nil
	case "assert_statement":
		return b.visitBuiltin(n, "assert", n.NamedChildren())
	case "delete_statement":
		return b.visitBuiltin(n, "del", n.NamedChildren())
	case "if_statement":
		return b.visitIf(n, n.Field("condition"), n.Field("consequence"), n.FieldAll("alternative"))
	case "for_statement":
		return b.visitFor(n)
	case "while_statement":
		return b.visitWhile(n)
	case "try_statement":
		return b.visitTry(n)
	case "with_statement":
		return b.visitWith(n)
	default:
		return nil, unsupported(n, "")
	}
}

func (b *builder) visitExpressionStatement(n syntax.Node) (*fragment, error) {
	out := emptyFragment()
	for _, child := range n.NamedChildren() {
		var (
			f   *fragment
			err error
		)
		switch child.Type() {
		case "assignment":
			f, err = b.visitAssignment(child)
		case "augmented_assignment":
			f, err = b.visitAugmentedAssignment(child)
		default:
			f, err = b.visitExpression(child)
		}
		if err != nil {
			return nil, err
		}
		out = out.sequentialMerge(f, nil, "")
	}
	return out, nil
}

// visitTerminal handles return, raise, break and continue. Definitions made
// under the current branch no longer reach anything after it.
func (b *builder) visitTerminal(n syntax.Node, label string, operands []syntax.Node) (*fragment, error) {
	parts, err := b.visitOperands(operands, LabelParameter)
	if err != nil {
		return nil, err
	}
	op := b.newOperation(OpTerminal, label, n)
	f := b.consume(op, parts...)
	b.context().RemoveVariables(b.branches)
	if label == "return" || label == "raise" {
		return f.exiting(), nil
	}
	return f.terminated(), nil
}

func (b *builder) visitBuiltin(n syntax.Node, label string, operands []syntax.Node) (*fragment, error) {
	parts, err := b.visitOperands(operands, LabelParameter)
	if err != nil {
		return nil, err
	}
	return b.consume(b.newOperation(OpBuiltin, label, n), parts...), nil
}

func (b *builder) visitIf(n, cond, consequence syntax.Node, alternatives []syntax.Node) (*fragment, error) {
	if cond == nil || consequence == nil {
		return nil, unsupported(n, "if without condition or body")
	}
	condFrag, err := b.visitExpression(cond)
	if err != nil {
		return nil, err
	}
	ctrl := b.newControl(ControlIf, n)
	head := condFrag.sequentialMerge(single(ctrl), ctrl, LabelCondition)
	pre := b.context()

	b.enterBranch(ctrl, true, pre.Fork())
	trueArm, err := b.visitBlock(consequence)
	if err != nil {
		return nil, err
	}
	trueArm = b.placeholder(trueArm, consequence)
	trueCtx := b.leaveBranch()

	b.enterBranch(ctrl, false, pre.Fork())
	falseArm := emptyFragment()
	switch {
	case len(alternatives) == 0:
	case alternatives[0].Type() == "elif_clause":
		elif := alternatives[0]
		falseArm, err = b.visitIf(elif, elif.Field("condition"), elif.Field("consequence"), alternatives[1:])
	case alternatives[0].Type() == "else_clause":
		falseArm, err = b.visitBlock(alternatives[0].Field("body"))
	default:
		err = unsupported(alternatives[0], "unexpected if alternative")
	}
	if err != nil {
		return nil, err
	}
	falseArm = b.placeholder(falseArm, n)
	falseCtx := b.leaveBranch()

	b.setContext(Union(reaching([]*fragment{trueArm, falseArm}, []*BuildingContext{trueCtx, falseCtx})...))
	return head.parallelMerge([]*fragment{trueArm, falseArm}, ""), nil
}

// reaching returns the contexts of the arms that fall through to the next
// statement. When every arm leaves the function all contexts are kept, so that
// unreachable code still resolves its names.
func reaching(arms []*fragment, contexts []*BuildingContext) []*BuildingContext {
	var out []*BuildingContext
	for i, arm := range arms {
		if !arm.exits {
			out = append(out, contexts[i])
		}
	}
	if len(out) == 0 {
		return contexts
	}
	return out
}

// placeholder gives a branch arm without statements an empty node, so that
// statements following the if can be re-parented under the other arm.
func (b *builder) placeholder(arm *fragment, ast syntax.Node) *fragment {
	if arm.hasStatements() {
		return arm
	}
	return arm.sequentialMerge(single(b.newEmpty(ast)), nil, "")
}

func (b *builder) visitFor(n syntax.Node) (*fragment, error) {
	left, right := n.Field("left"), n.Field("right")
	if left == nil || right == nil {
		return nil, unsupported(n, "for without target or iterable")
	}
	if strings.HasPrefix(n.Text(), "async") {
		return nil, unsupported(n, "async for")
	}
	iter, err := b.visitExpression(right)
	if err != nil {
		return nil, err
	}
	ctrl := b.newControl(ControlFor, n)
	head := iter.sequentialMerge(single(ctrl), ctrl, LabelCondition)
	target, err := b.bind(left, iter.sinks, true)
	if err != nil {
		return nil, err
	}
	head = head.sequentialMerge(target, nil, "")
	b.noteLoopElse(n)
	return b.loopBody(head, ctrl, n.Field("body"))
}

func (b *builder) visitWhile(n syntax.Node) (*fragment, error) {
	cond := n.Field("condition")
	if cond == nil {
		return nil, unsupported(n, "while without condition")
	}
	condFrag, err := b.visitExpression(cond)
	if err != nil {
		return nil, err
	}
	ctrl := b.newControl(ControlWhile, n)
	head := condFrag.sequentialMerge(single(ctrl), ctrl, LabelCondition)
	b.noteLoopElse(n)
	return b.loopBody(head, ctrl, n.Field("body"))
}

func (b *builder) loopBody(head *fragment, ctrl *ControlNode, body syntax.Node) (*fragment, error) {
	pre := b.context()
	b.enterBranch(ctrl, true, pre.Fork())
	bodyFrag, err := b.visitBlock(body)
	if err != nil {
		return nil, err
	}
	bodyCtx := b.leaveBranch()
	b.setContext(Union(pre, bodyCtx))
	out := head.parallelMerge([]*fragment{bodyFrag}, "").withoutStatementSinks()
	// The body may not run at all.
	out.exits = false
	return out, nil
}

func (b *builder) noteLoopElse(n syntax.Node) {
	if alt := n.Field("alternative"); alt != nil {
		b.skip(&UnsupportedError{Type: alt.Type(), Line: alt.Line(), Reason: "loop else clause is not modelled"})
	}
}

func (b *builder) visitTry(n syntax.Node) (*fragment, error) {
	ctrl := b.newControl(ControlTry, n)
	head := single(ctrl)
	pre := b.context()

	b.enterBranch(ctrl, true, pre.Fork())
	body, err := b.visitBlock(n.Field("body"))
	if err != nil {
		return nil, err
	}
	if elseClause := syntax.FirstOfType(n, "else_clause"); elseClause != nil {
		ef, err := b.visitBlock(elseClause.Field("body"))
		if err != nil {
			return nil, err
		}
		body = body.sequentialMerge(ef, nil, "")
	}
	tryCtx := b.leaveBranch()

	handlerBase := Union(pre, tryCtx)
	arms := []*fragment{body}
	contexts := []*BuildingContext{tryCtx}
	for _, clause := range n.NamedChildren() {
		if clause.Type() != "except_clause" && clause.Type() != "except_group_clause" {
			continue
		}
		b.enterBranch(ctrl, false, handlerBase.Fork())
		hf, err := b.visitHandler(clause)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, b.leaveBranch())
		arms = append(arms, hf)
	}
	b.setContext(Union(reaching(arms, contexts)...))
	out := head.parallelMerge(arms, "").withoutStatementSinks()

	if finally := syntax.FirstOfType(n, "finally_clause"); finally != nil {
		ff, err := b.visitBlock(syntax.FirstOfType(finally, "block"))
		if err != nil {
			return nil, err
		}
		out = out.sequentialMerge(ff, nil, "")
	}
	return out, nil
}

func (b *builder) visitHandler(clause syntax.Node) (*fragment, error) {
	var (
		exprs []syntax.Node
		block syntax.Node
	)
	for _, c := range clause.NamedChildren() {
		if c.Type() == "block" {
			block = c
			continue
		}
		exprs = append(exprs, c)
	}

	var typeExpr, alias syntax.Node
	switch {
	case len(exprs) > 0 && exprs[0].Type() == "as_pattern":
		typeExpr = syntax.NamedChild(exprs[0], 0)
		alias = patternTarget(exprs[0].Field("alias"))
	case len(exprs) > 0:
		typeExpr = exprs[0]
		if len(exprs) > 1 {
			alias = patternTarget(exprs[1])
		}
	}

	head := emptyFragment()
	if typeExpr != nil {
		tf, err := b.visitExpression(typeExpr)
		if err != nil {
			return nil, err
		}
		head = tf
	}
	ctrl := b.newControl(ControlExcept, clause)
	sources := head.sinks
	head = head.sequentialMerge(single(ctrl), ctrl, LabelCondition)
	if alias != nil {
		if len(sources) == 0 {
			sources = newNodeSet(ctrl)
		}
		af, err := b.bind(alias, sources, true)
		if err != nil {
			return nil, err
		}
		head = head.sequentialMerge(af, nil, "")
	}

	b.enterBranch(ctrl, true, b.context().Fork())
	bodyFrag, err := b.visitBlock(block)
	if err != nil {
		return nil, err
	}
	b.setContext(b.leaveBranch())
	return head.parallelMerge([]*fragment{bodyFrag}, ""), nil
}

func (b *builder) visitWith(n syntax.Node) (*fragment, error) {
	if strings.HasPrefix(n.Text(), "async") {
		return nil, unsupported(n, "async with")
	}
	out := emptyFragment()
	var items []syntax.Node
	if clause := syntax.FirstOfType(n, "with_clause"); clause != nil {
		items = syntax.ChildrenOfType(clause, "with_item")
	}
	for _, item := range items {
		value := item.Field("value")
		alias := patternTarget(item.Field("alias"))
		if value != nil && value.Type() == "as_pattern" {
			alias = patternTarget(value.Field("alias"))
			value = syntax.NamedChild(value, 0)
		}
		if value == nil {
			return nil, unsupported(item, "with item without value")
		}
		vf, err := b.visitExpression(value)
		if err != nil {
			return nil, err
		}
		out = out.sequentialMerge(vf, nil, "")
		if alias != nil {
			af, err := b.bind(alias, vf.sinks, true)
			if err != nil {
				return nil, err
			}
			out = out.sequentialMerge(af, nil, "")
		}
	}
	body, err := b.visitBlock(n.Field("body"))
	if err != nil {
		return nil, err
	}
	return out.sequentialMerge(body, nil, ""), nil
}

// patternTarget unwraps the as_pattern_target wrapper used by newer grammars.
func patternTarget(n syntax.Node) syntax.Node {
	if n != nil && n.Type() == "as_pattern_target" {
		if inner := syntax.NamedChild(n, 0); inner != nil {
			return inner
		}
	}
	return n
}
