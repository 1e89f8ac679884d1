package vm

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ---------------------------------------------------------------------------
// Program: an arena of expression nodes plus per-instance annotations
// ---------------------------------------------------------------------------

// NodeID addresses a node inside a program arena. Copies of a program share
// node ids, which is how a node is matched with its counterpart on other
// devices and in earlier rounds.
type NodeID int32

// NoNode marks an absent node reference.
const NoNode NodeID = -1

// MaxDepth bounds nested node evaluation, including function calls.
const MaxDepth = 4096

// Node is an expression-tree node. Nodes are immutable descriptions of
// structure; everything computed while evaluating lives in the Program that
// holds them, so a node may be shared by any number of program copies.
type Node interface {
	// Op returns a short operator name used in errors and debugging output.
	Op() string

	// Branches returns the owned child nodes in declaration order.
	Branches() []NodeID

	// Eval computes the node's annotation for the current round. The default
	// composite behavior is f.EvalBranches() followed by a computation over
	// the branch annotations.
	Eval(f *Frame) (Value, error)

	describe(w *treeWriter)
	equal(other Node) bool
}

// code is the immutable part of a program.
type code struct {
	nodes []Node
	root  NodeID
}

// Program is a compiled program: an arena of nodes addressed by NodeID and
// the annotation (most recent result) of each node.
//
// A Program is not safe for concurrent use. Each device evaluates its own
// Copy; copies share no mutable state.
type Program struct {
	code        *code
	annotations []Value // nil entry: not evaluated yet
}

// NewProgram checks that nodes form a single tree rooted at root, in which
// every node is owned by exactly one parent, and returns a program over it.
func NewProgram(nodes []Node, root NodeID) (*Program, error) {
	c := &code{nodes: slices.Clone(nodes), root: root}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &Program{code: c, annotations: make([]Value, len(c.nodes))}, nil
}

func (c *code) validate() error {
	n := NodeID(len(c.nodes))
	if c.root < 0 || c.root >= n {
		return fmt.Errorf("%w: root %d outside arena of %d nodes", ErrArgument, c.root, n)
	}
	seen := make([]bool, n)
	stack := []NodeID{c.root}
	seen[c.root] = true
	visited := 0
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++
		node := c.nodes[id]
		if node == nil {
			return fmt.Errorf("%w: node %d is nil", ErrNullReference, id)
		}
		for _, b := range node.Branches() {
			if b < 0 || b >= n {
				return fmt.Errorf("%w: node %d (%s) references branch %d outside arena", ErrArgument, id, node.Op(), b)
			}
			if seen[b] {
				return fmt.Errorf("%w: node %d is owned by more than one parent", ErrArgument, b)
			}
			seen[b] = true
			stack = append(stack, b)
		}
	}
	if visited != len(c.nodes) {
		return fmt.Errorf("%w: %d node(s) unreachable from root %d", ErrArgument, len(c.nodes)-visited, c.root)
	}
	return nil
}

// Copy returns an independent instance of the program. The copy starts with
// the same annotations as p but never shares mutable state with it.
func (p *Program) Copy() *Program {
	return &Program{code: p.code, annotations: slices.Clone(p.annotations)}
}

// Root returns the id of the root node.
func (p *Program) Root() NodeID { return p.code.root }

// Len returns the number of nodes in the arena.
func (p *Program) Len() int { return len(p.code.nodes) }

// Node returns the node with the given id.
func (p *Program) Node(id NodeID) Node { return p.code.nodes[id] }

// Nodes returns the arena in id order.
func (p *Program) Nodes() []Node { return slices.Clone(p.code.nodes) }

// Annotation returns the root's result from the last successful round.
func (p *Program) Annotation() (Value, bool) {
	return p.AnnotationOf(p.code.root)
}

// AnnotationOf returns the most recent successfully computed value of a
// node. ok is false if the node has never been evaluated.
func (p *Program) AnnotationOf(id NodeID) (Value, bool) {
	if id < 0 || int(id) >= len(p.annotations) {
		return nil, false
	}
	v := p.annotations[id]
	return v, v != nil
}

// Eval runs one round against ctx. Annotations are committed only if the
// whole round succeeds; after a failure the program still holds the values
// of the last successful round.
func (p *Program) Eval(ctx Context) error {
	if ctx == nil {
		return fmt.Errorf("%w: nil execution context", ErrNullReference)
	}
	ev := &evaluator{code: p.code, ctx: ctx, ann: slices.Clone(p.annotations)}
	if _, err := ev.eval(p.code.root); err != nil {
		return err
	}
	p.annotations = ev.ann
	return nil
}

// Equal reports whether both programs have structurally identical arenas.
func (p *Program) Equal(other *Program) bool {
	if other == nil {
		return false
	}
	if p.code == other.code {
		return true
	}
	if p.code.root != other.code.root || len(p.code.nodes) != len(other.code.nodes) {
		return false
	}
	for i, n := range p.code.nodes {
		if !n.equal(other.code.nodes[i]) {
			return false
		}
	}
	return true
}

// String returns an indented rendering of the program tree.
func (p *Program) String() string {
	w := &treeWriter{code: p.code}
	w.node(p.code.root)
	return w.sb.String()
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

type evaluator struct {
	code  *code
	ctx   Context
	ann   []Value
	depth int
}

func (e *evaluator) eval(id NodeID) (Value, error) {
	if e.depth >= MaxDepth {
		return nil, &EvalError{Node: id, Op: e.code.nodes[id].Op(), Err: ErrRecursionLimit}
	}
	e.depth++
	defer func() { e.depth-- }()

	n := e.code.nodes[id]
	v, err := n.Eval(&Frame{ev: e, id: id, node: n, branches: n.Branches()})
	if err != nil {
		var ee *EvalError
		if !errors.As(err, &ee) {
			err = &EvalError{Node: id, Op: n.Op(), Err: err}
		}
		return nil, err
	}
	v = orNull(v)
	e.ann[id] = v
	return v, nil
}

// Frame is the view a node gets of the evaluation in progress.
type Frame struct {
	ev       *evaluator
	id       NodeID
	node     Node
	branches []NodeID
}

// ID returns the id of the node being evaluated.
func (f *Frame) ID() NodeID { return f.id }

// Context returns the execution context of the round.
func (f *Frame) Context() Context { return f.ev.ctx }

// NumBranches returns the number of branches of the node.
func (f *Frame) NumBranches() int { return len(f.branches) }

// EvalBranches evaluates every branch left to right. Order matters: branches
// may change the context, e.g. by binding variables.
func (f *Frame) EvalBranches() error {
	for _, b := range f.branches {
		if _, err := f.ev.eval(b); err != nil {
			return err
		}
	}
	return nil
}

// EvalBranch evaluates branch i only.
func (f *Frame) EvalBranch(i int) (Value, error) {
	return f.ev.eval(f.branches[i])
}

// Branch returns the current annotation of branch i, or nil if it has never
// been evaluated.
func (f *Frame) Branch(i int) Value {
	return f.ev.ann[f.branches[i]]
}

// BranchValues returns the annotations of branches [from, NumBranches()).
func (f *Frame) BranchValues(from int) []Value {
	out := make([]Value, 0, len(f.branches)-from)
	for _, b := range f.branches[from:] {
		out = append(out, orNull(f.ev.ann[b]))
	}
	return out
}

// Apply calls fn with args. Interpreted functions run in a fresh scope of the
// round's context holding their parameters; they may still assign to
// variables of enclosing scopes.
func (f *Frame) Apply(fn *Function, args []Value) (Value, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: call of nil function", ErrNullReference)
	}
	if len(args) != fn.Arity() {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrArgument, fn.Name(), fn.Arity(), len(args))
	}
	if fn.native != nil {
		v, err := fn.native(args)
		return orNull(v), err
	}
	if fn.code != f.ev.code {
		return nil, fmt.Errorf("%w: %s belongs to a different program", ErrArgument, fn.Name())
	}
	ctx := f.ev.ctx
	ctx.PushScope()
	defer ctx.PopScope()
	for i, name := range fn.params {
		if err := ctx.PutVariable(name, args[i], true); err != nil {
			return nil, err
		}
	}
	return f.ev.eval(fn.body)
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

type treeWriter struct {
	sb     strings.Builder
	code   *code
	indent int
}

func (w *treeWriter) node(id NodeID) { w.code.nodes[id].describe(w) }

func (w *treeWriter) write(s string) { w.sb.WriteString(s) }

func (w *treeWriter) newline() {
	w.sb.WriteByte('\n')
	for range w.indent {
		w.sb.WriteString("  ")
	}
}

// nested renders id on its own line, one level deeper.
func (w *treeWriter) nested(id NodeID) {
	w.indent++
	w.newline()
	w.node(id)
	w.indent--
}

// list renders ids separated by sep, each on its own line one level deeper.
func (w *treeWriter) list(ids []NodeID, sep string) {
	for i, id := range ids {
		if i > 0 {
			w.write(sep)
		}
		w.nested(id)
	}
}
