package vm

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Leaf nodes
// ---------------------------------------------------------------------------

// Constant evaluates to a fixed value.
type Constant struct {
	Value Value
}

func (*Constant) Op() string         { return "const" }
func (*Constant) Branches() []NodeID { return nil }

func (n *Constant) Eval(*Frame) (Value, error) {
	return orNull(n.Value), nil
}

func (n *Constant) describe(w *treeWriter) {
	if s, ok := n.Value.(Str); ok {
		w.write(strconv.Quote(string(s)))
		return
	}
	w.write(Format(n.Value))
}

func (n *Constant) equal(o Node) bool {
	m, ok := o.(*Constant)
	return ok && Equal(n.Value, m.Value)
}

// Variable evaluates to the value bound to Name.
type Variable struct {
	Name string
}

func (*Variable) Op() string         { return "var" }
func (*Variable) Branches() []NodeID { return nil }

func (n *Variable) Eval(f *Frame) (Value, error) {
	v, ok := f.Context().Variable(n.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUndefinedVariable, n.Name)
	}
	return v, nil
}

func (n *Variable) describe(w *treeWriter) { w.write(n.Name) }

func (n *Variable) equal(o Node) bool {
	m, ok := o.(*Variable)
	return ok && n.Name == m.Name
}

// Self evaluates to the identity of the evaluating device.
type Self struct{}

func (*Self) Op() string         { return "self" }
func (*Self) Branches() []NodeID { return nil }

func (*Self) Eval(f *Frame) (Value, error) {
	return Str(f.Context().DeviceUID()), nil
}

func (*Self) describe(w *treeWriter) { w.write("self.getDeviceUID()") }

func (*Self) equal(o Node) bool {
	_, ok := o.(*Self)
	return ok
}

// NbrRange evaluates to the field of distances to the neighbors. The context
// must implement SpatialContext.
type NbrRange struct{}

func (*NbrRange) Op() string         { return "nbrRange" }
func (*NbrRange) Branches() []NodeID { return nil }

func (*NbrRange) Eval(f *Frame) (Value, error) {
	sc, ok := f.Context().(SpatialContext)
	if !ok {
		return nil, fmt.Errorf("%w: nbrRange needs a spatial context", ErrUnsupported)
	}
	return sc.NbrRange(), nil
}

func (*NbrRange) describe(w *treeWriter) { w.write("self.nbrRange()") }

func (*NbrRange) equal(o Node) bool {
	_, ok := o.(*NbrRange)
	return ok
}

// ---------------------------------------------------------------------------
// Composite nodes
// ---------------------------------------------------------------------------

// Block evaluates its statements in order inside a new lexical scope and
// yields the value of the last one.
type Block struct {
	Body []NodeID
}

func (*Block) Op() string           { return "block" }
func (n *Block) Branches() []NodeID { return n.Body }

func (n *Block) Eval(f *Frame) (Value, error) {
	ctx := f.Context()
	ctx.PushScope()
	defer ctx.PopScope()
	if err := f.EvalBranches(); err != nil {
		return nil, err
	}
	if f.NumBranches() == 0 {
		return Null{}, nil
	}
	return f.Branch(f.NumBranches() - 1), nil
}

func (n *Block) describe(w *treeWriter) {
	w.write("{")
	w.list(n.Body, ";")
	w.newline()
	w.write("}")
}

func (n *Block) equal(o Node) bool {
	m, ok := o.(*Block)
	return ok && slices.Equal(n.Body, m.Body)
}

// Lambda evaluates to a function whose body is its single branch. The body
// is evaluated only when the function is applied.
type Lambda struct {
	Name   string
	Params []string
	Body   NodeID
}

func (*Lambda) Op() string           { return "lambda" }
func (n *Lambda) Branches() []NodeID { return []NodeID{n.Body} }

func (n *Lambda) Eval(f *Frame) (Value, error) {
	name := n.Name
	if name == "" {
		name = "lambda"
	}
	return &Function{
		name:   name,
		params: slices.Clone(n.Params),
		code:   f.ev.code,
		body:   n.Body,
	}, nil
}

func (n *Lambda) describe(w *treeWriter) {
	if n.Name != "" {
		w.write("def " + n.Name)
	}
	w.write("(" + strings.Join(n.Params, ", ") + ") ->")
	w.nested(n.Body)
}

func (n *Lambda) equal(o Node) bool {
	m, ok := o.(*Lambda)
	return ok && n.Name == m.Name && n.Body == m.Body && slices.Equal(n.Params, m.Params)
}

// Call applies the function computed by Fn to the values of Args.
type Call struct {
	Fn   NodeID
	Args []NodeID
}

func (*Call) Op() string { return "call" }

func (n *Call) Branches() []NodeID {
	return append([]NodeID{n.Fn}, n.Args...)
}

func (n *Call) Eval(f *Frame) (Value, error) {
	if err := f.EvalBranches(); err != nil {
		return nil, err
	}
	fn, ok := f.Branch(0).(*Function)
	if !ok {
		return nil, fmt.Errorf("%w: cannot call %s", ErrType, orNull(f.Branch(0)).Kind())
	}
	return f.Apply(fn, f.BranchValues(1))
}

func (n *Call) describe(w *treeWriter) {
	w.node(n.Fn)
	w.write(".apply(")
	w.list(n.Args, ",")
	w.write(")")
}

func (n *Call) equal(o Node) bool {
	m, ok := o.(*Call)
	return ok && n.Fn == m.Fn && slices.Equal(n.Args, m.Args)
}

// If evaluates Cond and then only the selected branch. The other branch
// keeps the annotation of the last round in which it was evaluated.
type If struct {
	Cond, Then, Else NodeID
}

func (*If) Op() string           { return "if" }
func (n *If) Branches() []NodeID { return []NodeID{n.Cond, n.Then, n.Else} }

func (n *If) Eval(f *Frame) (Value, error) {
	c, err := f.EvalBranch(0)
	if err != nil {
		return nil, err
	}
	b, ok := c.(Bool)
	if !ok {
		return nil, fmt.Errorf("%w: condition is %s, want bool", ErrType, c.Kind())
	}
	if b {
		return f.EvalBranch(1)
	}
	return f.EvalBranch(2)
}

func (n *If) describe(w *treeWriter) {
	w.write("if (")
	w.node(n.Cond)
	w.write(") {")
	w.nested(n.Then)
	w.newline()
	w.write("} else {")
	w.nested(n.Else)
	w.newline()
	w.write("}")
}

func (n *If) equal(o Node) bool {
	m, ok := o.(*If)
	return ok && *n == *m
}

// Nbr publishes the value of its branch to the neighbors and evaluates to
// the field of what the neighbors published for the same node. Without a
// NeighborContext the field holds only the local value.
type Nbr struct {
	Value NodeID
}

func (*Nbr) Op() string           { return "nbr" }
func (n *Nbr) Branches() []NodeID { return []NodeID{n.Value} }

func (n *Nbr) Eval(f *Frame) (Value, error) {
	if err := f.EvalBranches(); err != nil {
		return nil, err
	}
	local := f.Branch(0)
	if nc, ok := f.Context().(NeighborContext); ok {
		return nc.NeighborField(f.ID(), local), nil
	}
	return NewField(f.Context().DeviceUID(), local, nil), nil
}

func (n *Nbr) describe(w *treeWriter) {
	w.write("nbr(")
	w.nested(n.Value)
	w.write(")")
}

func (n *Nbr) equal(o Node) bool {
	m, ok := o.(*Nbr)
	return ok && n.Value == m.Value
}
