package vm

import "slices"

// Builder assembles a program arena bottom-up. Each method appends a node
// and returns its id; children must be built before their parent.
//
//	max, _ := vm.DefaultOperators().Lookup("max")
//	b := vm.NewBuilder()
//	field := b.Nbr(b.Self())
//	prog, err := b.Build(b.Hood(max, field, false))
type Builder struct {
	nodes []Node
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) add(n Node) NodeID {
	b.nodes = append(b.nodes, n)
	return NodeID(len(b.nodes) - 1)
}

// Const adds a constant.
func (b *Builder) Const(v Value) NodeID { return b.add(&Constant{Value: orNull(v)}) }

// Var adds a variable reference.
func (b *Builder) Var(name string) NodeID { return b.add(&Variable{Name: name}) }

// Let adds a definition of name.
func (b *Builder) Let(name string, value NodeID) NodeID {
	return b.add(&CreateVar{Name: name, Definition: true, Value: value})
}

// Assign adds an assignment to name.
func (b *Builder) Assign(name string, value NodeID) NodeID {
	return b.add(&CreateVar{Name: name, Value: value})
}

// Hood adds a neighborhood fold of the field computed by body.
func (b *Builder) Hood(op HoodOp, body NodeID, inclusive bool) NodeID {
	return b.add(&HoodCall{Operator: op, Inclusive: inclusive, Body: body})
}

// Block adds a scoped sequence of statements.
func (b *Builder) Block(stmts ...NodeID) NodeID {
	return b.add(&Block{Body: slices.Clone(stmts)})
}

// Lambda adds an anonymous function literal.
func (b *Builder) Lambda(params []string, body NodeID) NodeID {
	return b.add(&Lambda{Params: slices.Clone(params), Body: body})
}

// Def adds a named function literal.
func (b *Builder) Def(name string, params []string, body NodeID) NodeID {
	return b.add(&Lambda{Name: name, Params: slices.Clone(params), Body: body})
}

// Call adds a function application.
func (b *Builder) Call(fn NodeID, args ...NodeID) NodeID {
	return b.add(&Call{Fn: fn, Args: slices.Clone(args)})
}

// Send adds a selector dispatch on the value of recv.
func (b *Builder) Send(sel string, recv NodeID, args ...NodeID) NodeID {
	return b.add(&Send{Selector: sel, Receiver: recv, Args: slices.Clone(args)})
}

// If adds a conditional.
func (b *Builder) If(cond, then, els NodeID) NodeID {
	return b.add(&If{Cond: cond, Then: then, Else: els})
}

// Nbr adds a neighbor field constructor.
func (b *Builder) Nbr(value NodeID) NodeID { return b.add(&Nbr{Value: value}) }

// NbrRange adds a neighbor distance field.
func (b *Builder) NbrRange() NodeID { return b.add(&NbrRange{}) }

// Self adds the device identity.
func (b *Builder) Self() NodeID { return b.add(&Self{}) }

// Build validates the arena and returns a program rooted at root.
func (b *Builder) Build(root NodeID) (*Program, error) {
	return NewProgram(b.nodes, root)
}
