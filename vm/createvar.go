package vm

// CreateVar binds the value of its single branch to Name.
//
// A definition (let) creates a binding in the innermost scope that shadows
// outer bindings of Name for the rest of that scope. An assignment updates
// the nearest visible binding; what happens when there is none is up to the
// context's AssignPolicy. Either way the node evaluates to the bound value.
type CreateVar struct {
	Name       string
	Definition bool
	Value      NodeID
}

func (*CreateVar) Op() string           { return "createVar" }
func (n *CreateVar) Branches() []NodeID { return []NodeID{n.Value} }

func (n *CreateVar) Eval(f *Frame) (Value, error) {
	if err := f.EvalBranches(); err != nil {
		return nil, err
	}
	res := f.Branch(0)
	if err := f.Context().PutVariable(n.Name, res, n.Definition); err != nil {
		return nil, err
	}
	return res, nil
}

func (n *CreateVar) describe(w *treeWriter) {
	if n.Definition {
		w.write("let ")
	}
	w.write(n.Name + " =")
	w.nested(n.Value)
}

func (n *CreateVar) equal(o Node) bool {
	m, ok := o.(*CreateVar)
	return ok && *n == *m
}
