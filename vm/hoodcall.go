package vm

import (
	"fmt"
	"strings"
)

// HoodCall folds the field computed by its single branch through Operator.
// In exclusive mode the evaluating device's own entry is left out of the
// fold; with Inclusive set it takes part. The result is a plain value.
type HoodCall struct {
	Operator  HoodOp
	Inclusive bool
	Body      NodeID
}

func (*HoodCall) Op() string           { return "hood" }
func (n *HoodCall) Branches() []NodeID { return []NodeID{n.Body} }

func (n *HoodCall) Eval(f *Frame) (Value, error) {
	if n.Operator == nil {
		return nil, fmt.Errorf("%w: hood without operator", ErrNullReference)
	}
	if err := f.EvalBranches(); err != nil {
		return nil, err
	}
	field, ok := f.Branch(0).(*Field)
	if !ok {
		return nil, fmt.Errorf("%w: %sHood over %s, want field", ErrType, n.Operator.Name(), orNull(f.Branch(0)).Kind())
	}
	if n.Inclusive {
		return n.Operator.Apply(field, nil)
	}
	self := f.Context().DeviceUID()
	return n.Operator.Apply(field, &self)
}

func (n *HoodCall) describe(w *treeWriter) {
	name := "?"
	if n.Operator != nil {
		name = strings.ToLower(n.Operator.Name())
	}
	w.write(name + "Hood")
	if n.Inclusive {
		w.write("PlusSelf")
	}
	w.write("(")
	w.nested(n.Body)
	w.write(")")
}

func (n *HoodCall) equal(o Node) bool {
	m, ok := o.(*HoodCall)
	if !ok || n.Inclusive != m.Inclusive || n.Body != m.Body {
		return false
	}
	if n.Operator == nil || m.Operator == nil {
		return n.Operator == m.Operator
	}
	return n.Operator.Name() == m.Operator.Name()
}
