package vm

import (
	"fmt"
	"math"
	"slices"
	"unicode"
)

// ---------------------------------------------------------------------------
// Send: selector dispatch on values
// ---------------------------------------------------------------------------

// Send evaluates Receiver and Args, then dispatches Selector on the
// receiver's kind. Arithmetic and comparison selectors apply pointwise when
// either operand is a field.
type Send struct {
	Selector string
	Receiver NodeID
	Args     []NodeID
}

func (*Send) Op() string { return "send" }

func (n *Send) Branches() []NodeID {
	return append([]NodeID{n.Receiver}, n.Args...)
}

func (n *Send) Eval(f *Frame) (Value, error) {
	if err := f.EvalBranches(); err != nil {
		return nil, err
	}
	return Dispatch(f, n.Selector, orNull(f.Branch(0)), f.BranchValues(1))
}

func (n *Send) describe(w *treeWriter) {
	if isOperator(n.Selector) && len(n.Args) == 1 {
		w.write("(")
		w.node(n.Receiver)
		w.write(" " + n.Selector + " ")
		w.node(n.Args[0])
		w.write(")")
		return
	}
	w.node(n.Receiver)
	w.write("." + n.Selector + "(")
	w.list(n.Args, ",")
	w.write(")")
}

func (n *Send) equal(o Node) bool {
	m, ok := o.(*Send)
	return ok && n.Selector == m.Selector && n.Receiver == m.Receiver && slices.Equal(n.Args, m.Args)
}

func isOperator(sel string) bool {
	for _, r := range sel {
		if unicode.IsLetter(r) {
			return false
		}
	}
	return sel != ""
}

// primitive is a method implemented in Go.
type primitive struct {
	arity int
	fn    func(ap Applier, recv Value, args []Value) (Value, error)
}

var (
	primitives    = map[Kind]map[string]primitive{}
	anyPrimitives = map[string]primitive{}
	pointwiseSels = map[string]bool{}
)

func addPrimitive(k Kind, sel string, arity int, fn func(ap Applier, recv Value, args []Value) (Value, error)) {
	if primitives[k] == nil {
		primitives[k] = map[string]primitive{}
	}
	primitives[k][sel] = primitive{arity: arity, fn: fn}
}

// Selectors returns the selectors understood by values of kind k.
func Selectors(k Kind) []string {
	var out []string
	for sel := range primitives[k] {
		out = append(out, sel)
	}
	for sel := range anyPrimitives {
		if _, dup := primitives[k][sel]; !dup {
			out = append(out, sel)
		}
	}
	slices.Sort(out)
	return out
}

// Dispatch sends sel with args to recv. Closures reached through tuple
// methods are invoked via ap.
func Dispatch(ap Applier, sel string, recv Value, args []Value) (Value, error) {
	if pointwiseSels[sel] && len(args) == 1 {
		_, lf := recv.(*Field)
		_, rf := args[0].(*Field)
		if lf || rf {
			return pointwise(ap, sel, recv, args[0])
		}
	}
	p, ok := primitives[recv.Kind()][sel]
	if !ok {
		p, ok = anyPrimitives[sel]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s>>%s", ErrUnknownSelector, recv.Kind(), sel)
	}
	if len(args) != p.arity {
		return nil, fmt.Errorf("%w: %s>>%s takes %d argument(s), got %d", ErrArgument, recv.Kind(), sel, p.arity, len(args))
	}
	return p.fn(ap, recv, args)
}

func pointwise(ap Applier, sel string, recv, arg Value) (Value, error) {
	base, ok := recv.(*Field)
	if !ok {
		base = arg.(*Field)
	}
	at := func(v Value, id DeviceID) (Value, bool) {
		if fv, isField := v.(*Field); isField {
			return fv.Get(id)
		}
		return v, true
	}
	var local Value
	nbrs := make(map[DeviceID]Value, base.Len())
	for id := range base.All() {
		a, okA := at(recv, id)
		b, okB := at(arg, id)
		if !okA || !okB {
			continue
		}
		r, err := Dispatch(ap, sel, a, []Value{b})
		if err != nil {
			return nil, err
		}
		if id == base.Local() {
			local = r
		} else {
			nbrs[id] = r
		}
	}
	return NewField(base.Local(), local, nbrs), nil
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func argNum(sel string, v Value) (Num, error) {
	n, ok := v.(Num)
	if !ok {
		return 0, fmt.Errorf("%w: %s expects num, got %s", ErrType, sel, v.Kind())
	}
	return n, nil
}

func argBool(sel string, v Value) (Bool, error) {
	b, ok := v.(Bool)
	if !ok {
		return false, fmt.Errorf("%w: %s expects bool, got %s", ErrType, sel, v.Kind())
	}
	return b, nil
}

func argTuple(sel string, v Value) (*Tuple, error) {
	t, ok := v.(*Tuple)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects tuple, got %s", ErrType, sel, v.Kind())
	}
	return t, nil
}

func argFunction(sel string, v Value) (*Function, error) {
	fn, ok := v.(*Function)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects function, got %s", ErrType, sel, v.Kind())
	}
	return fn, nil
}

func argIndex(sel string, v Value) (int, error) {
	n, err := argNum(sel, v)
	if err != nil {
		return 0, err
	}
	if float64(n) != math.Trunc(float64(n)) {
		return 0, fmt.Errorf("%w: %s index %v is not integral", ErrType, sel, n)
	}
	return int(n), nil
}

// ---------------------------------------------------------------------------
// Primitive tables
// ---------------------------------------------------------------------------

func init() {
	registerAnyPrimitives()
	registerNumPrimitives()
	registerBoolPrimitives()
	registerStrPrimitives()
	registerTuplePrimitives()
	registerFieldPrimitives()
}

func registerAnyPrimitives() {
	anyPrimitives["=="] = primitive{1, func(_ Applier, recv Value, args []Value) (Value, error) {
		return Bool(Equal(recv, args[0])), nil
	}}
	anyPrimitives["!="] = primitive{1, func(_ Applier, recv Value, args []Value) (Value, error) {
		return Bool(!Equal(recv, args[0])), nil
	}}
	anyPrimitives["toString"] = primitive{0, func(_ Applier, recv Value, _ []Value) (Value, error) {
		return Str(recv.String()), nil
	}}
	ordering := map[string]func(c int) bool{
		"<":  func(c int) bool { return c < 0 },
		"<=": func(c int) bool { return c <= 0 },
		">":  func(c int) bool { return c > 0 },
		">=": func(c int) bool { return c >= 0 },
	}
	for sel, test := range ordering {
		anyPrimitives[sel] = primitive{1, func(_ Applier, recv Value, args []Value) (Value, error) {
			return Bool(test(Compare(recv, args[0]))), nil
		}}
		pointwiseSels[sel] = true
	}
	pointwiseSels["=="] = true
	pointwiseSels["!="] = true
}

func registerNumPrimitives() {
	arith := map[string]func(a, b float64) float64{
		"+":   func(a, b float64) float64 { return a + b },
		"-":   func(a, b float64) float64 { return a - b },
		"*":   func(a, b float64) float64 { return a * b },
		"/":   func(a, b float64) float64 { return a / b },
		"%":   math.Mod,
		"max": math.Max,
		"min": math.Min,
		"pow": math.Pow,
	}
	for sel, op := range arith {
		addPrimitive(KindNum, sel, 1, func(_ Applier, recv Value, args []Value) (Value, error) {
			b, err := argNum(sel, args[0])
			if err != nil {
				return nil, err
			}
			return Num(op(float64(recv.(Num)), float64(b))), nil
		})
		pointwiseSels[sel] = true
	}
	unary := map[string]func(float64) float64{
		"abs":   math.Abs,
		"neg":   func(a float64) float64 { return -a },
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"sqrt":  math.Sqrt,
	}
	for sel, op := range unary {
		addPrimitive(KindNum, sel, 0, func(_ Applier, recv Value, _ []Value) (Value, error) {
			return Num(op(float64(recv.(Num)))), nil
		})
	}
}

func registerBoolPrimitives() {
	addPrimitive(KindBool, "and", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		b, err := argBool("and", args[0])
		if err != nil {
			return nil, err
		}
		return recv.(Bool) && b, nil
	})
	addPrimitive(KindBool, "or", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		b, err := argBool("or", args[0])
		if err != nil {
			return nil, err
		}
		return recv.(Bool) || b, nil
	})
	addPrimitive(KindBool, "not", 0, func(_ Applier, recv Value, _ []Value) (Value, error) {
		return !recv.(Bool), nil
	})
}

func registerStrPrimitives() {
	addPrimitive(KindStr, "+", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		return recv.(Str) + Str(args[0].String()), nil
	})
	addPrimitive(KindStr, "size", 0, func(_ Applier, recv Value, _ []Value) (Value, error) {
		return Num(len([]rune(string(recv.(Str))))), nil
	})
}

func registerTuplePrimitives() {
	t := func(v Value) *Tuple { return v.(*Tuple) }

	addPrimitive(KindTuple, "get", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		i, err := argIndex("get", args[0])
		if err != nil {
			return nil, err
		}
		return t(recv).Get(i)
	})
	addPrimitive(KindTuple, "size", 0, func(_ Applier, recv Value, _ []Value) (Value, error) {
		return Num(t(recv).Size()), nil
	})
	addPrimitive(KindTuple, "isEmpty", 0, func(_ Applier, recv Value, _ []Value) (Value, error) {
		return Bool(t(recv).IsEmpty()), nil
	})
	addPrimitive(KindTuple, "append", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		return t(recv).Append(args[0]), nil
	})
	addPrimitive(KindTuple, "prepend", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		return t(recv).Prepend(args[0]), nil
	})
	addPrimitive(KindTuple, "insert", 2, func(_ Applier, recv Value, args []Value) (Value, error) {
		i, err := argIndex("insert", args[0])
		if err != nil {
			return nil, err
		}
		return t(recv).Insert(i, args[1])
	})
	addPrimitive(KindTuple, "set", 2, func(_ Applier, recv Value, args []Value) (Value, error) {
		i, err := argIndex("set", args[0])
		if err != nil {
			return nil, err
		}
		return t(recv).Set(i, args[1])
	})
	addPrimitive(KindTuple, "subTuple", 2, func(_ Applier, recv Value, args []Value) (Value, error) {
		i, err := argIndex("subTuple", args[0])
		if err != nil {
			return nil, err
		}
		j, err := argIndex("subTuple", args[1])
		if err != nil {
			return nil, err
		}
		return t(recv).SubTuple(i, j)
	})
	addPrimitive(KindTuple, "subTupleStart", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		i, err := argIndex("subTupleStart", args[0])
		if err != nil {
			return nil, err
		}
		return t(recv).SubTupleStart(i)
	})
	addPrimitive(KindTuple, "subTupleEnd", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		i, err := argIndex("subTupleEnd", args[0])
		if err != nil {
			return nil, err
		}
		return t(recv).SubTupleEnd(i)
	})
	addPrimitive(KindTuple, "unwrap", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		i, err := argIndex("unwrap", args[0])
		if err != nil {
			return nil, err
		}
		return t(recv).Unwrap(i)
	})
	addPrimitive(KindTuple, "contains", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		return Bool(t(recv).Contains(args[0])), nil
	})

	setOps := map[string]func(a, b *Tuple) *Tuple{
		"mergeAfter":   (*Tuple).MergeAfter,
		"union":        (*Tuple).Union,
		"intersection": (*Tuple).Intersection,
		"subtract":     (*Tuple).Subtract,
	}
	for sel, op := range setOps {
		addPrimitive(KindTuple, sel, 1, func(_ Applier, recv Value, args []Value) (Value, error) {
			other, err := argTuple(sel, args[0])
			if err != nil {
				return nil, err
			}
			return op(t(recv), other), nil
		})
	}
	addPrimitive(KindTuple, "compareTo", 1, func(_ Applier, recv Value, args []Value) (Value, error) {
		other, err := argTuple("compareTo", args[0])
		if err != nil {
			return nil, err
		}
		return Num(t(recv).CompareTo(other)), nil
	})

	addPrimitive(KindTuple, "map", 1, func(ap Applier, recv Value, args []Value) (Value, error) {
		fn, err := argFunction("map", args[0])
		if err != nil {
			return nil, err
		}
		return t(recv).MapFunc(ap, fn)
	})
	addPrimitive(KindTuple, "filter", 1, func(ap Applier, recv Value, args []Value) (Value, error) {
		fn, err := argFunction("filter", args[0])
		if err != nil {
			return nil, err
		}
		return t(recv).FilterFunc(ap, fn)
	})
	addPrimitive(KindTuple, "reduce", 2, func(ap Applier, recv Value, args []Value) (Value, error) {
		fn, err := argFunction("reduce", args[1])
		if err != nil {
			return nil, err
		}
		return t(recv).ReduceFunc(ap, args[0], fn)
	})
}

func registerFieldPrimitives() {
	addPrimitive(KindField, "localValue", 0, func(_ Applier, recv Value, _ []Value) (Value, error) {
		return recv.(*Field).LocalValue(), nil
	})
	addPrimitive(KindField, "size", 0, func(_ Applier, recv Value, _ []Value) (Value, error) {
		return Num(recv.(*Field).Len()), nil
	})
}
