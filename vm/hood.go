package vm

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
)

// ---------------------------------------------------------------------------
// Neighborhood aggregation operators
// ---------------------------------------------------------------------------

// HoodOp folds a field into a single value. Implementations must be
// commutative and associative: the fold order over the field is not part of
// the contract.
type HoodOp interface {
	// Name identifies the operator, e.g. "max".
	Name() string

	// Apply folds every entry of f whose device differs from *exclude, or
	// every entry when exclude is nil.
	Apply(f *Field, exclude *DeviceID) (Value, error)
}

type foldOp struct {
	name    string
	def     Value
	lift    func(Value) Value // applied to the first folded entry, if set
	combine func(a, b Value) (Value, error)
}

// Fold builds a HoodOp from a combine function. def is returned when no
// entries remain after exclusion.
func Fold(name string, def Value, combine func(a, b Value) (Value, error)) HoodOp {
	return &foldOp{name: name, def: orNull(def), combine: combine}
}

func (o *foldOp) Name() string { return o.name }

func (o *foldOp) Apply(f *Field, exclude *DeviceID) (Value, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: %sHood over a nil field", ErrNullReference, o.name)
	}
	var acc Value
	for id, v := range f.All() {
		if exclude != nil && id == *exclude {
			continue
		}
		if acc == nil {
			acc = v
			if o.lift != nil {
				acc = o.lift(v)
			}
			continue
		}
		next, err := o.combine(acc, v)
		if err != nil {
			return nil, fmt.Errorf("%sHood: %w", o.name, err)
		}
		acc = orNull(next)
	}
	if acc == nil {
		return o.def, nil
	}
	return acc, nil
}

func (o *foldOp) String() string { return o.name }

// ---------------------------------------------------------------------------
// Operator registry
// ---------------------------------------------------------------------------

// OperatorRegistry resolves operators by name. It is safe for concurrent use.
type OperatorRegistry struct {
	mu  sync.RWMutex
	ops map[string]HoodOp
}

// NewOperatorRegistry creates a registry holding ops.
func NewOperatorRegistry(ops ...HoodOp) *OperatorRegistry {
	r := &OperatorRegistry{ops: make(map[string]HoodOp, len(ops))}
	for _, op := range ops {
		r.ops[op.Name()] = op
	}
	return r
}

// Register adds op. Registering a name twice is an error.
func (r *OperatorRegistry) Register(op HoodOp) error {
	if op == nil {
		return fmt.Errorf("%w: nil operator", ErrNullReference)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ops[op.Name()]; dup {
		return fmt.Errorf("%w: operator %q already registered", ErrArgument, op.Name())
	}
	r.ops[op.Name()] = op
	return nil
}

// Lookup returns the operator registered under name.
func (r *OperatorRegistry) Lookup(name string) (HoodOp, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns the registered operator names in sorted order.
func (r *OperatorRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.ops))
}

// DefaultOperators returns a registry with the standard operators:
// max, min, sum, any, all and union.
func DefaultOperators() *OperatorRegistry {
	return NewOperatorRegistry(
		Fold("max", Num(math.Inf(-1)), func(a, b Value) (Value, error) {
			if Compare(a, b) >= 0 {
				return a, nil
			}
			return b, nil
		}),
		Fold("min", Num(math.Inf(1)), func(a, b Value) (Value, error) {
			if Compare(a, b) <= 0 {
				return a, nil
			}
			return b, nil
		}),
		Fold("sum", Num(0), func(a, b Value) (Value, error) {
			x, y, err := numPair("sum", a, b)
			if err != nil {
				return nil, err
			}
			return x + y, nil
		}),
		Fold("any", Bool(false), func(a, b Value) (Value, error) {
			x, y, err := boolPair("any", a, b)
			if err != nil {
				return nil, err
			}
			return x || y, nil
		}),
		Fold("all", Bool(true), func(a, b Value) (Value, error) {
			x, y, err := boolPair("all", a, b)
			if err != nil {
				return nil, err
			}
			return x && y, nil
		}),
		&foldOp{
			name: "union",
			def:  NewTuple(),
			lift: func(v Value) Value { return asTuple(v).Union(nil) },
			combine: func(a, b Value) (Value, error) {
				return asTuple(a).Union(asTuple(b)), nil
			},
		},
	)
}

func numPair(op string, a, b Value) (Num, Num, error) {
	x, okA := a.(Num)
	y, okB := b.(Num)
	if !okA || !okB {
		return 0, 0, fmt.Errorf("%w: %s over %s and %s", ErrType, op, orNull(a).Kind(), orNull(b).Kind())
	}
	return x, y, nil
}

func boolPair(op string, a, b Value) (Bool, Bool, error) {
	x, okA := a.(Bool)
	y, okB := b.(Bool)
	if !okA || !okB {
		return false, false, fmt.Errorf("%w: %s over %s and %s", ErrType, op, orNull(a).Kind(), orNull(b).Kind())
	}
	return x, y, nil
}

// asTuple views v as a tuple, wrapping non-tuple values in a singleton.
func asTuple(v Value) *Tuple {
	if t, ok := v.(*Tuple); ok {
		return t
	}
	return NewTuple(v)
}
