package vm

import "fmt"

// Applier invokes interpreter-level functions. It is the single entry point
// through which data-structure methods call back into the evaluator.
type Applier interface {
	Apply(fn *Function, args []Value) (Value, error)
}

func checkCallable(op string, ap Applier, fn *Function, arity int) error {
	if ap == nil || fn == nil {
		return fmt.Errorf("%w: %s needs an evaluator and a function", ErrNullReference, op)
	}
	if fn.Arity() != arity {
		return fmt.Errorf("%w: %s function must take %d parameter(s), %s takes %d",
			ErrArgument, op, arity, fn.Name(), fn.Arity())
	}
	return nil
}

// ReduceFunc left-folds the elements with the two-parameter function fn,
// called through ap. An empty tuple yields def.
func (t *Tuple) ReduceFunc(ap Applier, def Value, fn *Function) (Value, error) {
	if absent(def) {
		return nil, fmt.Errorf("%w: reduce needs a default value", ErrNullReference)
	}
	if err := checkCallable("reduce", ap, fn, 2); err != nil {
		return nil, err
	}
	if len(t.elems) == 0 {
		return def, nil
	}
	acc := t.elems[0]
	for _, e := range t.elems[1:] {
		v, err := ap.Apply(fn, []Value{acc, e})
		if err != nil {
			return nil, err
		}
		acc = v
	}
	return acc, nil
}

// MapFunc applies the one-parameter function fn to every element in order.
func (t *Tuple) MapFunc(ap Applier, fn *Function) (*Tuple, error) {
	if err := checkCallable("map", ap, fn, 1); err != nil {
		return nil, err
	}
	out := make([]Value, len(t.elems))
	for i, e := range t.elems {
		v, err := ap.Apply(fn, []Value{e})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return wrapTuple(out), nil
}

// FilterFunc keeps the elements for which the one-parameter function fn
// returns true. A non-boolean result is a type error.
func (t *Tuple) FilterFunc(ap Applier, fn *Function) (*Tuple, error) {
	if err := checkCallable("filter", ap, fn, 1); err != nil {
		return nil, err
	}
	var out []Value
	for _, e := range t.elems {
		v, err := ap.Apply(fn, []Value{e})
		if err != nil {
			return nil, err
		}
		keep, ok := v.(Bool)
		if !ok {
			return nil, fmt.Errorf("%w: filter function returned %s, want bool", ErrType, orNull(v).Kind())
		}
		if keep {
			out = append(out, e)
		}
	}
	return wrapTuple(out), nil
}
