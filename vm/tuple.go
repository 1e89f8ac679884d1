package vm

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Tuple: immutable heterogeneous sequence
// ---------------------------------------------------------------------------

// Tuple is an immutable, fixed-length ordered sequence of values.
//
// Every operation that "modifies" a tuple returns a new one. Equality and
// hashing are structural. The hash and the text rendering are computed on
// first use and cached; the caches are safe for concurrent readers.
type Tuple struct {
	elems []Value

	hashOnce sync.Once
	hash     uint64

	strOnce sync.Once
	str     string
}

// NewTuple creates a tuple holding a copy of elems.
func NewTuple(elems ...Value) *Tuple {
	return wrapTuple(slices.Clone(elems))
}

// wrapTuple takes ownership of elems, which must not be retained by the caller.
func wrapTuple(elems []Value) *Tuple {
	for i, e := range elems {
		if e == nil {
			elems[i] = Null{}
		}
	}
	return &Tuple{elems: elems}
}

func (*Tuple) Kind() Kind { return KindTuple }
func (*Tuple) value()     {}

func indexError(i, lo, hi int) error {
	return fmt.Errorf("%w: index %d not in [%d, %d)", ErrIndexOutOfRange, i, lo, hi)
}

// Get returns the element at index i.
func (t *Tuple) Get(i int) (Value, error) {
	if i < 0 || i >= len(t.elems) {
		return nil, indexError(i, 0, len(t.elems))
	}
	return t.elems[i], nil
}

// Size returns the number of elements.
func (t *Tuple) Size() int { return len(t.elems) }

// IsEmpty reports whether the tuple has no elements.
func (t *Tuple) IsEmpty() bool { return len(t.elems) == 0 }

// Elements iterates over the elements in order.
func (t *Tuple) Elements() iter.Seq2[int, Value] {
	return func(yield func(int, Value) bool) {
		for i, e := range t.elems {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Append returns a new tuple with x added at the end.
func (t *Tuple) Append(x Value) *Tuple {
	out := make([]Value, len(t.elems)+1)
	copy(out, t.elems)
	out[len(t.elems)] = x
	return wrapTuple(out)
}

// Prepend returns a new tuple with x added at the front.
func (t *Tuple) Prepend(x Value) *Tuple {
	out := make([]Value, 0, len(t.elems)+1)
	out = append(out, x)
	out = append(out, t.elems...)
	return wrapTuple(out)
}

// Insert returns a new tuple with x at index i; i may equal Size().
func (t *Tuple) Insert(i int, x Value) (*Tuple, error) {
	if i < 0 || i > len(t.elems) {
		return nil, indexError(i, 0, len(t.elems)+1)
	}
	return wrapTuple(slices.Insert(slices.Clone(t.elems), i, x)), nil
}

// Set returns a new tuple of the same length with element i replaced by x.
func (t *Tuple) Set(i int, x Value) (*Tuple, error) {
	if i < 0 || i >= len(t.elems) {
		return nil, indexError(i, 0, len(t.elems))
	}
	out := slices.Clone(t.elems)
	out[i] = x
	return wrapTuple(out), nil
}

// SubTuple returns the elements in [i, j).
func (t *Tuple) SubTuple(i, j int) (*Tuple, error) {
	if i < 0 || j > len(t.elems) || i > j {
		return nil, fmt.Errorf("%w: range [%d, %d) not within [0, %d]", ErrIndexOutOfRange, i, j, len(t.elems))
	}
	return wrapTuple(slices.Clone(t.elems[i:j])), nil
}

// SubTupleStart returns the first i elements, i.e. [0, i).
func (t *Tuple) SubTupleStart(i int) (*Tuple, error) {
	return t.SubTuple(0, i)
}

// SubTupleEnd returns the elements from i to the end, i.e. [i, Size()).
func (t *Tuple) SubTupleEnd(i int) (*Tuple, error) {
	return t.SubTuple(i, len(t.elems))
}

// MergeAfter returns the concatenation of t and other.
func (t *Tuple) MergeAfter(other *Tuple) *Tuple {
	if other == nil {
		return t
	}
	return wrapTuple(slices.Concat(t.elems, other.elems))
}

// Contains reports whether some element is structurally equal to x.
func (t *Tuple) Contains(x Value) bool {
	return slices.ContainsFunc(t.elems, func(e Value) bool { return Equal(e, x) })
}

// CompareTo orders t against other element by element. Elements of the same
// naturally ordered kind are compared directly; other pairs are compared by
// their text renderings. Elements that compare equal either way pass on to
// the next position. When one tuple is a prefix of the other, the shorter
// one is smaller.
func (t *Tuple) CompareTo(other *Tuple) int {
	n := min(len(t.elems), len(other.elems))
	for i := 0; i < n; i++ {
		a, b := t.elems[i], other.elems[i]
		c, ok := compareNatural(a, b)
		if !ok {
			c = strings.Compare(Format(a), Format(b))
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(t.elems) < len(other.elems):
		return -1
	case len(t.elems) > len(other.elems):
		return 1
	}
	return 0
}

// Equal reports whether other has the same length and pairwise equal elements.
func (t *Tuple) Equal(other *Tuple) bool {
	if t == other {
		return true
	}
	if other == nil || len(t.elems) != len(other.elems) {
		return false
	}
	if t.Hash() != other.Hash() {
		return false
	}
	for i := range t.elems {
		if !Equal(t.elems[i], other.elems[i]) {
			return false
		}
	}
	return true
}

// Hash returns the order-sensitive structural hash of the tuple.
func (t *Tuple) Hash() uint64 {
	t.hashOnce.Do(func() {
		h := uint64(5381)
		for _, e := range t.elems {
			h = h*33 + Hash(e)
		}
		t.hash = h
	})
	return t.hash
}

// String renders the tuple as [e1, e2, ...]. Strings are double quoted,
// numbers and nested tuples are bare, other atoms are single quoted.
func (t *Tuple) String() string {
	t.strOnce.Do(func() {
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range t.elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			switch e.(type) {
			case Str:
				sb.WriteByte('"')
				sb.WriteString(e.String())
				sb.WriteByte('"')
			case Num, *Tuple:
				sb.WriteString(e.String())
			default:
				sb.WriteByte('\'')
				sb.WriteString(e.String())
				sb.WriteByte('\'')
			}
		}
		sb.WriteByte(']')
		t.str = sb.String()
	})
	return t.str
}

// ---------------------------------------------------------------------------
// Set algebra
// ---------------------------------------------------------------------------

// valueSet is an insertion-ordered set of values keyed by structural equality.
type valueSet struct {
	buckets map[uint64][]Value
	order   []Value
}

func newValueSet(capacity int) *valueSet {
	return &valueSet{buckets: make(map[uint64][]Value, capacity)}
}

func (s *valueSet) has(v Value) bool {
	return slices.ContainsFunc(s.buckets[Hash(v)], func(e Value) bool { return Equal(e, v) })
}

func (s *valueSet) add(v Value) {
	if s.has(v) {
		return
	}
	h := Hash(v)
	s.buckets[h] = append(s.buckets[h], v)
	s.order = append(s.order, v)
}

func setOf(elems []Value) *valueSet {
	s := newValueSet(len(elems))
	for _, e := range elems {
		s.add(e)
	}
	return s
}

// Union returns the distinct elements found in t or other.
func (t *Tuple) Union(other *Tuple) *Tuple {
	s := setOf(t.elems)
	if other != nil {
		for _, e := range other.elems {
			s.add(e)
		}
	}
	return wrapTuple(s.order)
}

// Intersection returns the distinct elements found in both t and other.
func (t *Tuple) Intersection(other *Tuple) *Tuple {
	if other == nil {
		return wrapTuple(nil)
	}
	mine := setOf(t.elems)
	out := newValueSet(len(other.elems))
	for _, e := range other.elems {
		if mine.has(e) {
			out.add(e)
		}
	}
	return wrapTuple(out.order)
}

// Subtract returns the distinct elements of t not found in other.
func (t *Tuple) Subtract(other *Tuple) *Tuple {
	var theirs *valueSet
	if other != nil {
		theirs = setOf(other.elems)
	} else {
		theirs = newValueSet(0)
	}
	out := newValueSet(len(t.elems))
	for _, e := range t.elems {
		if !theirs.has(e) {
			out.add(e)
		}
	}
	return wrapTuple(out.order)
}

// Unwrap replaces every tuple element with its i-th element. Elements that
// are not tuples are kept as they are.
func (t *Tuple) Unwrap(i int) (*Tuple, error) {
	out := make([]Value, len(t.elems))
	for k, e := range t.elems {
		inner, ok := e.(*Tuple)
		if !ok {
			out[k] = e
			continue
		}
		v, err := inner.Get(i)
		if err != nil {
			return nil, fmt.Errorf("unwrap element %d: %w", k, err)
		}
		out[k] = v
	}
	return wrapTuple(out), nil
}

// ---------------------------------------------------------------------------
// Higher-order operations over Go functions
// ---------------------------------------------------------------------------

// Reduce left-folds the elements with fn. An empty tuple yields def, which
// must not be null.
func (t *Tuple) Reduce(def Value, fn func(a, b Value) Value) (Value, error) {
	if absent(def) || fn == nil {
		return nil, fmt.Errorf("%w: reduce needs a default value and a function", ErrNullReference)
	}
	if len(t.elems) == 0 {
		return def, nil
	}
	acc := t.elems[0]
	for _, e := range t.elems[1:] {
		acc = orNull(fn(acc, e))
	}
	return acc, nil
}

// Map returns a tuple of fn applied to every element.
func (t *Tuple) Map(fn func(Value) Value) (*Tuple, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: map needs a function", ErrNullReference)
	}
	out := make([]Value, len(t.elems))
	for i, e := range t.elems {
		out[i] = fn(e)
	}
	return wrapTuple(out), nil
}

// Filter returns the elements for which keep returns true.
func (t *Tuple) Filter(keep func(Value) bool) (*Tuple, error) {
	if keep == nil {
		return nil, fmt.Errorf("%w: filter needs a predicate", ErrNullReference)
	}
	var out []Value
	for _, e := range t.elems {
		if keep(e) {
			out = append(out, e)
		}
	}
	return wrapTuple(out), nil
}
