package vm

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Function is a callable reference: either a closure over a body node in a
// program arena, or a native Go function. Its arity is part of the value so
// callers can check it before invoking.
type Function struct {
	name   string
	params []string

	// Interpreted functions.
	code *code
	body NodeID

	// Native functions.
	arity  int
	native func(args []Value) (Value, error)
}

// NativeFunction wraps a Go function as a callable value.
func NativeFunction(name string, arity int, fn func(args []Value) (Value, error)) *Function {
	return &Function{name: name, arity: arity, native: fn, body: NoNode}
}

func (*Function) Kind() Kind { return KindFunction }
func (*Function) value()     {}

// Name returns the function name, "lambda" for anonymous closures.
func (f *Function) Name() string { return f.name }

// Arity returns the number of parameters the function takes.
func (f *Function) Arity() int {
	if f.native != nil {
		return f.arity
	}
	return len(f.params)
}

// Params returns the parameter names of an interpreted function.
func (f *Function) Params() []string { return slices.Clone(f.params) }

// IsNative reports whether the function is implemented in Go.
func (f *Function) IsNative() bool { return f.native != nil }

// Equal reports whether both references denote the same definition.
func (f *Function) Equal(other *Function) bool {
	if f == other {
		return true
	}
	if other == nil || f.native != nil || other.native != nil {
		return false
	}
	return f.code == other.code && f.body == other.body && f.name == other.name &&
		slices.Equal(f.params, other.params)
}

// Hash returns a hash consistent with Equal.
func (f *Function) Hash() uint64 {
	return xxhash.Sum64String(f.name) ^ uint64(f.body+1)*0x9e3779b97f4a7c15
}

func (f *Function) String() string {
	if f.native != nil {
		return fmt.Sprintf("%s/%d", f.name, f.arity)
	}
	return fmt.Sprintf("%s(%s)", f.name, strings.Join(f.params, ", "))
}
