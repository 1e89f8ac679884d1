package vm

import (
	"errors"
	"fmt"
)

// Errors raised by the evaluation core. They abort the current round and are
// never recovered locally; match them with errors.Is.
var (
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrArgument          = errors.New("invalid argument")
	ErrType              = errors.New("type error")
	ErrNullReference     = errors.New("null reference")
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrUnknownSelector   = errors.New("unknown selector")
	ErrUnsupported       = errors.New("not supported by execution context")
	ErrRecursionLimit    = errors.New("recursion limit exceeded")
)

// EvalError records the node at which evaluation failed.
type EvalError struct {
	Node NodeID
	Op   string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("eval %s (node %d): %v", e.Op, e.Node, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }
