package vm

import (
	"fmt"
	"maps"
	"strings"
)

// ---------------------------------------------------------------------------
// Execution context
// ---------------------------------------------------------------------------

// Context is the capability surface nodes evaluate against.
type Context interface {
	// PutVariable binds name to v. With define set, the binding is created in
	// the innermost scope, shadowing outer bindings of the same name until
	// that scope is popped. Otherwise the nearest visible binding is updated.
	PutVariable(name string, v Value, define bool) error

	// Variable looks name up from the innermost scope outwards.
	Variable(name string) (Value, bool)

	PushScope()
	PopScope()

	// DeviceUID returns the identity of the evaluating device.
	DeviceUID() DeviceID
}

// NeighborContext is a context that exchanges values with neighbors.
type NeighborContext interface {
	Context

	// NeighborField publishes local as this device's value for node id and
	// returns the field of the values neighbors published for the same node
	// in their previous round.
	NeighborField(id NodeID, local Value) *Field
}

// SpatialContext is a context for devices embedded in space.
type SpatialContext interface {
	Context

	// NbrRange returns the distance to every neighbor, 0 for the device
	// itself. Neighbor distances are strictly positive.
	NbrRange() *Field
}

// AssignPolicy decides what assignment to an undeclared name does.
type AssignPolicy int

const (
	// AssignStrict rejects assignment to an undeclared name.
	AssignStrict AssignPolicy = iota
	// AssignDefine defines the name in the innermost scope.
	AssignDefine
)

func (p AssignPolicy) String() string {
	switch p {
	case AssignStrict:
		return "strict"
	case AssignDefine:
		return "define"
	default:
		return fmt.Sprintf("AssignPolicy(%d)", int(p))
	}
}

// ParseAssignPolicy parses "strict" or "define". The empty string is strict.
func ParseAssignPolicy(s string) (AssignPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return AssignStrict, nil
	case "define":
		return AssignDefine, nil
	}
	return 0, fmt.Errorf("%w: unknown assign policy %q", ErrArgument, s)
}

// Message carries what a neighbor published in its last round.
type Message struct {
	From     DeviceID
	Exports  map[NodeID]Value
	Distance float64
}

// SimpleContext is the standard execution context: a scope stack, the
// values exported by this device during the current round, and the messages
// received from neighbors after their previous round.
type SimpleContext struct {
	uid     DeviceID
	policy  AssignPolicy
	globals map[string]Value
	scopes  []map[string]Value

	exports map[NodeID]Value
	inbox   map[DeviceID]Message
}

// ContextOption configures a SimpleContext.
type ContextOption func(*SimpleContext)

// WithAssignPolicy sets the policy for assignment to undeclared names.
func WithAssignPolicy(p AssignPolicy) ContextOption {
	return func(c *SimpleContext) { c.policy = p }
}

// WithGlobals installs bindings visible in every round.
func WithGlobals(globals map[string]Value) ContextOption {
	return func(c *SimpleContext) { c.globals = maps.Clone(globals) }
}

// NewSimpleContext creates a context for device uid.
func NewSimpleContext(uid DeviceID, opts ...ContextOption) *SimpleContext {
	c := &SimpleContext{
		uid:     uid,
		exports: make(map[NodeID]Value),
		inbox:   make(map[DeviceID]Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetScopes()
	return c
}

func (c *SimpleContext) resetScopes() {
	base := maps.Clone(c.globals)
	if base == nil {
		base = make(map[string]Value)
	}
	c.scopes = []map[string]Value{base}
}

// Policy returns the assignment policy.
func (c *SimpleContext) Policy() AssignPolicy { return c.policy }

// BeginRound discards the variables and exports of the previous round.
func (c *SimpleContext) BeginRound() {
	c.resetScopes()
	clear(c.exports)
}

func (c *SimpleContext) PutVariable(name string, v Value, define bool) error {
	v = orNull(v)
	if define {
		c.scopes[len(c.scopes)-1][name] = v
		return nil
	}
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if _, ok := c.scopes[i][name]; ok {
			c.scopes[i][name] = v
			return nil
		}
	}
	if c.policy == AssignDefine {
		c.scopes[len(c.scopes)-1][name] = v
		return nil
	}
	return fmt.Errorf("%w: assignment to undeclared %q", ErrUndefinedVariable, name)
}

func (c *SimpleContext) Variable(name string) (Value, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (c *SimpleContext) PushScope() {
	c.scopes = append(c.scopes, make(map[string]Value))
}

// PopScope drops the innermost scope. The round's base scope is never popped.
func (c *SimpleContext) PopScope() {
	if len(c.scopes) > 1 {
		c.scopes = c.scopes[:len(c.scopes)-1]
	}
}

// Depth returns the number of scopes on the stack.
func (c *SimpleContext) Depth() int { return len(c.scopes) }

func (c *SimpleContext) DeviceUID() DeviceID { return c.uid }

func (c *SimpleContext) NeighborField(id NodeID, local Value) *Field {
	c.exports[id] = orNull(local)
	nbrs := make(map[DeviceID]Value, len(c.inbox))
	for from, msg := range c.inbox {
		if v, ok := msg.Exports[id]; ok {
			nbrs[from] = v
		}
	}
	return NewField(c.uid, local, nbrs)
}

func (c *SimpleContext) NbrRange() *Field {
	nbrs := make(map[DeviceID]Value, len(c.inbox))
	for from, msg := range c.inbox {
		nbrs[from] = Num(msg.Distance)
	}
	return NewField(c.uid, Num(0), nbrs)
}

// Exports returns a copy of the values published during the current round.
func (c *SimpleContext) Exports() map[NodeID]Value {
	return maps.Clone(c.exports)
}

// Receive replaces the inbox with msgs. Messages from the device itself and
// messages with a non-positive distance are dropped.
func (c *SimpleContext) Receive(msgs []Message) {
	clear(c.inbox)
	for _, m := range msgs {
		if m.From == c.uid || m.Distance <= 0 {
			continue
		}
		c.inbox[m.From] = m
	}
}

// Neighbors returns the number of devices heard from.
func (c *SimpleContext) Neighbors() int { return len(c.inbox) }
