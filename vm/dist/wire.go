package dist

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/fieldvm/vm"
	"github.com/fxamacker/cbor/v2"
)

// ErrHashMismatch is returned when a bundle's declared hash does not match
// its contents.
var ErrHashMismatch = errors.New("dist: hash mismatch")

// cborEncMode is the canonical encoding mode, so equal programs always
// encode to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Bundles
// ---------------------------------------------------------------------------

// Pack converts p into a hashed bundle.
func Pack(p *vm.Program) (*Bundle, error) {
	nodes := p.Nodes()
	b := &Bundle{
		Version:      WireVersion,
		Root:         int32(p.Root()),
		Nodes:        make([]WireNode, len(nodes)),
		Capabilities: Capabilities(p).Required,
	}
	for i, n := range nodes {
		wn, err := encodeNode(n)
		if err != nil {
			return nil, fmt.Errorf("dist: node %d: %w", i, err)
		}
		b.Nodes[i] = wn
	}
	h, err := b.contentHash()
	if err != nil {
		return nil, err
	}
	b.Hash = h
	return b, nil
}

func (b *Bundle) contentHash() ([32]byte, error) {
	body := struct {
		Version      uint8      `cbor:"1,keyasint"`
		Root         int32      `cbor:"2,keyasint"`
		Nodes        []WireNode `cbor:"3,keyasint"`
		Capabilities []string   `cbor:"4,keyasint,omitempty"`
	}{b.Version, b.Root, b.Nodes, b.Capabilities}
	data, err := cborEncMode.Marshal(body)
	if err != nil {
		return [32]byte{}, fmt.Errorf("dist: hash bundle: %w", err)
	}
	return sha256.Sum256(data), nil
}

// Verify checks the version and the declared hash of b.
func (b *Bundle) Verify() error {
	if b.Version != WireVersion {
		return fmt.Errorf("dist: unsupported wire version %d", b.Version)
	}
	h, err := b.contentHash()
	if err != nil {
		return err
	}
	if h != b.Hash {
		return fmt.Errorf("%w: declared %x, computed %x", ErrHashMismatch, b.Hash, h)
	}
	return nil
}

// Program verifies b and rebuilds the program. Hood operators are resolved
// by name in ops.
func (b *Bundle) Program(ops *vm.OperatorRegistry) (*vm.Program, error) {
	if err := b.Verify(); err != nil {
		return nil, err
	}
	nodes := make([]vm.Node, len(b.Nodes))
	for i, wn := range b.Nodes {
		n, err := decodeNode(wn, ops)
		if err != nil {
			return nil, fmt.Errorf("dist: node %d: %w", i, err)
		}
		nodes[i] = n
	}
	p, err := vm.NewProgram(nodes, vm.NodeID(b.Root))
	if err != nil {
		return nil, fmt.Errorf("dist: %w", err)
	}
	return p, nil
}

// MarshalBundle serializes a Bundle to CBOR bytes.
func MarshalBundle(b *Bundle) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// UnmarshalBundle deserializes a Bundle from CBOR bytes.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("dist: unmarshal bundle: %w", err)
	}
	return &b, nil
}

// EncodeProgram packs p and serializes the bundle.
func EncodeProgram(p *vm.Program) ([]byte, error) {
	b, err := Pack(p)
	if err != nil {
		return nil, err
	}
	return MarshalBundle(b)
}

// DecodeProgram deserializes, verifies and rebuilds a program.
func DecodeProgram(data []byte, ops *vm.OperatorRegistry) (*vm.Program, error) {
	b, err := UnmarshalBundle(data)
	if err != nil {
		return nil, err
	}
	return b.Program(ops)
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

func ids(in []vm.NodeID) []int32 {
	out := make([]int32, len(in))
	for i, id := range in {
		out[i] = int32(id)
	}
	return out
}

func nodeIDs(in []int32) []vm.NodeID {
	out := make([]vm.NodeID, len(in))
	for i, id := range in {
		out[i] = vm.NodeID(id)
	}
	return out
}

func encodeNode(n vm.Node) (WireNode, error) {
	wn := WireNode{Op: n.Op(), Branches: ids(n.Branches())}
	switch n := n.(type) {
	case *vm.Constant:
		v, err := EncodeValue(n.Value)
		if err != nil {
			return WireNode{}, err
		}
		wn.Value = &v
	case *vm.Variable:
		wn.Name = n.Name
	case *vm.CreateVar:
		wn.Name, wn.Flag = n.Name, n.Definition
	case *vm.HoodCall:
		if n.Operator == nil {
			return WireNode{}, fmt.Errorf("%w: hood without operator", vm.ErrNullReference)
		}
		wn.Name, wn.Flag = n.Operator.Name(), n.Inclusive
	case *vm.Lambda:
		wn.Name, wn.Params = n.Name, n.Params
	case *vm.Send:
		wn.Name = n.Selector
	case *vm.Block, *vm.Call, *vm.If, *vm.Nbr, *vm.NbrRange, *vm.Self:
	default:
		return WireNode{}, fmt.Errorf("%w: no wire form for %T", vm.ErrUnsupported, n)
	}
	return wn, nil
}

func wantBranches(wn WireNode, n int, exact bool) error {
	if len(wn.Branches) < n || (exact && len(wn.Branches) != n) {
		return fmt.Errorf("%w: %s node has %d branch(es)", vm.ErrArgument, wn.Op, len(wn.Branches))
	}
	return nil
}

func decodeNode(wn WireNode, ops *vm.OperatorRegistry) (vm.Node, error) {
	br := nodeIDs(wn.Branches)
	switch wn.Op {
	case "const":
		if wn.Value == nil {
			return nil, fmt.Errorf("%w: constant without value", vm.ErrArgument)
		}
		v, err := DecodeValue(*wn.Value)
		if err != nil {
			return nil, err
		}
		return &vm.Constant{Value: v}, wantBranches(wn, 0, true)
	case "var":
		return &vm.Variable{Name: wn.Name}, wantBranches(wn, 0, true)
	case "self":
		return &vm.Self{}, wantBranches(wn, 0, true)
	case "nbrRange":
		return &vm.NbrRange{}, wantBranches(wn, 0, true)
	case "createVar":
		if err := wantBranches(wn, 1, true); err != nil {
			return nil, err
		}
		return &vm.CreateVar{Name: wn.Name, Definition: wn.Flag, Value: br[0]}, nil
	case "hood":
		if err := wantBranches(wn, 1, true); err != nil {
			return nil, err
		}
		if ops == nil {
			ops = vm.DefaultOperators()
		}
		op, ok := ops.Lookup(wn.Name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown hood operator %q", vm.ErrArgument, wn.Name)
		}
		return &vm.HoodCall{Operator: op, Inclusive: wn.Flag, Body: br[0]}, nil
	case "block":
		return &vm.Block{Body: br}, nil
	case "lambda":
		if err := wantBranches(wn, 1, true); err != nil {
			return nil, err
		}
		return &vm.Lambda{Name: wn.Name, Params: wn.Params, Body: br[0]}, nil
	case "call":
		if err := wantBranches(wn, 1, false); err != nil {
			return nil, err
		}
		return &vm.Call{Fn: br[0], Args: br[1:]}, nil
	case "send":
		if err := wantBranches(wn, 1, false); err != nil {
			return nil, err
		}
		return &vm.Send{Selector: wn.Name, Receiver: br[0], Args: br[1:]}, nil
	case "if":
		if err := wantBranches(wn, 3, true); err != nil {
			return nil, err
		}
		return &vm.If{Cond: br[0], Then: br[1], Else: br[2]}, nil
	case "nbr":
		if err := wantBranches(wn, 1, true); err != nil {
			return nil, err
		}
		return &vm.Nbr{Value: br[0]}, nil
	}
	return nil, fmt.Errorf("%w: unknown node op %q", vm.ErrUnsupported, wn.Op)
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// EncodeValue converts v to its wire form. Functions cannot be encoded.
func EncodeValue(v vm.Value) (WireValue, error) {
	switch v := v.(type) {
	case nil, vm.Null:
		return WireValue{Kind: ValueNull}, nil
	case vm.Bool:
		return WireValue{Kind: ValueBool, Bool: bool(v)}, nil
	case vm.Num:
		f := float64(v)
		if f == 0 {
			f = 0 // fold -0
		}
		if math.IsNaN(f) {
			f = math.NaN()
		}
		return WireValue{Kind: ValueNum, Num: f}, nil
	case vm.Str:
		return WireValue{Kind: ValueStr, Str: string(v)}, nil
	case *vm.Tuple:
		wv := WireValue{Kind: ValueTuple, Elems: make([]WireValue, 0, v.Size())}
		for _, e := range v.Elements() {
			ev, err := EncodeValue(e)
			if err != nil {
				return WireValue{}, err
			}
			wv.Elems = append(wv.Elems, ev)
		}
		return wv, nil
	case *vm.Field:
		wv := WireValue{Kind: ValueField, Local: string(v.Local()), Entries: make([]FieldEntry, 0, v.Len())}
		for id, e := range v.All() {
			ev, err := EncodeValue(e)
			if err != nil {
				return WireValue{}, err
			}
			wv.Entries = append(wv.Entries, FieldEntry{Device: string(id), Value: ev})
		}
		return wv, nil
	}
	return WireValue{}, fmt.Errorf("%w: no wire form for %s", vm.ErrUnsupported, v.Kind())
}

// DecodeValue converts a wire value back to a value.
func DecodeValue(wv WireValue) (vm.Value, error) {
	switch wv.Kind {
	case ValueNull:
		return vm.Null{}, nil
	case ValueBool:
		return vm.Bool(wv.Bool), nil
	case ValueNum:
		return vm.Num(wv.Num), nil
	case ValueStr:
		return vm.Str(wv.Str), nil
	case ValueTuple:
		elems := make([]vm.Value, len(wv.Elems))
		for i, e := range wv.Elems {
			v, err := DecodeValue(e)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return vm.NewTuple(elems...), nil
	case ValueField:
		var local vm.Value = vm.Null{}
		nbrs := make(map[vm.DeviceID]vm.Value, len(wv.Entries))
		for _, e := range wv.Entries {
			v, err := DecodeValue(e.Value)
			if err != nil {
				return nil, err
			}
			if e.Device == wv.Local {
				local = v
				continue
			}
			nbrs[vm.DeviceID(e.Device)] = v
		}
		return vm.NewField(vm.DeviceID(wv.Local), local, nbrs), nil
	}
	return nil, fmt.Errorf("%w: unknown value kind %d", vm.ErrArgument, wv.Kind)
}

// MarshalValue serializes a value to CBOR bytes.
func MarshalValue(v vm.Value) ([]byte, error) {
	wv, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(wv)
}

// UnmarshalValue deserializes a value from CBOR bytes.
func UnmarshalValue(data []byte) (vm.Value, error) {
	var wv WireValue
	if err := cbor.Unmarshal(data, &wv); err != nil {
		return nil, fmt.Errorf("dist: unmarshal value: %w", err)
	}
	return DecodeValue(wv)
}
