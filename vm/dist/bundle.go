// Package dist implements the portable form of fieldvm programs. A program
// arena is packed into a content-addressed Bundle and encoded as canonical
// CBOR, so every device of a network can check that it runs exactly the
// same tree.
package dist

// WireVersion is the version of the node and value encoding.
const WireVersion = 1

// Bundle is the unit of program distribution: the node arena, the root id
// and the capabilities the program needs from its execution context. Hash
// is the SHA-256 of the canonical encoding of the other fields.
type Bundle struct {
	Hash         [32]byte   `cbor:"1,keyasint"`
	Version      uint8      `cbor:"2,keyasint"`
	Root         int32      `cbor:"3,keyasint"`
	Nodes        []WireNode `cbor:"4,keyasint"`
	Capabilities []string   `cbor:"5,keyasint,omitempty"`
}

// WireNode is the encoded form of one arena node. Name carries the variable,
// function, selector or operator name depending on Op; Flag carries
// CreateVar.Definition or HoodCall.Inclusive.
type WireNode struct {
	Op       string     `cbor:"1,keyasint"`
	Name     string     `cbor:"2,keyasint,omitempty"`
	Flag     bool       `cbor:"3,keyasint,omitempty"`
	Params   []string   `cbor:"4,keyasint,omitempty"`
	Value    *WireValue `cbor:"5,keyasint,omitempty"`
	Branches []int32    `cbor:"6,keyasint,omitempty"`
}

// ValueKind tags a WireValue.
type ValueKind uint8

const (
	ValueNull  ValueKind = 0
	ValueBool  ValueKind = 1
	ValueNum   ValueKind = 2
	ValueStr   ValueKind = 3
	ValueTuple ValueKind = 4
	ValueField ValueKind = 5
)

// WireValue is the encoded form of a value. Functions have no wire form.
type WireValue struct {
	Kind    ValueKind    `cbor:"1,keyasint"`
	Bool    bool         `cbor:"2,keyasint,omitempty"`
	Num     float64      `cbor:"3,keyasint,omitempty"`
	Str     string       `cbor:"4,keyasint,omitempty"`
	Elems   []WireValue  `cbor:"5,keyasint,omitempty"` // tuple elements
	Local   string       `cbor:"6,keyasint,omitempty"` // field owner
	Entries []FieldEntry `cbor:"7,keyasint,omitempty"` // field entries, owner first
}

// FieldEntry is one device's value in an encoded field.
type FieldEntry struct {
	Device string    `cbor:"1,keyasint"`
	Value  WireValue `cbor:"2,keyasint"`
}
