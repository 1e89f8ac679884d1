package vm

import (
	"cmp"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Kind identifies which variant of the Value sum a value belongs to.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNum
	KindStr
	KindTuple
	KindField
	KindFunction
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNum:
		return "num"
	case KindStr:
		return "str"
	case KindTuple:
		return "tuple"
	case KindField:
		return "field"
	case KindFunction:
		return "function"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a runtime value of the field calculus.
//
// The set of implementations is closed:
//   - Null: the absent value
//   - Bool: booleans
//   - Num: numbers (float64; integers are represented exactly up to 2^53)
//   - Str: text
//   - *Tuple: immutable ordered sequences
//   - *Field: neighbor-indexed values
//   - *Function: callable references
//
// All values are immutable once constructed and may be shared freely between
// goroutines.
type Value interface {
	Kind() Kind
	String() string
	value() // sealed marker
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Num is a numeric value.
type Num float64

// Str is a text value.
type Str string

func (Null) Kind() Kind { return KindNull }
func (Bool) Kind() Kind { return KindBool }
func (Num) Kind() Kind  { return KindNum }
func (Str) Kind() Kind  { return KindStr }

func (Null) value() {}
func (Bool) value() {}
func (Num) value()  {}
func (Str) value()  {}

func (Null) String() string { return "null" }

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

func (n Num) String() string {
	f := float64(n)
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (s Str) String() string { return string(s) }

// Format renders v as text. A nil interface renders as null.
func Format(v Value) string {
	if v == nil {
		return "null"
	}
	return v.String()
}

// absent reports whether v is the missing value, either nil or Null.
func absent(v Value) bool {
	return v == nil || v.Kind() == KindNull
}

// orNull maps the nil interface onto Null so that every stored value is a
// member of the sum.
func orNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// ---------------------------------------------------------------------------
// Equality and hashing
// ---------------------------------------------------------------------------

// Equal reports whether a and b are structurally equal. Tuples compare
// element-wise, fields entry-wise, functions by definition.
func Equal(a, b Value) bool {
	a, b = orNull(a), orNull(b)
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Null:
		return true
	case Bool:
		return x == b.(Bool)
	case Num:
		y := b.(Num)
		return x == y || (x != x && y != y)
	case Str:
		return x == b.(Str)
	case *Tuple:
		return x.Equal(b.(*Tuple))
	case *Field:
		return x.Equal(b.(*Field))
	case *Function:
		return x.Equal(b.(*Function))
	}
	return false
}

// Hash returns a structural hash of v consistent with Equal.
func Hash(v Value) uint64 {
	switch x := orNull(v).(type) {
	case Null:
		return 0x6e756c6c
	case Bool:
		if x {
			return 1231
		}
		return 1237
	case Num:
		f := float64(x)
		if f == 0 {
			f = 0 // fold -0 onto +0
		}
		if math.IsNaN(f) {
			f = math.NaN()
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		return xxhash.Sum64(buf[:])
	case Str:
		return xxhash.Sum64String(string(x))
	case *Tuple:
		return x.Hash()
	case *Field:
		return x.Hash()
	case *Function:
		return x.Hash()
	}
	return 0
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

// Compare orders a and b. Numbers, strings, booleans and tuples are ordered
// naturally among their own kind; any other pairing is ordered by comparing
// text renderings. Compare never fails.
func Compare(a, b Value) int {
	if c, ok := compareNatural(a, b); ok {
		return c
	}
	return strings.Compare(Format(a), Format(b))
}

// compareNatural compares a and b when both have the same naturally ordered
// kind. ok is false for incomparable pairs.
func compareNatural(a, b Value) (c int, ok bool) {
	switch x := a.(type) {
	case Num:
		if y, isNum := b.(Num); isNum {
			return cmp.Compare(x, y), true
		}
	case Str:
		if y, isStr := b.(Str); isStr {
			return strings.Compare(string(x), string(y)), true
		}
	case Bool:
		if y, isBool := b.(Bool); isBool {
			switch {
			case x == y:
				return 0, true
			case !bool(x):
				return -1, true
			default:
				return 1, true
			}
		}
	case *Tuple:
		if y, isTuple := b.(*Tuple); isTuple {
			return x.CompareTo(y), true
		}
	}
	return 0, false
}

// Truthy reports whether v is the boolean true.
func Truthy(v Value) bool {
	b, ok := v.(Bool)
	return ok && bool(b)
}
