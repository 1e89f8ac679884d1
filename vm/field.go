package vm

import (
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
)

// DeviceID identifies a device in the network.
type DeviceID string

// Field maps device identities to values. It always holds an entry for the
// local device, the one that built it. Fields are immutable.
type Field struct {
	local DeviceID
	ids   []DeviceID // local first, then neighbors in ascending order
	vals  map[DeviceID]Value

	hashOnce sync.Once
	hash     uint64
}

// NewField creates a field with the local device's value and its neighbors'
// values. An entry for local in neighbors is ignored.
func NewField(local DeviceID, localValue Value, neighbors map[DeviceID]Value) *Field {
	f := &Field{
		local: local,
		ids:   make([]DeviceID, 0, len(neighbors)+1),
		vals:  make(map[DeviceID]Value, len(neighbors)+1),
	}
	f.ids = append(f.ids, local)
	f.vals[local] = orNull(localValue)
	for _, id := range slices.Sorted(maps.Keys(neighbors)) {
		if id == local {
			continue
		}
		f.ids = append(f.ids, id)
		f.vals[id] = orNull(neighbors[id])
	}
	return f
}

func (*Field) Kind() Kind { return KindField }
func (*Field) value()     {}

// Local returns the identity of the device that owns the field.
func (f *Field) Local() DeviceID { return f.local }

// LocalValue returns the local device's contribution.
func (f *Field) LocalValue() Value { return f.vals[f.local] }

// Get returns the value contributed by id.
func (f *Field) Get(id DeviceID) (Value, bool) {
	v, ok := f.vals[id]
	return v, ok
}

// Len returns the number of entries, including the local one.
func (f *Field) Len() int { return len(f.ids) }

// All iterates over every (device, value) pair, local device first.
func (f *Field) All() iter.Seq2[DeviceID, Value] {
	return func(yield func(DeviceID, Value) bool) {
		for _, id := range f.ids {
			if !yield(id, f.vals[id]) {
				return
			}
		}
	}
}

// Neighbors iterates over the pairs of every device except the local one.
func (f *Field) Neighbors() iter.Seq2[DeviceID, Value] {
	return func(yield func(DeviceID, Value) bool) {
		for _, id := range f.ids[1:] {
			if !yield(id, f.vals[id]) {
				return
			}
		}
	}
}

// Map returns a field with fn applied to every value.
func (f *Field) Map(fn func(DeviceID, Value) (Value, error)) (*Field, error) {
	out := &Field{local: f.local, ids: f.ids, vals: make(map[DeviceID]Value, len(f.vals))}
	for _, id := range f.ids {
		v, err := fn(id, f.vals[id])
		if err != nil {
			return nil, err
		}
		out.vals[id] = orNull(v)
	}
	return out, nil
}

// Equal reports whether both fields have the same local device and the same
// entries.
func (f *Field) Equal(other *Field) bool {
	if f == other {
		return true
	}
	if other == nil || f.local != other.local || len(f.vals) != len(other.vals) {
		return false
	}
	for id, v := range f.vals {
		w, ok := other.vals[id]
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}

// Hash returns a structural hash of the field.
func (f *Field) Hash() uint64 {
	f.hashOnce.Do(func() {
		h := Hash(Str(f.local))
		for _, id := range f.ids {
			h = h*31 + (Hash(Str(id)) ^ Hash(f.vals[id]))
		}
		f.hash = h
	})
	return f.hash
}

// String renders the field as {id: value, ...}, local entry first.
func (f *Field) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, id := range f.ids {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(string(id))
		sb.WriteString(": ")
		sb.WriteString(Format(f.vals[id]))
	}
	sb.WriteByte('}')
	return sb.String()
}
