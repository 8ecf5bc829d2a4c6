package field

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// EmptyObject marks a singular submessage that is absent or has no fields.
// It is published as "{}" so consumers can tell it apart from a path that
// was never reached.
type EmptyObject struct{}

// MarshalJSON implements json.Marshaler.
func (EmptyObject) MarshalJSON() ([]byte, error) {
	return []byte("{}"), nil
}

// Fields is an insertion-ordered map from dotted path to value.
//
// Values are scalars (bool, int32, int64, uint32, uint64, float32, float64,
// string), enum names, []any for repeated scalars, []*Fields for repeated
// messages, *Fields for map fields, EmptyObject, or nil.
type Fields struct {
	keys   []string
	values map[string]any
}

// NewFields returns an empty Fields.
func NewFields() *Fields {
	return &Fields{values: make(map[string]any)}
}

// Set stores value under path, keeping the original position on overwrite.
func (f *Fields) Set(path string, value any) {
	if _, ok := f.values[path]; !ok {
		f.keys = append(f.keys, path)
	}
	f.values[path] = value
}

// Get returns the value stored under path.
func (f *Fields) Get(path string) (any, bool) {
	v, ok := f.values[path]
	return v, ok
}

// Len returns the number of paths.
func (f *Fields) Len() int {
	return len(f.keys)
}

// Keys returns the paths in insertion order.
func (f *Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Merge appends every entry of other, in other's order.
func (f *Fields) Merge(other *Fields) {
	for _, k := range other.keys {
		f.Set(k, other.values[k])
	}
}

// Filter returns the entries whose path passes filter, in order.
func (f *Fields) Filter(filter Filter) *Fields {
	out := NewFields()
	for _, k := range f.keys {
		if filter.Allows(k) {
			out.Set(k, f.values[k])
		}
	}
	return out
}

// MarshalJSON writes the entries as a JSON object in insertion order.
// Non-finite floats are written as null.
func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(JSONSafe(f.values[k]))
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// JSONSafe replaces non-finite floats, which JSON cannot carry, with nil.
func JSONSafe(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = JSONSafe(item)
		}
		return out
	}
	return v
}

// Flatten walks every field declared by m's schema and returns a flat
// path-to-value map.
//
// Singular submessages recurse with a dotted prefix; an absent or empty one
// maps to EmptyObject. Repeated messages become a list of independently
// flattened entries. Scalars are reported without default suppression.
func (s *Schema) Flatten(m protoreflect.Message) *Fields {
	out := NewFields()
	if m == nil || !m.IsValid() {
		return out
	}
	s.flattenInto(out, "", m)
	return out
}

func (s *Schema) flattenInto(out *Fields, prefix string, m protoreflect.Message) {
	info := s.Message(m.Descriptor())
	for _, fi := range info.Fields() {
		path := fi.Name
		if prefix != "" {
			path = prefix + pathSeparator + fi.Name
		}
		fd := fi.Descriptor()

		switch {
		case fi.Map:
			out.Set(path, s.flattenMap(fi, m.Get(fd).Map()))

		case fi.Repeated:
			list := m.Get(fd).List()
			if fi.IsMessage() {
				items := make([]*Fields, 0, list.Len())
				for i := 0; i < list.Len(); i++ {
					items = append(items, s.Flatten(list.Get(i).Message()))
				}
				out.Set(path, items)
				continue
			}
			items := make([]any, 0, list.Len())
			for i := 0; i < list.Len(); i++ {
				items = append(items, scalarValue(fi, list.Get(i)))
			}
			out.Set(path, items)

		case fi.IsMessage():
			if fi.Presence && !m.Has(fd) {
				out.Set(path, EmptyObject{})
				continue
			}
			nested := NewFields()
			s.flattenInto(nested, path, m.Get(fd).Message())
			if nested.Len() == 0 {
				out.Set(path, EmptyObject{})
				continue
			}
			out.Merge(nested)

		default:
			out.Set(path, scalarValue(fi, m.Get(fd)))
		}
	}
}

// flattenMap renders a map field as an object keyed by the map key text,
// ordered by key for stable output.
func (s *Schema) flattenMap(fi *FieldInfo, mp protoreflect.Map) *Fields {
	valueField := s.Message(fi.Message).byName["value"]
	type entry struct {
		key   string
		value protoreflect.Value
	}
	entries := make([]entry, 0, mp.Len())
	mp.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		entries = append(entries, entry{key: k.String(), value: v})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	out := NewFields()
	for _, e := range entries {
		if valueField != nil && valueField.IsMessage() {
			out.Set(e.key, s.Flatten(e.value.Message()))
			continue
		}
		if valueField != nil {
			out.Set(e.key, scalarValue(valueField, e.value))
			continue
		}
		out.Set(e.key, e.value.Interface())
	}
	return out
}

// scalarValue converts a protobuf scalar to its telemetry value. Enums are
// reported by name, bytes as UTF-8 text.
func scalarValue(fi *FieldInfo, v protoreflect.Value) any {
	switch fi.Kind {
	case protoreflect.EnumKind:
		return EnumName(fi.Enum, v.Enum())
	case protoreflect.BytesKind:
		return BytesText(v.Bytes())
	default:
		return v.Interface()
	}
}
