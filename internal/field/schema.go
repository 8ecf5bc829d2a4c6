package field

import (
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// FieldInfo is the indexed description of one schema field.
type FieldInfo struct {
	Name     string
	Number   protoreflect.FieldNumber
	Kind     protoreflect.Kind
	Repeated bool
	Map      bool

	// Presence reports whether the field tracks explicit presence.
	Presence bool

	// Enum is set for enum-kind fields.
	Enum protoreflect.EnumDescriptor

	// Message is set for message and group kind fields (map entry for maps).
	Message protoreflect.MessageDescriptor

	desc protoreflect.FieldDescriptor
}

// IsMessage reports whether the field holds a nested message.
func (f *FieldInfo) IsMessage() bool {
	return f.Kind == protoreflect.MessageKind || f.Kind == protoreflect.GroupKind
}

// Descriptor returns the underlying protobuf field descriptor.
func (f *FieldInfo) Descriptor() protoreflect.FieldDescriptor {
	return f.desc
}

// MessageInfo is the indexed description of one message type.
type MessageInfo struct {
	Desc   protoreflect.MessageDescriptor
	fields []*FieldInfo
	byName map[string]*FieldInfo
}

// Field looks up a field by its schema name.
func (m *MessageInfo) Field(name string) (*FieldInfo, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// Fields returns all fields in declaration order.
func (m *MessageInfo) Fields() []*FieldInfo {
	return m.fields
}

// Schema is a lookup table over introspected message descriptors.
//
// Messages reachable from the roots are indexed once at construction;
// unknown message types are indexed on first use.
//
// Thread Safety: safe for concurrent use.
type Schema struct {
	mu       sync.RWMutex
	messages map[protoreflect.FullName]*MessageInfo
}

// NewSchema indexes every message type reachable from roots.
func NewSchema(roots ...protoreflect.MessageDescriptor) *Schema {
	s := &Schema{messages: make(map[protoreflect.FullName]*MessageInfo)}
	s.mu.Lock()
	for _, root := range roots {
		s.index(root)
	}
	s.mu.Unlock()
	return s
}

// Message returns the index entry for md.
func (s *Schema) Message(md protoreflect.MessageDescriptor) *MessageInfo {
	s.mu.RLock()
	info, ok := s.messages[md.FullName()]
	s.mu.RUnlock()
	if ok {
		return info
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index(md)
}

// index must be called with mu held for writing. Recursive message types
// terminate because an entry is registered before its children are walked.
func (s *Schema) index(md protoreflect.MessageDescriptor) *MessageInfo {
	if info, ok := s.messages[md.FullName()]; ok {
		return info
	}

	fds := md.Fields()
	info := &MessageInfo{
		Desc:   md,
		fields: make([]*FieldInfo, 0, fds.Len()),
		byName: make(map[string]*FieldInfo, fds.Len()),
	}
	s.messages[md.FullName()] = info

	for i := 0; i < fds.Len(); i++ {
		fd := fds.Get(i)
		fi := &FieldInfo{
			Name:     string(fd.Name()),
			Number:   fd.Number(),
			Kind:     fd.Kind(),
			Repeated: fd.IsList() || fd.IsMap(),
			Map:      fd.IsMap(),
			Presence: fd.HasPresence(),
			Enum:     fd.Enum(),
			Message:  fd.Message(),
			desc:     fd,
		}
		info.fields = append(info.fields, fi)
		info.byName[fi.Name] = fi
	}

	for _, fi := range info.fields {
		if fi.Message != nil {
			s.index(fi.Message)
		}
	}

	return info
}
