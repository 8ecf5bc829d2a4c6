package field

import (
	"testing"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/dish/dishtest"
)

// testFiles is shared so descriptors and messages in a test always agree.
var testFiles = dishtest.Files()

func descriptor(short string) protoreflect.MessageDescriptor {
	return dishtest.Message(testFiles, short)
}

func newMessage(short string) *dynamicpb.Message {
	return dynamicpb.NewMessage(descriptor(short))
}

func fieldInfo(t *testing.T, short, name string) *FieldInfo {
	t.Helper()
	md := descriptor(short)
	fi, ok := NewSchema(md).Message(md).Field(name)
	if !ok {
		t.Fatalf("%s has no field %s", short, name)
	}
	return fi
}

func enumOf(t *testing.T, short, name string) protoreflect.EnumDescriptor {
	t.Helper()
	fi := fieldInfo(t, short, name)
	if fi.Enum == nil {
		t.Fatalf("%s.%s is not an enum", short, name)
	}
	return fi.Enum
}

func set(m protoreflect.Message, name string, v protoreflect.Value) {
	m.Set(m.Descriptor().Fields().ByName(protoreflect.Name(name)), v)
}

func get(m protoreflect.Message, name string) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name)))
}

func has(m protoreflect.Message, name string) bool {
	return m.Has(m.Descriptor().Fields().ByName(protoreflect.Name(name)))
}
