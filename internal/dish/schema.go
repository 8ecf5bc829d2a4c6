package dish

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

// Names of the device API as published by the dish.
const (
	// ServiceName is the fully-qualified gRPC service.
	ServiceName = "SpaceX.API.Device.Device"

	// handleMethod is the single unary method carrying every request.
	handleMethod = "/" + ServiceName + "/Handle"

	requestMessage  protoreflect.FullName = "SpaceX.API.Device.Request"
	responseMessage protoreflect.FullName = "SpaceX.API.Device.Response"

	reqGetStatus     protoreflect.Name = "get_status"
	reqDishGetConfig protoreflect.Name = "dish_get_config"
	reqDishSetConfig protoreflect.Name = "dish_set_config"

	respDishGetStatus protoreflect.Name = "dish_get_status"
	respDishGetConfig protoreflect.Name = "dish_get_config"

	setConfigDishConfig protoreflect.Name = "dish_config"
)

// Schema holds the validated descriptors the adapter needs.
type Schema struct {
	files *protoregistry.Files

	request  protoreflect.MessageDescriptor
	response protoreflect.MessageDescriptor

	getStatus     protoreflect.FieldDescriptor
	dishGetConfig protoreflect.FieldDescriptor
	dishSetConfig protoreflect.FieldDescriptor

	dishGetStatusResp protoreflect.FieldDescriptor
	dishGetConfigResp protoreflect.FieldDescriptor

	setConfigPayload protoreflect.FieldDescriptor

	index *field.Schema
}

// NewSchema looks up the device API in files. A missing message or field is
// a KindSchemaUnavailable error.
func NewSchema(files *protoregistry.Files) (*Schema, error) {
	s := &Schema{files: files}

	var err error
	if s.request, err = findMessage(files, requestMessage); err != nil {
		return nil, err
	}
	if s.response, err = findMessage(files, responseMessage); err != nil {
		return nil, err
	}

	lookups := []struct {
		msg  protoreflect.MessageDescriptor
		name protoreflect.Name
		dst  *protoreflect.FieldDescriptor
	}{
		{s.request, reqGetStatus, &s.getStatus},
		{s.request, reqDishGetConfig, &s.dishGetConfig},
		{s.request, reqDishSetConfig, &s.dishSetConfig},
		{s.response, respDishGetStatus, &s.dishGetStatusResp},
		{s.response, respDishGetConfig, &s.dishGetConfigResp},
	}
	for _, l := range lookups {
		if *l.dst, err = findMessageField(l.msg, l.name); err != nil {
			return nil, err
		}
	}

	if s.setConfigPayload, err = findMessageField(s.dishSetConfig.Message(), setConfigDishConfig); err != nil {
		return nil, err
	}

	s.index = field.NewSchema(s.response, s.PartialUpdate())
	return s, nil
}

// PartialUpdate returns the writable configuration message type.
func (s *Schema) PartialUpdate() protoreflect.MessageDescriptor {
	return s.setConfigPayload.Message()
}

// Index returns the field lookup table covering responses and updates.
func (s *Schema) Index() *field.Schema {
	return s.index
}

// Files returns the registry the schema was loaded from.
func (s *Schema) Files() *protoregistry.Files {
	return s.files
}

// LoadSchemaFile reads a binary FileDescriptorSet (protoc
// --descriptor_set_out --include_imports) from path.
func LoadSchemaFile(path string) (*protoregistry.Files, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, field.SchemaUnavailable(fmt.Errorf("reading descriptor set: %w", err))
	}

	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, field.SchemaUnavailable(fmt.Errorf("parsing descriptor set: %w", err))
	}

	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, field.SchemaUnavailable(fmt.Errorf("building descriptors: %w", err))
	}
	return files, nil
}

func findMessage(files *protoregistry.Files, name protoreflect.FullName) (protoreflect.MessageDescriptor, error) {
	d, err := files.FindDescriptorByName(name)
	if err != nil {
		return nil, field.SchemaUnavailable(fmt.Errorf("message %s: %w", name, err))
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, field.SchemaUnavailable(fmt.Errorf("%s is not a message", name))
	}
	return md, nil
}

func findMessageField(md protoreflect.MessageDescriptor, name protoreflect.Name) (protoreflect.FieldDescriptor, error) {
	fd := md.Fields().ByName(name)
	if fd == nil {
		return nil, field.SchemaUnavailable(fmt.Errorf("field %s.%s not found", md.FullName(), name))
	}
	if fd.Message() == nil || fd.IsList() || fd.IsMap() {
		return nil, field.SchemaUnavailable(fmt.Errorf("field %s.%s is not a singular message", md.FullName(), name))
	}
	return fd, nil
}
