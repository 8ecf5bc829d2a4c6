// Package dishtest provides an in-process dish schema and gRPC server for tests.
//
// The schema mirrors the shape of the real device API (a Request/Response
// oneof pair, DishConfig with apply_* flags, nested status messages) with a
// small set of fields. It is built from descriptor protos at runtime so no
// generated code is needed.
package dishtest

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// FileName is the path of the test schema file.
const FileName = "spacex/api/device/device.proto"

const pkg = "SpaceX.API.Device"

// FullName qualifies a short message or enum name with the schema package.
func FullName(short string) protoreflect.FullName {
	return protoreflect.FullName(pkg + "." + short)
}

type (
	fdp = descriptorpb.FieldDescriptorProto
	typ = descriptorpb.FieldDescriptorProto_Type
)

const (
	tBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tInt64   = descriptorpb.FieldDescriptorProto_TYPE_INT64
	tUint32  = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tUint64  = descriptorpb.FieldDescriptorProto_TYPE_UINT64
	tFloat   = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	tDouble  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE

	optional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	repeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
)

func scalar(name string, number int32, t typ) *fdp {
	return &fdp{
		Name:     proto.String(name),
		JsonName: proto.String(name),
		Number:   proto.Int32(number),
		Label:    optional.Enum(),
		Type:     t.Enum(),
	}
}

func ref(name string, number int32, t typ, short string) *fdp {
	f := scalar(name, number, t)
	f.TypeName = proto.String("." + pkg + "." + short)
	return f
}

func list(f *fdp) *fdp {
	f.Label = repeated.Enum()
	return f
}

func inOneof(f *fdp, index int32) *fdp {
	f.OneofIndex = proto.Int32(index)
	return f
}

func enum(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return e
}

func message(name string, fields ...*fdp) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// FileDescriptorProto returns the test schema file.
func FileDescriptorProto() *descriptorpb.FileDescriptorProto {
	status := message("DishGetStatusResponse",
		ref("device_info", 1, tMessage, "DeviceInfo"),
		ref("device_state", 2, tMessage, "DeviceState"),
		ref("obstruction_stats", 3, tMessage, "DishObstructionStats"),
		ref("alerts", 4, tMessage, "DishAlerts"),
		ref("state", 5, tEnum, "DishState"),
		list(ref("outages", 6, tMessage, "Outage")),
		list(scalar("snr_history", 7, tFloat)),
		list(ref("counters", 8, tMessage, "DishGetStatusResponse.CountersEntry")),
		scalar("pop_ping_latency_ms", 9, tFloat),
		scalar("eth_speed_mbps", 10, tInt32),
	)
	status.NestedType = []*descriptorpb.DescriptorProto{{
		Name:    proto.String("CountersEntry"),
		Field:   []*fdp{scalar("key", 1, tString), scalar("value", 2, tInt32)},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}}

	request := message("Request",
		scalar("id", 1, tUint64),
		inOneof(ref("get_status", 1004, tMessage, "GetStatusRequest"), 0),
		inOneof(ref("dish_get_config", 2011, tMessage, "DishGetConfigRequest"), 0),
		inOneof(ref("dish_set_config", 2012, tMessage, "DishSetConfigRequest"), 0),
	)
	request.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String("request")}}

	response := message("Response",
		scalar("id", 1, tUint64),
		inOneof(ref("dish_get_status", 2004, tMessage, "DishGetStatusResponse"), 0),
		inOneof(ref("dish_get_config", 2011, tMessage, "DishGetConfigResponse"), 0),
		inOneof(ref("dish_set_config", 2012, tMessage, "DishSetConfigResponse"), 0),
	)
	response.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String("response")}}

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(FileName),
		Package: proto.String(pkg),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{
			enum("SnowMeltMode", "AUTO", "ALWAYS_ON", "ALWAYS_OFF"),
			enum("ChannelMode", "CHANNEL_UNKNOWN", "POWER_ON", "RADIO_ON", "OFF"),
			enum("DishState", "UNKNOWN", "CONNECTED", "SEARCHING", "BOOTING"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("PowerSchedule",
				scalar("start_minutes", 1, tUint32),
				scalar("duration_minutes", 2, tUint32),
			),
			message("DishConfig",
				ref("snow_melt_mode", 1, tEnum, "SnowMeltMode"),
				scalar("apply_snow_melt_mode", 2, tBool),
				scalar("power_save_mode", 3, tBool),
				scalar("apply_power_save_mode", 4, tBool),
				ref("power_save_schedule", 5, tMessage, "PowerSchedule"),
				scalar("apply_power_save_schedule", 6, tBool),
				ref("channel_mode", 7, tEnum, "ChannelMode"),
				scalar("tilt_offset", 8, tInt32),
				scalar("azimuth_hint", 9, tDouble),
				scalar("gain", 10, tFloat),
				scalar("counter", 11, tInt64),
				scalar("label", 12, tString),
				scalar("blob", 13, tBytes),
				list(scalar("tags", 14, tString)),
			),
			message("DeviceInfo",
				scalar("id", 1, tString),
				scalar("hardware_version", 2, tString),
				scalar("boot_count", 3, tInt32),
			),
			message("DeviceState", scalar("uptime_s", 1, tUint64)),
			message("DishObstructionStats",
				scalar("fraction_obstructed", 1, tFloat),
				scalar("currently_obstructed", 2, tBool),
			),
			message("DishAlerts"),
			message("Outage",
				scalar("cause", 1, tString),
				scalar("duration_ns", 2, tUint64),
			),
			status,
			message("GetStatusRequest"),
			message("DishGetConfigRequest"),
			message("DishGetConfigResponse", ref("dish_config", 1, tMessage, "DishConfig")),
			message("DishSetConfigRequest", ref("dish_config", 1, tMessage, "DishConfig")),
			message("DishSetConfigResponse"),
			request,
			response,
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Device"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("Handle"),
				InputType:  proto.String("." + pkg + ".Request"),
				OutputType: proto.String("." + pkg + ".Response"),
			}},
		}},
	}
}

// DescriptorSet returns the schema as a serialized FileDescriptorSet.
func DescriptorSet() []byte {
	b, err := proto.Marshal(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{FileDescriptorProto()},
	})
	if err != nil {
		panic(fmt.Sprintf("dishtest: marshalling descriptor set: %v", err))
	}
	return b
}

// Files builds a registry holding the test schema.
func Files() *protoregistry.Files {
	files, err := protodesc.NewFiles(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{FileDescriptorProto()},
	})
	if err != nil {
		panic(fmt.Sprintf("dishtest: building schema: %v", err))
	}
	return files
}

// Message returns the message type short from files.
func Message(files *protoregistry.Files, short string) protoreflect.MessageDescriptor {
	d, err := files.FindDescriptorByName(FullName(short))
	if err != nil {
		panic(fmt.Sprintf("dishtest: %s: %v", short, err))
	}
	return d.(protoreflect.MessageDescriptor)
}
