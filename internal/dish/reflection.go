package dish

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

// LoadSchemaReflection fetches the file defining symbol, and every file it
// transitively imports, over the gRPC server reflection protocol.
//
// Imports the server cannot serve are taken from the well-known types linked
// into this binary. Any other failure is a KindSchemaUnavailable error.
func LoadSchemaReflection(ctx context.Context, conn grpc.ClientConnInterface, symbol string) (*protoregistry.Files, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := rpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	if err != nil {
		return nil, field.SchemaUnavailable(fmt.Errorf("opening reflection stream: %w", err))
	}
	defer stream.CloseSend() //nolint:errcheck // Best effort; ctx cancel tears the stream down

	fetched := make(map[string]*descriptorpb.FileDescriptorProto)
	requested := make(map[string]bool)
	pending := []*rpb.ServerReflectionRequest{{
		MessageRequest: &rpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: symbol},
	}}

	for len(pending) > 0 {
		req := pending[0]
		pending = pending[1:]

		if err := stream.Send(req); err != nil {
			return nil, field.SchemaUnavailable(fmt.Errorf("sending reflection request: %w", err))
		}
		resp, err := stream.Recv()
		if err != nil {
			return nil, field.SchemaUnavailable(fmt.Errorf("receiving reflection response: %w", err))
		}

		if e := resp.GetErrorResponse(); e != nil {
			name := req.GetFileByFilename()
			if name != "" {
				if fd, ok := linkedFile(name); ok {
					fetched[name] = fd
					continue
				}
			}
			return nil, field.SchemaUnavailable(fmt.Errorf("reflection error %d: %s", e.GetErrorCode(), e.GetErrorMessage()))
		}

		fdr := resp.GetFileDescriptorResponse()
		if fdr == nil {
			return nil, field.SchemaUnavailable(fmt.Errorf("unexpected reflection response for %v", req.GetMessageRequest()))
		}

		for _, raw := range fdr.GetFileDescriptorProto() {
			fd := new(descriptorpb.FileDescriptorProto)
			if err := proto.Unmarshal(raw, fd); err != nil {
				return nil, field.SchemaUnavailable(fmt.Errorf("decoding file descriptor: %w", err))
			}
			if _, ok := fetched[fd.GetName()]; ok {
				continue
			}
			fetched[fd.GetName()] = fd
		}

		for _, fd := range fetched {
			for _, dep := range fd.GetDependency() {
				if _, ok := fetched[dep]; ok || requested[dep] {
					continue
				}
				requested[dep] = true
				pending = append(pending, &rpb.ServerReflectionRequest{
					MessageRequest: &rpb.ServerReflectionRequest_FileByFilename{FileByFilename: dep},
				})
			}
		}
	}

	set := &descriptorpb.FileDescriptorSet{File: make([]*descriptorpb.FileDescriptorProto, 0, len(fetched))}
	for _, fd := range fetched {
		set.File = append(set.File, fd)
	}

	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, field.SchemaUnavailable(fmt.Errorf("building descriptors: %w", err))
	}
	return files, nil
}

// linkedFile returns a file compiled into this binary, such as a well-known type.
func linkedFile(name string) (*descriptorpb.FileDescriptorProto, bool) {
	fd, err := protoregistry.GlobalFiles.FindFileByPath(name)
	if err != nil {
		return nil, false
	}
	return protodesc.ToFileDescriptorProto(fd), true
}
