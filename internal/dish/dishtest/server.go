package dishtest

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Target is the dial address for a Server; pair it with Server.DialOption.
const Target = "passthrough:///bufnet"

// Server is a fake dish answering the Handle method over an in-memory
// listener. It keeps a mutable DishConfig that set-config requests merge into.
type Server struct {
	Files *protoregistry.Files

	lis  *bufconn.Listener
	grpc *grpc.Server

	request  protoreflect.MessageDescriptor
	response protoreflect.MessageDescriptor

	mu        sync.Mutex
	status    protoreflect.Message
	config    protoreflect.Message
	noConfig  bool
	setErr    error
	requests  []string
	submitted []protoreflect.Message
}

// Options tunes a Server.
type Options struct {
	// NoReflection leaves the reflection service unregistered.
	NoReflection bool
}

// Start runs a Server until the test ends.
func Start(t testing.TB, opts Options) *Server {
	t.Helper()

	files := Files()
	s := &Server{
		Files:    files,
		lis:      bufconn.Listen(1 << 20),
		grpc:     grpc.NewServer(),
		request:  Message(files, "Request"),
		response: Message(files, "Response"),
	}
	s.status = dynamicpb.NewMessage(Message(files, "DishGetStatusResponse"))
	s.config = dynamicpb.NewMessage(Message(files, "DishConfig"))

	s.grpc.RegisterService(&grpc.ServiceDesc{
		ServiceName: pkg + ".Device",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Handle",
			Handler:    handleHandler,
		}},
		Metadata: FileName,
	}, s)

	if !opts.NoReflection {
		rpb.RegisterServerReflectionServer(s.grpc, reflection.NewServer(reflection.ServerOptions{
			Services:           s.grpc,
			DescriptorResolver: files,
		}))
	}

	go s.grpc.Serve(s.lis) //nolint:errcheck // Serve returns when Stop is called

	t.Cleanup(s.grpc.Stop)
	return s
}

// DialOption routes connections to the in-memory listener.
func (s *Server) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return s.lis.DialContext(ctx)
	})
}

// Status returns the status message served by get_status; tests populate it.
func (s *Server) Status() protoreflect.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Config returns the current DishConfig; tests may populate it.
func (s *Server) Config() protoreflect.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// SetNoConfig makes dish_get_config answer with an empty response.
func (s *Server) SetNoConfig(v bool) {
	s.mu.Lock()
	s.noConfig = v
	s.mu.Unlock()
}

// FailSet makes every set-config request return err.
func (s *Server) FailSet(err error) {
	s.mu.Lock()
	s.setErr = err
	s.mu.Unlock()
}

// Requests returns the request member names received, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

// Submitted returns the DishConfig payloads of accepted set-config requests.
func (s *Server) Submitted() []protoreflect.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protoreflect.Message, len(s.submitted))
	copy(out, s.submitted)
	return out
}

func handleHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	return srv.(*Server).handle(ctx, dec)
}

func (s *Server) handle(_ context.Context, dec func(any) error) (any, error) {
	req := dynamicpb.NewMessage(s.request)
	if err := dec(req); err != nil {
		return nil, err
	}

	member := req.WhichOneof(s.request.Oneofs().ByName("request"))
	if member == nil {
		return nil, status.Error(codes.InvalidArgument, "empty request")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, string(member.Name()))

	resp := dynamicpb.NewMessage(s.response)
	fields := s.response.Fields()

	switch member.Name() {
	case "get_status":
		resp.Set(fields.ByName("dish_get_status"), protoreflect.ValueOfMessage(s.status))

	case "dish_get_config":
		if s.noConfig {
			break
		}
		getResp := resp.Mutable(fields.ByName("dish_get_config")).Message()
		getResp.Set(getResp.Descriptor().Fields().ByName("dish_config"), protoreflect.ValueOfMessage(s.config))

	case "dish_set_config":
		if s.setErr != nil {
			return nil, s.setErr
		}
		setReq := req.Get(member).Message()
		partial := setReq.Get(setReq.Descriptor().Fields().ByName("dish_config")).Message()
		s.submitted = append(s.submitted, proto.Clone(partial.Interface()).ProtoReflect())
		proto.Merge(s.config.Interface(), partial.Interface())
		resp.Mutable(fields.ByName("dish_set_config"))

	default:
		return nil, status.Errorf(codes.Unimplemented, "unsupported request %s", member.Name())
	}

	return resp, nil
}
