package dish

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// DefaultAddress is the dish's local gRPC endpoint.
const DefaultAddress = "192.168.100.1:9200"

// Options configures a Client.
type Options struct {
	// Address is the dish gRPC endpoint (host:port).
	Address string

	// SchemaFile is an optional FileDescriptorSet used instead of server
	// reflection.
	SchemaFile string

	// DialOptions are appended to the defaults (insecure transport).
	DialOptions []grpc.DialOption
}

// Client is the device-control adapter for the dish.
//
// Every call is a blocking unary RPC; no per-call timeout is applied beyond
// what ctx carries.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	conn   *grpc.ClientConn
	schema *Schema
}

// Dial connects to the dish and loads its schema. A schema that cannot be
// loaded is a KindSchemaUnavailable error and the connection is closed.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	addr := opts.Address
	if addr == "" {
		addr = DefaultAddress
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts.DialOptions...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	files, err := loadFiles(ctx, conn, opts.SchemaFile)
	if err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	schema, err := NewSchema(files)
	if err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	return &Client{conn: conn, schema: schema}, nil
}

func loadFiles(ctx context.Context, conn grpc.ClientConnInterface, schemaFile string) (*protoregistry.Files, error) {
	if schemaFile != "" {
		return LoadSchemaFile(schemaFile)
	}
	return LoadSchemaReflection(ctx, conn, ServiceName)
}

// Schema returns the loaded device schema.
func (c *Client) Schema() *Schema {
	return c.schema
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// FetchStatus returns the dish status payload.
func (c *Client) FetchStatus(ctx context.Context) (protoreflect.Message, error) {
	resp, err := c.handle(ctx, c.schema.getStatus)
	if err != nil {
		return nil, err
	}
	if !resp.Has(c.schema.dishGetStatusResp) {
		return nil, fmt.Errorf("%w: no %s in response", ErrUnexpectedResponse, respDishGetStatus)
	}
	return resp.Get(c.schema.dishGetStatusResp).Message(), nil
}

// FetchConfig returns the dish configuration payload, or nil when the
// firmware does not answer configuration reads.
func (c *Client) FetchConfig(ctx context.Context) (protoreflect.Message, error) {
	resp, err := c.handle(ctx, c.schema.dishGetConfig)
	if err != nil {
		return nil, err
	}
	if !resp.Has(c.schema.dishGetConfigResp) {
		return nil, nil
	}
	return resp.Get(c.schema.dishGetConfigResp).Message(), nil
}

// SubmitPartialUpdate sends partial as the dish configuration of a
// set-config request.
func (c *Client) SubmitPartialUpdate(ctx context.Context, partial protoreflect.Message) error {
	if partial.Descriptor().FullName() != c.schema.PartialUpdate().FullName() {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongMessage,
			partial.Descriptor().FullName(), c.schema.PartialUpdate().FullName())
	}

	req := dynamicpb.NewMessage(c.schema.request)
	setConfig := req.Mutable(c.schema.dishSetConfig).Message()
	setConfig.Set(c.schema.setConfigPayload, protoreflect.ValueOfMessage(partial))

	resp := dynamicpb.NewMessage(c.schema.response)
	return c.conn.Invoke(ctx, handleMethod, req, resp)
}

// handle sends a request whose only populated member is the empty message
// field fd and returns the response.
func (c *Client) handle(ctx context.Context, fd protoreflect.FieldDescriptor) (protoreflect.Message, error) {
	req := dynamicpb.NewMessage(c.schema.request)
	req.Set(fd, protoreflect.ValueOfMessage(dynamicpb.NewMessage(fd.Message())))

	resp := dynamicpb.NewMessage(c.schema.response)
	if err := c.conn.Invoke(ctx, handleMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
