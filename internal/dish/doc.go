// Package dish is the device-control adapter for a Starlink dish.
//
// The dish exposes a single unary gRPC method, SpaceX.API.Device.Device/Handle,
// whose Request and Response messages are large oneofs. No generated code is
// compiled in: the schema is fetched at startup over gRPC server reflection
// (or read from a FileDescriptorSet file) and all messages are built with
// dynamicpb.
//
// # Operations
//
//   - FetchStatus: get_status → dish_get_status
//   - FetchConfig: dish_get_config → dish_get_config
//   - SubmitPartialUpdate: dish_set_config{dish_config: partial}
//
// # Errors
//
// A schema that cannot be loaded or lacks any of the messages above is a
// field.KindSchemaUnavailable error and is fatal at startup. RPC failures are
// returned as gRPC status errors.
package dish
