// Package field is the schema-driven field engine shared by the telemetry
// and command paths.
//
// It works on protobuf descriptors discovered at runtime and never on
// generated types. The main entry points are:
//
//   - Schema: an index of message descriptors, built once per schema
//   - Schema.Flatten: a message rendered as an ordered path-to-value map
//   - Schema.Resolve: a dotted path navigated to one writable leaf
//   - Decode / Text: command text to typed value and back
//   - Applier: a single command turned into a submitted partial update
//
// Every failure is an *Error with a Kind. Use errors.Is against the Err*
// sentinels or KindOf to branch on it.
package field
