// Package bridge connects the dish device API to an MQTT broker.
//
// A Bridge runs two loops sharing one cancellation signal:
//
//   - The connect loop keeps a Session connected, retrying with exponential
//     backoff. Each successful connect subscribes to command topics,
//     publishes a retained "online" status and replays the last payload of
//     every topic published so far.
//   - The poll loop fetches dish status and configuration, flattens them
//     into dotted field paths and publishes one topic per leaf.
//
// Inbound "<prefix>/<field>/set" messages are applied to the dish
// concurrently, each answered by exactly one JSON acknowledgement on
// "<prefix>/<field>/ack".
//
// Topic layout (prefix configurable):
//
//	<prefix>/status              retained online/offline
//	<prefix>/<path>              one telemetry leaf, "." replaced by "/"
//	<prefix>/all                 optional JSON of every published field
//	<prefix>/<path>/set          inbound plain-text command
//	<prefix>/<path>/ack          outbound command acknowledgement
package bridge
