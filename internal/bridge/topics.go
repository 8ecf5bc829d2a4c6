package bridge

import (
	"strings"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

// Topic suffixes under the configured prefix.
const (
	topicStatus = "status"
	topicAll    = "all"
	suffixSet   = "set"
	suffixAck   = "ack"

	// fieldPlaceholder stands for any field path in topic listings.
	fieldPlaceholder = "<grpc-field>"
)

// Status payloads published on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topics builds the bridge's MQTT topic names under one prefix.
//
//	topics := bridge.NewTopics("taphome/starlink")
//	topics.Set("dish_config.snow_melt_mode")
//	// Returns: "taphome/starlink/dish_config/snow_melt_mode/set"
type Topics struct {
	prefix string
}

// NewTopics returns topic builders for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	return Topics{prefix: strings.Trim(prefix, "/")}
}

// Prefix returns the topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// Status returns the retained online/offline topic.
func (t Topics) Status() string {
	return t.prefix + "/" + topicStatus
}

// All returns the topic carrying the JSON document of every published field.
func (t Topics) All() string {
	return t.prefix + "/" + topicAll
}

// Field returns the telemetry topic for a dotted field path.
func (t Topics) Field(path string) string {
	return t.prefix + "/" + field.TopicPath(path)
}

// Set returns the inbound command topic for a field path.
func (t Topics) Set(path string) string {
	return t.Field(path) + "/" + suffixSet
}

// Ack returns the acknowledgement topic for a field path.
func (t Topics) Ack(path string) string {
	return t.Field(path) + "/" + suffixAck
}

// Wildcard returns the subscription covering every topic under the prefix.
func (t Topics) Wildcard() string {
	return t.prefix + "/#"
}

// CommandPath extracts the dotted field path from a command topic.
// It reports false for topics outside the prefix, topics not ending in
// "/set", and topics naming no field.
func (t Topics) CommandPath(topic string) (string, bool) {
	head := t.prefix + "/"
	tail := "/" + suffixSet
	if !strings.HasPrefix(topic, head) || !strings.HasSuffix(topic, tail) || len(topic) < len(head)+len(tail) {
		return "", false
	}
	path := field.Canonical(topic[len(head) : len(topic)-len(tail)])
	if path == "" {
		return "", false
	}
	return path, true
}

// Subscriptions returns the command subscriptions for filter: the prefix
// wildcard when filter is empty, else one set topic per filtered path.
func (t Topics) Subscriptions(filter field.Filter) []string {
	if filter.Empty() {
		return []string{t.Wildcard()}
	}
	paths := filter.Paths()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, t.Set(p))
	}
	return out
}

// List returns every topic the bridge uses, for display. Field-specific
// topics are shown as placeholders unless filter names concrete fields.
func (t Topics) List(filter field.Filter) []string {
	out := []string{
		t.Status(),
		t.prefix + "/" + fieldPlaceholder,
		t.All(),
	}
	if filter.Empty() {
		return append(out,
			t.prefix+"/"+fieldPlaceholder+"/"+suffixSet,
			t.prefix+"/"+fieldPlaceholder+"/"+suffixAck,
		)
	}
	for _, p := range filter.Paths() {
		out = append(out, t.Set(p), t.Ack(p))
	}
	return out
}
