package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/dish/dishtest"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

const testPrefix = "taphome/starlink"

var (
	testFiles = dishtest.Files()
	testTime  = time.Unix(1700000000, 0)
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ─── Transport ───────────────────────────────────────────────────────────────

// mockTransport records every call and lets tests drive the callbacks.
type mockTransport struct {
	mu           sync.Mutex
	connectErrs  []error
	subscribeErr error
	publishErr   error
	connected    bool
	connects     int
	disconnects  int
	subscribed   []string
	published    []Entry
	onMessage    MessageHandler
	onLost       ConnectionLostHandler
}

func (m *mockTransport) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if len(m.connectErrs) > 0 {
		err := m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	m.connected = true
	return nil
}

func (m *mockTransport) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
}

func (m *mockTransport) Publish(topic string, payload []byte, qos byte, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, Entry{Topic: topic, Payload: payload, QoS: qos, Retain: retain})
	return nil
}

func (m *mockTransport) Subscribe(topic string, _ byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscribed = append(m.subscribed, topic)
	return nil
}

func (m *mockTransport) SetHandlers(onMessage MessageHandler, onLost ConnectionLostHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = onMessage
	m.onLost = onLost
}

// drop simulates the broker connection going away.
func (m *mockTransport) drop() {
	m.mu.Lock()
	m.connected = false
	lost := m.onLost
	m.mu.Unlock()
	lost(errors.New("connection reset"))
}

// deliver simulates an inbound message.
func (m *mockTransport) deliver(topic, payload string) {
	m.mu.Lock()
	handler := m.onMessage
	m.mu.Unlock()
	handler(topic, []byte(payload))
}

func (m *mockTransport) publishes() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.published))
	copy(out, m.published)
	return out
}

func (m *mockTransport) resetPublishes() {
	m.mu.Lock()
	m.published = nil
	m.mu.Unlock()
}

func (m *mockTransport) subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.subscribed))
	copy(out, m.subscribed)
	return out
}

func (m *mockTransport) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// last returns the most recent publish to topic.
func (m *mockTransport) last(topic string) (Entry, bool) {
	pubs := m.publishes()
	for i := len(pubs) - 1; i >= 0; i-- {
		if pubs[i].Topic == topic {
			return pubs[i], true
		}
	}
	return Entry{}, false
}

// ─── Device ──────────────────────────────────────────────────────────────────

type mockDevice struct {
	mu        sync.Mutex
	status    protoreflect.Message
	config    protoreflect.Message
	statusErr error
	configErr error
	polls     int
}

func (d *mockDevice) FetchStatus(context.Context) (protoreflect.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.polls++
	if d.statusErr != nil {
		return nil, d.statusErr
	}
	return d.status, nil
}

func (d *mockDevice) FetchConfig(context.Context) (protoreflect.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.configErr != nil {
		return nil, d.configErr
	}
	return d.config, nil
}

func (d *mockDevice) pollCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

func newMessage(short string) *dynamicpb.Message {
	return dynamicpb.NewMessage(dishtest.Message(testFiles, short))
}

func set(m protoreflect.Message, name string, v protoreflect.Value) {
	m.Set(m.Descriptor().Fields().ByName(protoreflect.Name(name)), v)
}

func mutable(m protoreflect.Message, name string) protoreflect.Message {
	return m.Mutable(m.Descriptor().Fields().ByName(protoreflect.Name(name))).Message()
}

// newDevice returns a device reporting a connected dish with snow melt
// mode ALWAYS_ON.
func newDevice() *mockDevice {
	status := newMessage("DishGetStatusResponse")
	info := mutable(status, "device_info")
	set(info, "id", protoreflect.ValueOfString("ut01"))
	set(info, "boot_count", protoreflect.ValueOfInt32(7))
	set(status, "state", protoreflect.ValueOfEnum(1))
	set(status, "pop_ping_latency_ms", protoreflect.ValueOfFloat32(25.5))
	obstruction := mutable(status, "obstruction_stats")
	set(obstruction, "currently_obstructed", protoreflect.ValueOfBool(true))

	config := newMessage("DishGetConfigResponse")
	dishConfig := mutable(config, "dish_config")
	set(dishConfig, "snow_melt_mode", protoreflect.ValueOfEnum(1))

	return &mockDevice{status: status, config: config}
}

func testSchema() *field.Schema {
	return field.NewSchema(
		dishtest.Message(testFiles, "Response"),
		dishtest.Message(testFiles, "DishConfig"),
	)
}

// ─── Commander / recorder / sink ─────────────────────────────────────────────

type mockCommander struct {
	mu     sync.Mutex
	calls  []string
	result func(path, raw string) field.Result
}

func (c *mockCommander) Apply(_ context.Context, path, raw string) field.Result {
	c.mu.Lock()
	c.calls = append(c.calls, path+"="+raw)
	c.mu.Unlock()
	if c.result != nil {
		return c.result(path, raw)
	}
	return field.Result{Requested: raw, Applied: &raw, Success: true}
}

func (c *mockCommander) callList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

type mockRecorder struct {
	mu      sync.Mutex
	records []string
	err     error
}

func (r *mockRecorder) RecordCommand(_ context.Context, path string, result field.Result, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, fmt.Sprintf("%s:%t", path, result.Success))
	return r.err
}

type mockSink struct {
	mu     sync.Mutex
	writes []*field.Fields
}

func (s *mockSink) WriteTelemetry(_ context.Context, fields *field.Fields, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, fields)
	return nil
}

// ─── Logger / metrics ────────────────────────────────────────────────────────

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

type countingMetrics struct {
	mu       sync.Mutex
	polls    map[bool]int
	commands map[bool]int
	sent     int
	state    string
	cached   int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{polls: map[bool]int{}, commands: map[bool]int{}}
}

func (m *countingMetrics) ObservePoll(ok bool) {
	m.mu.Lock()
	m.polls[ok]++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveCommand(ok bool) {
	m.mu.Lock()
	m.commands[ok]++
	m.mu.Unlock()
}

func (m *countingMetrics) ObservePublish() {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}

func (m *countingMetrics) SetConnectionState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *countingMetrics) SetCachedTopics(n int) {
	m.mu.Lock()
	m.cached = n
	m.mu.Unlock()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
