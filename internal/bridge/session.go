package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

// Connection states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateClosing      = "closing"
)

// Session events.
const (
	eventConnect    = "connect"
	eventConnected  = "connected"
	eventFail       = "fail"
	eventDisconnect = "disconnect"
	eventClose      = "close"
)

// MessageHandler receives inbound messages from the broker.
type MessageHandler = func(topic string, payload []byte)

// ConnectionLostHandler is called when an established connection drops.
type ConnectionLostHandler = func(err error)

// Transport is the pub/sub connection a Session drives.
type Transport interface {
	// Connect opens the broker connection and blocks until it is
	// established or fails.
	Connect(ctx context.Context) error

	// Disconnect closes the connection cleanly. It must not invoke the
	// connection-lost handler.
	Disconnect()

	Publish(topic string, payload []byte, qos byte, retain bool) error
	Subscribe(topic string, qos byte) error

	// SetHandlers installs the inbound message and connection-lost callbacks.
	SetHandlers(onMessage MessageHandler, onLost ConnectionLostHandler)
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Transport Transport
	Topics    Topics
	Filter    field.Filter
	QoS       byte

	// OnMessage receives every inbound message.
	OnMessage MessageHandler

	Cache   *RetainedCache
	Logger  Logger
	Metrics Metrics
}

// Session owns the broker connection lifecycle: state transitions,
// command subscriptions, online/offline status and retained replay.
//
// Every publish is stored in the RetainedCache first and sent live only
// while connected. On each successful connect the whole cache is replayed,
// so the latest payload per topic reaches the broker after an outage.
//
// Thread Safety: all methods are safe for concurrent use.
type Session struct {
	transport Transport
	topics    Topics
	filter    field.Filter
	qos       byte
	onMessage MessageHandler
	cache     *RetainedCache
	logger    Logger
	metrics   Metrics

	state *fsm.FSM

	// pubMu orders publishes against connect, replay and close.
	pubMu sync.Mutex

	lostMu     sync.Mutex
	lost       chan struct{}
	lostClosed bool

	readyOnce sync.Once
	ready     chan struct{}
}

// NewSession creates a disconnected Session and installs its handlers on
// the transport.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	s := &Session{
		transport: opts.Transport,
		topics:    opts.Topics,
		filter:    opts.Filter,
		qos:       opts.QoS,
		onMessage: opts.OnMessage,
		cache:     opts.Cache,
		logger:    orNopLogger(opts.Logger),
		metrics:   orNopMetrics(opts.Metrics),
		lost:      make(chan struct{}),
		ready:     make(chan struct{}),
	}
	if s.cache == nil {
		s.cache = NewRetainedCache()
	}

	s.state = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: eventConnected, Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: eventFail, Src: []string{StateConnecting}, Dst: StateDisconnected},
			{Name: eventDisconnect, Src: []string{StateConnecting, StateConnected}, Dst: StateDisconnected},
			{Name: eventClose, Src: []string{StateDisconnected, StateConnecting, StateConnected}, Dst: StateClosing},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.metrics.SetConnectionState(e.Dst)
			},
		},
	)
	s.metrics.SetConnectionState(StateDisconnected)

	s.transport.SetHandlers(s.handleMessage, s.handleConnectionLost)
	return s, nil
}

// State returns the current connection state.
func (s *Session) State() string {
	return s.state.Current()
}

// Cache returns the retained cache backing the session.
func (s *Session) Cache() *RetainedCache {
	return s.cache
}

// Lost returns a channel closed when the current connection drops or the
// session closes. Read it after Connect returns.
func (s *Session) Lost() <-chan struct{} {
	s.lostMu.Lock()
	defer s.lostMu.Unlock()
	return s.lost
}

// WaitConnected blocks until the session has connected at least once.
func (s *Session) WaitConnected(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect establishes the broker connection, subscribes to command topics,
// publishes the online status and replays the retained cache.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.fire(eventConnect); err != nil {
		return err
	}
	s.resetLost()

	if err := s.transport.Connect(ctx); err != nil {
		s.fire(eventFail) //nolint:errcheck // Lost or closed meanwhile; state already left connecting
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if err := s.fire(eventConnected); err != nil {
		s.transport.Disconnect()
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	for _, topic := range s.topics.Subscriptions(s.filter) {
		if err := s.transport.Subscribe(topic, s.qos); err != nil {
			s.fire(eventDisconnect) //nolint:errcheck // Only fails when already disconnected or closing
			s.transport.Disconnect()
			return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
		}
		s.logger.Debug("subscribed", "topic", topic)
	}

	s.store(Entry{Topic: s.topics.Status(), Payload: []byte(StatusOnline), QoS: s.qos, Retain: true})

	for _, e := range s.cache.Snapshot() {
		s.send(e)
	}

	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("mqtt session connected", "replayed", s.cache.Len())
	return nil
}

// Publish stores the payload as the latest value for topic and sends it if
// the session is connected. Status publishes use Close and Connect.
func (s *Session) Publish(topic string, payload []byte, retain bool) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	e := Entry{Topic: topic, Payload: payload, QoS: s.qos, Retain: retain}
	s.store(e)
	if s.state.Current() != StateConnected {
		return nil
	}
	return s.send(e)
}

// Close publishes the offline status, closes the transport and moves the
// session to its terminal state. Closing twice returns ErrClosed.
func (s *Session) Close() error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	wasConnected := s.state.Current() == StateConnected
	if err := s.fire(eventClose); err != nil {
		return ErrClosed
	}

	offline := Entry{Topic: s.topics.Status(), Payload: []byte(StatusOffline), QoS: s.qos, Retain: true}
	s.store(offline)
	if wasConnected {
		s.send(offline) //nolint:errcheck // Logged by send; the will message covers a failed offline publish
	}
	s.transport.Disconnect()
	s.signalLost()

	s.logger.Info("mqtt session closed")
	return nil
}

func (s *Session) handleConnectionLost(err error) {
	if ferr := s.fire(eventDisconnect); ferr != nil {
		return
	}
	s.logger.Warn("mqtt connection lost", "error", err)
	s.signalLost()
}

func (s *Session) handleMessage(topic string, payload []byte) {
	if s.onMessage != nil {
		s.onMessage(topic, payload)
	}
}

// store updates the cache. Callers hold pubMu.
func (s *Session) store(e Entry) {
	s.cache.Store(e)
	s.metrics.SetCachedTopics(s.cache.Len())
}

// send delivers e live. Callers hold pubMu.
func (s *Session) send(e Entry) error {
	if err := s.transport.Publish(e.Topic, e.Payload, e.QoS, e.Retain); err != nil {
		s.logger.Warn("mqtt publish failed", "topic", e.Topic, "error", err)
		return err
	}
	s.metrics.ObservePublish()
	return nil
}

func (s *Session) fire(event string) error {
	if err := s.state.Event(context.Background(), event); err != nil {
		return fmt.Errorf("%w: %s from %s", ErrInvalidState, event, s.state.Current())
	}
	return nil
}

func (s *Session) resetLost() {
	s.lostMu.Lock()
	defer s.lostMu.Unlock()
	if s.lostClosed {
		s.lost = make(chan struct{})
		s.lostClosed = false
	}
}

func (s *Session) signalLost() {
	s.lostMu.Lock()
	defer s.lostMu.Unlock()
	if !s.lostClosed {
		close(s.lost)
		s.lostClosed = true
	}
}
