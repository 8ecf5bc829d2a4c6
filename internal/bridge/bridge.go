package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

// Default loop timings.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultBackoffMin   = time.Second
	DefaultBackoffMax   = 60 * time.Second

	// DefaultFlushTimeout bounds how long a single-shot run waits for the
	// broker after its poll.
	DefaultFlushTimeout = 10 * time.Second
)

// Device is the read side of the dish adapter.
type Device interface {
	FetchStatus(ctx context.Context) (protoreflect.Message, error)

	// FetchConfig returns nil, nil when the dish does not report configuration.
	FetchConfig(ctx context.Context) (protoreflect.Message, error)
}

// TelemetrySink receives each successful poll's published fields.
type TelemetrySink interface {
	WriteTelemetry(ctx context.Context, fields *field.Fields, at time.Time) error
}

// Options configures a Bridge.
type Options struct {
	Transport Transport
	Device    Device
	Commands  Commander

	// Schema flattens device messages.
	Schema *field.Schema

	Prefix string
	Filter field.Filter
	QoS    byte

	// Retain is the retain flag for telemetry, all-fields and ack publishes.
	// Status is always retained.
	Retain bool

	PollInterval   time.Duration
	Once           bool
	PublishJSON    bool
	PublishMissing bool

	// FlushTimeout is how long a single-shot run waits for a broker
	// connection to deliver its telemetry.
	FlushTimeout time.Duration

	BackoffMin time.Duration
	BackoffMax time.Duration

	// Recorder and Sink are optional.
	Recorder CommandRecorder
	Sink     TelemetrySink

	Logger  Logger
	Metrics Metrics

	// Now is the clock for payload timestamps; time.Now when nil.
	Now func() time.Time
}

// Bridge ties a Session, the dish and the field engine together.
type Bridge struct {
	session  *Session
	device   Device
	commands Commander
	schema   *field.Schema
	topics   Topics
	filter   field.Filter
	retain   bool

	pollInterval   time.Duration
	once           bool
	publishJSON    bool
	publishMissing bool
	flushTimeout   time.Duration
	backoffMin     time.Duration
	backoffMax     time.Duration

	recorder CommandRecorder
	sink     TelemetrySink
	logger   Logger
	metrics  Metrics
	now      func() time.Time

	dispatchMu sync.Mutex
	draining   bool
	inflight   sync.WaitGroup

	warnedMu sync.Mutex
	warned   map[string]bool
}

// New creates a Bridge. Nothing connects until Run.
func New(opts Options) (*Bridge, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if opts.Commands == nil {
		return nil, fmt.Errorf("commander is required")
	}
	if opts.Schema == nil {
		return nil, fmt.Errorf("schema is required")
	}

	b := &Bridge{
		device:         opts.Device,
		commands:       opts.Commands,
		schema:         opts.Schema,
		topics:         NewTopics(opts.Prefix),
		filter:         opts.Filter,
		retain:         opts.Retain,
		pollInterval:   opts.PollInterval,
		once:           opts.Once,
		publishJSON:    opts.PublishJSON,
		publishMissing: opts.PublishMissing,
		flushTimeout:   opts.FlushTimeout,
		backoffMin:     opts.BackoffMin,
		backoffMax:     opts.BackoffMax,
		recorder:       opts.Recorder,
		sink:           opts.Sink,
		logger:         orNopLogger(opts.Logger),
		metrics:        orNopMetrics(opts.Metrics),
		now:            opts.Now,
		warned:         make(map[string]bool),
	}
	if b.pollInterval <= 0 {
		b.pollInterval = DefaultPollInterval
	}
	if b.flushTimeout <= 0 {
		b.flushTimeout = DefaultFlushTimeout
	}
	if b.backoffMin <= 0 {
		b.backoffMin = DefaultBackoffMin
	}
	if b.backoffMax <= 0 {
		b.backoffMax = DefaultBackoffMax
	}
	if b.now == nil {
		b.now = time.Now
	}

	session, err := NewSession(SessionOptions{
		Transport: opts.Transport,
		Topics:    b.topics,
		Filter:    b.filter,
		QoS:       opts.QoS,
		OnMessage: b.handleMessage,
		Logger:    b.logger,
		Metrics:   b.metrics,
	})
	if err != nil {
		return nil, err
	}
	b.session = session
	return b, nil
}

// Session returns the bridge's broker session.
func (b *Bridge) Session() *Session {
	return b.session
}

// Topics returns the bridge's topic builder.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Run starts the connect and poll loops and blocks until ctx is cancelled
// or, in single-shot mode, the one poll has completed. In-flight commands
// are allowed to finish before the offline status is published and the
// transport is closed.
//
// In single-shot mode the poll runs immediately, whether or not the broker
// is reachable; its publishes wait in the retained cache for up to
// FlushTimeout for a connection. A failed single-shot poll is returned, so
// the caller can exit non-zero. Telemetry that could not be delivered
// within FlushTimeout is only logged.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.connectLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return b.pollLoop(gctx, stop)
	})
	err := g.Wait()

	b.dispatchMu.Lock()
	b.draining = true
	b.dispatchMu.Unlock()
	b.inflight.Wait()
	if cerr := b.session.Close(); cerr != nil && !errors.Is(cerr, ErrClosed) {
		b.logger.Warn("closing session failed", "error", cerr)
	}
	return err
}

// connectLoop keeps the session connected until ctx is done.
func (b *Bridge) connectLoop(ctx context.Context) {
	bo := NewBackoff(b.backoffMin, b.backoffMax)
	for ctx.Err() == nil {
		if err := b.session.Connect(ctx); err != nil {
			if b.session.State() == StateClosing {
				return
			}
			delay := bo.Next()
			b.logger.Warn("mqtt connect failed", "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		bo.Reset()

		select {
		case <-ctx.Done():
			return
		case <-b.session.Lost():
		}
	}
}

// pollLoop polls until ctx is done. In single-shot mode it polls once,
// waits for delivery and calls stop.
func (b *Bridge) pollLoop(ctx context.Context, stop context.CancelFunc) error {
	if b.once {
		defer stop()
		if err := b.Poll(ctx); err != nil {
			b.logger.Error("telemetry poll failed", "error", err)
			return err
		}
		b.awaitDelivery(ctx)
		return nil
	}

	bo := NewBackoff(b.backoffMin, b.backoffMax)
	for {
		delay := b.pollInterval
		if err := b.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay = bo.Next()
			b.logger.Warn("telemetry poll failed", "error", err, "retry_in", delay)
		} else {
			bo.Reset()
		}
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// awaitDelivery waits up to flushTimeout for the session to connect. The
// connect replays the cache, which delivers everything the poll stored.
func (b *Bridge) awaitDelivery(ctx context.Context) {
	wctx, cancel := context.WithTimeout(ctx, b.flushTimeout)
	defer cancel()
	if err := b.session.WaitConnected(wctx); err != nil && ctx.Err() == nil {
		b.logger.Warn("telemetry not delivered, broker unreachable", "waited", b.flushTimeout)
	}
}

// sleep waits for d or ctx, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
