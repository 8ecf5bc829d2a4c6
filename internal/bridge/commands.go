package bridge

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

// Commander applies one string-valued command to a field path.
type Commander interface {
	Apply(ctx context.Context, path, raw string) field.Result
}

// CommandRecorder persists command outcomes.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, path string, result field.Result, at time.Time) error
}

// Ack is the acknowledgement published for every command.
type Ack struct {
	Field     string  `json:"field"`
	Requested string  `json:"requested"`
	Applied   *string `json:"applied"`
	Success   bool    `json:"success"`
	Message   *string `json:"message"`
	Timestamp int64   `json:"timestamp"`
}

// NewAck builds the acknowledgement for result.
func NewAck(path string, result field.Result, at time.Time) Ack {
	return Ack{
		Field:     path,
		Requested: result.Requested,
		Applied:   result.Applied,
		Success:   result.Success,
		Message:   result.Message,
		Timestamp: at.Unix(),
	}
}

// handleMessage dispatches an inbound command off the transport's
// callback goroutine. Topics that are not command topics are ignored.
func (b *Bridge) handleMessage(topic string, payload []byte) {
	path, ok := b.topics.CommandPath(topic)
	if !ok {
		return
	}
	if !utf8.Valid(payload) {
		b.logger.Warn("dropping command with non-UTF-8 payload", "topic", topic)
		return
	}
	raw := strings.TrimSpace(string(payload))

	b.dispatchMu.Lock()
	if b.draining {
		b.dispatchMu.Unlock()
		b.logger.Warn("dropping command during shutdown", "field", path)
		return
	}
	b.inflight.Add(1)
	b.dispatchMu.Unlock()

	go func() {
		defer b.inflight.Done()
		b.execute(context.Background(), path, raw)
	}()
}

// execute applies one command and publishes its acknowledgement.
func (b *Bridge) execute(ctx context.Context, path, raw string) {
	b.logger.Info("command received", "field", path, "value", raw)

	result := b.commands.Apply(ctx, path, raw)
	b.metrics.ObserveCommand(result.Success)
	if result.Success {
		b.logger.Info("command applied", "field", path, "applied", deref(result.Applied))
	} else {
		b.logger.Warn("command failed", "field", path, "error", deref(result.Message))
	}

	now := b.now()
	if b.recorder != nil {
		if err := b.recorder.RecordCommand(ctx, path, result, now); err != nil {
			b.logger.Warn("recording command failed", "field", path, "error", err)
		}
	}

	payload, err := json.Marshal(NewAck(path, result, now))
	if err != nil {
		b.logger.Error("encoding ack failed", "field", path, "error", err)
		return
	}
	b.publish(b.topics.Ack(path), payload)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
