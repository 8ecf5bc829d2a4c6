package bridge

import (
	"context"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

// allPayload is the document published on the "all" topic.
type allPayload struct {
	Fields    *field.Fields `json:"fields"`
	Timestamp int64         `json:"timestamp"`
}

// Poll fetches telemetry once and publishes it. A status fetch failure is
// returned wrapped in ErrPollFailed; a configuration fetch failure only
// drops the configuration fields from this poll.
func (b *Bridge) Poll(ctx context.Context) error {
	fields, err := b.fetch(ctx)
	if err != nil {
		b.metrics.ObservePoll(false)
		return err
	}
	b.warnUnmatched(fields.Keys())

	published := fields.Filter(b.filter)
	for _, path := range published.Keys() {
		v, _ := published.Get(path)
		b.publishValue(path, v)
	}
	if b.publishMissing {
		for _, path := range b.filter.Unmatched(published.Keys()) {
			b.publish(b.topics.Field(path), nil)
		}
	}

	now := b.now()
	if b.publishJSON {
		payload, err := json.Marshal(allPayload{Fields: published, Timestamp: now.Unix()})
		if err != nil {
			b.logger.Warn("encoding all-fields payload failed", "error", err)
		} else {
			b.publish(b.topics.All(), payload)
		}
	}

	if b.sink != nil {
		if err := b.sink.WriteTelemetry(ctx, published, now); err != nil {
			b.logger.Warn("telemetry sink write failed", "error", err)
		}
	}

	b.metrics.ObservePoll(true)
	b.logger.Debug("telemetry published", "fields", published.Len())
	return nil
}

func (b *Bridge) fetch(ctx context.Context) (*field.Fields, error) {
	status, err := b.device.FetchStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPollFailed, err)
	}
	fields := b.schema.Flatten(status)

	cfg, err := b.device.FetchConfig(ctx)
	switch {
	case err != nil:
		b.logger.Warn("dish config fetch failed", "error", err)
	case cfg != nil:
		fields.Merge(b.schema.Flatten(cfg))
	}
	return fields, nil
}

// publishValue publishes one telemetry leaf. Nil values are skipped unless
// missing values are published.
func (b *Bridge) publishValue(path string, v any) {
	if v == nil && !b.publishMissing {
		return
	}
	payload, err := EncodeValue(v)
	if err != nil {
		b.logger.Warn("encoding telemetry value failed", "field", path, "error", err)
		return
	}
	b.publish(b.topics.Field(path), payload)
}

func (b *Bridge) publish(topic string, payload []byte) {
	if payload == nil {
		payload = []byte{}
	}
	b.session.Publish(topic, payload, b.retain) //nolint:errcheck // Logged by the session; cached for replay
}

// warnUnmatched logs each filter path that matches no telemetry path,
// once for the life of the bridge.
func (b *Bridge) warnUnmatched(paths []string) {
	unmatched := b.filter.Unmatched(paths)
	if len(unmatched) == 0 {
		return
	}
	b.warnedMu.Lock()
	defer b.warnedMu.Unlock()
	for _, p := range unmatched {
		if b.warned[p] {
			continue
		}
		b.warned[p] = true
		b.logger.Warn("field filter matches no telemetry", "field", p)
	}
}

// EncodeValue renders a telemetry value as an MQTT payload: strings
// verbatim, booleans as true/false, numbers in shortest decimal form and
// structured values as JSON. Nil renders as an empty payload.
func EncodeValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(x), nil
	case bool:
		return []byte(strconv.FormatBool(x)), nil
	case int32:
		return []byte(strconv.FormatInt(int64(x), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(x, 10)), nil
	case uint32:
		return []byte(strconv.FormatUint(uint64(x), 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(x, 10)), nil
	case float32:
		return []byte(strconv.FormatFloat(float64(x), 'g', -1, 32)), nil
	case float64:
		return []byte(strconv.FormatFloat(x, 'g', -1, 64)), nil
	default:
		return json.Marshal(field.JSONSafe(v))
	}
}
