package influxdb

import (
	"context"
	"math"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

const (
	// Measurement is the point name written for every poll.
	Measurement = "dish_telemetry"

	// deviceIDPath is tagged onto every point when the telemetry carries it.
	deviceIDPath = "device_info.id"
)

// WriteTelemetry queues one point holding the numeric and boolean leaves of
// fields. Telemetry without such leaves writes nothing.
func (c *Client) WriteTelemetry(_ context.Context, fields *field.Fields, at time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := TelemetryPoint(fields, at)
	if point == nil {
		return nil
	}
	c.writeAPI.WritePoint(point)
	return nil
}

// TelemetryPoint builds the point for fields, or nil if no leaf is numeric
// or boolean.
func TelemetryPoint(fields *field.Fields, at time.Time) *write.Point {
	values := pointFields(fields)
	if len(values) == 0 {
		return nil
	}

	tags := map[string]string{}
	if v, ok := fields.Get(deviceIDPath); ok {
		if id, ok := v.(string); ok && id != "" {
			tags["device_id"] = id
		}
	}

	return write.NewPoint(Measurement, tags, values, at)
}

// pointFields keeps the leaves line protocol can carry. Non-finite floats
// are dropped.
func pointFields(fields *field.Fields) map[string]any {
	out := make(map[string]any)
	for _, key := range fields.Keys() {
		v, _ := fields.Get(key)
		switch x := v.(type) {
		case bool:
			out[key] = x
		case int32:
			out[key] = int64(x)
		case int64:
			out[key] = x
		case uint32:
			out[key] = uint64(x)
		case uint64:
			out[key] = x
		case float32:
			if f := float64(x); !math.IsNaN(f) && !math.IsInf(f, 0) {
				out[key] = f
			}
		case float64:
			if !math.IsNaN(x) && !math.IsInf(x, 0) {
				out[key] = x
			}
		}
	}
	return out
}
