// Package influxdb is the optional telemetry sink of the bridge.
//
// Each successful poll becomes one "dish_telemetry" point whose fields are
// the numeric and boolean leaves of the flattened telemetry, keyed by their
// dot-separated path, and tagged with the dish's device_id when known.
// Strings, enums, lists and nested objects stay on MQTT only.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influxdb write failed", "error", err) })
//	// pass client as bridge.Options.Sink
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched according to
// batch_size and flush_interval and sent asynchronously; write errors are
// delivered to the SetOnError callback.
package influxdb
