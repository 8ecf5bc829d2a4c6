// Package metrics exposes bridge counters and gauges in Prometheus format.
//
// A Collector registers its series on the registry it is given, which keeps
// tests isolated from the process-wide default registry. Server serves a
// registry on /metrics and dependency health on /health until its context
// ends.
package metrics
