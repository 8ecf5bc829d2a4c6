package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dishbridge"

// Result label values.
const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// connectionStates lists every state the connection gauge reports.
var connectionStates = []string{"disconnected", "connecting", "connected", "closing"}

// Collector records bridge activity.
//
// Thread Safety: all methods are safe for concurrent use.
type Collector struct {
	polls           *prometheus.CounterVec
	commands        *prometheus.CounterVec
	publishes       prometheus.Counter
	connectionState *prometheus.GaugeVec
	cachedTopics    prometheus.Gauge
}

// NewCollector registers the bridge series on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Telemetry polls by result.",
		}, []string{"result"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Applied commands by result.",
		}, []string{"result"}),
		publishes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Messages delivered to the broker.",
		}),
		connectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current broker connection state, 0 otherwise.",
		}, []string{"state"}),
		cachedTopics: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retained_cache_topics",
			Help:      "Topics held for replay after reconnect.",
		}),
	}
}

// ObservePoll counts one telemetry poll.
func (c *Collector) ObservePoll(ok bool) {
	c.polls.WithLabelValues(result(ok)).Inc()
}

// ObserveCommand counts one command.
func (c *Collector) ObserveCommand(ok bool) {
	c.commands.WithLabelValues(result(ok)).Inc()
}

// ObservePublish counts one delivered message.
func (c *Collector) ObservePublish() {
	c.publishes.Inc()
}

// SetConnectionState marks state as current.
func (c *Collector) SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.connectionState.WithLabelValues(s).Set(v)
	}
}

// SetCachedTopics reports the retained cache size.
func (c *Collector) SetCachedTopics(n int) {
	c.cachedTopics.Set(float64(n))
}

func result(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultFailure
}
