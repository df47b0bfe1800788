// Package prommetrics exports gobayeux session metrics to Prometheus.
//
//	collector := prommetrics.New("myapp")
//	prometheus.MustRegister(collector)
//	client, err := gobayeux.NewClient(addr, gobayeux.WithMetrics(collector))
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dkmadigan/gobayeux"
)

var states = []gobayeux.StateRepresentation{
	gobayeux.UnconnectedState,
	gobayeux.HandshakingState,
	gobayeux.ConnectedState,
	gobayeux.ConnectingState,
	gobayeux.DisconnectedState,
}

// Collector implements both gobayeux.MetricsCollector and
// prometheus.Collector
type Collector struct {
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	deliveries       *prometheus.CounterVec
	state            *prometheus.GaugeVec
	stateTransitions *prometheus.CounterVec
}

// New creates a Collector whose metrics live under namespace
func New(namespace string) *Collector {
	return &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bayeux",
				Name:      "requests_total",
				Help:      "Bayeux request batches sent, by first channel.",
			},
			[]string{"channel", "success"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bayeux",
				Name:      "request_duration_seconds",
				Help:      "Bayeux request duration in seconds, long polls included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel", "success"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bayeux",
				Name:      "deliveries_total",
				Help:      "Callback invocations, by subscription pattern.",
			},
			[]string{"subscription", "success"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bayeux",
				Name:      "session_state",
				Help:      "1 for the current session state, 0 otherwise.",
			},
			[]string{"state"},
		),
		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bayeux",
				Name:      "state_transitions_total",
				Help:      "Session state changes, by new state.",
			},
			[]string{"state"},
		),
	}
}

// ObserveRequest implements gobayeux.MetricsCollector
func (c *Collector) ObserveRequest(channel gobayeux.Channel, duration time.Duration, err error) {
	success := strconv.FormatBool(err == nil)
	c.requests.WithLabelValues(string(channel), success).Inc()
	c.requestDuration.WithLabelValues(string(channel), success).Observe(duration.Seconds())
}

// ObserveDelivery implements gobayeux.MetricsCollector
func (c *Collector) ObserveDelivery(subscription gobayeux.Channel, err error) {
	c.deliveries.WithLabelValues(string(subscription), strconv.FormatBool(err == nil)).Inc()
}

// ObserveState implements gobayeux.MetricsCollector
func (c *Collector) ObserveState(state gobayeux.StateRepresentation) {
	for _, s := range states {
		value := 0.0
		if s == state {
			value = 1
		}
		c.state.WithLabelValues(string(s)).Set(value)
	}
	c.stateTransitions.WithLabelValues(string(state)).Inc()
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.requests.Describe(ch)
	c.requestDuration.Describe(ch)
	c.deliveries.Describe(ch)
	c.state.Describe(ch)
	c.stateTransitions.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.requests.Collect(ch)
	c.requestDuration.Collect(ch)
	c.deliveries.Collect(ch)
	c.state.Collect(ch)
	c.stateTransitions.Collect(ch)
}

var (
	_ gobayeux.MetricsCollector = (*Collector)(nil)
	_ prometheus.Collector      = (*Collector)(nil)
)
