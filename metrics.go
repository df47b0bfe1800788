package gobayeux

import "time"

// MetricsCollector receives observations about the session. Implementations
// must be safe for concurrent use and must not block.
type MetricsCollector interface {
	// ObserveRequest is called once per request batch, keyed by the channel
	// of its first message.
	ObserveRequest(channel Channel, duration time.Duration, err error)
	// ObserveDelivery is called for every callback invocation.
	ObserveDelivery(subscription Channel, err error)
	// ObserveState is called on every state change of the session.
	ObserveState(state StateRepresentation)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRequest(Channel, time.Duration, error) {}

func (nopMetrics) ObserveDelivery(Channel, error) {}

func (nopMetrics) ObserveState(StateRepresentation) {}
