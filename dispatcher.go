package gobayeux

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Dispatcher delivers messages to the callbacks the registry resolves for
// them. Callback failures are caught here and handed to the report function.
type Dispatcher struct {
	registry *ChannelRegistry
	timeout  time.Duration
	report   func(error)
	logger   Logger
	metrics  MetricsCollector
}

// NewDispatcher creates a Dispatcher. A zero timeout runs callbacks inline
// without a bound; report may be nil.
func NewDispatcher(registry *ChannelRegistry, timeout time.Duration, report func(error)) *Dispatcher {
	if report == nil {
		report = func(error) {}
	}
	return &Dispatcher{
		registry: registry,
		timeout:  timeout,
		report:   report,
		logger:   newNullLogger(),
		metrics:  nopMetrics{},
	}
}

// Deliver invokes every callback matching m.Channel in precedence order and
// returns how many were invoked. It stops early only when ctx is done.
//
// Meta messages only reach patterns under /meta/, so a /** listener sees
// application traffic alone.
func (d *Dispatcher) Deliver(ctx context.Context, m Message) int {
	subs := d.registry.Resolve(m.Channel)
	invoked := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		if m.IsMeta() && sub.Pattern.Type() != MetaChannel {
			continue
		}
		invoked++
		err := d.invoke(ctx, sub, m)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Shutting down; the callback did not fail.
			break
		}
		d.metrics.ObserveDelivery(sub.Pattern, err)
		if err != nil {
			d.logger.WithError(err).Warn("callback failed", "channel", m.Channel, "subscription", sub.Pattern)
			d.report(CallbackError{Channel: m.Channel, Subscription: sub.Pattern, Err: err})
		}
	}
	return invoked
}

// DeliverBatch delivers messages one after the other in batch order
func (d *Dispatcher) DeliverBatch(ctx context.Context, ms []Message) {
	for _, m := range ms {
		if ctx.Err() != nil {
			return
		}
		d.Deliver(ctx, m)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, sub Subscription, m Message) error {
	if d.timeout <= 0 {
		return safeCall(sub.Callback, m)
	}

	done := make(chan error, 1)
	go func() {
		done <- safeCall(sub.Callback, m)
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrCallbackTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func safeCall(cb Callback, m Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return cb(m)
}
