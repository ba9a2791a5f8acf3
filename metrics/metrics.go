// Package metrics exposes Prometheus instrumentation for the receiver.
//
// All methods are safe on a nil *Metrics, so components accept an optional
// instance and callers that do not care about metrics pass nil.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Subsystem prefixes every metric name.
const Subsystem = "eagleray"

// Invocation results.
const (
	InvocationForwarded = "forwarded"
	InvocationDropped   = "dropped"
)

// Metrics holds the receiver's collectors.
type Metrics struct {
	registry *prometheus.Registry

	connectAttempts  *prometheus.CounterVec
	epochs           prometheus.Counter
	channelState     prometheus.Gauge
	objectsLive      prometheus.Gauge
	objectOps        *prometheus.CounterVec
	invocations      *prometheus.CounterVec
	variantsReleased *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	triggers         *prometheus.CounterVec
	triggerLatency   prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: Subsystem,
				Name:      "connect_attempts_total",
				Help:      "Channel connect requests issued, by result",
			},
			[]string{"result"},
		),
		epochs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem: Subsystem,
				Name:      "connection_epochs_total",
				Help:      "Connection epochs that reached the connected state",
			},
		),
		channelState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: Subsystem,
				Name:      "channel_state",
				Help:      "Last observed channel state (-1 uninitialized, 0 disconnected, 1 pending, 2 connected)",
			},
		),
		objectsLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: Subsystem,
				Name:      "channel_objects_live",
				Help:      "Channel objects currently registered",
			},
		),
		objectOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: Subsystem,
				Name:      "channel_object_operations_total",
				Help:      "Channel object create and destroy calls, by operation and result",
			},
			[]string{"operation", "result"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: Subsystem,
				Name:      "invocations_total",
				Help:      "Host invocations received, by result",
			},
			[]string{"result"},
		),
		variantsReleased: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: Subsystem,
				Name:      "variants_released_total",
				Help:      "Invocation parameter variants released, by result",
			},
			[]string{"result"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: Subsystem,
				Name:      "command_queue_depth",
				Help:      "Arguments waiting for the dispatcher",
			},
		),
		triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: Subsystem,
				Name:      "triggers_total",
				Help:      "Trigger calls executed by the dispatcher, by result",
			},
			[]string{"result"},
		),
		triggerLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Subsystem: Subsystem,
				Name:      "trigger_duration_seconds",
				Help:      "Time spent in a single trigger call",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
	}

	m.registry.MustRegister(
		m.connectAttempts,
		m.epochs,
		m.channelState,
		m.objectsLive,
		m.objectOps,
		m.invocations,
		m.variantsReleased,
		m.queueDepth,
		m.triggers,
		m.triggerLatency,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ConnectAttempt records one connect request.
func (m *Metrics) ConnectAttempt(ok bool) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result(ok)).Inc()
}

// EpochConnected records an epoch reaching the connected state.
func (m *Metrics) EpochConnected() {
	if m == nil {
		return
	}
	m.epochs.Inc()
}

// ChannelState records the last observed channel state.
func (m *Metrics) ChannelState(state int32) {
	if m == nil {
		return
	}
	m.channelState.Set(float64(state))
}

// ObjectCreated records a create call.
func (m *Metrics) ObjectCreated(ok bool) {
	if m == nil {
		return
	}
	m.objectOps.WithLabelValues("create", result(ok)).Inc()
	if ok {
		m.objectsLive.Inc()
	}
}

// ObjectDestroyed records a destroy call. The object is gone either way.
func (m *Metrics) ObjectDestroyed(ok bool) {
	if m == nil {
		return
	}
	m.objectOps.WithLabelValues("destroy", result(ok)).Inc()
	m.objectsLive.Dec()
}

// Invocation records one host invocation outcome.
func (m *Metrics) Invocation(outcome string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(outcome).Inc()
}

// VariantReleased records one variant release.
func (m *Metrics) VariantReleased(ok bool) {
	if m == nil {
		return
	}
	m.variantsReleased.WithLabelValues(result(ok)).Inc()
}

// QueueDepth records the current command queue length.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Trigger records one trigger call.
func (m *Metrics) Trigger(ok bool, took time.Duration) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(result(ok)).Inc()
	m.triggerLatency.Observe(took.Seconds())
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on address until ctx is done.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return m.ServeListener(ctx, listener)
}

// ServeListener is Serve on an existing listener, which it closes on return.
func (m *Metrics) ServeListener(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
