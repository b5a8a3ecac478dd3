// Package metrics provides Prometheus metrics for the vending controller.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector of the controller.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	queueDepth     prometheus.Gauge
	queueCapacity  prometheus.Gauge
	eventsEnqueued *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	eventsApplied  *prometheus.CounterVec

	centsCredited *prometheus.CounterVec
	centsDebited  *prometheus.CounterVec
	balanceCents  *prometheus.GaugeVec
	relayOn       *prometheus.GaugeVec

	energyMetered   *prometheus.CounterVec
	meterReadErrors *prometheus.CounterVec
	debitDeferred   *prometheus.CounterVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry sets the registry collectors are registered on.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

var global = NewManager() //nolint:gochecknoglobals // process-wide collectors

// NewManager creates a Manager on a private registry so the default Go
// runtime collectors are not exported.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "evm",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)

	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue", Name: "depth",
		Help: "Events waiting in the control queue",
	})
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue", Name: "capacity",
		Help: "Fixed capacity of the control queue",
	})
	m.eventsEnqueued = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "queue", Name: "enqueued_total",
		Help: "Events accepted by the control queue",
	}, []string{"kind"})
	m.eventsDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "queue", Name: "rejected_total",
		Help: "Push attempts the queue could not accept",
	}, []string{"kind", "reason"})
	m.eventsApplied = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "controller", Name: "events_applied_total",
		Help: "Events applied to the ledger by the control loop",
	}, []string{"kind"})

	m.centsCredited = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "ledger", Name: "credited_cents_total",
		Help: "Cents credited per destination (left, right, pending)",
	}, []string{"side"})
	m.centsDebited = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "ledger", Name: "debited_cents_total",
		Help: "Cents debited for metered energy per outlet",
	}, []string{"side"})
	m.balanceCents = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "ledger", Name: "balance_cents",
		Help: "Current balance per outlet",
	}, []string{"side"})
	m.relayOn = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "relay", Name: "energized",
		Help: "1 when the outlet relay is energized",
	}, []string{"side"})

	m.energyMetered = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "metering", Name: "energy_wh_total",
		Help: "Energy measured per outlet since startup",
	}, []string{"side"})
	m.meterReadErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "metering", Name: "read_errors_total",
		Help: "Failed meter register reads per outlet",
	}, []string{"side"})
	m.debitDeferred = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "metering", Name: "debits_deferred_total",
		Help: "Debits carried to the next poll because the queue was full",
	}, []string{"side"})
}

// Registry returns the registry holding the manager's collectors.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the manager's registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Default returns the process-wide manager.
func Default() *Manager { return global }

// Handler serves the process-wide registry.
func Handler() http.Handler { return global.Handler() }

// SetQueueCapacity records the queue's fixed capacity.
func SetQueueCapacity(n int) { global.queueCapacity.Set(float64(n)) }

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) { global.queueDepth.Set(float64(n)) }

// RecordEnqueued counts an accepted event.
func RecordEnqueued(kind string) { global.eventsEnqueued.WithLabelValues(kind).Inc() }

// RecordRejected counts a push the queue refused ("full", "closed", "timeout").
func RecordRejected(kind, reason string) { global.eventsDropped.WithLabelValues(kind, reason).Inc() }

// RecordApplied counts an event applied by the control loop.
func RecordApplied(kind string) { global.eventsApplied.WithLabelValues(kind).Inc() }

// AddCredited adds cents credited to a destination.
func AddCredited(side string, cents uint64) { global.centsCredited.WithLabelValues(side).Add(float64(cents)) }

// AddDebited adds cents debited from an outlet.
func AddDebited(side string, cents uint64) { global.centsDebited.WithLabelValues(side).Add(float64(cents)) }

// SetBalance records the balance of an outlet.
func SetBalance(side string, cents uint64) { global.balanceCents.WithLabelValues(side).Set(float64(cents)) }

// SetRelay records the relay level of an outlet.
func SetRelay(side string, on bool) { global.relayOn.WithLabelValues(side).Set(boolGauge(on)) }

// AddEnergy adds metered watt-hours for an outlet.
func AddEnergy(side string, wh uint64) { global.energyMetered.WithLabelValues(side).Add(float64(wh)) }

// RecordMeterReadError counts a failed meter read.
func RecordMeterReadError(side string) { global.meterReadErrors.WithLabelValues(side).Inc() }

// RecordDebitDeferred counts a debit postponed by backpressure.
func RecordDebitDeferred(side string) { global.debitDeferred.WithLabelValues(side).Inc() }
