// Package metrics exports container activity as Prometheus metrics. A
// Collector subscribes to container events, so instrumented containers need
// no knowledge of Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/entrhq/harvest/pkg/container"
	"github.com/entrhq/harvest/pkg/types"
)

const (
	namespace = "harvest"
	subsystem = "container"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector holds the metric vectors for a tree of containers. Labels use
// container names rather than ids so sibling children share series.
type Collector struct {
	passesTotal       *prometheus.CounterVec
	passDuration      *prometheus.HistogramVec
	debouncedTotal    *prometheus.CounterVec
	coalescedTotal    *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	childrenTotal     *prometheus.CounterVec
	tasksCompleted    *prometheus.CounterVec
	containersByState *prometheus.GaugeVec

	mu       sync.Mutex
	attached map[string]func()
}

// NewCollector registers the metrics with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		passesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "passes_total",
				Help:      "Total number of synchronization passes by trigger kind and outcome",
			},
			[]string{"container", "trigger", "outcome"},
		),
		passDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pass_duration_seconds",
				Help:      "Duration of synchronization passes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"container"},
		),
		debouncedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "triggers_debounced_total",
				Help:      "Total number of triggers suppressed by the debounce window",
			},
			[]string{"container", "trigger"},
		),
		coalescedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "triggers_coalesced_total",
				Help:      "Total number of queued triggers folded into a higher-priority pass",
			},
			[]string{"container", "trigger"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operations_total",
				Help:      "Total number of executed operations by outcome",
			},
			[]string{"container", "operation", "outcome"},
		),
		childrenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "children_total",
				Help:      "Total number of child containers added or failed",
			},
			[]string{"container", "outcome"},
		),
		tasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tasks_completed_total",
				Help:      "Total number of containers whose task completed",
			},
			[]string{"container"},
		),
		containersByState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "containers",
				Help:      "Current number of containers per lifecycle state",
			},
			[]string{"state"},
		),
		attached: make(map[string]func()),
	}
}

// Attach starts recording events of c and of every child c adds later.
// Attaching the same container twice is a no-op.
func (m *Collector) Attach(c *container.Container) {
	m.mu.Lock()
	if _, ok := m.attached[c.ID()]; ok {
		m.mu.Unlock()
		return
	}
	m.attached[c.ID()] = nil
	m.mu.Unlock()

	m.containersByState.WithLabelValues(string(c.Lifecycle())).Inc()

	unsubscribe := c.Subscribe(func(e *types.ContainerEvent) {
		m.record(c, e)
	})

	m.mu.Lock()
	m.attached[c.ID()] = unsubscribe
	m.mu.Unlock()

	for _, child := range c.Children() {
		m.Attach(child)
	}
}

// Detach stops recording every attached container.
func (m *Collector) Detach() {
	m.mu.Lock()
	attached := m.attached
	m.attached = make(map[string]func())
	m.mu.Unlock()

	for _, unsubscribe := range attached {
		if unsubscribe != nil {
			unsubscribe()
		}
	}
}

func (m *Collector) record(c *container.Container, e *types.ContainerEvent) {
	name := e.ContainerName

	switch e.Type {
	case types.EventTypeRefreshCompleted:
		m.passesTotal.WithLabelValues(name, e.TriggerKind, OutcomeSuccess).Inc()
		m.passDuration.WithLabelValues(name).Observe(e.Duration.Seconds())

	case types.EventTypeRefreshFailed:
		m.passesTotal.WithLabelValues(name, e.TriggerKind, OutcomeFailure).Inc()
		m.passDuration.WithLabelValues(name).Observe(e.Duration.Seconds())

	case types.EventTypeTriggerDebounced:
		m.debouncedTotal.WithLabelValues(name, e.TriggerKind).Inc()

	case types.EventTypeTriggerCoalesced:
		m.coalescedTotal.WithLabelValues(name, e.TriggerKind).Inc()

	case types.EventTypeOperationExecuted:
		outcome := OutcomeSuccess
		if e.Error != nil {
			outcome = OutcomeFailure
		}
		m.operationsTotal.WithLabelValues(name, e.OperationID, outcome).Inc()

	case types.EventTypeTaskCompleted:
		m.tasksCompleted.WithLabelValues(name).Inc()

	case types.EventTypeStateChanged:
		m.containersByState.WithLabelValues(e.FromState).Dec()
		m.containersByState.WithLabelValues(e.ToState).Inc()

	case types.EventTypeChildAdded:
		m.childrenTotal.WithLabelValues(name, OutcomeSuccess).Inc()
		if child, ok := c.Find(e.ChildID); ok {
			m.Attach(child)
		}

	case types.EventTypeChildFailed:
		m.childrenTotal.WithLabelValues(name, OutcomeFailure).Inc()

	case types.EventTypeDestroyed:
		m.mu.Lock()
		delete(m.attached, c.ID())
		m.mu.Unlock()
	}
}
