package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the setup core.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with the setup and options flows.
type Collector interface {
	IncProbe(outcome string)
	IncDuplicateRejected()
	IncReconcile(changed bool)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncProbe(string)       {}
func (noopCollector) IncDuplicateRejected() {}
func (noopCollector) IncReconcile(bool)     {}

// PrometheusCollector exposes setup telemetry via Prometheus.
type PrometheusCollector struct {
	probes     *prometheus.CounterVec
	duplicates prometheus.Counter
	reconciles *prometheus.CounterVec
}

var (
	probeCounter         *prometheus.CounterVec
	probeCounterLock     sync.Mutex
	duplicateCounter     prometheus.Counter
	duplicateCounterLock sync.Mutex
	reconcileCounter     *prometheus.CounterVec
	reconcileCounterLock sync.Mutex
)

// NewPrometheusCollector registers the required metrics with the provided registerer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	probeCounterLock.Lock()
	if probeCounter == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venus_setup_probe_total",
			Help: "Number of connection probes per classified outcome.",
		}, []string{"outcome"})
		if err := reg.Register(counter); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
					probeCounter = existing
				} else {
					probeCounterLock.Unlock()
					return nil, err
				}
			} else {
				probeCounterLock.Unlock()
				return nil, err
			}
		} else {
			probeCounter = counter
		}
	}
	probeCounterLock.Unlock()

	duplicateCounterLock.Lock()
	if duplicateCounter == nil {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "venus_setup_duplicate_rejected_total",
			Help: "Number of setup attempts rejected because the host and unit id were already configured.",
		})
		if err := reg.Register(counter); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
					duplicateCounter = existing
				} else {
					duplicateCounterLock.Unlock()
					return nil, err
				}
			} else {
				duplicateCounterLock.Unlock()
				return nil, err
			}
		} else {
			duplicateCounter = counter
		}
	}
	duplicateCounterLock.Unlock()

	reconcileCounterLock.Lock()
	if reconcileCounter == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venus_setup_reconcile_total",
			Help: "Number of options reconciliations, labelled by whether the profile changed.",
		}, []string{"changed"})
		if err := reg.Register(counter); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
					reconcileCounter = existing
				} else {
					reconcileCounterLock.Unlock()
					return nil, err
				}
			} else {
				reconcileCounterLock.Unlock()
				return nil, err
			}
		} else {
			reconcileCounter = counter
		}
	}
	reconcileCounterLock.Unlock()

	return &PrometheusCollector{
		probes:     probeCounter,
		duplicates: duplicateCounter,
		reconciles: reconcileCounter,
	}, nil
}

// IncProbe counts one probe with its classified outcome.
func (c *PrometheusCollector) IncProbe(outcome string) {
	if c == nil || c.probes == nil {
		return
	}
	c.probes.WithLabelValues(outcome).Inc()
}

// IncDuplicateRejected counts one duplicate-identity rejection.
func (c *PrometheusCollector) IncDuplicateRejected() {
	if c == nil || c.duplicates == nil {
		return
	}
	c.duplicates.Inc()
}

// IncReconcile counts one reconciliation.
func (c *PrometheusCollector) IncReconcile(changed bool) {
	if c == nil || c.reconciles == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	c.reconciles.WithLabelValues(label).Inc()
}
