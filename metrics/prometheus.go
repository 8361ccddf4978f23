// Package metrics exports partitioning measurements to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notargets/meshpart/partition"
)

// Prometheus implements partition.Metrics. Collectors are created and
// registered on first use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	edgecut   prometheus.Gauge
	passes    prometheus.Counter
	exchanged *prometheus.CounterVec
	stages    *prometheus.HistogramVec
}

var _ partition.Metrics = (*Prometheus)(nil)

// NewPrometheus returns a collector registering on reg, the default
// registerer when nil, under namespace, "meshpart" when empty.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "meshpart"
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.edgecut = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "edgecut",
			Help:      "Dual graph edges cut by the last cell partition.",
		})
		p.passes = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "cell_partitions_total",
			Help:      "Total cell partitioning passes.",
		})
		p.exchanged = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "redistribution",
			Name:      "entities_sent_total",
			Help:      "Total entities sent to other ranks by kind (vertex, cell, ghost).",
		}, []string{"entity"})
		p.stages = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "stage_seconds",
			Help:      "Duration of partitioning stages in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us .. ~26s
		}, []string{"stage"})

		p.reg.MustRegister(p.edgecut)
		p.reg.MustRegister(p.passes)
		p.reg.MustRegister(p.exchanged)
		p.reg.MustRegister(p.stages)
	})
}

func (p *Prometheus) ObserveEdgeCut(edgecut int) {
	p.ensureRegistered()
	p.edgecut.Set(float64(edgecut))
	p.passes.Inc()
}

func (p *Prometheus) AddExchanged(entity string, n int) {
	p.ensureRegistered()
	p.exchanged.WithLabelValues(entity).Add(float64(n))
}

func (p *Prometheus) ObserveStage(stage string, d time.Duration) {
	p.ensureRegistered()
	p.stages.WithLabelValues(stage).Observe(d.Seconds())
}
