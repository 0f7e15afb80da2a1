package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports lock and load statistics to Prometheus. All series are
// labelled by the lock or workload name.
type Metrics struct {
	acquisitions *prometheus.CounterVec
	contended    *prometheus.CounterVec
	wait         *prometheus.HistogramVec
	imbalance    *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		acquisitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlab",
			Subsystem: "lock",
			Name:      "acquisitions_total",
			Help:      "Number of lock acquisitions.",
		}, []string{"lock"}),
		contended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlab",
			Subsystem: "lock",
			Name:      "contended_total",
			Help:      "Number of acquisitions that found the lock held.",
		}, []string{"lock"}),
		wait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parlab",
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a contended lock.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
		}, []string{"lock"}),
		imbalance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "parlab",
			Subsystem: "load",
			Name:      "imbalance_ratio",
			Help:      "Busiest worker time over mean worker time.",
		}, []string{"workload"}),
	}
}

// ObserveImbalance records the imbalance of a workload.
func (m *Metrics) ObserveImbalance(workload string, ratio float64) {
	m.imbalance.WithLabelValues(workload).Set(ratio)
}
