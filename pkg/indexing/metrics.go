package indexing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors of one or more registries.
type Metrics struct {
	indexWrites         *prometheus.CounterVec
	bundleOps           *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
}

// NewMetrics registers the index collectors on reg. Registering twice on the
// same Registerer panics, so share one Metrics value per Registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		indexWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexdb",
			Name:      "index_writes_total",
			Help:      "Physical writes to index collections by collection and kind (add, remove, delete)",
		}, []string{"collection", "op"}),
		bundleOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexdb",
			Name:      "bundle_operations_total",
			Help:      "Bundle lifecycle operations by operation and result",
		}, []string{"op", "result"}),
		maintenanceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "indexdb",
			Name:      "maintenance_duration_seconds",
			Help:      "Time spent propagating one primary mutation into its indexes",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"op"}),
	}
}

func (m *Metrics) recordWrite(collection string, w indexWrite) {
	if w == writeNone {
		return
	}
	m.indexWrites.WithLabelValues(collection, string(w)).Inc()
}
