package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_engine_rebuilds_total",
		Help: "Full index rebuilds by result",
	}, []string{"result"})

	rebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lattice_engine_rebuild_duration_seconds",
		Help:    "Time spent on a full index rebuild",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	appliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_engine_changes_total",
		Help: "Vault changes applied incrementally, by kind and result",
	}, []string{"kind", "result"})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_engine_queries_total",
		Help: "Engine queries by operation and result",
	}, []string{"op", "result"})
)

func observeQuery(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	queriesTotal.WithLabelValues(op, result).Inc()
}
