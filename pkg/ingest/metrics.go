package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportdb_ingest_applied_total",
		Help: "Merge patches applied to the store by queue workers.",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportdb_ingest_dropped_total",
		Help: "Merge patches dropped because the queue was full or canceled.",
	})
)
