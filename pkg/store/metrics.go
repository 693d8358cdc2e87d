package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportdb_store_merges_total",
		Help: "Merge patches committed to the store.",
	})
	mergeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportdb_store_merge_failures_total",
		Help: "Merge patches that failed to apply.",
	})
	notificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportdb_store_notifications_total",
		Help: "Subscriber callbacks delivered after committed changes.",
	})
)
