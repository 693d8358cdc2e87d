package reportcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var callbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reportdb_cache_callbacks_total",
	Help: "Subscription deliveries applied to the action log mirror.",
})
