package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters exposed on /metrics.
var (
	IngestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campushub_ingestions_total",
		Help: "Completed ingestions by resolved category and outcome.",
	}, []string{"category", "status"})

	FallbackRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campushub_fallback_records_total",
		Help: "Uploads stored as raw fallback records after empty extraction.",
	})

	StoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campushub_store_failures_total",
		Help: "Per-record persistence failures during merge.",
	})

	EngineCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campushub_engine_call_seconds",
		Help:    "Latency of extraction engine calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)
