package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    EnrichmentLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "minibot",
            Subsystem: "enrichment",
            Name:      "latency_seconds",
            Help:      "Latency of enrichment sidecar endpoints",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"endpoint"},
    )

    EnrichmentErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "minibot",
            Subsystem: "enrichment",
            Name:      "errors_total",
            Help:      "Errors by enrichment sidecar endpoint",
        },
        []string{"endpoint"},
    )
)

func Register() {
    once.Do(func() {
        prometheus.MustRegister(EnrichmentLatency, EnrichmentErrors)
    })
}
