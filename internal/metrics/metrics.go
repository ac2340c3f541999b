package metrics

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    RebuildIssues = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "history_rebuild_issues_total",
        Help: "Issues processed by full history rebuilds.",
    }, []string{"result"})

    RebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "history_rebuild_duration_seconds",
        Help:    "Wall time of full history rebuilds.",
        Buckets: prometheus.ExponentialBuckets(1, 2, 12),
    })

    LiveSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "history_live_sync_total",
        Help: "Live history syncs run after issue saves.",
    }, []string{"result"})

    StatusFallbacks = promauto.NewCounter(prometheus.CounterOpts{
        Name: "history_status_fallback_total",
        Help: "Status codes resolved to the default status.",
    })

    Touches = promauto.NewCounter(prometheus.CounterOpts{
        Name: "history_touch_total",
        Help: "Sprint touch signals emitted.",
    })
)
