package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	windowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "pipeline",
		Name:      "windows_total",
		Help:      "Processed windows by outcome",
	}, []string{"result"})

	transfersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "pipeline",
		Name:      "transfers_total",
		Help:      "Transfers committed",
	})

	skippedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "pipeline",
		Name:      "skipped_events_total",
		Help:      "Logs or events dropped by reason",
	}, []string{"reason"})

	committedHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "pipeline",
		Name:      "committed_height",
		Help:      "Last block covered by a committed checkpoint",
	})

	windowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "pipeline",
		Name:      "window_duration_seconds",
		Help:      "Wall time of committed windows",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

const (
	reasonUnknownEvent   = "unknown_event"
	reasonMalformed      = "malformed"
	reasonUnsupported    = "unsupported_contract"
	reasonSkipListMember = "skip_list"
)
