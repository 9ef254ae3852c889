package token

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metadataCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "token_metadata",
		Name:      "calls_total",
		Help:      "Metadata contract calls by method and outcome",
	}, []string{"method", "result"})

	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "token_metadata",
		Name:      "resolutions_total",
		Help:      "Token metadata resolutions by standard and outcome",
	}, []string{"standard", "result"})

	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "token_metadata",
		Name:      "resolve_duration_seconds",
		Help:      "Wall time of successful metadata resolutions",
		Buckets:   prometheus.DefBuckets,
	})
)

// outcome maps a call error to a metric label
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isTimeout(err):
		return "timeout"
	case isReverted(err):
		return "reverted"
	default:
		return "error"
	}
}
