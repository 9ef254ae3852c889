package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opGetMany = "get_many"
	opGet     = "get"
	opPutMany = "put_many"

	resultOK    = "ok"
	resultError = "error"
)

var (
	hitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "entity_cache",
		Name:      "hits_total",
		Help:      "Get calls answered from the resident map",
	}, []string{"kind"})

	missesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "entity_cache",
		Name:      "misses_total",
		Help:      "Get calls that fell back to a single store read",
	}, []string{"kind"})

	storeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "entity_cache",
		Name:      "store_requests_total",
		Help:      "Store requests issued by the cache",
	}, []string{"kind", "op", "result"})

	flushedEntitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "entity_cache",
		Name:      "flushed_entities_total",
		Help:      "Entities persisted by successful flushes",
	}, []string{"kind"})

	residentEntities = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "entity_cache",
		Name:      "resident_entities",
		Help:      "Entities currently held in the resident map",
	}, []string{"kind"})

	prefetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "entity_cache",
		Name:      "prefetch_duration_seconds",
		Help:      "Wall time of Prefetch calls that hit the store",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)

func resultLabel(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
