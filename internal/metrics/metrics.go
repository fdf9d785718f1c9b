// Package metrics provides Prometheus metrics for callvault.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for all callvault metrics.
var Registry = prometheus.NewRegistry()

var (
	// Resolver outcomes.
	ResolvedByCandidate = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "callvault_resolved_by_candidate_total",
		Help: "Recordings resolved by direct filename candidate probing",
	})
	ResolvedBySearch = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "callvault_resolved_by_search_total",
		Help: "Recordings resolved by the fallback directory search",
	})
	ResolveNotFound = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "callvault_resolve_not_found_total",
		Help: "Lookups that exhausted candidates and search without a match",
	})
	LinkMisses = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "callvault_download_link_misses_total",
		Help: "Download-link requests answered with 404 (normal candidate miss)",
	})
	ProbeErrors = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "callvault_probe_transient_errors_total",
		Help: "Transient transport errors swallowed during candidate probing",
	})

	// Cache keyspaces: "path" or "ref".
	CacheHits = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "callvault_cache_hits_total",
		Help: "Cache lookups that returned a value",
	}, []string{"keyspace"})
	CacheMisses = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "callvault_cache_misses_total",
		Help: "Cache lookups that returned nothing",
	}, []string{"keyspace"})
	CacheBackendErrors = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "callvault_cache_backend_errors_total",
		Help: "Cache backend failures downgraded to misses",
	})

	// Index rebuild.
	ReindexRuns = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "callvault_reindex_runs_total",
		Help: "Completed index refresh walks",
	})
	ReindexSkipped = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "callvault_reindex_skipped_total",
		Help: "Index refresh invocations skipped because a run was active",
	})
	ReindexEntries = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "callvault_reindex_entries_total",
		Help: "Path entries written by index refresh walks",
	})
	ReindexInFlight = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "callvault_reindex_in_flight",
		Help: "1 while an index refresh walk is running",
	})
)

func init() {
	// Register standard Go metrics
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}
