// Package metrics publishes process-local pipeline and query counters on the
// default prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "landsales"

var (
	// ArchivesScanned counts top-level archives opened by the pipeline.
	ArchivesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archives_scanned_total",
		Help:      "Top-level archives opened by the batch pipeline.",
	})

	// NestedArchivesSkipped counts nested archives that failed to open or
	// exceeded the depth limit.
	NestedArchivesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "nested_archives_skipped_total",
		Help:      "Nested archives skipped during scanning.",
	})

	// RecordsParsed counts lines accepted as valid sale records.
	RecordsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_parsed_total",
		Help:      "Raw lines parsed into valid sale records.",
	})

	// RecordsRejected counts candidate lines that failed validation.
	RecordsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_rejected_total",
		Help:      "Candidate sale lines rejected by validation.",
	})

	// ArtifactsWritten counts chunk, manifest, index and address-file writes.
	ArtifactsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifacts_written_total",
		Help:      "Artifacts persisted to the artifact store.",
	})

	// CacheHits counts query-layer cache hits by query class.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Query cache hits.",
	}, []string{"class"})

	// CacheMisses counts query-layer cache misses by query class.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Query cache misses.",
	}, []string{"class"})
)
