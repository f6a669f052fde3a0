package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// 1. Deleted Triples (Counter)
	// Counts the triples removed by maintenance passes.
	TriplesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kompaktdb_triples_deleted_total",
			Help: "Total number of triples removed by maintenance passes",
		},
	)

	// 2. Cluster Splits (Counter)
	// Counts members detached from a supernode because their edge set no
	// longer overlaps the cluster's.
	ClusterSplits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kompaktdb_cluster_splits_total",
			Help: "Total number of members split out of a supernode",
		},
	)

	// 3. Cluster Collapses (Counter)
	// Counts singleton supernodes dissolved back into plain nodes.
	ClusterCollapses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kompaktdb_cluster_collapses_total",
			Help: "Total number of singleton supernodes collapsed",
		},
	)

	// 4. Pruned Predicates (Counter)
	// Counts predicates dropped from singleton-clique fingerprints.
	PrunedPredicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kompaktdb_pruned_predicates_total",
			Help: "Total number of predicates pruned from singleton cliques",
		},
	)

	// 5. Structure sizes (Gauges)
	// Track the current node and supernode counts of the model.
	Nodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kompaktdb_nodes",
			Help: "Current number of plain nodes in the model",
		},
	)
	Supernodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kompaktdb_supernodes",
			Help: "Current number of supernodes in the model",
		},
	)

	// 6. Pass Duration (Histogram)
	// Measures how long a deletion maintenance pass takes.
	// Buckets cover single-triple batches up to full update files.
	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kompaktdb_maintenance_pass_duration_seconds",
			Help:    "Duration of deletion maintenance passes in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)
)
