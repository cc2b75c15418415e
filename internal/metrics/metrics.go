package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mstat"

// Recorder holds the counters of one analysis run on its own registry, so
// several runs in one process never share state.
type Recorder struct {
	registry *prometheus.Registry

	// recordsTotal counts decoded size records.
	// Labels: table (types, methods, blobs, placeholders)
	recordsTotal *prometheus.CounterVec

	// bytesTotal sums decoded sizes.
	// Labels: table (types, methods, blobs)
	bytesTotal *prometheus.CounterVec

	// filteredTotal counts records dropped by the assembly filter.
	// Labels: table (types, methods)
	filteredTotal *prometheus.CounterVec

	// graphNodesTotal counts graph nodes by classified kind.
	// Labels: kind
	graphNodesTotal *prometheus.CounterVec

	graphEdgesTotal prometheus.Counter
	resolvedTotal   prometheus.Counter

	// durationSeconds measures pipeline stages.
	// Labels: stage (metadata, decode, graph, resolve)
	durationSeconds *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sizetable",
			Name:      "records_total",
			Help:      "Decoded size records by table",
		}, []string{"table"}),
		bytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sizetable",
			Name:      "bytes_total",
			Help:      "Decoded size in bytes by table",
		}, []string{"table"}),
		filteredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "dropped_total",
			Help:      "Records dropped by the assembly filter by table",
		}, []string{"table"}),
		graphNodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "nodes_total",
			Help:      "Graph nodes by classified kind",
		}, []string{"kind"}),
		graphEdgesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "edges_total",
			Help:      "Distinct graph edges",
		}),
		resolvedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "resolved_nodes_total",
			Help:      "Generic graph nodes resolved to metadata symbols",
		}),
		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each analysis stage",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),
	}
}

// RecordRecords adds count records totalling bytes for a table. Bytes are
// skipped when negative.
func (r *Recorder) RecordRecords(table string, count int, bytes int64) {
	if r == nil {
		return
	}
	r.recordsTotal.WithLabelValues(table).Add(float64(count))
	if bytes >= 0 {
		r.bytesTotal.WithLabelValues(table).Add(float64(bytes))
	}
}

func (r *Recorder) RecordFiltered(table string, dropped int) {
	if r == nil || dropped <= 0 {
		return
	}
	r.filteredTotal.WithLabelValues(table).Add(float64(dropped))
}

// RecordGraph records node counts keyed by kind name plus the edge count.
func (r *Recorder) RecordGraph(kinds map[string]int, edges int) {
	if r == nil {
		return
	}
	for kind, count := range kinds {
		r.graphNodesTotal.WithLabelValues(kind).Add(float64(count))
	}
	r.graphEdgesTotal.Add(float64(edges))
}

func (r *Recorder) RecordResolved(count int) {
	if r == nil {
		return
	}
	r.resolvedTotal.Add(float64(count))
}

func (r *Recorder) ObserveStage(stage string, seconds float64) {
	if r == nil {
		return
	}
	r.durationSeconds.WithLabelValues(stage).Observe(seconds)
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every metric in the text exposition format, the
// layout node_exporter's textfile collector reads.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
