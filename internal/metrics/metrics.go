// Package metrics provides Prometheus metrics for the muonfit batch jobs.
// It defines the counters, gauges and histograms recorded while aggregating
// hits, training the regressor and running inference.
//
// Batch jobs have no scrape endpoint, so a registry is flushed to a
// node-exporter textfile with WriteTextfile when a run ends.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of EventsDropped.
const (
	ReasonNoLabel  = "no_label"
	ReasonTooLong  = "too_long"
	ReasonNegative = "negative"
)

// Metrics holds all Prometheus metrics for a run.
type Metrics struct {
	// Aggregation metrics
	HitsRead         prometheus.Counter     // Hit rows read from input files
	EventsAggregated prometheus.Counter     // Events kept after join and filters
	EventsDropped    *prometheus.CounterVec // Events dropped, by reason
	DuplicateLabels  prometheus.Counter     // Duplicate label rows seen

	// Training metrics
	EpochsCompleted prometheus.Counter   // Epochs finished
	TrainLoss       prometheus.Gauge     // Summed training loss of the last epoch
	ValidationLoss  prometheus.Gauge     // Summed validation loss of the last epoch
	EpochDuration   prometheus.Histogram // Wall time per epoch
	NonFiniteAborts prometheus.Counter   // Runs aborted on a non-finite loss or gradient

	// Inference metrics
	Predictions       prometheus.Counter   // Forward passes made by the runner
	PredictionErrors  prometheus.Counter   // Forward passes that failed
	PredictionLatency prometheus.Histogram // Latency of one forward pass

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	return NewWithRegistry(registry, registry)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// gatherer is used by WriteTextfile and may be nil when metrics are never
// flushed.
func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		HitsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "muonfit_hits_read_total",
			Help: "Total number of hit rows read",
		}),
		EventsAggregated: factory.NewCounter(prometheus.CounterOpts{
			Name: "muonfit_events_aggregated_total",
			Help: "Total number of events kept after join and filters",
		}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "muonfit_events_dropped_total",
			Help: "Total number of events dropped during aggregation",
		}, []string{"reason"}),
		DuplicateLabels: factory.NewCounter(prometheus.CounterOpts{
			Name: "muonfit_duplicate_labels_total",
			Help: "Total number of duplicate label rows",
		}),
		EpochsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "muonfit_epochs_total",
			Help: "Total number of training epochs completed",
		}),
		TrainLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "muonfit_train_loss",
			Help: "Summed squared error on the training partition in the last epoch",
		}),
		ValidationLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "muonfit_validation_loss",
			Help: "Summed squared error on the validation partition in the last epoch",
		}),
		EpochDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "muonfit_epoch_duration_seconds",
			Help:    "Duration of one training epoch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		NonFiniteAborts: factory.NewCounter(prometheus.CounterOpts{
			Name: "muonfit_non_finite_aborts_total",
			Help: "Total number of training runs aborted on a non-finite value",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "muonfit_predictions_total",
			Help: "Total number of predictions made",
		}),
		PredictionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "muonfit_prediction_errors_total",
			Help: "Total number of failed predictions",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "muonfit_prediction_latency_seconds",
			Help:    "Latency of a single forward pass in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		gatherer: gatherer,
	}
}

// WriteTextfile writes every gathered metric to path in the text exposition
// format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if m.gatherer == nil {
		return fmt.Errorf("metrics: no gatherer configured")
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
