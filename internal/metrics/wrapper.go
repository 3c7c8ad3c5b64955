package metrics

import (
	"time"

	"muonfit/internal/dataset"
)

// MetricsWrapper adapts Metrics to the sink interfaces of the training
// session and the inference runner. A nil wrapper or a wrapper around nil
// metrics records nothing.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) enabled() bool {
	return w != nil && w.m != nil
}

// EpochObserve records one finished epoch.
func (w *MetricsWrapper) EpochObserve(train, validation float64, elapsed time.Duration) {
	if !w.enabled() {
		return
	}
	w.m.EpochsCompleted.Inc()
	w.m.TrainLoss.Set(train)
	w.m.ValidationLoss.Set(validation)
	w.m.EpochDuration.Observe(elapsed.Seconds())
}

func (w *MetricsWrapper) NonFiniteInc() {
	if !w.enabled() {
		return
	}
	w.m.NonFiniteAborts.Inc()
}

// PredictionObserve records one forward pass and whether it failed.
func (w *MetricsWrapper) PredictionObserve(elapsed time.Duration, err error) {
	if !w.enabled() {
		return
	}
	if err != nil {
		w.m.PredictionErrors.Inc()
		return
	}
	w.m.Predictions.Inc()
	w.m.PredictionLatency.Observe(elapsed.Seconds())
}

// RecordAggregation copies the counts of one aggregation run.
func (w *MetricsWrapper) RecordAggregation(stats dataset.AggregateStats) {
	if !w.enabled() {
		return
	}
	w.m.HitsRead.Add(float64(stats.Hits))
	w.m.EventsAggregated.Add(float64(stats.Kept))
	w.m.DuplicateLabels.Add(float64(stats.DuplicateLabels))
	w.m.EventsDropped.WithLabelValues(ReasonNoLabel).Add(float64(stats.DroppedNoLabel))
	w.m.EventsDropped.WithLabelValues(ReasonTooLong).Add(float64(stats.DroppedTooLong))
	w.m.EventsDropped.WithLabelValues(ReasonNegative).Add(float64(stats.DroppedNegative))
}
