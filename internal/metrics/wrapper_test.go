package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"muonfit/internal/dataset"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	return NewWithRegistry(registry, registry)
}

func TestNewWrapper(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_EpochObserve(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.EpochObserve(12.5, 3.25, 20*time.Millisecond)
	wrapper.EpochObserve(10, 3, 10*time.Millisecond)

	if got := testutil.ToFloat64(metrics.EpochsCompleted); got != 2 {
		t.Errorf("Expected 2 epochs, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.TrainLoss); got != 10 {
		t.Errorf("Expected train loss 10, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.ValidationLoss); got != 3 {
		t.Errorf("Expected validation loss 3, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.EpochDuration); got != 1 {
		t.Errorf("Expected one epoch duration series, got %d", got)
	}
}

func TestMetricsWrapper_NonFiniteInc(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.NonFiniteInc()
	if got := testutil.ToFloat64(metrics.NonFiniteAborts); got != 1 {
		t.Errorf("Expected 1 non-finite abort, got %f", got)
	}
}

func TestMetricsWrapper_PredictionObserve(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.PredictionObserve(time.Millisecond, nil)
	wrapper.PredictionObserve(time.Millisecond, nil)
	wrapper.PredictionObserve(time.Millisecond, errors.New("shape"))

	if got := testutil.ToFloat64(metrics.Predictions); got != 2 {
		t.Errorf("Expected 2 predictions, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.PredictionErrors); got != 1 {
		t.Errorf("Expected 1 prediction error, got %f", got)
	}
}

func TestMetricsWrapper_RecordAggregation(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.RecordAggregation(dataset.AggregateStats{
		Hits:            6,
		DuplicateLabels: 1,
		DroppedNoLabel:  2,
		DroppedTooLong:  1,
		DroppedNegative: 3,
		Kept:            2,
	})

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"hits", metrics.HitsRead, 6},
		{"kept", metrics.EventsAggregated, 2},
		{"duplicates", metrics.DuplicateLabels, 1},
		{"no label", metrics.EventsDropped.WithLabelValues(ReasonNoLabel), 2},
		{"too long", metrics.EventsDropped.WithLabelValues(ReasonTooLong), 1},
		{"negative", metrics.EventsDropped.WithLabelValues(ReasonNegative), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestMetricsWrapper_NilGuard(t *testing.T) {
	var nilWrapper *MetricsWrapper
	empty := &MetricsWrapper{m: nil}

	for _, w := range []*MetricsWrapper{nilWrapper, empty} {
		w.EpochObserve(1, 1, time.Second)
		w.NonFiniteInc()
		w.PredictionObserve(time.Second, nil)
		w.RecordAggregation(dataset.AggregateStats{Kept: 1})
	}
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				wrapper.PredictionObserve(time.Microsecond, nil)
			}
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(metrics.Predictions); got != 1000 {
		t.Errorf("Expected 1000 predictions after concurrent access, got %f", got)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	metrics := newTestMetrics()
	NewWrapper(metrics).PredictionObserve(time.Millisecond, nil)

	path := filepath.Join(t.TempDir(), "muonfit.prom")
	if err := metrics.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	if !strings.Contains(string(data), "muonfit_predictions_total 1") {
		t.Errorf("textfile does not contain the prediction counter:\n%s", data)
	}

	if err := metrics.WriteTextfile(""); err != nil {
		t.Errorf("empty path should be a no-op, got %v", err)
	}
	if err := NewWithRegistry(prometheus.NewRegistry(), nil).WriteTextfile(path); err == nil {
		t.Error("expected an error without a gatherer")
	}
}

func BenchmarkMetricsWrapper_PredictionObserve(b *testing.B) {
	wrapper := NewWrapper(newTestMetrics())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.PredictionObserve(time.Microsecond, nil)
	}
}
