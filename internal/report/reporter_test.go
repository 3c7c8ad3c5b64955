package report

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"muonfit/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() *Results {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Results{
		RunID:     "3f1c2a9e-run",
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		ModelPath: "models/model-3f1c2a9e-run.json",
		Config:    ml.DefaultConfig(),
		History: []ml.EpochLoss{
			{Epoch: 0, Train: 400, Validation: 210},
			{Epoch: 1, Train: 250.5, Validation: 120.25},
		},
		Residuals:         []float64{-2, 0, 2, 4},
		HoldoutMSE:        6,
		BaselineMSE:       50,
		TrainSamples:      4,
		ValidationSamples: 2,
		HoldoutSamples:    2,
	}
}

func TestResiduals(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want ResidualStats
	}{
		{"empty", nil, ResidualStats{}},
		{"single", []float64{3}, ResidualStats{Count: 1, Mean: 3, Std: 0}},
		{"population std", []float64{-2, 0, 2, 4}, ResidualStats{Count: 4, Mean: 1, Std: math.Sqrt(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Residuals(tt.in)
			assert.Equal(t, tt.want.Count, got.Count)
			assert.InDelta(t, tt.want.Mean, got.Mean, 1e-12)
			assert.InDelta(t, tt.want.Std, got.Std, 1e-12)
		})
	}
}

func TestHistogram(t *testing.T) {
	r := []float64{5, -1, 2.2, -0.5, 0.2, 2.1, 3.5, 4.9}
	bins := Histogram(r, 3)
	require.Len(t, bins, 3)

	var total float64
	for i, b := range bins {
		total += b.Count
		assert.Less(t, b.Low, b.High)
		if i > 0 {
			assert.Equal(t, bins[i-1].High, b.Low)
		}
	}
	assert.Equal(t, float64(len(r)), total)
	assert.Equal(t, -1.0, bins[0].Low)
	assert.Equal(t, []float64{3, 2, 3}, []float64{bins[0].Count, bins[1].Count, bins[2].Count})
	assert.Greater(t, bins[2].High, 5.0)

	assert.Nil(t, Histogram(nil, 3))
	assert.Nil(t, Histogram(r, 0))

	flat := Histogram([]float64{2, 2, 2}, 4)
	require.Len(t, flat, 4)
	assert.Equal(t, 3.0, flat[0].Count)
}

func TestHistogram_SkipsNonFinite(t *testing.T) {
	tests := []struct {
		name string
		r    []float64
		want float64
	}{
		{"positive infinity", []float64{1, math.Inf(1)}, 1},
		{"negative infinity", []float64{math.Inf(-1), 1, 3}, 2},
		{"nan", []float64{math.NaN(), 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bins := Histogram(tt.r, HistogramBins)
			require.Len(t, bins, HistogramBins)

			var total float64
			for _, b := range bins {
				total += b.Count
			}
			assert.Equal(t, tt.want, total)
		})
	}

	assert.Nil(t, Histogram([]float64{math.NaN(), math.Inf(1)}, 3))
}

func TestReporter_GenerateReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "report")
	reporter := NewReporter(sampleResults(), dir)

	require.NoError(t, reporter.GenerateReport())

	history, err := os.ReadFile(filepath.Join(dir, "loss_history.csv"))
	require.NoError(t, err)
	assert.Equal(t, "epoch,train,validation\n0,400,210\n1,250.5,120.25\n", string(history))

	summary, err := os.ReadFile(filepath.Join(dir, "fit_summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Run ID: 3f1c2a9e-run")
	assert.Contains(t, string(summary), "Epochs: 2")
	assert.Contains(t, string(summary), "Final validation loss: 120.2500")
	assert.Contains(t, string(summary), "Mean: 1.00")
	assert.Contains(t, string(summary), "Std: 2.24")

	hist, err := os.ReadFile(filepath.Join(dir, "residual_histogram.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(hist)), "\n")
	assert.Equal(t, "low,high,count", lines[0])
	assert.Len(t, lines, HistogramBins+1)

	data, err := os.ReadFile(filepath.Join(dir, "training_report.json"))
	require.NoError(t, err)
	var report struct {
		Summary struct {
			RunID       string  `json:"run_id"`
			Epochs      int     `json:"epochs"`
			BaselineMSE float64 `json:"baseline_mse"`
		} `json:"summary"`
		Residuals ResidualStats `json:"residuals"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "3f1c2a9e-run", report.Summary.RunID)
	assert.Equal(t, 2, report.Summary.Epochs)
	assert.Equal(t, 50.0, report.Summary.BaselineMSE)
	assert.Equal(t, 4, report.Residuals.Count)
}

func TestReporter_EmptyRun(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(&Results{}, t.TempDir())

	require.NoError(t, reporter.WriteSummary(&buf))
	assert.Contains(t, buf.String(), "Epochs: 0")
	assert.Contains(t, buf.String(), "Events: 0")
	require.NoError(t, reporter.GenerateReport())
}
