// Package report writes the artifacts of a training run: the loss history,
// a text summary, a residual histogram and a JSON report.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"muonfit/internal/ml"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// HistogramBins is the number of bins of the residual histogram.
const HistogramBins = 20

// ResidualStats summarises prediction - target over a dataset.
type ResidualStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

// Residuals returns the population mean and standard deviation of r.
func Residuals(r []float64) ResidualStats {
	if len(r) == 0 {
		return ResidualStats{}
	}
	mean, std := stat.PopMeanStdDev(r, nil)
	return ResidualStats{Count: len(r), Mean: mean, Std: std}
}

// Bin is one bucket of the residual histogram, covering [Low, High).
type Bin struct {
	Low   float64
	High  float64
	Count float64
}

// Histogram splits r into bins equal-width buckets spanning its range.
// NaN and infinite values are skipped.
func Histogram(r []float64, bins int) []Bin {
	if bins < 1 {
		return nil
	}
	sorted := make([]float64, 0, len(r))
	for _, v := range r {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	// The last divider must lie strictly above the largest value.
	hi = math.Nextafter(hi, math.Inf(1))
	if hi-lo < 1e-9 {
		hi = lo + 1
	}

	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	counts := stat.Histogram(nil, dividers, sorted, nil)

	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Low: dividers[i], High: dividers[i+1], Count: counts[i]}
	}
	return out
}

// Results holds everything reported about one training run.
type Results struct {
	RunID             string
	StartTime         time.Time
	EndTime           time.Time
	ModelPath         string
	Config            ml.Config
	History           []ml.EpochLoss
	Residuals         []float64
	HoldoutMSE        float64
	BaselineMSE       float64
	TrainSamples      int
	ValidationSamples int
	HoldoutSamples    int
}

// FinalLoss returns the last recorded epoch, or a zero value.
func (r *Results) FinalLoss() ml.EpochLoss {
	if len(r.History) == 0 {
		return ml.EpochLoss{}
	}
	return r.History[len(r.History)-1]
}

// Reporter generates training reports
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateLossHistory(); err != nil {
		return err
	}

	if err := r.generateSummary(); err != nil {
		return err
	}

	if err := r.generateHistogram(); err != nil {
		return err
	}

	return r.generateJSONReport()
}

// generateLossHistory writes epoch,train,validation rows
func (r *Reporter) generateLossHistory() error {
	csvPath := filepath.Join(r.outputPath, "loss_history.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create loss history: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"epoch", "train", "validation"}); err != nil {
		return err
	}
	for _, h := range r.results.History {
		record := []string{
			strconv.Itoa(h.Epoch),
			strconv.FormatFloat(h.Train, 'g', -1, 64),
			strconv.FormatFloat(h.Validation, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write loss history: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Loss history generated")
	return nil
}

// generateSummary writes the human-readable summary
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "fit_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	if err := r.WriteSummary(file); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// WriteSummary writes the run summary to w.
func (r *Reporter) WriteSummary(w io.Writer) error {
	res := r.results
	final := res.FinalLoss()
	rs := Residuals(res.Residuals)

	lines := []string{
		"TRAINING RUN SUMMARY",
		"====================",
		"",
		fmt.Sprintf("Run ID: %s", res.RunID),
		fmt.Sprintf("Started: %s", res.StartTime.Format("2006-01-02 15:04:05")),
		fmt.Sprintf("Duration: %s", res.EndTime.Sub(res.StartTime).Round(time.Millisecond)),
		fmt.Sprintf("Model: %s (hidden %d, layers %d)", res.ModelPath, res.Config.HiddenSize, res.Config.NumLayers),
		"",
		"DATASET",
		"-------",
		fmt.Sprintf("Training samples: %d", res.TrainSamples),
		fmt.Sprintf("Validation samples: %d", res.ValidationSamples),
		fmt.Sprintf("Holdout samples: %d", res.HoldoutSamples),
		"",
		"LOSS",
		"----",
		fmt.Sprintf("Epochs: %d", len(res.History)),
		fmt.Sprintf("Final train loss: %.4f", final.Train),
		fmt.Sprintf("Final validation loss: %.4f", final.Validation),
		fmt.Sprintf("Holdout MSE: %.4f", res.HoldoutMSE),
		fmt.Sprintf("Baseline MSE (training mean): %.4f", res.BaselineMSE),
		"",
		"RESIDUALS (prediction - truth)",
		"------------------------------",
		fmt.Sprintf("Events: %d", rs.Count),
		fmt.Sprintf("Mean: %.2f", rs.Mean),
		fmt.Sprintf("Std: %.2f", rs.Std),
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// generateHistogram writes the residual histogram as low,high,count rows
func (r *Reporter) generateHistogram() error {
	csvPath := filepath.Join(r.outputPath, "residual_histogram.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create residual histogram: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"low", "high", "count"}); err != nil {
		return err
	}
	for _, b := range Histogram(r.results.Residuals, HistogramBins) {
		record := []string{
			fmt.Sprintf("%.4f", b.Low),
			fmt.Sprintf("%.4f", b.High),
			fmt.Sprintf("%.0f", b.Count),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write residual histogram: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Residual histogram generated")
	return nil
}

// generateJSONReport writes a machine-readable report of the run
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "training_report.json")
	res := r.results
	final := res.FinalLoss()

	report := map[string]interface{}{
		"summary": map[string]interface{}{
			"run_id":                res.RunID,
			"start_time":            res.StartTime,
			"end_time":              res.EndTime,
			"model_path":            res.ModelPath,
			"config":                res.Config,
			"epochs":                len(res.History),
			"final_train_loss":      final.Train,
			"final_validation_loss": final.Validation,
			"holdout_mse":           res.HoldoutMSE,
			"baseline_mse":          res.BaselineMSE,
			"train_samples":         res.TrainSamples,
			"validation_samples":    res.ValidationSamples,
			"holdout_samples":       res.HoldoutSamples,
		},
		"residuals": Residuals(res.Residuals),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints a summary to console
func (r *Reporter) PrintSummary() {
	fmt.Println()
	if err := r.WriteSummary(os.Stdout); err != nil {
		log.Warn().Err(err).Msg("Failed to print summary")
	}
}
