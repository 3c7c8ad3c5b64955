// Package fit applies a trained regressor to grouped hit sequences and
// writes one fitted track length per sequence.
package fit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"muonfit/internal/dataset"
	"muonfit/internal/ml"

	"github.com/rs/zerolog/log"
)

// ErrUsage is returned when the command line does not name exactly one
// input file.
var ErrUsage = errors.New("usage: fit [flags] ev_ai_eta_R{RUN}.txt")

var runPattern = regexp.MustCompile(`_R(\d+)(\.[^.]*)?$`)

// PredictionMetrics receives one observation per forward pass.
type PredictionMetrics interface {
	PredictionObserve(elapsed time.Duration, err error)
}

// ParseArgs returns the single positional input path.
func ParseArgs(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", ErrUsage
	}
	return args[0], nil
}

// RunNumber extracts RUN from an input named like ev_ai_eta_R{RUN}.txt.
func RunNumber(path string) (string, bool) {
	m := runPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// OutputName returns the name of the fit file for run.
func OutputName(run string) string {
	return "tanktrackfitfile_r" + run + "_RNN.txt"
}

// Runner writes one prediction line per sequence.
type Runner struct {
	Predictor ml.Predictor
	Metrics   PredictionMetrics
}

// Run writes "event_id,cluster_time,prediction" for sequences that carry a
// cluster time and "event_id,prediction" otherwise. It returns the number of
// lines written.
func (r *Runner) Run(ctx context.Context, seqs []dataset.Sequence, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)

	written := 0
	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		y, err := r.predict(seq.Steps())
		if err != nil {
			return written, fmt.Errorf("event %d: %w", seq.EventID, err)
		}

		line := strconv.FormatInt(seq.EventID, 10)
		if seq.HasClusterTime {
			line += "," + formatFloat(seq.ClusterTime)
		}
		line += "," + formatFloat(y) + "\n"

		if _, err := bw.WriteString(line); err != nil {
			return written, fmt.Errorf("write prediction: %w", err)
		}
		written++

		log.Debug().Int64("event_id", seq.EventID).Float64("prediction", y).Msg("Fitted event")
	}

	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("write prediction: %w", err)
	}
	return written, nil
}

// RunFile appends the predictions for seqs to path, creating it if needed.
// The file is opened once and closed on every return path.
func (r *Runner) RunFile(ctx context.Context, seqs []dataset.Sequence, path string) (n int, err error) {
	if len(seqs) == 0 {
		return 0, dataset.ErrNoEvents
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	return r.Run(ctx, seqs, f)
}

// WriteLabeled writes "event_id,prediction,target" for every sample and
// returns the residuals prediction - target in the same order.
func (r *Runner) WriteLabeled(samples []dataset.Sample, w io.Writer) ([]float64, error) {
	bw := bufio.NewWriter(w)

	residuals := make([]float64, 0, len(samples))
	for _, s := range samples {
		y, err := r.predict(s.Steps)
		if err != nil {
			return residuals, fmt.Errorf("event %d: %w", s.EventID, err)
		}

		line := strconv.FormatInt(s.EventID, 10) + "," + formatFloat(y) + "," + formatFloat(s.Target) + "\n"
		if _, err := bw.WriteString(line); err != nil {
			return residuals, fmt.Errorf("write prediction: %w", err)
		}
		residuals = append(residuals, y-s.Target)
	}

	if err := bw.Flush(); err != nil {
		return residuals, fmt.Errorf("write prediction: %w", err)
	}
	return residuals, nil
}

func (r *Runner) predict(steps [][]float64) (float64, error) {
	start := time.Now()
	y, err := r.Predictor.Predict(steps)
	if err == nil && (math.IsNaN(y) || math.IsInf(y, 0)) {
		err = fmt.Errorf("%w: prediction %v", ml.ErrNonFinite, y)
	}
	if r.Metrics != nil {
		r.Metrics.PredictionObserve(time.Since(start), err)
	}
	return y, err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ResolveModelPath returns explicit when set, otherwise the path of the
// active version in the registry.
func ResolveModelPath(explicit string, registry *ml.ModelManager) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if registry == nil {
		return "", fmt.Errorf("no model path given and no registry")
	}
	current := registry.GetCurrentVersion()
	if current == nil {
		return "", fmt.Errorf("no model path given and no active model in %s", registry.Dir())
	}
	return current.Path, nil
}
