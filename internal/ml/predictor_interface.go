// Package ml implements the many-to-one recurrent regressor that predicts a
// track length from a variable-length hit sequence, together with its
// optimizer, training session, artifact format and model registry.
package ml

import (
	"fmt"
	"math"

	"muonfit/internal/dataset"
)

// Predictor produces one scalar prediction per sequence.
// Implementations must be deterministic for fixed parameters.
type Predictor interface {
	// Predict returns the prediction for a time-major sequence of channel
	// vectors, or an error if the sequence does not fit the predictor.
	Predict(steps [][]float64) (float64, error)
}

// MeanSquaredError averages the squared error of p over samples.
func MeanSquaredError(p Predictor, samples []dataset.Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range samples {
		y, err := p.Predict(s.Steps)
		if err != nil {
			return 0, fmt.Errorf("event %d: %w", s.EventID, err)
		}
		d := y - s.Target
		sum += d * d
	}
	mse := sum / float64(len(samples))
	if math.IsNaN(mse) || math.IsInf(mse, 0) {
		return 0, fmt.Errorf("%w: mean squared error", ErrNonFinite)
	}
	return mse, nil
}
