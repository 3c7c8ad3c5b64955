package ml

import "muonfit/internal/dataset"

// MeanPredictor ignores the sequence and predicts the mean training target.
// It is the baseline a trained model has to beat.
type MeanPredictor struct {
	mean float64
}

// NewMeanPredictor computes the mean target of samples.
func NewMeanPredictor(samples []dataset.Sample) *MeanPredictor {
	if len(samples) == 0 {
		return &MeanPredictor{}
	}
	var sum float64
	for _, s := range samples {
		sum += s.Target
	}
	return &MeanPredictor{mean: sum / float64(len(samples))}
}

// Mean returns the constant prediction.
func (p *MeanPredictor) Mean() float64 {
	return p.mean
}

// Predict implements Predictor.
func (p *MeanPredictor) Predict(steps [][]float64) (float64, error) {
	return p.mean, nil
}
