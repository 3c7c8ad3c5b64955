package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"muonfit/internal/dataset"

	"github.com/rs/zerolog/log"
)

// ErrNoSamples is returned when a session is asked to train on nothing.
var ErrNoSamples = errors.New("no training samples")

// TrainingMetrics receives per-epoch observations from a Session.
type TrainingMetrics interface {
	EpochObserve(train, validation float64, elapsed time.Duration)
	NonFiniteInc()
}

// SessionConfig controls a training run.
type SessionConfig struct {
	Epochs        int
	LearningRate  float64
	ProgressEvery int
}

// DefaultSessionConfig trains for 10000 epochs at 0.001 and reports every
// 100 epochs.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Epochs:        10000,
		LearningRate:  DefaultLearningRate,
		ProgressEvery: 100,
	}
}

// EpochLoss is the summed squared error of one epoch on each partition.
type EpochLoss struct {
	Epoch      int     `json:"epoch"`
	Train      float64 `json:"train"`
	Validation float64 `json:"validation"`
}

// Session owns everything a training run mutates: the model parameters,
// the optimizer state, the shuffling source and the loss history.
type Session struct {
	model   *Model
	opt     *Adam
	cfg     SessionConfig
	rnd     *rand.Rand
	metrics TrainingMetrics
	history []EpochLoss
}

// NewSession prepares model for training. metrics may be nil.
func NewSession(model *Model, cfg SessionConfig, rnd *rand.Rand, metrics TrainingMetrics) *Session {
	if cfg.ProgressEvery < 1 {
		cfg.ProgressEvery = 1
	}
	return &Session{
		model:   model,
		opt:     NewAdam(model.Params(), cfg.LearningRate),
		cfg:     cfg,
		rnd:     rnd,
		metrics: metrics,
	}
}

// Model returns the model being trained.
func (s *Session) Model() *Model {
	return s.model
}

// History returns a copy of the per-epoch losses recorded so far.
func (s *Session) History() []EpochLoss {
	return append([]EpochLoss(nil), s.history...)
}

// Run trains for the configured number of epochs. There is no early
// stopping. A non-finite loss or gradient aborts the run with ErrNonFinite;
// ctx is checked between epochs.
func (s *Session) Run(ctx context.Context, train, validation []dataset.Sample) error {
	if len(train) == 0 {
		return ErrNoSamples
	}

	log.Info().
		Int("train", len(train)).
		Int("validation", len(validation)).
		Int("epochs", s.cfg.Epochs).
		Float64("learning_rate", s.cfg.LearningRate).
		Msg("Training started")

	order := append([]dataset.Sample(nil), train...)
	for epoch := 0; epoch < s.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()

		trainLoss, err := s.TrainEpoch(order)
		if err != nil {
			s.nonFinite(err)
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		validationLoss, err := s.Evaluate(validation)
		if err != nil {
			s.nonFinite(err)
			return fmt.Errorf("epoch %d validation: %w", epoch, err)
		}

		s.history = append(s.history, EpochLoss{Epoch: epoch, Train: trainLoss, Validation: validationLoss})
		if s.metrics != nil {
			s.metrics.EpochObserve(trainLoss, validationLoss, time.Since(start))
		}

		if epoch%s.cfg.ProgressEvery == 0 {
			log.Info().
				Int("epoch", epoch).
				Float64("train_loss", trainLoss).
				Float64("validation_loss", validationLoss).
				Msg("Training progress")
		}
	}

	log.Info().Int("epochs", len(s.history)).Msg("Training finished")
	return nil
}

// TrainEpoch shuffles samples in place and applies one optimizer step per
// sample. It returns the summed squared error of the epoch.
func (s *Session) TrainEpoch(samples []dataset.Sample) (float64, error) {
	s.rnd.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})

	var total float64
	for i := range samples {
		sample := &samples[i]
		loss, err := s.model.lossAndGrad(sample.Steps, sample.Target)
		if err != nil {
			return 0, fmt.Errorf("event %d: %w", sample.EventID, err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return 0, fmt.Errorf("%w: loss of event %d", ErrNonFinite, sample.EventID)
		}
		if !finiteGrads(s.model.Params()) {
			return 0, fmt.Errorf("%w: gradient of event %d", ErrNonFinite, sample.EventID)
		}
		s.opt.Step()
		s.opt.ZeroGrad()
		total += loss
	}
	return total, nil
}

// Evaluate returns the summed squared error over samples without touching
// gradients.
func (s *Session) Evaluate(samples []dataset.Sample) (float64, error) {
	var total float64
	for _, sample := range samples {
		y, err := s.model.Forward(sample.Steps)
		if err != nil {
			return 0, fmt.Errorf("event %d: %w", sample.EventID, err)
		}
		d := y - sample.Target
		total += d * d
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, fmt.Errorf("%w: validation loss", ErrNonFinite)
	}
	return total, nil
}

func (s *Session) nonFinite(err error) {
	if s.metrics != nil && errors.Is(err, ErrNonFinite) {
		s.metrics.NonFiniteInc()
	}
}
