package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"muonfit/internal/cfg"
	"muonfit/internal/dataset"
	"muonfit/internal/fit"
	"muonfit/internal/metrics"
	"muonfit/internal/ml"
	"muonfit/internal/report"
	"muonfit/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// trainingFitFile receives event_id,prediction,target for every event.
const trainingFitFile = "fitbyeye_wcsim_RNN.txt"

func main() {
	var (
		dataPath     = flag.String("data", "", "Directory of the dataset store (overrides config)")
		jsonPath     = flag.String("json", "", "Read the dataset from a JSON export instead of the store")
		modelPath    = flag.String("model", "", "Where to save the trained model (default <models-dir>/model-<run>.json)")
		modelsDir    = flag.String("models-dir", "", "Model registry directory (overrides config)")
		outputPath   = flag.String("output", "", "Output directory for reports and the fit file")
		epochs       = flag.Int("epochs", 0, "Number of epochs (overrides config)")
		learningRate = flag.Float64("lr", 0, "Adam learning rate (overrides config)")
		hiddenSize   = flag.Int("hidden", 0, "Hidden units per layer (overrides config)")
		numLayers    = flag.Int("layers", 0, "Stacked recurrent layers (overrides config)")
		progress     = flag.Int("progress", 0, "Log progress every N epochs (overrides config)")
		seed         = flag.Int64("seed", 0, "Random seed, 0 for time based (overrides config)")
		logLevel     = flag.String("log-level", "", "Log level: debug, info, warn, error")
		metricsFile  = flag.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	)
	flag.Parse()

	config, err := cfg.Load()
	if err != nil {
		setupLogging("info")
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Override config with command line arguments
	if *dataPath != "" {
		config.DataPath = *dataPath
	}
	if *modelPath != "" {
		config.ModelPath = *modelPath
	}
	if *modelsDir != "" {
		config.ModelsDir = *modelsDir
	}
	if *outputPath != "" {
		config.OutputDir = *outputPath
	}
	if *epochs > 0 {
		config.Epochs = *epochs
	}
	if *learningRate > 0 {
		config.LearningRate = *learningRate
	}
	if *hiddenSize > 0 {
		config.HiddenSize = *hiddenSize
	}
	if *numLayers > 0 {
		config.NumLayers = *numLayers
	}
	if *progress > 0 {
		config.ProgressEvery = *progress
	}
	if *seed > 0 {
		config.Seed = *seed
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *metricsFile != "" {
		config.MetricsFile = *metricsFile
	}

	setupLogging(config.LogLevel)

	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}
	runID := uuid.NewString()
	if config.ModelPath == "" {
		config.ModelPath = filepath.Join(config.ModelsDir, "model-"+runID+".json")
	}

	fmt.Println("=== Training Configuration ===")
	fmt.Printf("Run ID: %s\n", runID)
	fmt.Printf("Data Path: %s\n", config.DataPath)
	fmt.Printf("Model Path: %s\n", config.ModelPath)
	fmt.Printf("Output Directory: %s\n", config.OutputDir)
	fmt.Printf("Network: hidden %d, layers %d\n", config.HiddenSize, config.NumLayers)
	fmt.Printf("Epochs: %d, learning rate %g, seed %d\n", config.Epochs, config.LearningRate, config.Seed)
	fmt.Println("==============================")

	for _, dir := range []string{config.DataPath, config.OutputDir, filepath.Dir(config.ModelPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create directory")
		}
	}

	store, err := storage.New(config.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open dataset store")
	}
	defer store.Close()

	var events []dataset.AggregatedEvent
	if *jsonPath != "" {
		events, err = dataset.LoadJSON(*jsonPath)
	} else {
		events, err = store.Events()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}
	if len(events) == 0 {
		log.Fatal().Err(dataset.ErrNoEvents).Msg("Dataset is empty, run prepare first")
	}

	rnd := rand.New(rand.NewSource(config.Seed))
	parts := dataset.Split(events, rnd)
	train := dataset.Samples(parts.Train)
	validation := dataset.Samples(parts.Validation)
	holdout := dataset.Samples(parts.Holdout)
	log.Info().
		Int("train", len(train)).
		Int("validation", len(validation)).
		Int("holdout", len(holdout)).
		Msg("Dataset split")

	modelCfg := ml.Config{
		InputSize:  dataset.Channels,
		HiddenSize: config.HiddenSize,
		NumLayers:  config.NumLayers,
	}
	model, err := ml.NewModel(modelCfg, rnd)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build model")
	}

	m := metrics.New()
	wrapper := metrics.NewWrapper(m)
	session := ml.NewSession(model, ml.SessionConfig{
		Epochs:        config.Epochs,
		LearningRate:  config.LearningRate,
		ProgressEvery: config.ProgressEvery,
	}, rnd, wrapper)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := session.Run(ctx, train, validation); err != nil {
		if werr := m.WriteTextfile(config.MetricsFile); werr != nil {
			log.Error().Err(werr).Msg("Failed to write metrics")
		}
		log.Fatal().Err(err).Msg("Training failed")
	}
	history := session.History()

	if err := model.Save(config.ModelPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to save model")
	}
	log.Info().Str("file", config.ModelPath).Msg("Model saved")

	if err := store.PutLossHistory(runID, history); err != nil {
		log.Error().Err(err).Msg("Failed to store loss history")
	}

	var holdoutMSE float64
	if len(holdout) > 0 {
		if holdoutMSE, err = ml.MeanSquaredError(model, holdout); err != nil {
			log.Fatal().Err(err).Msg("Failed to evaluate holdout")
		}
	}
	var baselineMSE float64
	if len(holdout) > 0 {
		if baselineMSE, err = ml.MeanSquaredError(ml.NewMeanPredictor(train), holdout); err != nil {
			log.Fatal().Err(err).Msg("Failed to evaluate baseline")
		}
	}

	// The fit file covers every event in shuffled order.
	all := dataset.Samples(events)
	rnd.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	residuals, err := writeFitFile(filepath.Join(config.OutputDir, trainingFitFile), all, &fit.Runner{Predictor: model, Metrics: wrapper})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write fit file")
	}

	final := ml.EpochLoss{}
	if len(history) > 0 {
		final = history[len(history)-1]
	}

	registry, err := ml.NewModelManager(config.ModelsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open model registry")
	}
	err = registry.AddVersion(runID, config.ModelPath, modelCfg, ml.ModelMetrics{
		Epochs:              len(history),
		FinalTrainLoss:      final.Train,
		FinalValidationLoss: final.Validation,
		HoldoutMSE:          holdoutMSE,
		BaselineMSE:         baselineMSE,
		TrainingSamples:     len(train),
		ValidationSamples:   len(validation),
		HoldoutSamples:      len(holdout),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to register model version")
	}

	reporter := report.NewReporter(&report.Results{
		RunID:             runID,
		StartTime:         start,
		EndTime:           time.Now(),
		ModelPath:         config.ModelPath,
		Config:            modelCfg,
		History:           history,
		Residuals:         residuals,
		HoldoutMSE:        holdoutMSE,
		BaselineMSE:       baselineMSE,
		TrainSamples:      len(train),
		ValidationSamples: len(validation),
		HoldoutSamples:    len(holdout),
	}, config.OutputDir)
	if err := reporter.GenerateReport(); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate report")
	}

	if err := m.WriteTextfile(config.MetricsFile); err != nil {
		log.Error().Err(err).Msg("Failed to write metrics")
	}

	reporter.PrintSummary()
}

func writeFitFile(path string, samples []dataset.Sample, runner *fit.Runner) (residuals []float64, err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open fit file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	residuals, err = runner.WriteLabeled(samples, f)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", path).Int("events", len(samples)).Msg("Fit file written")
	return residuals, nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
