package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"muonfit/internal/cfg"
	"muonfit/internal/dataset"
	"muonfit/internal/fit"
	"muonfit/internal/metrics"
	"muonfit/internal/ml"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		modelPath   = flag.String("model", "", "Model artifact (default: active version in the registry)")
		modelsDir   = flag.String("models-dir", "", "Model registry directory (overrides config)")
		outputPath  = flag.String("output", "", "Directory of the fit file (overrides config)")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
		metricsFile = flag.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	)
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "MISSING ev_ai_eta_R{RUN}.txt FILE")
		fmt.Fprintln(flag.CommandLine.Output(), "  syntax: fit [flags] ev_ai_eta_R{RUN}.txt")
		flag.PrintDefaults()
	}
	flag.Parse()

	input, err := fit.ParseArgs(flag.Args())
	if errors.Is(err, fit.ErrUsage) {
		flag.Usage()
		os.Exit(1)
	}

	config, err := cfg.Load()
	if err != nil {
		setupLogging("info")
		log.Fatal().Err(err).Msg("Failed to load config")
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
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *metricsFile != "" {
		config.MetricsFile = *metricsFile
	}

	setupLogging(config.LogLevel)

	var registry *ml.ModelManager
	if config.ModelPath == "" {
		if registry, err = ml.NewModelManager(config.ModelsDir); err != nil {
			log.Fatal().Err(err).Msg("Failed to open model registry")
		}
	}
	path, err := fit.ResolveModelPath(config.ModelPath, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("No model to fit with")
	}

	model, err := ml.LoadModel(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model")
	}
	log.Info().Str("file", path).Msg("Model loaded")

	hits, layout, err := dataset.LoadHits(input)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load hits")
	}
	seqs := dataset.GroupSequences(hits, layout)
	log.Info().Int("rows", len(hits)).Int("sequences", len(seqs)).Msg("Hits grouped")

	run, ok := fit.RunNumber(input)
	if !ok {
		run = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		log.Warn().Str("file", input).Str("run", run).Msg("No _R{RUN} in file name, using file stem")
	}

	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}
	out := filepath.Join(config.OutputDir, fit.OutputName(run))

	m := metrics.New()
	runner := &fit.Runner{Predictor: model, Metrics: metrics.NewWrapper(m)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := runner.RunFile(ctx, seqs, out)
	if werr := m.WriteTextfile(config.MetricsFile); werr != nil {
		log.Error().Err(werr).Msg("Failed to write metrics")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Fit failed")
	}

	log.Info().Str("file", out).Int("events", n).Msg("Fit file written")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
