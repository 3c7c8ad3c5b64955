package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"muonfit/internal/cfg"
	"muonfit/internal/dataset"
	"muonfit/internal/metrics"
	"muonfit/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		hitsPath    = flag.String("hits", "", "Hits file: event_id,a,b rows (overrides config)")
		labelsPath  = flag.String("labels", "", "Labels file: event_id,true_length rows (overrides config)")
		dataPath    = flag.String("data", "", "Directory of the dataset store (overrides config)")
		jsonPath    = flag.String("json", "", "Also export the dataset as JSON to this path")
		csvPath     = flag.String("csv", "", "Also export the dataset as CSV to this path")
		duplicates  = flag.String("duplicates", "", "Duplicate label policy: first, fail (overrides config)")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
		metricsFile = flag.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	)
	flag.Parse()

	config, err := cfg.Load()
	if err != nil {
		setupLogging("info")
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Override config with command line arguments
	if *hitsPath != "" {
		config.HitsPath = *hitsPath
	}
	if *labelsPath != "" {
		config.LabelsPath = *labelsPath
	}
	if *dataPath != "" {
		config.DataPath = *dataPath
	}
	if *duplicates != "" {
		config.DuplicateLabels = strings.ToLower(*duplicates)
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *metricsFile != "" {
		config.MetricsFile = *metricsFile
	}

	setupLogging(config.LogLevel)

	fmt.Println("=== Prepare Configuration ===")
	fmt.Printf("Hits: %s\n", config.HitsPath)
	fmt.Printf("Labels: %s\n", config.LabelsPath)
	fmt.Printf("Data Path: %s\n", config.DataPath)
	fmt.Printf("Track Length: [%g, %g]\n", config.MinTrackLength, config.MaxTrackLength)
	fmt.Printf("Duplicate Labels: %s\n", config.DuplicateLabels)
	fmt.Println("=============================")

	m := metrics.New()
	wrapper := metrics.NewWrapper(m)

	in, err := dataset.LoadInputs(context.Background(), config.HitsPath, config.LabelsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load input files")
	}
	log.Info().
		Int("hits", len(in.Hits)).
		Int("columns", int(in.Layout)).
		Int("labels", len(in.Labels)).
		Msg("Input files loaded")

	events, stats, err := dataset.Aggregate(in.Hits, in.Labels, dataset.AggregateOptions{
		MinTrackLength: config.MinTrackLength,
		MaxTrackLength: config.MaxTrackLength,
		Duplicates:     dataset.DuplicatePolicy(config.DuplicateLabels),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Aggregation failed")
	}
	wrapper.RecordAggregation(stats)

	if len(events) == 0 {
		log.Fatal().Err(dataset.ErrNoEvents).Msg("Nothing left after join and filters")
	}

	if err := os.MkdirAll(config.DataPath, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}
	store, err := storage.New(config.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open dataset store")
	}
	defer store.Close()

	if err := store.PutEvents(events, stats); err != nil {
		log.Fatal().Err(err).Msg("Failed to store events")
	}
	log.Info().Int("events", len(events)).Str("path", config.DataPath).Msg("Dataset stored")

	if *jsonPath != "" {
		if err := dataset.ExportFile(*jsonPath, events, dataset.WriteJSON); err != nil {
			log.Fatal().Err(err).Msg("Failed to export JSON")
		}
		log.Info().Str("file", *jsonPath).Msg("JSON export written")
	}
	if *csvPath != "" {
		if err := dataset.ExportFile(*csvPath, events, dataset.WriteCSV); err != nil {
			log.Fatal().Err(err).Msg("Failed to export CSV")
		}
		log.Info().Str("file", *csvPath).Msg("CSV export written")
	}

	if err := m.WriteTextfile(config.MetricsFile); err != nil {
		log.Error().Err(err).Msg("Failed to write metrics")
	}

	fmt.Printf("\nPrepared %d events from %d hits (%d groups, %d labels)\n",
		stats.Kept, stats.Hits, stats.Groups, stats.Labels)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
