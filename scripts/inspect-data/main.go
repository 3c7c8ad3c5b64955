package main

import (
	"flag"
	"fmt"
	"os"

	"muonfit/internal/ml"
	"muonfit/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath  = flag.String("data", "data", "Data directory path")
		modelsDir = flag.String("models-dir", "models", "Model registry directory")
		limit     = flag.Int("limit", 5, "Events to print")
		activate  = flag.String("activate", "", "Activate the registry version of this training run and exit")
		rollback  = flag.Bool("rollback", false, "Activate the previous registry version and exit")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	registry, err := ml.NewModelManager(*modelsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open model registry")
	}

	if *activate != "" || *rollback {
		if err := updateRegistry(registry, *activate, *rollback); err != nil {
			log.Fatal().Err(err).Msg("Failed to update model registry")
		}
		log.Info().Str("version", registry.GetCurrentVersion().Version).Msg("Active model changed")
		printVersions(registry)
		return
	}

	fmt.Printf("Inspecting data in: %s\n", *dataPath)

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	count, err := store.EventCount()
	if err != nil {
		log.Fatal().Err(err).Msg("No dataset, run prepare first")
	}
	stats, err := store.Stats()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read stats")
	}

	fmt.Println("\nDataset:")
	fmt.Printf("  Events: %d\n", count)
	fmt.Printf("  Hits read: %d in %d groups\n", stats.Hits, stats.Groups)
	fmt.Printf("  Labels: %d (%d duplicate)\n", stats.Labels, stats.DuplicateLabels)
	fmt.Printf("  Dropped: %d unlabeled, %d too long, %d negative\n",
		stats.DroppedNoLabel, stats.DroppedTooLong, stats.DroppedNegative)

	events, err := store.Events()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read events")
	}
	fmt.Println("\nFirst events:")
	for i, ev := range events {
		if i >= *limit {
			break
		}
		fmt.Printf("  id=%d hits=%d true_length=%.2f\n", ev.EventID, ev.Len(), ev.TrueLength)
	}

	runs, err := store.Runs()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list training runs")
	}
	fmt.Printf("\nTraining runs: %d\n", len(runs))
	for _, run := range runs {
		history, err := store.LossHistory(run)
		if err != nil || len(history) == 0 {
			continue
		}
		last := history[len(history)-1]
		fmt.Printf("  %s: %d epochs, train %.2f, validation %.2f\n",
			run, len(history), last.Train, last.Validation)
	}

	printVersions(registry)
}

// updateRegistry activates the named version, or rolls back to the one
// registered before the active version. Asking for both is an error.
func updateRegistry(registry *ml.ModelManager, version string, rollback bool) error {
	switch {
	case version != "" && rollback:
		return fmt.Errorf("activate and rollback are exclusive")
	case rollback:
		return registry.Rollback()
	case version != "":
		return registry.ActivateVersion(version)
	}
	return nil
}

func printVersions(registry *ml.ModelManager) {
	fmt.Println("\nModel versions:")
	for _, v := range registry.ListVersions() {
		active := ""
		if v.IsActive {
			active = " (active)"
		}
		fmt.Printf("  %s%s: %s, holdout MSE %.2f vs baseline %.2f\n",
			v.Version, active, v.Path, v.Metrics.HoldoutMSE, v.Metrics.BaselineMSE)
	}
}
