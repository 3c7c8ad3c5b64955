package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func validateFlags(events, maxHits int, outliers, unlabeled float64) error {
	if events < 1 {
		return fmt.Errorf("events must be at least 1, got %d", events)
	}
	if maxHits < 1 {
		return fmt.Errorf("max-hits must be at least 1, got %d", maxHits)
	}
	if outliers < 0 || outliers > 1 {
		return fmt.Errorf("outliers must be in [0, 1], got %g", outliers)
	}
	if unlabeled < 0 || unlabeled > 1 {
		return fmt.Errorf("unlabeled must be in [0, 1], got %g", unlabeled)
	}
	return nil
}

// Writes synthetic hit and label files in the layouts prepare and fit read.
// Each event is a muon crossing the tank: every hit adds a track segment
// and the true length grows with the summed segments.
func main() {
	var (
		outDir    = flag.String("out", "data", "Output directory")
		events    = flag.Int("events", 500, "Number of events to generate")
		maxHits   = flag.Int("max-hits", 12, "Maximum hits per event")
		run       = flag.Int("run", 0, "Also write a timed ev_ai_eta_R{RUN}.txt for fit when > 0")
		outliers  = flag.Float64("outliers", 0.05, "Fraction of labels outside [0, 1000]")
		seed      = flag.Int64("seed", 0, "Random seed, 0 for time based")
		unlabeled = flag.Float64("unlabeled", 0.02, "Fraction of events without a label")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := validateFlags(*events, *maxHits, *outliers, *unlabeled); err != nil {
		log.Fatal().Err(err).Msg("Invalid flags")
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}

	hitsPath := filepath.Join(*outDir, "X.txt")
	labelsPath := filepath.Join(*outDir, "Y.txt")

	hits, err := create(hitsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create hits file")
	}
	labels, err := create(labelsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create labels file")
	}

	var timed *output
	if *run > 0 {
		timedPath := filepath.Join(*outDir, fmt.Sprintf("ev_ai_eta_R%d.txt", *run))
		if timed, err = create(timedPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to create timed hits file")
		}
	}

	for id := 0; id < *events; id++ {
		n := 1 + rnd.Intn(*maxHits)
		clusterTime := 1000 + rnd.Float64()*500

		var total float64
		for i := 0; i < n; i++ {
			segment := 5 + rnd.Float64()*60
			total += segment
			eta := 0.8 + rnd.NormFloat64()*0.1

			fmt.Fprintf(hits.w, "%d,%s,%s\n", id, format(total), format(eta))
			if timed != nil {
				fmt.Fprintf(timed.w, "%d,%s,%s,%s\n", id, format(clusterTime), format(total), format(eta))
			}
		}

		if rnd.Float64() < *unlabeled {
			continue
		}
		length := total*1.1 + rnd.NormFloat64()*10
		if rnd.Float64() < *outliers {
			if rnd.Intn(2) == 0 {
				length = -1 - rnd.Float64()*100
			} else {
				length = 1000 + 1 + rnd.Float64()*500
			}
		}
		fmt.Fprintf(labels.w, "%d,%s\n", id, format(length))
	}

	for _, o := range []*output{hits, labels, timed} {
		if o == nil {
			continue
		}
		if err := o.close(); err != nil {
			log.Fatal().Err(err).Str("file", o.path).Msg("Failed to write file")
		}
		log.Info().Str("file", o.path).Msg("Written")
	}

	log.Info().Int("events", *events).Int64("seed", *seed).Msg("Sample data generated")
}

type output struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func create(path string) (*output, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &output{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (o *output) close() error {
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return err
	}
	return o.f.Close()
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
