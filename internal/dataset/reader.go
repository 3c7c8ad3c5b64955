package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// LoadHits reads a hits file from disk.
func LoadHits(path string) ([]RawHit, Layout, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open hits file: %w", err)
	}
	defer file.Close()

	hits, layout, err := ReadHits(file)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Int("hits", len(hits)).
		Int("columns", int(layout)).
		Msg("Hits loaded")

	return hits, layout, nil
}

// LoadLabels reads a labels file from disk.
func LoadLabels(path string) ([]EventLabel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer file.Close()

	labels, err := ReadLabels(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Int("labels", len(labels)).
		Msg("Labels loaded")

	return labels, nil
}

// ReadHits parses headerless comma separated hit rows. The layout is taken
// from the column count of the first row and every later row must match it.
// An empty input yields no hits and LayoutPlain.
func ReadHits(r io.Reader) ([]RawHit, Layout, error) {
	reader := newReader(r)

	var (
		hits   []RawHit
		layout Layout
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}
		line, _ := reader.FieldPos(0)

		if layout == 0 {
			switch len(record) {
			case int(LayoutPlain):
				layout = LayoutPlain
			case int(LayoutTimed):
				layout = LayoutTimed
			default:
				return nil, 0, fmt.Errorf("%w: line %d: expected 3 or 4 columns, got %d", ErrMalformedRow, line, len(record))
			}
		}

		id, err := parseEventID(record[0])
		if err != nil {
			return nil, 0, fmt.Errorf("%w: line %d: event id: %v", ErrMalformedRow, line, err)
		}

		hit := RawHit{EventID: id}
		values := record[1:]
		if layout == LayoutTimed {
			hit.ClusterTime, err = parseValue(record[1])
			if err != nil {
				return nil, 0, fmt.Errorf("%w: line %d: cluster time: %v", ErrMalformedRow, line, err)
			}
			values = record[2:]
		}
		if hit.A, err = parseValue(values[0]); err != nil {
			return nil, 0, fmt.Errorf("%w: line %d: channel a: %v", ErrMalformedRow, line, err)
		}
		if hit.B, err = parseValue(values[1]); err != nil {
			return nil, 0, fmt.Errorf("%w: line %d: channel b: %v", ErrMalformedRow, line, err)
		}

		hits = append(hits, hit)
	}

	if layout == 0 {
		layout = LayoutPlain
	}
	return hits, layout, nil
}

// ReadLabels parses headerless event_id,true_length rows.
func ReadLabels(r io.Reader) ([]EventLabel, error) {
	reader := newReader(r)
	reader.FieldsPerRecord = 2

	var labels []EventLabel
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}
		line, _ := reader.FieldPos(0)

		id, err := parseEventID(record[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: event id: %v", ErrMalformedRow, line, err)
		}
		length, err := parseValue(record[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: true length: %v", ErrMalformedRow, line, err)
		}

		labels = append(labels, EventLabel{EventID: id, TrueLength: length})
	}
	return labels, nil
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true
	return reader
}

// parseEventID accepts plain integers and integral floats such as "12.0".
func parseEventID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int64(f), nil
}

func parseValue(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not finite", s)
	}
	return f, nil
}
