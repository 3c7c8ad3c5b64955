package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// WriteJSON writes events as an object keyed by row index, the layout the
// aggregation step has always exported.
func WriteJSON(w io.Writer, events []AggregatedEvent) error {
	rows := make(map[string]AggregatedEvent, len(events))
	for i, e := range events {
		rows[strconv.Itoa(i)] = e
	}
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	return nil
}

// ReadJSON reads a WriteJSON export back in row index order.
func ReadJSON(r io.Reader) ([]AggregatedEvent, error) {
	var rows map[string]AggregatedEvent
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	type indexed struct {
		idx   int
		event AggregatedEvent
	}
	ordered := make([]indexed, 0, len(rows))
	for k, e := range rows {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%w: row key %q", ErrMalformedRow, k)
		}
		if len(e.A) != len(e.B) {
			return nil, fmt.Errorf("%w: event %d has %d ai and %d eta values", ErrMalformedRow, e.EventID, len(e.A), len(e.B))
		}
		ordered = append(ordered, indexed{idx: idx, event: e})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].idx < ordered[j].idx })

	events := make([]AggregatedEvent, len(ordered))
	for i, o := range ordered {
		events[i] = o.event
	}
	return events, nil
}

// LoadJSON reads a JSON export from disk.
func LoadJSON(path string) ([]AggregatedEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()
	return ReadJSON(file)
}

// WriteCSV writes id,ai,eta,truetracklen rows with the sequences encoded as
// JSON arrays.
func WriteCSV(w io.Writer, events []AggregatedEvent) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "ai", "eta", "truetracklen"}); err != nil {
		return err
	}
	for _, e := range events {
		a, err := json.Marshal(e.A)
		if err != nil {
			return fmt.Errorf("marshal ai of event %d: %w", e.EventID, err)
		}
		b, err := json.Marshal(e.B)
		if err != nil {
			return fmt.Errorf("marshal eta of event %d: %w", e.EventID, err)
		}
		record := []string{
			strconv.FormatInt(e.EventID, 10),
			string(a),
			string(b),
			strconv.FormatFloat(e.TrueLength, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportFile creates path and writes events to it with write.
func ExportFile(path string, events []AggregatedEvent, write func(io.Writer, []AggregatedEvent) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return write(file, events)
}
