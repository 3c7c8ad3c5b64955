// Package dataset turns detector hit rows into per-event sequences for the
// track length regressor. It reads the delimited hit and label files, groups
// hits by event, joins them with their true track length and splits the
// result into training, validation and holdout partitions.
//
// Row order inside an event is preserved everywhere: it is the order in which
// the recurrent model consumes the hits.
package dataset

import "errors"

var (
	// ErrMalformedRow is returned when a row of an input file cannot be parsed.
	ErrMalformedRow = errors.New("malformed row")
	// ErrDuplicateLabel is returned by Aggregate under DuplicateFail when an
	// event id appears more than once in the labels.
	ErrDuplicateLabel = errors.New("duplicate event label")
	// ErrNoEvents is returned when a run has nothing to work on.
	ErrNoEvents = errors.New("no events")
)

// Channels is the number of feature channels per hit (track segment and eta).
const Channels = 2

// Layout identifies the column layout of a hits file.
type Layout int

const (
	// LayoutPlain rows are event_id,a,b.
	LayoutPlain Layout = 3
	// LayoutTimed rows are event_id,cluster_time,a,b.
	LayoutTimed Layout = 4
)

// RawHit is one detector hit. Many hits share an EventID.
type RawHit struct {
	EventID     int64
	ClusterTime float64 // zero for LayoutPlain files
	A           float64 // track segment
	B           float64 // eta
}

// EventLabel carries the true track length of one event.
type EventLabel struct {
	EventID    int64
	TrueLength float64
}

// AggregatedEvent is one event's hit sequences joined with its label.
// len(A) == len(B) always holds.
type AggregatedEvent struct {
	EventID    int64     `json:"id"`
	A          []float64 `json:"ai"`
	B          []float64 `json:"eta"`
	TrueLength float64   `json:"truetracklen"`
}

// Len returns the number of hits in the event.
func (e AggregatedEvent) Len() int {
	return len(e.A)
}

// Steps returns the event as a time-major sequence of channel vectors.
func (e AggregatedEvent) Steps() [][]float64 {
	return steps(e.A, e.B)
}

// Sequence is a grouped, unlabeled hit sequence used for inference.
type Sequence struct {
	EventID        int64
	ClusterTime    float64
	HasClusterTime bool
	A              []float64
	B              []float64
}

// Steps returns the sequence as a time-major sequence of channel vectors.
func (s Sequence) Steps() [][]float64 {
	return steps(s.A, s.B)
}

// Sample is a training example: a variable-length sequence and its target.
type Sample struct {
	EventID int64
	Steps   [][]float64
	Target  float64
}

// Samples converts aggregated events into training samples.
func Samples(events []AggregatedEvent) []Sample {
	out := make([]Sample, len(events))
	for i, e := range events {
		out[i] = Sample{
			EventID: e.EventID,
			Steps:   e.Steps(),
			Target:  e.TrueLength,
		}
	}
	return out
}

func steps(a, b []float64) [][]float64 {
	out := make([][]float64, len(a))
	for t := range a {
		out[t] = []float64{a[t], b[t]}
	}
	return out
}
