package dataset

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// DuplicatePolicy decides what Aggregate does with repeated label event ids.
type DuplicatePolicy string

const (
	// DuplicateFirst keeps the first label seen for an event id.
	DuplicateFirst DuplicatePolicy = "first"
	// DuplicateFail aborts aggregation with ErrDuplicateLabel.
	DuplicateFail DuplicatePolicy = "fail"
)

// Default track length limits, in the label's unit.
const (
	DefaultMinTrackLength = 0
	DefaultMaxTrackLength = 1000
)

// AggregateOptions tunes Aggregate. The zero value is not useful; start
// from DefaultAggregateOptions.
type AggregateOptions struct {
	MinTrackLength float64
	MaxTrackLength float64
	Duplicates     DuplicatePolicy
}

// DefaultAggregateOptions keeps labels in [0, 1000] and lets the first
// duplicate label win.
func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{
		MinTrackLength: DefaultMinTrackLength,
		MaxTrackLength: DefaultMaxTrackLength,
		Duplicates:     DuplicateFirst,
	}
}

// AggregateStats records how many rows and events survived each stage.
type AggregateStats struct {
	Hits            int `json:"hits"`
	Groups          int `json:"groups"`
	Labels          int `json:"labels"`
	DuplicateLabels int `json:"duplicate_labels"`
	Joined          int `json:"joined"`
	DroppedNoLabel  int `json:"dropped_no_label"`
	DroppedTooLong  int `json:"dropped_too_long"`
	DroppedNegative int `json:"dropped_negative"`
	Kept            int `json:"kept"`
}

type groupKey struct {
	eventID     int64
	clusterTime float64
}

type hitGroup struct {
	key  groupKey
	a, b []float64
}

// groupHits groups hits by event id, and by cluster time as well when
// byTime is set. Hits keep their input order inside a group; groups come
// back sorted by key.
func groupHits(hits []RawHit, byTime bool) []hitGroup {
	index := make(map[groupKey]int)
	var groups []hitGroup

	for _, h := range hits {
		k := groupKey{eventID: h.EventID}
		if byTime {
			k.clusterTime = h.ClusterTime
		}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, hitGroup{key: k})
		}
		groups[i].a = append(groups[i].a, h.A)
		groups[i].b = append(groups[i].b, h.B)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].key.eventID != groups[j].key.eventID {
			return groups[i].key.eventID < groups[j].key.eventID
		}
		return groups[i].key.clusterTime < groups[j].key.clusterTime
	})
	return groups
}

// Aggregate groups hits per event, inner-joins them with the labels and
// drops events whose true length is above MaxTrackLength or below
// MinTrackLength. Events without a label are dropped silently.
func Aggregate(hits []RawHit, labels []EventLabel, opts AggregateOptions) ([]AggregatedEvent, AggregateStats, error) {
	stats := AggregateStats{Hits: len(hits), Labels: len(labels)}

	lengths := make(map[int64]float64, len(labels))
	for _, l := range labels {
		if _, seen := lengths[l.EventID]; seen {
			if opts.Duplicates == DuplicateFail {
				return nil, stats, fmt.Errorf("%w: event %d", ErrDuplicateLabel, l.EventID)
			}
			stats.DuplicateLabels++
			continue
		}
		lengths[l.EventID] = l.TrueLength
	}
	if stats.DuplicateLabels > 0 {
		log.Warn().
			Int("duplicates", stats.DuplicateLabels).
			Msg("Duplicate labels ignored, first occurrence kept")
	}

	groups := groupHits(hits, false)
	stats.Groups = len(groups)

	joined := make([]AggregatedEvent, 0, len(groups))
	for _, g := range groups {
		length, ok := lengths[g.key.eventID]
		if !ok {
			stats.DroppedNoLabel++
			continue
		}
		joined = append(joined, AggregatedEvent{
			EventID:    g.key.eventID,
			A:          g.a,
			B:          g.b,
			TrueLength: length,
		})
	}
	stats.Joined = len(joined)
	log.Info().Str("stage", "merge").Int("before", stats.Groups).Int("after", stats.Joined).Msg("Events after merge")

	events := joined[:0]
	for _, e := range joined {
		if e.TrueLength > opts.MaxTrackLength {
			stats.DroppedTooLong++
			continue
		}
		events = append(events, e)
	}
	log.Info().
		Str("stage", "max_length").
		Float64("limit", opts.MaxTrackLength).
		Int("before", stats.Joined).
		Int("after", len(events)).
		Msg("Events after long track filter")

	before := len(events)
	kept := events[:0]
	for _, e := range events {
		if e.TrueLength < opts.MinTrackLength {
			stats.DroppedNegative++
			continue
		}
		kept = append(kept, e)
	}
	stats.Kept = len(kept)
	log.Info().
		Str("stage", "min_length").
		Float64("limit", opts.MinTrackLength).
		Int("before", before).
		Int("after", stats.Kept).
		Msg("Events after short track filter")

	return kept, stats, nil
}

// GroupSequences groups hits for inference. Timed layouts group by event id
// and cluster time; plain layouts by event id only.
func GroupSequences(hits []RawHit, layout Layout) []Sequence {
	timed := layout == LayoutTimed
	groups := groupHits(hits, timed)

	seqs := make([]Sequence, len(groups))
	for i, g := range groups {
		seqs[i] = Sequence{
			EventID:        g.key.eventID,
			ClusterTime:    g.key.clusterTime,
			HasClusterTime: timed,
			A:              g.a,
			B:              g.b,
		}
	}
	return seqs
}
