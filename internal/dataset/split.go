package dataset

import "math/rand"

// Partitions holds the three disjoint slices of a dataset.
type Partitions struct {
	Train      []AggregatedEvent
	Validation []AggregatedEvent
	Holdout    []AggregatedEvent
}

// Split partitions events 50/25/25 with two successive random halvings:
// the first halving yields the training set and a remainder, the second
// splits the remainder into holdout and validation. When a halving has an
// odd count the extra event goes to the second part.
func Split(events []AggregatedEvent, rnd *rand.Rand) Partitions {
	train, rest := halve(events, rnd)
	holdout, validation := halve(rest, rnd)
	return Partitions{
		Train:      train,
		Validation: validation,
		Holdout:    holdout,
	}
}

func halve(events []AggregatedEvent, rnd *rand.Rand) (first, second []AggregatedEvent) {
	n := len(events)
	nSecond := (n + 1) / 2

	perm := rnd.Perm(n)
	first = make([]AggregatedEvent, 0, n-nSecond)
	second = make([]AggregatedEvent, 0, nSecond)
	for i, p := range perm {
		if i < n-nSecond {
			first = append(first, events[p])
		} else {
			second = append(second, events[p])
		}
	}
	return first, second
}
