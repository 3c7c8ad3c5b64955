package dataset

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Inputs holds the two files the aggregator joins.
type Inputs struct {
	Hits   []RawHit
	Layout Layout
	Labels []EventLabel
}

// LoadInputs reads the hits and labels files concurrently. The first error
// cancels the other read's context and is returned.
func LoadInputs(ctx context.Context, hitsPath, labelsPath string) (Inputs, error) {
	var in Inputs

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, layout, err := LoadHits(hitsPath)
		if err != nil {
			return err
		}
		in.Hits, in.Layout = hits, layout
		return ctx.Err()
	})

	g.Go(func() error {
		labels, err := LoadLabels(labelsPath)
		if err != nil {
			return err
		}
		in.Labels = labels
		return ctx.Err()
	})

	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}
