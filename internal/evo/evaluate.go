package evo

import (
	"context"

	"golang.org/x/sync/errgroup"

	"harmonia/internal/fitness"
	"harmonia/internal/music"
)

// evaluatePopulation scores candidates on at most workers goroutines.
// Results are stored by index so the outcome never depends on scheduling.
func evaluatePopulation(ctx context.Context, ev *fitness.Evaluator, candidates []music.Progression, workers int) ([]fitness.Record, error) {
	if workers <= 0 {
		workers = 1
	}
	records := make([]fitness.Record, len(candidates))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range candidates {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			records[i] = ev.Evaluate(candidates[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
