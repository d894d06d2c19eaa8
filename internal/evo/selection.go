package evo

import (
	"fmt"
	"math/rand"

	"harmonia/internal/fitness"
)

// Selector chooses parents from ranked records for reproduction.
// Implementations must be monotone: a fitter record is never less likely
// to be picked than a less fit one.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []fitness.Record) (fitness.Record, error)
}

// RouletteSelector picks with probability proportional to fitness. When
// total fitness is zero every record is equally likely.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) PickParent(rng *rand.Rand, ranked []fitness.Record) (fitness.Record, error) {
	if rng == nil {
		return fitness.Record{}, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return fitness.Record{}, fmt.Errorf("cannot select from an empty population")
	}

	total := 0.0
	for _, r := range ranked {
		if r.Fitness > 0 {
			total += r.Fitness
		}
	}
	if total <= 0 {
		return ranked[rng.Intn(len(ranked))], nil
	}

	target := rng.Float64() * total
	acc := 0.0
	for _, r := range ranked {
		if r.Fitness <= 0 {
			continue
		}
		acc += r.Fitness
		if target < acc {
			return r, nil
		}
	}
	// Float rounding can leave target == total; the last positive record owns it.
	for i := len(ranked) - 1; i >= 0; i-- {
		if ranked[i].Fitness > 0 {
			return ranked[i], nil
		}
	}
	return ranked[0], nil
}

// TournamentSelector samples candidates uniformly with replacement and
// picks the fittest among them.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []fitness.Record) (fitness.Record, error) {
	if rng == nil {
		return fitness.Record{}, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return fitness.Record{}, fmt.Errorf("cannot select from an empty population")
	}

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}

	best := ranked[rng.Intn(len(ranked))]
	for i := 1; i < tournamentSize; i++ {
		candidate := ranked[rng.Intn(len(ranked))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best, nil
}

// EliteSelector picks uniformly from the top Count records.
type EliteSelector struct {
	Count int
}

func (EliteSelector) Name() string {
	return "elite"
}

func (s EliteSelector) PickParent(rng *rand.Rand, ranked []fitness.Record) (fitness.Record, error) {
	if rng == nil {
		return fitness.Record{}, fmt.Errorf("random source is required")
	}
	if s.Count <= 0 || s.Count > len(ranked) {
		return fitness.Record{}, fmt.Errorf("invalid elite count: %d", s.Count)
	}
	return ranked[rng.Intn(s.Count)], nil
}
