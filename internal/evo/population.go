package evo

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"harmonia/internal/fitness"
	"harmonia/internal/music"
)

// Population is an immutable, ranked snapshot of one generation.
type Population struct {
	generation int
	ranked     []fitness.Record
}

// DiversityStats summarizes the fitness spread of a population.
type DiversityStats struct {
	Mean     float64
	Variance float64
	StdDev   float64
	Min      float64
	Max      float64
	Distinct int
}

// NewPopulation ranks records by fitness, highest first. Equal fitness
// keeps insertion order.
func NewPopulation(generation int, records []fitness.Record) *Population {
	ranked := make([]fitness.Record, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return &Population{generation: generation, ranked: ranked}
}

func (p *Population) Generation() int {
	return p.generation
}

func (p *Population) Len() int {
	return len(p.ranked)
}

// Ranked returns a copy of the records in rank order.
func (p *Population) Ranked() []fitness.Record {
	out := make([]fitness.Record, len(p.ranked))
	copy(out, p.ranked)
	return out
}

// At returns the record of rank i.
func (p *Population) At(i int) fitness.Record {
	return p.ranked[i]
}

// Best returns the highest-ranked record.
func (p *Population) Best() (fitness.Record, bool) {
	if len(p.ranked) == 0 {
		return fitness.Record{}, false
	}
	return p.ranked[0], true
}

// Stats reports mean, variance, extremes and the number of distinct progressions.
func (p *Population) Stats() DiversityStats {
	if len(p.ranked) == 0 {
		return DiversityStats{}
	}
	values := make([]float64, len(p.ranked))
	distinct := make(map[string]struct{}, len(p.ranked))
	for i, r := range p.ranked {
		values[i] = r.Fitness
		distinct[r.Progression.Key()] = struct{}{}
	}
	mean, variance := stat.MeanVariance(values, nil)
	if len(values) < 2 || math.IsNaN(variance) {
		variance = 0
	}
	return DiversityStats{
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Min:      values[len(values)-1],
		Max:      values[0],
		Distinct: len(distinct),
	}
}

// RandomProgression draws one chord per timeline slot from the vocabulary.
func RandomProgression(rt *Runtime) (music.Progression, error) {
	symbols := make([]music.Symbol, rt.Timeline.Len())
	for i := range symbols {
		symbols[i] = randomSymbol(rt.RNG, rt.Vocabulary)
	}
	p, err := rt.Timeline.Progression(symbols)
	if err != nil {
		return nil, err
	}
	if err := verify(rt, "random", p); err != nil {
		return nil, err
	}
	return p, nil
}

// RandomPopulation draws n aligned progressions.
func RandomPopulation(rt *Runtime, n int) ([]music.Progression, error) {
	if len(rt.Vocabulary) == 0 {
		return nil, fmt.Errorf("vocabulary is empty")
	}
	out := make([]music.Progression, n)
	for i := range out {
		p, err := RandomProgression(rt)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
