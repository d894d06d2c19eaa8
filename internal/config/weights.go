package config

import (
	"math"
	"sort"

	"harmonia/internal/heuristic"
)

// Weights maps each heuristic name to a non-negative multiplier. Weights do
// not need to sum to one: fitness is a weighted sum and callers own the scale.
type Weights map[string]float64

// DefaultWeights returns the jazz-leaning weights of the reference setup.
func DefaultWeights() Weights {
	return Weights{
		heuristic.ChordMelodyCongruence: 0.5,
		heuristic.ChordVariety:          0.6,
		heuristic.HarmonicFlow:          0.3,
		heuristic.FunctionalHarmony:     0.6,
		heuristic.Tension:               0.8,
		heuristic.ParallelFifths:        0.4,
	}
}

// Validate requires exactly the six heuristic keys with finite, non-negative values.
func (w Weights) Validate() error {
	for _, name := range heuristic.Names {
		v, ok := w[name]
		if !ok {
			return configErr("weights."+name, "missing required weight")
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return configErr("weights."+name, "weight must be finite, got %v", v)
		}
		if v < 0 {
			return configErr("weights."+name, "weight must be >= 0, got %v", v)
		}
	}
	if len(w) != heuristic.Count {
		unknown := make([]string, 0, len(w))
		for name := range w {
			if heuristic.Index(name) < 0 {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		return configErr("weights."+unknown[0], "unknown heuristic")
	}
	return nil
}

// Vector returns the weights in heuristic.Names order. Call Validate first.
func (w Weights) Vector() [heuristic.Count]float64 {
	var out [heuristic.Count]float64
	for i, name := range heuristic.Names {
		out[i] = w[name]
	}
	return out
}

// Clone returns an independent copy.
func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
