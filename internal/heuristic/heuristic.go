// Package heuristic holds the pluggable scorers that judge one musical
// quality of a progression against a melody. Every scorer returns a value in
// [0,1] where higher is better.
package heuristic

import (
	"math"

	"harmonia/internal/music"
)

// Fixed scorer identifiers, also used as weight keys.
const (
	ChordMelodyCongruence = "chord_melody_congruence"
	ChordVariety          = "chord_variety"
	HarmonicFlow          = "harmonic_flow"
	FunctionalHarmony     = "functional_harmony"
	Tension               = "tension"
	ParallelFifths        = "parallel_fifths"
)

// Count is the number of scorers in a standard set.
const Count = 6

// Names lists the scorer identifiers in evaluation order.
var Names = [Count]string{
	ChordMelodyCongruence,
	ChordVariety,
	HarmonicFlow,
	FunctionalHarmony,
	Tension,
	ParallelFifths,
}

// Neutral is returned by scorers that need at least two chords.
const Neutral = 0.5

// Scorer is a deterministic, side-effect-free judgement of one quality.
type Scorer interface {
	Name() string
	Score(m *music.Melody, p music.Progression) float64
}

// Options parameterizes the key-aware scorers.
type Options struct {
	Key       music.Key
	Preferred Transitions
}

// NewSet returns the six standard scorers in Names order.
func NewSet(opts Options) [Count]Scorer {
	return [Count]Scorer{
		Congruence{},
		Variety{},
		Flow{Preferred: opts.Preferred},
		Functional{Key: opts.Key},
		TensionContour{Key: opts.Key},
		Fifths{},
	}
}

// Index returns the position of name in Names, or -1.
func Index(name string) int {
	for i, n := range Names {
		if n == name {
			return i
		}
	}
	return -1
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
