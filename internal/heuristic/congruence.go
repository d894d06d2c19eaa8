package heuristic

import "harmonia/internal/music"

// stepCredit is the partial credit for a melody note a step away from a chord tone.
const stepCredit = 0.35

// Congruence rewards chords whose tones cover the concurrent melody notes.
// Each melody tick under a chord tone earns full credit; ticks under a
// neighbour tone (one or two semitones from a chord tone) earn stepCredit.
type Congruence struct{}

func (Congruence) Name() string { return ChordMelodyCongruence }

func (Congruence) Score(m *music.Melody, p music.Progression) float64 {
	if m.Duration() <= 0 || len(p) == 0 {
		return 0
	}
	var earned float64
	for i, span := range p.Spans() {
		tones := p[i].PitchClasses()
		for _, n := range m.Slice(span.Start, span.End).Notes {
			earned += noteCredit(tones, n.PitchClass()) * float64(n.Duration)
		}
	}
	return clamp01(earned / float64(m.Duration()))
}

func noteCredit(tones music.PitchSet, pc music.PitchClass) float64 {
	if tones.Has(pc) {
		return 1
	}
	for _, tone := range tones.Members() {
		if d := tone.Distance(pc); d == 1 || d == 2 {
			return stepCredit
		}
	}
	return 0
}
