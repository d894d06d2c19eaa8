package heuristic

import (
	"math"
	"sort"

	"harmonia/internal/music"
)

const (
	resolutionTarget = 0.1
	resolutionWeight = 2.0
)

// TensionContour compares each chord's tension with an arch-shaped target
// per melodic phrase: tension builds towards the middle of the phrase and
// resolves on the chord that closes it.
type TensionContour struct {
	Key music.Key
}

func (TensionContour) Name() string { return Tension }

func (t TensionContour) Score(m *music.Melody, p music.Progression) float64 {
	if len(p) < 2 {
		return Neutral
	}
	ends := m.PhraseEnds()
	var errSum, weightSum float64
	for i, span := range p.Spans() {
		start, end := phraseAround(ends, span.Start+span.Len()/2)
		target := 0.2 + 0.6*math.Sin(math.Pi*float64(span.Start+span.Len()/2-start)/float64(end-start))
		weight := 1.0
		if span.Closes(end) {
			target = resolutionTarget
			weight = resolutionWeight
		}
		errSum += weight * math.Abs(t.chordTension(p[i].Symbol)-clamp01(target))
		weightSum += weight
	}
	return clamp01(1 - errSum/weightSum)
}

func (t TensionContour) chordTension(s music.Symbol) float64 {
	v := s.Quality.Tension()
	switch Classify(t.Key, s) {
	case FunctionDominant:
		v += 0.15
	case FunctionTonic:
		v -= 0.05
	}
	return clamp01(v)
}

// phraseAround returns the phrase [start, end) containing tick at.
func phraseAround(ends []music.Ticks, at music.Ticks) (music.Ticks, music.Ticks) {
	idx := sort.Search(len(ends), func(i int) bool { return ends[i] > at })
	if idx == len(ends) {
		idx = len(ends) - 1
	}
	var start music.Ticks
	if idx > 0 {
		start = ends[idx-1]
	}
	end := ends[idx]
	if end <= start {
		end = start + 1
	}
	return start, end
}
