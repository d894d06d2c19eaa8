package heuristic

import "harmonia/internal/music"

// Variety rewards distinct chords and penalizes immediate repetition.
type Variety struct{}

func (Variety) Name() string { return ChordVariety }

func (Variety) Score(_ *music.Melody, p music.Progression) float64 {
	n := len(p)
	if n < 2 {
		return Neutral
	}
	distinct := make(map[music.Symbol]struct{}, n)
	repeats := 0
	for i, c := range p {
		distinct[c.Symbol] = struct{}{}
		if i > 0 && p[i-1].Symbol == c.Symbol {
			repeats++
		}
	}
	distinctRatio := float64(len(distinct)) / float64(n)
	repeatRatio := float64(repeats) / float64(n-1)
	return clamp01(0.6*distinctRatio + 0.4*(1-repeatRatio))
}
