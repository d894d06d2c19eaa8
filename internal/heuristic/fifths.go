package heuristic

import "harmonia/internal/music"

// Fifths penalizes transitions whose roots move by a perfect fifth (or
// fourth) while both chords hold a perfect fifth above the root, so the
// root and fifth voices move in parallel.
type Fifths struct{}

func (Fifths) Name() string { return ParallelFifths }

func (Fifths) Score(_ *music.Melody, p music.Progression) float64 {
	if len(p) < 2 {
		return 1
	}
	faults := 0
	for i := 1; i < len(p); i++ {
		if HasParallelFifth(p[i-1].Symbol, p[i].Symbol) {
			faults++
		}
	}
	return clamp01(1 - float64(faults)/float64(len(p)-1))
}

// HasParallelFifth reports whether moving from a to b produces parallel fifths.
func HasParallelFifth(a, b music.Symbol) bool {
	return a.Root.Distance(b.Root) == 5 && a.Quality.HasPerfectFifth() && b.Quality.HasPerfectFifth()
}
