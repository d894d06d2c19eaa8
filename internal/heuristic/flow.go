package heuristic

import (
	"fmt"
	"sort"

	"harmonia/internal/music"
)

// Transitions is a table of preferred chord successions.
type Transitions map[music.Symbol]map[music.Symbol]struct{}

// ParseTransitions builds a table from chord names.
func ParseTransitions(raw map[string][]string) (Transitions, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	froms := make([]string, 0, len(raw))
	for from := range raw {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	table := make(Transitions, len(raw))
	for _, from := range froms {
		src, err := music.ParseSymbol(from)
		if err != nil {
			return nil, fmt.Errorf("preferred transition source: %w", err)
		}
		targets := table[src]
		if targets == nil {
			targets = make(map[music.Symbol]struct{}, len(raw[from]))
			table[src] = targets
		}
		for _, to := range raw[from] {
			dst, err := music.ParseSymbol(to)
			if err != nil {
				return nil, fmt.Errorf("preferred transition from %s: %w", from, err)
			}
			targets[dst] = struct{}{}
		}
	}
	return table, nil
}

// Allows reports whether to is a preferred successor of from.
func (t Transitions) Allows(from, to music.Symbol) bool {
	_, ok := t[from][to]
	return ok
}

// Flow rewards small root motion on the circle of fifths and short
// voice-leading distances between consecutive chords. With a preferred
// transition table, half of each transition's score comes from the table.
type Flow struct {
	Preferred Transitions
}

func (Flow) Name() string { return HarmonicFlow }

func (f Flow) Score(_ *music.Melody, p music.Progression) float64 {
	if len(p) < 2 {
		return Neutral
	}
	var total float64
	for i := 1; i < len(p); i++ {
		prev, next := p[i-1].Symbol, p[i].Symbol
		root := float64(prev.Root.FifthsDistance(next.Root)) / 6
		voices := voiceLeadingDistance(prev.PitchClasses(), next.PitchClasses()) / 6
		smooth := 1 - 0.5*root - 0.5*voices
		if len(f.Preferred) > 0 {
			preferred := 0.0
			if f.Preferred.Allows(prev, next) {
				preferred = 1
			}
			smooth = 0.5*smooth + 0.5*preferred
		}
		total += smooth
	}
	return clamp01(total / float64(len(p)-1))
}

// voiceLeadingDistance is the mean semitone distance from each tone of one
// chord to the nearest tone of the other, averaged over both directions.
func voiceLeadingDistance(a, b music.PitchSet) float64 {
	return (nearestMean(a, b) + nearestMean(b, a)) / 2
}

func nearestMean(from, to music.PitchSet) float64 {
	targets := to.Members()
	sources := from.Members()
	if len(sources) == 0 || len(targets) == 0 {
		return 6
	}
	var sum float64
	for _, s := range sources {
		best := 6
		for _, t := range targets {
			best = min(best, s.Distance(t))
		}
		sum += float64(best)
	}
	return sum / float64(len(sources))
}
