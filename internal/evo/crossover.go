package evo

import (
	"fmt"
	"sort"

	"harmonia/internal/music"
)

// Crossover recombines two parents at chord boundaries both parents share,
// so every child keeps the melody's exact duration.
type Crossover struct {
	// Points is 1 or 2. Two-point crossover degrades to one point when the
	// parents share a single boundary.
	Points int
}

func (c Crossover) Name() string {
	return fmt.Sprintf("crossover_%dpt", c.points())
}

func (c Crossover) points() int {
	if c.Points == 2 {
		return 2
	}
	return 1
}

// Apply returns two children. Parents without a common interior boundary
// are returned as clones.
func (c Crossover) Apply(rt *Runtime, a, b music.Progression) (music.Progression, music.Progression, error) {
	cuts := commonBoundaries(a, b)
	if len(cuts) == 0 {
		return a.Clone(), b.Clone(), nil
	}

	var lastErr error
	for attempt := 0; attempt < MaxRepairAttempts; attempt++ {
		chosen := c.drawCuts(rt, cuts)
		left := splice(a, b, chosen)
		right := splice(b, a, chosen)
		if err := verify(rt, c.Name(), left); err != nil {
			lastErr = err
			continue
		}
		if err := verify(rt, c.Name(), right); err != nil {
			lastErr = err
			continue
		}
		return left, right, nil
	}
	return nil, nil, fmt.Errorf("after %d attempts: %w", MaxRepairAttempts, lastErr)
}

func (c Crossover) drawCuts(rt *Runtime, cuts []music.Ticks) []music.Ticks {
	if c.points() == 1 || len(cuts) < 2 {
		return []music.Ticks{cuts[rt.RNG.Intn(len(cuts))]}
	}
	i := rt.RNG.Intn(len(cuts))
	j := rt.RNG.Intn(len(cuts) - 1)
	if j >= i {
		j++
	}
	if i > j {
		i, j = j, i
	}
	return []music.Ticks{cuts[i], cuts[j]}
}

// splice walks the timeline and switches source parent at each cut.
func splice(first, second music.Progression, cuts []music.Ticks) music.Progression {
	sources := [2]music.Progression{first, second}
	out := make(music.Progression, 0, max(len(first), len(second)))
	var start music.Ticks
	for k := 0; k <= len(cuts); k++ {
		end := first.Duration()
		if k < len(cuts) {
			end = cuts[k]
		}
		out = append(out, window(sources[k%2], start, end)...)
		start = end
	}
	return out
}

// window returns the chords of p lying wholly within [start, end).
func window(p music.Progression, start, end music.Ticks) music.Progression {
	var out music.Progression
	var at music.Ticks
	for _, ch := range p {
		if at >= start && at+ch.Duration <= end {
			out = append(out, ch)
		}
		at += ch.Duration
	}
	return out
}

func commonBoundaries(a, b music.Progression) []music.Ticks {
	inB := make(map[music.Ticks]struct{}, len(b))
	for _, t := range b.Boundaries() {
		inB[t] = struct{}{}
	}
	var out []music.Ticks
	for _, t := range a.Boundaries() {
		if _, ok := inB[t]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
